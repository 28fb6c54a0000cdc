package browser

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/errors"
)

// ContentItem is one visible text run harvested from the page.
type ContentItem struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// RawContent is the page harvest before normalization. ItemsExtracted counts
// everything the harvest saw; Content keeps only the first 50 items.
type RawContent struct {
	PageTitle      string            `json:"page_title"`
	URL            string            `json:"url"`
	ItemsExtracted int               `json:"items_extracted"`
	Content        []ContentItem     `json:"content"`
	Tables         [][][]string      `json:"tables,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
	ScrapedAt      time.Time         `json:"scraped_at"`
}

// contentHarvestJS collects up to 80 deduped visible text runs, tagged by
// semantic element, each capped at 400 characters.
const contentHarvestJS = `() => {
	const items = [];
	const seen = new Set();
	const els = document.querySelectorAll(
		'h1, h2, h3, h4, h5, p, li, td, th, span, a, label, article, section, [role="listitem"]'
	);
	for (const el of els) {
		const text = (el.innerText || '').trim() || (el.textContent || '').trim();
		if (text.length < 3 || text.length > 800 || seen.has(text)) continue;
		seen.add(text);
		items.push({
			tag: el.tagName.toLowerCase(),
			text: text.substring(0, 400),
			href: el.href || '',
		});
		if (items.length >= 80) break;
	}
	return items;
}`

// metaHarvestJS keeps the first 10 named meta tags in document order.
const metaHarvestJS = `() => {
	const m = {};
	let n = 0;
	document.querySelectorAll('meta[name], meta[property]').forEach(el => {
		if (n >= 10) return;
		const key = el.getAttribute('name') || el.getAttribute('property');
		if (!key || key in m) return;
		m[key] = (el.getAttribute('content') || '').substring(0, 200);
		n++;
	});
	return m;
}`

// tableHarvestJS scans the first three tables, keeping up to 21 rows each
// with cells capped at 200 characters.
const tableHarvestJS = `() => {
	const tables = [];
	document.querySelectorAll('table').forEach((table, ti) => {
		if (ti > 2) return;
		const rows = [];
		table.querySelectorAll('tr').forEach((tr, ri) => {
			if (ri > 20) return;
			const cells = [];
			tr.querySelectorAll('td, th').forEach(td => {
				cells.push((td.innerText || '').trim().substring(0, 200));
			});
			if (cells.length > 0) rows.push(cells);
		});
		if (rows.length > 0) tables.push(rows);
	});
	return tables;
}`

// Harvest reads the current page into a RawContent. It fails when the page
// is gone (tab crashed or session closed); everything else is collected
// as-is, including empty content on blank pages.
func (s *Session) Harvest(ctx context.Context) (*RawContent, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return nil, errors.Wrap(errors.ErrSessionClosed, "page unavailable for harvest")
	}
	raw := &RawContent{
		PageTitle: info.Title,
		URL:       info.URL,
		ScrapedAt: time.Now().UTC(),
	}

	var items []ContentItem
	if err := s.evalInto(ctx, contentHarvestJS, &items); err != nil {
		return nil, err
	}
	raw.ItemsExtracted = len(items)
	if len(items) > 50 {
		items = items[:50]
	}
	raw.Content = items

	var meta map[string]string
	if err := s.evalInto(ctx, metaHarvestJS, &meta); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		raw.Meta = meta
	}

	var tables [][][]string
	if err := s.evalInto(ctx, tableHarvestJS, &tables); err != nil {
		return nil, err
	}
	if len(tables) > 2 {
		tables = tables[:2]
	}
	if len(tables) > 0 {
		raw.Tables = tables
	}

	return raw, nil
}

// evalInto runs a JS expression and decodes its JSON result into out.
func (s *Session) evalInto(ctx context.Context, js string, out any) error {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return errors.Wrap(err, "harvest page content")
	}
	rawJSON, err := res.Value.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "harvest page content")
	}
	if err := json.Unmarshal(rawJSON, out); err != nil {
		return errors.Wrap(err, "harvest page content")
	}
	return nil
}

var (
	priceRe  = regexp.MustCompile(`\$[\d,]+\.?\d*`)
	ratingRe = regexp.MustCompile(`(?i)(\d(?:\.\d)?)\s*(?:out of|/)\s*5|(\d(?:\.\d)?)\s*stars?`)
	reviewRe = regexp.MustCompile(`(?i)([\d,]+)\s*(?:reviews?|ratings?|votes?)`)
	numberRe = regexp.MustCompile(`[\d,]+`)
)

// Normalize reshapes a raw harvest into the domain schema selected by URL
// host first, then description keywords. Reddit is matched before the news
// hosts so its posts shape wins on reddit.com.
func Normalize(raw *RawContent, description, target string) any {
	u := strings.ToLower(raw.URL)
	desc := strings.ToLower(description + " " + target)

	switch {
	case containsAny(u, "duckduckgo.com", "google.com/search", "bing.com/search"):
		return normalizeSearch(raw)
	case containsAny(u, "amazon.", "ebay.", "walmart.", "etsy."):
		return normalizeProducts(raw)
	case strings.Contains(u, "reddit.com"):
		return normalizeReddit(raw)
	case containsAny(u, "news.ycombinator", "techcrunch", "bbc.com", "cnn.com", "reuters"):
		return normalizeArticles(raw)
	case strings.Contains(u, "linkedin.com"):
		return normalizeProfiles(raw)
	case containsAny(desc, "product", "price", "cost", "buy"):
		return normalizeProducts(raw)
	case containsAny(desc, "article", "headline", "news", "story"):
		return normalizeArticles(raw)
	case containsAny(desc, "search result", "results", "snippet"):
		return normalizeSearch(raw)
	case containsAny(desc, "profile", "person", "lead", "contact"):
		return normalizeProfiles(raw)
	default:
		return normalizeGeneric(raw)
	}
}

// normalizeSearch pairs result links with the snippet paragraph that follows
// them. When the page yields no such pairs, every link becomes a bare result.
func normalizeSearch(raw *RawContent) *domain.SearchResults {
	content := raw.Content
	results := make([]domain.SearchResult, 0, 10)

	for i := 0; i < len(content) && len(results) < 10; i++ {
		item := content[i]
		if item.Href == "" || len(item.Text) <= 10 || !isOneOf(item.Tag, "a", "h3", "h2") {
			continue
		}
		snippet := ""
		for j := i + 1; j < len(content) && j < i+4; j++ {
			next := content[j]
			if next.Href == "" && len(next.Text) > 20 && isOneOf(next.Tag, "p", "span", "li") {
				snippet = truncate(next.Text, 200)
				break
			}
		}
		if snippet == "" {
			snippet = truncate(item.Text, 200)
		}
		results = append(results, domain.SearchResult{
			Title:   truncate(item.Text, 120),
			URL:     item.Href,
			Snippet: snippet,
		})
	}

	if len(results) == 0 {
		for _, item := range content {
			if item.Href == "" || len(item.Text) <= 10 {
				continue
			}
			results = append(results, domain.SearchResult{
				Title: truncate(item.Text, 120),
				URL:   item.Href,
			})
			if len(results) >= 10 {
				break
			}
		}
	}

	return &domain.SearchResults{
		Results:      results,
		TotalResults: strconv.Itoa(len(results)) + "+",
		SearchTime:   "live",
		PageTitle:    raw.PageTitle,
	}
}

// normalizeProducts opens a product on each price-free heading and folds the
// prices, ratings and review counts that follow into it.
func normalizeProducts(raw *RawContent) *domain.ProductListing {
	var products []domain.Product
	var current *domain.Product

	for _, item := range raw.Content {
		text := item.Text
		if isOneOf(item.Tag, "h1", "h2", "h3", "a") &&
			len(text) > 10 && len(text) < 200 && !priceRe.MatchString(text) {
			if current != nil {
				products = append(products, *current)
				if len(products) >= 10 {
					current = nil
					break
				}
			}
			p := domain.Product{Name: truncate(text, 120)}
			current = &p
			continue
		}
		if current == nil {
			continue
		}
		if current.Price == "" {
			current.Price = priceRe.FindString(text)
		}
		if m := ratingRe.FindStringSubmatch(text); m != nil {
			if m[1] != "" {
				current.Rating = m[1]
			} else {
				current.Rating = m[2]
			}
		}
		if m := reviewRe.FindStringSubmatch(text); m != nil {
			current.Reviews = m[1]
		}
	}
	if current != nil {
		products = append(products, *current)
	}

	// Unparseable listing: summarize the page into a single product.
	if len(products) == 0 {
		var texts, headings []string
		for _, item := range raw.Content {
			texts = append(texts, item.Text)
			if isOneOf(item.Tag, "h1", "h2", "h3") {
				headings = append(headings, item.Text)
			}
		}
		prices := priceRe.FindAllString(strings.Join(texts, " "), -1)
		if len(headings) > 0 || len(prices) > 0 {
			p := domain.Product{Name: raw.PageTitle}
			if len(headings) > 0 {
				p.Name = headings[0]
			}
			if len(prices) > 0 {
				p.Price = prices[0]
			}
			products = append(products, p)
		}
	}

	return &domain.ProductListing{
		Products:   products,
		TotalFound: len(products),
		PageTitle:  raw.PageTitle,
		Source:     hostOf(raw.URL),
	}
}

func normalizeArticles(raw *RawContent) *domain.ArticleListing {
	source := hostOf(raw.URL)
	articles := make([]domain.Article, 0, 15)
	for _, item := range raw.Content {
		if !isOneOf(item.Tag, "h1", "h2", "h3", "a") || len(item.Text) <= 15 || len(item.Text) >= 300 {
			continue
		}
		articles = append(articles, domain.Article{
			Title:  truncate(item.Text, 200),
			Source: source,
			URL:    item.Href,
		})
		if len(articles) >= 15 {
			break
		}
	}
	return &domain.ArticleListing{
		Articles:     articles,
		TotalResults: len(articles),
		PageTitle:    raw.PageTitle,
	}
}

func normalizeReddit(raw *RawContent) *domain.RedditListing {
	posts := make([]domain.RedditPost, 0, 10)
	for _, item := range raw.Content {
		if !isOneOf(item.Tag, "h3", "h2", "a") || len(item.Text) <= 15 || len(item.Text) >= 300 {
			continue
		}
		post := domain.RedditPost{
			Title:     truncate(item.Text, 200),
			Subreddit: "r/all",
		}
		if idx := strings.Index(item.Href, "/r/"); idx >= 0 {
			name := item.Href[idx+3:]
			if cut := strings.IndexByte(name, '/'); cut >= 0 {
				name = name[:cut]
			}
			if name != "" {
				post.Subreddit = "r/" + name
			}
		}
		posts = append(posts, post)
		if len(posts) >= 10 {
			break
		}
	}
	return &domain.RedditListing{
		Posts:        posts,
		TotalResults: len(posts),
		PageTitle:    raw.PageTitle,
	}
}

// normalizeProfiles reads the first h1/h2 as the person's name, the first two
// text runs as title and company, then scans for location and connections.
func normalizeProfiles(raw *RawContent) *domain.ProfileListing {
	var headings, texts []string
	for _, item := range raw.Content {
		switch item.Tag {
		case "h1", "h2":
			headings = append(headings, item.Text)
		case "p", "span", "li":
			texts = append(texts, item.Text)
		}
	}

	listing := &domain.ProfileListing{PageTitle: raw.PageTitle}
	if len(headings) == 0 {
		return listing
	}

	profile := domain.Profile{
		Name:  truncate(headings[0], 100),
		Title: "Professional",
	}
	if len(texts) > 0 {
		profile.Title = truncate(texts[0], 100)
	}
	if len(texts) > 1 {
		profile.Company = truncate(texts[1], 100)
	}
	for _, t := range texts {
		lower := strings.ToLower(t)
		if profile.Location == "" && len(t) < 60 &&
			(containsAny(lower, "location", "area", "city", "country") || strings.Contains(t, ", ")) {
			profile.Location = t
		}
		if strings.Contains(lower, "connection") {
			if m := numberRe.FindString(t); m != "" {
				if n, err := strconv.Atoi(strings.ReplaceAll(m, ",", "")); err == nil {
					profile.Connections = n
				}
			}
		}
	}

	listing.Profiles = []domain.Profile{profile}
	return listing
}

// normalizeGeneric groups text under the nearest heading, keeping the first
// eight sections and up to two cleaned tables.
func normalizeGeneric(raw *RawContent) *domain.GenericPage {
	var sections []domain.Section
	current := domain.Section{Heading: raw.PageTitle}

	for _, item := range raw.Content {
		text := item.Text
		switch {
		case isOneOf(item.Tag, "h1", "h2", "h3") && len(text) > 3:
			if len(current.Items) > 0 {
				sections = append(sections, current)
			}
			current = domain.Section{Heading: truncate(text, 150)}
		case len(text) > 5:
			entry := domain.SectionItem{Text: truncate(text, 300)}
			if item.Href != "" {
				entry.Link = item.Href
			}
			current.Items = append(current.Items, entry)
		}
	}
	if len(current.Items) > 0 {
		sections = append(sections, current)
	}
	if len(sections) > 8 {
		sections = sections[:8]
	}

	// items_extracted counts the flat summary: up to five items per section,
	// stopping once twenty accumulate.
	summaryCount := 0
	for _, sec := range sections {
		n := len(sec.Items)
		if n > 5 {
			n = 5
		}
		summaryCount += n
		if summaryCount >= 20 {
			break
		}
	}

	var tables []domain.CleanTable
	scan := raw.Tables
	if len(scan) > 2 {
		scan = scan[:2]
	}
	for _, table := range scan {
		if len(table) <= 1 {
			continue
		}
		rows := table[1:]
		if len(rows) > 9 {
			rows = rows[:9]
		}
		tables = append(tables, domain.CleanTable{Headers: table[0], Rows: rows})
	}

	return &domain.GenericPage{
		PageTitle:      raw.PageTitle,
		Source:         hostOf(raw.URL),
		Sections:       sections,
		ItemsExtracted: summaryCount,
		Tables:         tables,
	}
}

// PageText flattens a harvest into the text block sent to the model: the
// first 30 items as markdown-ish lines, the first table as pipe-separated
// rows, capped at 3000 characters.
func PageText(raw *RawContent) string {
	var sb strings.Builder
	items := raw.Content
	if len(items) > 30 {
		items = items[:30]
	}
	for i, item := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if item.Href != "" {
			sb.WriteString("[" + item.Text + "](" + item.Href + ")")
		} else {
			sb.WriteString(item.Text)
		}
	}
	if len(raw.Tables) > 0 {
		rows := raw.Tables[0]
		if len(rows) > 10 {
			rows = rows[:10]
		}
		for _, row := range rows {
			sb.WriteString("\n| " + strings.Join(row, " | ") + " |")
		}
	}
	return truncate(sb.String(), 3000)
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}

func isOneOf(tag string, tags ...string) bool {
	for _, t := range tags {
		if tag == t {
			return true
		}
	}
	return false
}

// truncate caps a string at n runes without splitting a character.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
