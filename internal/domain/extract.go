package domain

// Normalized extraction shapes. The page extractor classifies a harvested
// page by URL host and step description, then reshapes the raw content into
// one of these records. Every shape is JSON-stable so downstream renderers
// can key off its top-level field names.

// SearchResults is the shape for search-engine result pages.
type SearchResults struct {
	Results      []SearchResult `json:"results"`
	TotalResults string         `json:"total_results"`
	SearchTime   string         `json:"search_time"`
	PageTitle    string         `json:"page_title"`
}

// SearchResult is one entry on a search results page.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ProductListing is the shape for shopping and product pages.
type ProductListing struct {
	Products   []Product `json:"products"`
	TotalFound int       `json:"total_found"`
	PageTitle  string    `json:"page_title"`
	Source     string    `json:"source"`
}

// Product is one product scraped from a listing. Price, rating and review
// count are omitted when the page did not expose them near the name.
type Product struct {
	Name    string `json:"name"`
	Price   string `json:"price,omitempty"`
	Rating  string `json:"rating,omitempty"`
	Reviews string `json:"reviews,omitempty"`
}

// ArticleListing is the shape for news and headline pages.
type ArticleListing struct {
	Articles     []Article `json:"articles"`
	TotalResults int       `json:"total_results"`
	PageTitle    string    `json:"page_title"`
}

// Article is one headline with its source domain.
type Article struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	URL    string `json:"url"`
}

// RedditListing is the shape for Reddit pages.
type RedditListing struct {
	Posts        []RedditPost `json:"posts"`
	TotalResults int          `json:"total_results"`
	PageTitle    string       `json:"page_title"`
}

// RedditPost is one post title. Score and comment counts are not visible in
// the harvested text, so they are reported as zero.
type RedditPost struct {
	Title     string `json:"title"`
	Subreddit string `json:"subreddit"`
	Score     int    `json:"score"`
	Comments  int    `json:"comments"`
}

// ProfileListing is the shape for people and profile pages.
type ProfileListing struct {
	Profiles  []Profile `json:"profiles"`
	PageTitle string    `json:"page_title"`
}

// Profile is a person record assembled from page headings and text runs.
type Profile struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Connections int    `json:"connections"`
}

// GenericPage is the fallback shape: content grouped into sections under
// the nearest heading, plus up to two cleaned tables when present.
type GenericPage struct {
	PageTitle      string       `json:"page_title"`
	Source         string       `json:"source"`
	Sections       []Section    `json:"sections"`
	ItemsExtracted int          `json:"items_extracted"`
	Tables         []CleanTable `json:"tables,omitempty"`
}

// Section is a heading with the text items that followed it.
type Section struct {
	Heading string        `json:"heading"`
	Items   []SectionItem `json:"items"`
}

// SectionItem is one text run, with its link when the element carried one.
type SectionItem struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// CleanTable is a harvested table split into a header row and data rows.
type CleanTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}
