package domain

// Per-action result records. Each executor produces exactly one of these;
// the engine marshals it into Step.ResultData and onto the step_completed
// event. Records from a live browser carry "live": true, simulated ones
// carry "simulated": true; the inactive flag is omitted from the JSON.

// NavigateResult records a navigate step.
//
// Example:
//
//	{
//	    "url": "https://www.google.com/search?q=widgets",
//	    "status_code": 200,
//	    "page_title": "widgets - Google Search",
//	    "load_time_ms": 412,
//	    "dom_ready": true,
//	    "live": true
//	}
//
// When bot detection forced a search-engine fallback the record additionally
// carries fallback, original_url and fallback_reason.
type NavigateResult struct {
	URL            string `json:"url"`
	StatusCode     int    `json:"status_code"`
	PageTitle      string `json:"page_title"`
	LoadTimeMS     int64  `json:"load_time_ms"`
	DOMReady       bool   `json:"dom_ready"`
	Fallback       bool   `json:"fallback,omitempty"`
	OriginalURL    string `json:"original_url,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	Live           bool   `json:"live,omitempty"`
	Simulated      bool   `json:"simulated,omitempty"`
}

// ClickResult records a click step.
type ClickResult struct {
	Element        string `json:"element"`
	Clicked        bool   `json:"clicked"`
	CurrentURL     string `json:"current_url,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	Live           bool   `json:"live,omitempty"`
	Simulated      bool   `json:"simulated,omitempty"`
}

// TypeResult records a type step.
type TypeResult struct {
	Element        string `json:"element"`
	TextEntered    string `json:"text_entered"`
	Characters     int    `json:"characters"`
	CurrentURL     string `json:"current_url,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms,omitempty"`
	Live           bool   `json:"live,omitempty"`
	Simulated      bool   `json:"simulated,omitempty"`
}

// WaitResult records a wait step.
type WaitResult struct {
	WaitedMS   int64  `json:"waited_ms"`
	PageReady  bool   `json:"page_ready"`
	CurrentURL string `json:"current_url,omitempty"`
	Live       bool   `json:"live,omitempty"`
	Simulated  bool   `json:"simulated,omitempty"`
}

// ConditionalResult records a conditional step's verdict. BranchTaken is
// "continue" when the next step runs, "skip_next" when it is skipped.
type ConditionalResult struct {
	Expression  string `json:"expression"`
	EvaluatedTo bool   `json:"evaluated_to"`
	BranchTaken string `json:"branch_taken"`
	Reason      string `json:"reason,omitempty"`
	AIPowered   bool   `json:"ai_powered,omitempty"`
	Live        bool   `json:"live,omitempty"`
	Simulated   bool   `json:"simulated,omitempty"`
}

// Branch values for ConditionalResult.BranchTaken.
const (
	BranchContinue = "continue"
	BranchSkipNext = "skip_next"
)
