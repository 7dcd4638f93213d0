package model

// SourceRecord is the normalized result for one scraped URL. URL, StatusCode
// and Error serialize as null when the provider omitted them; Markdown and
// Links are never null.
type SourceRecord struct {
	URL        *string  `json:"url"`
	StatusCode *int     `json:"statusCode"`
	Error      *string  `json:"error"`
	Markdown   string   `json:"markdown"`
	Links      []string `json:"links"`
}

// ScrapeResult is the response for a completed job.
type ScrapeResult struct {
	JobID   string         `json:"jobId"`
	Count   int            `json:"count"`
	Sources []SourceRecord `json:"sources"`
}

// NewScrapeResult builds a result whose Count always matches Sources.
func NewScrapeResult(jobID string, sources []SourceRecord) *ScrapeResult {
	if sources == nil {
		sources = []SourceRecord{}
	}
	return &ScrapeResult{JobID: jobID, Count: len(sources), Sources: sources}
}
