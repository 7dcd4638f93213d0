package model

import (
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
)

// ErrURLsRequired is returned for a request with no URLs.
var ErrURLsRequired = eris.New("urls[] is required")

// ScrapeRequest is one caller batch: every URL is submitted as a single
// provider job.
type ScrapeRequest struct {
	URLs            []string `json:"urls"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

// Validate checks the request before any provider call is made.
func (r ScrapeRequest) Validate() error {
	if len(r.URLs) == 0 {
		return ErrURLsRequired
	}
	for i, raw := range r.URLs {
		if !isAbsoluteHTTPURL(raw) {
			return fmt.Errorf("urls[%d] must be an absolute URL", i)
		}
	}
	return nil
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
