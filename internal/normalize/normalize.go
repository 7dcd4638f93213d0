// Package normalize converts completed Firecrawl job payloads into the
// relay's uniform SourceRecord list.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/scrape-relay/internal/model"
)

// Dialect identifies which historical response shape a payload uses.
type Dialect int

const (
	// DialectEmpty carries no results at all.
	DialectEmpty Dialect = iota
	// DialectMulti carries a "data" list with one document per URL.
	DialectMulti
	// DialectSingle carries one flat document, either as a "data" object or
	// at the top level of the payload.
	DialectSingle
)

func (d Dialect) String() string {
	switch d {
	case DialectEmpty:
		return "empty"
	case DialectMulti:
		return "multi"
	case DialectSingle:
		return "single"
	default:
		return "unknown"
	}
}

// Top-level keys that mark a payload as a flat single-result document.
var flatKeys = []string{"markdown", "links", "metadata", "sourceURL"}

// Metadata is the subset of Firecrawl's per-document metadata the relay uses.
type Metadata struct {
	SourceURL  *string `json:"sourceURL"`
	URL        *string `json:"url"`
	StatusCode *int    `json:"statusCode"`
	Error      *string `json:"error"`
}

// Document is one provider result in either dialect.
type Document struct {
	Markdown   *string   `json:"markdown"`
	Links      LinkList  `json:"links"`
	Metadata   *Metadata `json:"metadata"`
	SourceURL  *string   `json:"sourceURL"`
	URL        *string   `json:"url"`
	StatusCode *int      `json:"statusCode"`
	Error      *string   `json:"error"`
}

// LinkList accepts links as plain strings or as objects with a "url" field.
type LinkList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *LinkList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return eris.Wrap(err, "links")
	}
	out := make(LinkList, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.URL != "" {
			out = append(out, obj.URL)
		}
	}
	*l = out
	return nil
}

// Payload is a resolved completed-job payload. Entries is set for
// DialectMulti and Flat for DialectSingle.
type Payload struct {
	Dialect Dialect
	Entries []Document
	Flat    *Document
}

// Resolve classifies body by the presence and shape of its "data" field. A
// "data" list always wins; flat handling applies only when there is no list.
func Resolve(body json.RawMessage) (*Payload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, eris.Wrap(err, "normalize: payload is not a JSON object")
	}

	data, ok := top["data"]
	if ok && !isNull(data) {
		switch firstByte(data) {
		case '[':
			var entries []Document
			if err := json.Unmarshal(data, &entries); err != nil {
				return nil, eris.Wrap(err, "normalize: decode data list")
			}
			return &Payload{Dialect: DialectMulti, Entries: entries}, nil
		case '{':
			var doc Document
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, eris.Wrap(err, "normalize: decode data object")
			}
			return &Payload{Dialect: DialectSingle, Flat: &doc}, nil
		default:
			return nil, eris.Errorf("normalize: unexpected data field %s", truncate(data, 64))
		}
	}

	for _, k := range flatKeys {
		if _, ok := top[k]; ok {
			var doc Document
			if err := json.Unmarshal(body, &doc); err != nil {
				return nil, eris.Wrap(err, "normalize: decode flat payload")
			}
			return &Payload{Dialect: DialectSingle, Flat: &doc}, nil
		}
	}

	return &Payload{Dialect: DialectEmpty}, nil
}

// Records converts p into source records in provider order. requested is the
// caller's URL list; its first entry fills a single-result record that has no
// URL of its own.
func Records(p *Payload, requested []string) []model.SourceRecord {
	switch p.Dialect {
	case DialectMulti:
		out := make([]model.SourceRecord, 0, len(p.Entries))
		for _, doc := range p.Entries {
			out = append(out, record(doc))
		}
		return out
	case DialectSingle:
		rec := record(*p.Flat)
		if rec.URL == nil && len(requested) > 0 {
			u := requested[0]
			rec.URL = &u
		}
		return []model.SourceRecord{rec}
	default:
		return []model.SourceRecord{}
	}
}

// Normalize resolves body and returns its records.
func Normalize(body json.RawMessage, requested []string) ([]model.SourceRecord, Dialect, error) {
	p, err := Resolve(body)
	if err != nil {
		return nil, DialectEmpty, err
	}
	return Records(p, requested), p.Dialect, nil
}

func record(doc Document) model.SourceRecord {
	rec := model.SourceRecord{
		URL:        firstString(doc.metaSourceURL(), doc.metaURL(), doc.URL, doc.SourceURL),
		StatusCode: firstInt(doc.metaStatusCode(), doc.StatusCode),
		Error:      firstString(doc.metaError(), doc.Error),
		Links:      []string{},
	}
	if doc.Markdown != nil {
		rec.Markdown = *doc.Markdown
	}
	if doc.Links != nil {
		rec.Links = append(rec.Links, doc.Links...)
	}
	return rec
}

func (d Document) metaSourceURL() *string {
	if d.Metadata == nil {
		return nil
	}
	return d.Metadata.SourceURL
}

func (d Document) metaURL() *string {
	if d.Metadata == nil {
		return nil
	}
	return d.Metadata.URL
}

func (d Document) metaStatusCode() *int {
	if d.Metadata == nil {
		return nil
	}
	return d.Metadata.StatusCode
}

func (d Document) metaError() *string {
	if d.Metadata == nil {
		return nil
	}
	return d.Metadata.Error
}

func firstString(vals ...*string) *string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func isNull(data json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func firstByte(data json.RawMessage) byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func truncate(data json.RawMessage, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return fmt.Sprintf("%s...", data[:n])
}
