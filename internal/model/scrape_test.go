package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		urls    []string
		wantErr string
	}{
		{name: "nil", urls: nil, wantErr: "urls[] is required"},
		{name: "empty", urls: []string{}, wantErr: "urls[] is required"},
		{name: "relative", urls: []string{"https://example.com", "/about"}, wantErr: "urls[1] must be an absolute URL"},
		{name: "unsupported scheme", urls: []string{"ftp://example.com"}, wantErr: "urls[0] must be an absolute URL"},
		{name: "blank", urls: []string{""}, wantErr: "urls[0] must be an absolute URL"},
		{name: "valid", urls: []string{"https://example.com", "http://example.org/a?b=c"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ScrapeRequest{URLs: tt.urls}.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, JobStatusPending.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusTimeout.IsTerminal())
}

func TestNewScrapeResult(t *testing.T) {
	t.Parallel()

	t.Run("nil sources serialize as empty list", func(t *testing.T) {
		t.Parallel()
		res := NewScrapeResult("job-1", nil)
		out, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, `{"jobId":"job-1","count":0,"sources":[]}`, string(out))
	})

	t.Run("absent fields serialize as null", func(t *testing.T) {
		t.Parallel()
		res := NewScrapeResult("job-2", []SourceRecord{{Links: []string{}}})
		out, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, `{"jobId":"job-2","count":1,"sources":[{"url":null,"statusCode":null,"error":null,"markdown":"","links":[]}]}`, string(out))
	})
}
