package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/scrape-relay/internal/metrics"
	"github.com/sells-group/scrape-relay/internal/model"
	"github.com/sells-group/scrape-relay/pkg/firecrawl"
)

// mockClient implements firecrawl.Client with function fields.
type mockClient struct {
	startFunc  func(ctx context.Context, req firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error)
	statusFunc func(ctx context.Context, id string) (*firecrawl.StatusResponse, error)

	starts   atomic.Int32
	statuses atomic.Int32
}

func (m *mockClient) StartBatchScrape(ctx context.Context, req firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
	m.starts.Add(1)
	return m.startFunc(ctx, req)
}

func (m *mockClient) GetBatchScrapeStatus(ctx context.Context, id string) (*firecrawl.StatusResponse, error) {
	m.statuses.Add(1)
	return m.statusFunc(ctx, id)
}

func accepted(id string) func(context.Context, firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
	return func(context.Context, firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
		return &firecrawl.BatchScrapeResponse{ID: id, HTTPStatus: http.StatusOK, Body: json.RawMessage(`{"success":true,"id":"` + id + `"}`)}, nil
	}
}

func status(body string) *firecrawl.StatusResponse {
	var env struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal([]byte(body), &env)
	return &firecrawl.StatusResponse{Status: env.Status, HTTPStatus: http.StatusOK, Body: json.RawMessage(body)}
}

func testSettings() Settings {
	return Settings{APIKey: "fc-test", PollInterval: time.Millisecond, MaxAttempts: 5}
}

func TestScrape_CompletedScenario(t *testing.T) {
	mock := &mockClient{
		startFunc: func(ctx context.Context, req firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
			assert.Equal(t, []string{"https://example.com"}, req.URLs)
			assert.True(t, req.OnlyMainContent)
			return accepted("job-1")(ctx, req)
		},
	}
	mock.statusFunc = func(ctx context.Context, id string) (*firecrawl.StatusResponse, error) {
		assert.Equal(t, "job-1", id)
		if mock.statuses.Load() == 1 {
			return status(`{"status":"pending"}`), nil
		}
		return status(`{"status":"completed","data":[{"metadata":{"sourceURL":"https://example.com","statusCode":200},"markdown":"# Hi","links":["https://example.com/a"]}]}`), nil
	}
	m := metrics.New()

	res, err := New(mock, testSettings(), WithMetrics(m)).Scrape(context.Background(), model.ScrapeRequest{
		URLs:            []string{"https://example.com"},
		OnlyMainContent: true,
	})
	require.NoError(t, err)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobId":"job-1","count":1,"sources":[{"url":"https://example.com","statusCode":200,"error":null,"markdown":"# Hi","links":["https://example.com/a"]}]}`, string(out))
	assert.Equal(t, int32(2), mock.statuses.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobsTotal.WithLabelValues("completed")), 0.001)
}

func TestScrape_ValidationMakesNoCall(t *testing.T) {
	for _, urls := range [][]string{nil, {}} {
		mock := &mockClient{}
		_, err := New(mock, testSettings()).Scrape(context.Background(), model.ScrapeRequest{URLs: urls})

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "urls[] is required", verr.Error())
		assert.Equal(t, int32(0), mock.starts.Load())
	}
}

func TestScrape_MissingAPIKeyMakesNoCall(t *testing.T) {
	mock := &mockClient{}
	settings := testSettings()
	settings.APIKey = ""

	_, err := New(mock, settings).Scrape(context.Background(), model.ScrapeRequest{URLs: []string{"https://example.com"}})

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "FIRECRAWL_API_KEY not set", cerr.Error())
	assert.Equal(t, int32(0), mock.starts.Load())
	assert.Equal(t, int32(0), mock.statuses.Load())
}

func TestScrape_SubmissionRejected(t *testing.T) {
	mock := &mockClient{
		startFunc: func(context.Context, firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
			return nil, &firecrawl.APIError{StatusCode: http.StatusPaymentRequired, Body: json.RawMessage(`{"error":"Insufficient credits"}`)}
		},
	}

	_, err := New(mock, testSettings()).Scrape(context.Background(), model.ScrapeRequest{URLs: []string{"https://example.com"}})

	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusPaymentRequired, serr.HTTPStatus)
	assert.JSONEq(t, `{"error":"Insufficient credits"}`, string(serr.Body))
	assert.Equal(t, int32(0), mock.statuses.Load())
}

func TestScrape_SubmissionTransportErrorIsUnexpected(t *testing.T) {
	mock := &mockClient{
		startFunc: func(context.Context, firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
			return nil, errors.New("dial tcp: no such host")
		},
	}

	_, err := New(mock, testSettings()).Scrape(context.Background(), model.ScrapeRequest{URLs: []string{"https://example.com"}})

	require.Error(t, err)
	var serr *SubmissionError
	assert.False(t, errors.As(err, &serr))
	assert.Contains(t, err.Error(), "no such host")
}

func TestScrape_PollFailureStopsAtAttempt(t *testing.T) {
	mock := &mockClient{startFunc: accepted("job-f")}
	mock.statusFunc = func(context.Context, string) (*firecrawl.StatusResponse, error) {
		if mock.statuses.Load() == 3 {
			return status(`{"status":"failed","error":"boom"}`), nil
		}
		return status(`{"status":"scraping"}`), nil
	}

	_, err := New(mock, testSettings()).Scrape(context.Background(), model.ScrapeRequest{URLs: []string{"https://example.com"}})

	var perr *PollFailure
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "job-f", perr.JobID)
	assert.Equal(t, 3, perr.Attempt)
	assert.Equal(t, http.StatusOK, perr.HTTPStatus)
	assert.JSONEq(t, `{"status":"failed","error":"boom"}`, string(perr.Body))
	assert.Equal(t, int32(3), mock.statuses.Load())
}

func TestScrape_TimeoutMakesExactlyMaxAttempts(t *testing.T) {
	mock := &mockClient{
		startFunc: accepted("job-t"),
		statusFunc: func(context.Context, string) (*firecrawl.StatusResponse, error) {
			return status(`{"status":"scraping","completed":1,"total":2}`), nil
		},
	}
	m := metrics.New()

	_, err := New(mock, testSettings(), WithMetrics(m)).Scrape(context.Background(), model.ScrapeRequest{URLs: []string{"https://example.com"}})

	var terr *PollTimeout
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 5, terr.Attempts)
	assert.JSONEq(t, `{"status":"scraping","completed":1,"total":2}`, string(terr.Last))
	assert.Equal(t, int32(5), mock.statuses.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobsTotal.WithLabelValues("timeout")), 0.001)
}

func TestScrape_CompletedWithoutDataIsEmptySuccess(t *testing.T) {
	mock := &mockClient{
		startFunc: accepted("job-e"),
		statusFunc: func(context.Context, string) (*firecrawl.StatusResponse, error) {
			return status(`{"status":"completed"}`), nil
		},
	}

	res, err := New(mock, testSettings()).Scrape(context.Background(), model.ScrapeRequest{URLs: []string{"https://example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "job-e", res.JobID)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, res.Sources)
}

func TestScrape_ConcurrentRequestsAreIndependent(t *testing.T) {
	mock := &mockClient{
		startFunc: func(ctx context.Context, req firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
			return accepted(req.URLs[0])(ctx, req)
		},
		statusFunc: func(_ context.Context, id string) (*firecrawl.StatusResponse, error) {
			return status(`{"status":"completed","data":{"markdown":"` + id + `"}}`), nil
		},
	}
	svc := New(mock, testSettings())

	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	results := make([]*model.ScrapeResult, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			res, err := svc.Scrape(context.Background(), model.ScrapeRequest{URLs: []string{u}})
			assert.NoError(t, err)
			results[i] = res
		}(i, u)
	}
	wg.Wait()

	for i, u := range urls {
		require.NotNil(t, results[i])
		assert.Equal(t, u, results[i].JobID)
		require.Len(t, results[i].Sources, 1)
		assert.Equal(t, u, *results[i].Sources[0].URL)
		assert.Equal(t, u, results[i].Sources[0].Markdown)
	}
}
