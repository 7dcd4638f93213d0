// Package server exposes the scrape relay over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/scrape-relay/internal/metrics"
	"github.com/sells-group/scrape-relay/internal/model"
)

// Paths that stay reachable without the shared secret.
const (
	PathHealth      = "/"
	PathDebugRoutes = "/debug-routes"
	PathScrape      = "/scrape"
)

// Scraper runs one scrape request to completion.
type Scraper interface {
	Scrape(ctx context.Context, req model.ScrapeRequest) (*model.ScrapeResult, error)
}

// Options configures the HTTP API.
type Options struct {
	// Secret enables the X-Auth gate when non-empty.
	Secret string
	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string
	// OnlyMainContent is used when a request omits onlyMainContent.
	OnlyMainContent bool
	Metrics         *metrics.Metrics
	// Now is overridable for tests.
	Now func() time.Time
}

// Server holds the router and its dependencies.
type Server struct {
	scraper Scraper
	opts    Options
	router  chi.Router
}

// New builds the router.
func New(scraper Scraper, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{scraper: scraper, opts: opts}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(opts.Metrics))
	r.Use(recoverJSON)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", AuthHeader, RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
	}
	r.Use(NewGate(opts.Secret, PathHealth, PathDebugRoutes).Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	r.Get(PathHealth, s.handleHealth)
	r.Get(PathDebugRoutes, s.handleDebugRoutes)
	r.Post(PathScrape, s.handleScrape)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Routes lists registered routes as "METHOD /path", sorted.
func (s *Server) Routes() ([]string, error) {
	var routes []string
	err := chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "server: walk routes")
	}
	sort.Strings(routes)
	return routes, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{
		OK:   true,
		Time: s.opts.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (s *Server) handleDebugRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.Routes()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

// scrapeBody mirrors the inbound JSON loosely so that a wrongly typed urls
// field is a validation failure rather than a decode failure.
type scrapeBody struct {
	URLs            json.RawMessage `json:"urls"`
	OnlyMainContent *bool           `json:"onlyMainContent"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var body scrapeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	req := model.ScrapeRequest{
		URLs:            decodeURLs(body.URLs),
		OnlyMainContent: s.opts.OnlyMainContent,
	}
	if body.OnlyMainContent != nil {
		req.OnlyMainContent = *body.OnlyMainContent
	}

	// The job runs to a terminal state even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())
	result, err := s.scraper.Scrape(ctx, req)
	if err != nil {
		status, payload := ErrorResponse(err)
		if status >= http.StatusInternalServerError {
			zap.L().Warn("scrape request failed",
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		writeJSON(w, status, payload)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// decodeURLs returns nil unless raw is a JSON array. Non-string entries
// become "" so validation reports their index.
func decodeURLs(raw json.RawMessage) []string {
	var items []any
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	urls := make([]string, len(items))
	for i, item := range items {
		if str, ok := item.(string); ok {
			urls[i] = str
		}
	}
	return urls
}
