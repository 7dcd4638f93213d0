package main

import (
	"time"

	"github.com/sells-group/scrape-relay/internal/config"
	"github.com/sells-group/scrape-relay/internal/metrics"
	"github.com/sells-group/scrape-relay/internal/relay"
	"github.com/sells-group/scrape-relay/pkg/firecrawl"
)

// newRelay builds the Firecrawl client and orchestrator from cfg. m may be nil.
func newRelay(cfg *config.Config, m *metrics.Metrics) *relay.Service {
	client := firecrawl.NewClient(cfg.Firecrawl.Key,
		firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL),
		firecrawl.WithTimeout(time.Duration(cfg.Firecrawl.TimeoutSecs)*time.Second),
		firecrawl.WithRateLimit(cfg.Firecrawl.RequestsPerSecond),
		firecrawl.WithObserver(m.ObserveProvider),
	)

	return relay.New(client, relay.Settings{
		APIKey:       cfg.Firecrawl.Key,
		PollInterval: cfg.Poll.Interval(),
		MaxAttempts:  cfg.Poll.MaxAttempts,
	}, relay.WithMetrics(m))
}
