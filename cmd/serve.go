package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/scrape-relay/internal/config"
	"github.com/sells-group/scrape-relay/internal/metrics"
	"github.com/sells-group/scrape-relay/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scrape relay HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := metrics.New()

		if cfg.Firecrawl.Key == "" {
			zap.L().Warn("FIRECRAWL_API_KEY not set; scrape requests will be rejected")
		}
		if cfg.Server.Secret == "" {
			zap.L().Warn("SCRAPER_SECRET not set; API is open to all callers")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		servers := buildServers(cfg, port, m)

		g, gctx := errgroup.WithContext(ctx)
		for _, srv := range servers {
			srv := srv
			g.Go(func() error {
				zap.L().Info("starting server", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return eris.Wrap(err, "server listen "+srv.Addr)
				}
				return nil
			})
		}

		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			var errs []error
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					errs = append(errs, eris.Wrap(err, "server shutdown "+srv.Addr))
				}
			}
			return errors.Join(errs...)
		})

		return g.Wait()
	},
}

// buildServers returns the API server and, when metrics.addr is set, a
// separate listener for /metrics that sits outside the shared-secret gate.
func buildServers(cfg *config.Config, port int, m *metrics.Metrics) []*http.Server {
	api := &http.Server{
		Addr: fmt.Sprintf(":%d", port),
		Handler: server.New(newRelay(cfg, m), server.Options{
			Secret:          cfg.Server.Secret,
			CORSOrigins:     cfg.Server.CORSOrigins,
			OnlyMainContent: cfg.Firecrawl.OnlyMainContent,
			Metrics:         m,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*http.Server{api}

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	return servers
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
