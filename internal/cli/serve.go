package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/automaton-review/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-review/internal/infra/ws"
	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "create tables before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.DB.Close()

	if autoMigrate || cfg.Database.Driver == "sqlite" {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	metrics := middleware.NewMetrics()
	hub := ws.NewHub(log)
	hub.Counters = metrics

	svc, err := newService(ctx, cfg, st, hub, metrics, log)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillRate)
	go pruneLimiter(ctx, limiter)

	handler := httpserver.NewRouter(svc, hub, httpserver.Options{
		APIKeys:     cfg.Auth.APIKeys,
		CORSOrigins: cfg.Server.CORSOrigins,
		Limiter:     limiter,
		Metrics:     metrics,
		Checks: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: st.DB},
			"analysis": middleware.CheckFunc(svc.Supervisor.Ready),
		},
		WS: ws.Options{
			SendBuffer:        cfg.WebSocket.SendBuffer,
			HeartbeatInterval: cfg.WebSocket.HeartbeatInterval,
		},
		Log:        log,
		Discussion: newDiscussion(cfg, hub, log),
	})
	if len(cfg.Auth.APIKeys) == 0 {
		log.Warn("auth.apiKeys is empty; every /v1 request will be rejected")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// run server
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("shutting down server...")

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown error")
	}
	// koneksi ws sudah di-hijack, Shutdown tidak menutupnya
	hub.Close()
	if err := svc.Supervisor.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("analysis runs cancelled at shutdown")
	}
	log.Info("server stopped")
	return nil
}

func pruneLimiter(ctx context.Context, rl *middleware.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := rl.Prune(10 * time.Minute); n > 0 {
				log.WithField("buckets", n).Debug("rate limiter pruned")
			}
		}
	}
}
