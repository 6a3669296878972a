package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opstrack.org/internal/audit"
	"opstrack.org/internal/auth"
	"opstrack.org/internal/config"
	"opstrack.org/internal/obs"
	"opstrack.org/internal/permission"
	"opstrack.org/internal/session"
	"opstrack.org/internal/store/pg"
)

var version = "0.3.1"

// app is the composition root. The request routing layer is deployed
// separately and consumes these components through their interfaces;
// this binary owns wiring, metrics, health and background maintenance.
type app struct {
	cfg        *config.Config
	store      *pg.Store
	recorder   *audit.Recorder
	ledger     *session.Ledger
	engine     *permission.Engine
	challenges *auth.ChallengeStore
	tokens     *auth.TokenService
	service    *auth.Service
}

func main() {
	obs.Init()
	logger := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.DatabaseDSN == "" {
		logger.Fatal("config: OPSTRACK_PG_DSN is required")
	}

	a, err := build(cfg)
	if err != nil {
		logger.Fatalf("wire: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.store.DB().PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go a.sweep(sweepCtx)

	obs.LogEvent("starting", map[string]any{
		"version": version,
		"addr":    cfg.ListenAddr,
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	obs.LogEvent("shutting_down", nil)

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if err := a.recorder.ForceFlush(ctx); err != nil {
		obs.LogError("audit", err, map[string]any{"op": "final_flush"})
	}
	_ = a.store.Close()
	obs.LogEvent("stopped", nil)
}

func build(cfg *config.Config) (*app, error) {
	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	recorder, err := audit.NewRecorder(store.Audit(),
		audit.WithBatchSize(cfg.AuditBatchSize),
		audit.WithMaxBufferAge(cfg.AuditMaxBufferAge),
		audit.WithFlushTimeout(cfg.AuditFlushTimeout),
		audit.WithMasker(audit.NewMasker(audit.DefaultSensitivePatterns)),
	)
	if err != nil {
		return nil, err
	}

	ledger, err := session.NewLedger(store.Sessions(), cfg.RevocationCacheSize)
	if err != nil {
		return nil, err
	}

	engine, err := permission.NewEngine(store.Grants(), store.Teams(), cfg.PermissionCacheSize)
	if err != nil {
		return nil, err
	}

	challenges := auth.NewChallengeStore(cfg.ChallengeTTL)

	tokens, err := auth.NewTokenService([]byte(cfg.TokenSecret), cfg.TokenIssuer, ledger,
		auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		return nil, err
	}

	service, err := auth.NewService(store.Principals(), tokens, challenges, recorder)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		store:      store,
		recorder:   recorder,
		ledger:     ledger,
		engine:     engine,
		challenges: challenges,
		tokens:     tokens,
		service:    service,
	}, nil
}

// sweep runs retention maintenance until ctx is cancelled.
func (a *app) sweep(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sessions, err := a.ledger.SweepExpired(ctx, a.cfg.SessionRetention)
		if err != nil {
			obs.LogError("session", err, map[string]any{"op": "sweep"})
		}
		events, err := a.recorder.SweepRetention(ctx, a.cfg.AuditRetention)
		if err != nil {
			obs.LogError("audit", err, map[string]any{"op": "sweep"})
		}
		nonces := a.challenges.Sweep()

		if err := a.recorder.ForceFlush(ctx); err != nil {
			obs.LogError("audit", err, map[string]any{"op": "age_flush"})
		}

		obs.LogEvent("sweep_complete", map[string]any{
			"sessions_deleted": sessions,
			"events_deleted":   events,
			"nonces_evicted":   nonces,
		})
	}
}
