package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/flashguard/flashguard/config"
	l "github.com/flashguard/flashguard/logger"
	"github.com/flashguard/flashguard/pkg/db"
	"github.com/flashguard/flashguard/pkg/dependencies"
	"github.com/flashguard/flashguard/pkg/metrics"
	"github.com/flashguard/flashguard/pkg/routes"
	"github.com/flashguard/flashguard/pkg/services"
	"github.com/flashguard/flashguard/pkg/vault"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	config.Init()
	l.InitLogger()
	db.InitDB()
	metrics.RegisterAPIMetrics()

	cfg := config.Get()
	log.WithFields(log.Fields{
		"Hostname":    cfg.Hostname,
		"WebPort":     cfg.WebPort,
		"MetricsPort": cfg.MetricsPort,
		"LogLevel":    cfg.LogLevel,
		"Debug":       cfg.Debug,
		"DevMode":     cfg.DevMode,
		"StoragePath": cfg.StoragePath,
	}).Info("Configuration Values:")

	rootLog := log.NewEntry(log.StandardLogger())

	v, err := vault.NewVault(cfg, rootLog)
	if err != nil {
		l.LogErrorAndPanic("failed to initialize firmware vault", err)
	}

	store := services.NewStore()
	var accounting services.AccountingRecorder
	if cfg.DevMode {
		accounting = services.NewNopRecorder(rootLog)
	} else {
		accounting = services.NewLedgerRecorder(rootLog)
	}

	factory := dependencies.NewFactory(
		v,
		store,
		accounting,
		time.Duration(cfg.SessionTTLMinutes)*time.Minute,
		time.Duration(cfg.BurnedRetentionMins)*time.Minute,
	)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		factory.Middleware,
	)

	r.Get("/", routes.StatusOK)
	r.Route("/api/flash", func(s chi.Router) {
		s.Route("/sessions", routes.MakeSessionsRouter)
	})

	mr := chi.NewRouter()
	mr.Get("/", routes.StatusOK)
	mr.Handle("/metrics", promhttp.Handler())

	srv := http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebPort),
		Handler: r,
	}

	msrv := http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: mr,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, factory, time.Duration(cfg.SweepIntervalMinutes)*time.Minute)

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint
		stopSweeper()
		if err := srv.Shutdown(context.Background()); err != nil {
			log.WithFields(log.Fields{"error": err}).Fatal("HTTP Server Shutdown failed")
		}
		if err := msrv.Shutdown(context.Background()); err != nil {
			log.WithFields(log.Fields{"error": err}).Fatal("HTTP Server Shutdown failed")
		}
		close(idleConnsClosed)
	}()

	go func() {
		if err := msrv.ListenAndServe(); err != http.ErrServerClosed {
			log.WithFields(log.Fields{"error": err}).Fatal("Metrics Service Stopped")
		}
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.WithFields(log.Fields{"error": err}).Fatal("Service Stopped")
	}

	<-idleConnsClosed
	log.Info("Everything has shut down, goodbye")
}

// runSweeper converts expired sessions to removals on a fixed cadence
func runSweeper(ctx context.Context, factory *dependencies.Factory, interval time.Duration) {
	sweeper := factory.NewSessionService(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweeper.Sweep()
		}
	}
}
