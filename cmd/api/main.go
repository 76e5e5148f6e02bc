package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fieldroute/internal/api"
	"fieldroute/internal/config"
	"fieldroute/internal/metrics"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	metrics.RegisterDefault()

	srv, err := api.NewServer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init server")
	}
	defer func() { _ = srv.Close() }()

	mux := http.NewServeMux()

	// Planning
	mux.HandleFunc("/v1/routes/plan", srv.PlanRouteHandler)
	mux.HandleFunc("/v1/routes/plan/abandon", srv.AbandonPlanHandler)

	// Session lifecycle
	mux.HandleFunc("/v1/sessions/active", srv.ActiveSessionHandler)
	mux.HandleFunc("/v1/sessions/", srv.SessionByIDHandler)

	// Offline queue
	mux.HandleFunc("/v1/queue/pending", srv.PendingQueueHandler)
	mux.HandleFunc("/v1/queue/drain", srv.DrainQueueHandler)

	// Connectivity + events
	mux.HandleFunc("/v1/connectivity", srv.ConnectivityHandler)
	mux.HandleFunc("/v1/events/ws", srv.EventsWSHandler)

	// Health + metrics
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.Monitor.Run(ctx)
	worker := srv.NewDrainWorker()
	worker.Start()
	defer close(worker.Stop)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Instrument(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", httpSrv.Addr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
