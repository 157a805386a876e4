package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hackgods/clinic-intake-agent/internal/api"
	"github.com/hackgods/clinic-intake-agent/internal/app/bootstrap"
	"github.com/hackgods/clinic-intake-agent/internal/config"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("config loaded", "env", cfg.Env, "http_port", cfg.HTTPPort, "data_dir", cfg.DataDir,
		"lookahead_days", cfg.LookaheadDays, "redis", cfg.UsesRedis(), "postgres", cfg.UsesPostgres())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := bootstrap.New(rootCtx, cfg, logger, reg)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	defer a.Close()

	var pg api.Pinger
	if a.Postgres != nil {
		pg = a.Postgres
	}
	health := api.NewHealthHandler(pg, a.Redis, map[string]string{
		"schedules": cfg.SchedulesPath,
		"patients":  cfg.PatientsPath,
	}, cfg.Env, version)

	router := api.NewRouter(api.RouterConfig{
		Conversations: a.Controller,
		Schedule:      a.Schedule,
		Outbox:        a.Outbox,
		Appointments:  a.Appointments,
		Patients:      a.Patients,
		PatientsFile:  cfg.PatientsPath,
		SchedulesFile: cfg.SchedulesPath,
		Health:        health,
		Gatherer:      reg,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
