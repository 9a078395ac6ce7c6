package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/config"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/dispatch"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/forward"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/lib/logger/sl"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/qc"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/schedule"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/server"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/store"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	log.Info("starting dashboard backend",
		slog.String("env", cfg.Env),
		slog.String("broker", cfg.MQTT.Broker),
		slog.String("address", cfg.Server.Address),
	)

	st, err := store.NewSQLiteStore(log, cfg.Store.Path)
	if err != nil {
		log.Error("failed to open store", sl.Err(err))
		os.Exit(1)
	}

	dispatcher := dispatch.New()

	forwarder := forward.New(log, cfg.Forwarder.URL, cfg.Forwarder.Interval, cfg.Forwarder.Timeout)

	ingestor := qc.NewIngestor(log, cfg.QC.URL, cfg.QC.PullInterval, cfg.QC.Timeout, dispatcher)

	matcher := schedule.NewMatcher(log, cfg.Schedule.Path, cfg.Schedule.ReloadInterval)

	worker := telemetry.NewWorker(log, cfg.MQTT.Broker, cfg.MQTT.Topic, st, dispatcher, forwarder)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ingestor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		matcher.Run(ctx)
	}()

	if err := worker.Start(); err != nil {
		log.Error("failed to start telemetry worker", sl.Err(err))
		cancel()
		os.Exit(1)
	}

	srv := server.NewServer(log, cfg.Server.Address, st, dispatcher, ingestor, matcher)
	if err := srv.Start(); err != nil {
		log.Error("failed to start http server", sl.Err(err))
		cancel()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	cancel()
	worker.Stop()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop http server", sl.Err(err))
	}

	if err := st.Close(); err != nil {
		log.Error("failed to close store", sl.Err(err))
	}

	log.Info("dashboard backend stopped")
}
