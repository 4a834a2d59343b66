package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/travisghansen/chromecast-api/internal/config"
	"github.com/travisghansen/chromecast-api/internal/discovery"
	"github.com/travisghansen/chromecast-api/internal/event"
	"github.com/travisghansen/chromecast-api/internal/store"
	"github.com/travisghansen/chromecast-api/internal/transport"
	"github.com/travisghansen/chromecast-api/pkg/models"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("castwatch starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	opts, err := discovery.OptionsFromConfig(cfg)
	if err != nil {
		logger.Fatal("invalid discovery configuration", zap.Error(err))
	}

	var mdnsTransport discovery.MDNSTransport
	if opts.MDNSEnabled {
		t, err := transport.NewMDNS(discovery.CastService, logger.Named("mdns"))
		if err != nil {
			logger.Fatal("failed to open mdns transport", zap.Error(err))
		}
		mdnsTransport = t
	}

	var ssdpTransport discovery.SSDPTransport
	if opts.SSDPEnabled {
		t, err := transport.NewSSDP(discovery.DIALSearchTarget, logger.Named("ssdp"))
		if err != nil {
			logger.Fatal("failed to open ssdp transport", zap.Error(err))
		}
		ssdpTransport = t
	}

	bus := event.NewBus(logger.Named("event"))
	svc := discovery.New(opts, bus, mdnsTransport, ssdpTransport, logger.Named("discovery"))

	// Optional persistence: mirror lifecycle events into SQLite.
	if path := cfg.GetString("store.path"); path != "" {
		db, err := store.Open(path, logger.Named("store"))
		if err != nil {
			logger.Fatal("failed to open device store", zap.Error(err))
		}
		defer db.Close()

		if known, err := db.List(context.Background()); err == nil {
			logger.Info("device store opened", zap.Int("known_devices", len(known)))
		}

		svc.OnDevice(func(d *models.Device) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := db.Upsert(ctx, d); err != nil {
				logger.Warn("device persist failed", zap.String("id", d.ID), zap.Error(err))
			}
		})
		svc.OnDeviceOffline(func(d *models.Device) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := db.Delete(ctx, d.ID); err != nil {
				logger.Warn("device delete failed", zap.String("id", d.ID), zap.Error(err))
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logger.Fatal("failed to start discovery", zap.Error(err))
	}

	// Observability endpoints: Prometheus metrics and a JSON snapshot of
	// the registry.
	listen := cfg.GetString("server.listen")
	if listen == "" {
		listen = "127.0.0.1:8008"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(svc.Devices())
	})

	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("addr", listen))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	svc.Stop()
}
