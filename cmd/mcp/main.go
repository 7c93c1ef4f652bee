// Command mcp runs the core orchestrator: the Coordinator, the ControlAPI,
// and the ReActForwarder, wired against a shared NATS connection and an
// optional PostgreSQL-backed StateManager.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kindryd/askflash-mcp/pkg/adaptive"
	"github.com/kindryd/askflash-mcp/pkg/api"
	"github.com/kindryd/askflash-mcp/pkg/broker"
	"github.com/kindryd/askflash-mcp/pkg/config"
	"github.com/kindryd/askflash-mcp/pkg/coordinator"
	"github.com/kindryd/askflash-mcp/pkg/metrics"
	"github.com/kindryd/askflash-mcp/pkg/reactforward"
	"github.com/kindryd/askflash-mcp/pkg/state"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
	"github.com/kindryd/askflash-mcp/pkg/version"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("could not load %s, continuing with existing environment: %v", envPath, err)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log.Printf("starting %s", version.Full())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.DefaultRegisterer
	m := metrics.MustNewMetrics(reg)

	b, err := broker.Connect(broker.Config{
		URL:            cfg.NATS.URL,
		QueueMaxLength: cfg.NATS.QueueMaxLength,
		Prefetch:       cfg.NATS.Prefetch,
	})
	if err != nil {
		log.Fatalf("failed to start broker: %v", err)
	}
	defer b.Close()

	store, err := taskstore.Connect(taskstore.Config{
		URL:        cfg.NATS.URL,
		Bucket:     cfg.NATS.TaskStoreKV,
		StreamName: cfg.NATS.StreamsName,
		TTL:        cfg.Stage.TaskTTL,
	})
	if err != nil {
		log.Fatalf("failed to start task store: %v", err)
	}
	defer store.Close()

	var sm *state.Manager
	sm, err = state.Connect(ctx, state.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		slog.Warn("state manager unavailable, continuing without durable history", "error", err)
		sm = nil
	} else {
		defer sm.Close()
	}

	ad := adaptive.New(adaptive.Config{BaseURL: cfg.Adaptive.BaseURL, Timeout: cfg.Adaptive.Timeout})

	coord := coordinator.New(store, b, ad, sm, m, coordinator.Config{
		StageTimeout: cfg.Stage.StageTimeout,
		MaxRetries:   cfg.Stage.MaxRetries,
	})

	forwarder := reactforward.New(b)
	go forwarder.Run(ctx)

	server := api.NewServer(api.Config{
		Addr:            cfg.HTTP.Addr,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		DefaultTemplate: cfg.Stage.DefaultTemplate,
	}, coord, store, b, sm, ad, m)

	go func() {
		log.Printf("control API listening on %s", cfg.HTTP.Addr)
		if err := server.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control API server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("control API shutdown error", "error", err)
	}
}
