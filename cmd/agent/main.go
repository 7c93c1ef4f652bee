// Command agent boots one or more AgentHarness instances, each bound to a
// named stage's process function. A single agent identity normally runs
// one stage per process (matching the "pool of competing consumers"
// deployment model); -agents=all runs every stage harness in-process for
// local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kindryd/askflash-mcp/pkg/agents"
	"github.com/kindryd/askflash-mcp/pkg/broker"
	"github.com/kindryd/askflash-mcp/pkg/config"
	"github.com/kindryd/askflash-mcp/pkg/harness"
	"github.com/kindryd/askflash-mcp/pkg/metrics"
	"github.com/kindryd/askflash-mcp/pkg/models"
	"github.com/kindryd/askflash-mcp/pkg/state"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// stageSpec binds a stage name to its queue and process body.
type stageSpec struct {
	stage   string
	queue   string
	process harness.ProcessFunc
}

func allStages(webSearcher *agents.WebSearcher) []stageSpec {
	return []stageSpec{
		{models.StageIntentAnalysis, models.StageQueue[models.StageIntentAnalysis], agents.IntentAnalysis},
		{models.StageEmbeddingLookup, models.StageQueue[models.StageEmbeddingLookup], agents.EmbeddingLookup},
		{models.StageExecutorReasoning, models.StageQueue[models.StageExecutorReasoning], agents.ExecutorReasoning},
		{models.StageModeration, models.StageQueue[models.StageModeration], agents.Moderation},
		{models.StageWebSearch, models.StageQueue[models.StageWebSearch], webSearcher.Search},
	}
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	agentsFlag := flag.String("agents", getEnv("AGENTS", ""), "Comma-separated stage names to run, or \"all\" for every stage in-process")
	webSearchURL := flag.String("web-search-url", getEnv("WEB_SEARCH_URL", ""), "Base URL of the external web search provider (empty disables web_search)")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("could not load %s, continuing with existing environment: %v", envPath, err)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *agentsFlag == "" {
		log.Fatal("-agents is required (a stage name, a comma-separated list, or \"all\")")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
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

	sm, err := state.Connect(ctx, state.Config{
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
		slog.Warn("state manager unavailable, agent performance will not be recorded", "error", err)
		sm = nil
	} else {
		defer sm.Close()
	}

	webSearcher := agents.NewWebSearcher(*webSearchURL, 5*time.Second)
	specs, err := selectStages(*agentsFlag, webSearcher)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var wg sync.WaitGroup
	for _, spec := range specs {
		spec := spec
		agentName := fmt.Sprintf("%s-%s", spec.stage, uuid.NewString()[:8])
		h := harness.New(harness.Config{
			AgentName: agentName,
			Stage:     spec.stage,
			Queue:     spec.queue,
		}, store, b, sm, m, spec.process)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("agent %s consuming %s", agentName, spec.queue)
			if err := h.Run(ctx); err != nil {
				slog.Error("agent harness stopped", "agent", agentName, "error", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("shutting down")
	wg.Wait()
}

func selectStages(flagValue string, webSearcher *agents.WebSearcher) ([]stageSpec, error) {
	if flagValue == "all" {
		return allStages(webSearcher), nil
	}

	byName := make(map[string]stageSpec)
	for _, s := range allStages(webSearcher) {
		byName[s.stage] = s
	}

	var out []stageSpec
	for _, name := range strings.Split(flagValue, ",") {
		name = strings.TrimSpace(name)
		spec, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown stage %q", name)
		}
		out = append(out, spec)
	}
	if len(out) == 0 {
		return nil, errors.New("no stages selected")
	}
	return out, nil
}
