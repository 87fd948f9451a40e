// Omni-Retail query orchestrator: classifies customer-support queries,
// plans tiered capability execution across the commerce, logistics,
// payments, and support databases, and synthesizes one narrative answer.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	orchestratorx "github.com/omniretail/orchestrator/agent/agents/orchestrator"
	"github.com/omniretail/orchestrator/agent/capabilities/caredesk"
	"github.com/omniretail/orchestrator/agent/capabilities/payguard"
	"github.com/omniretail/orchestrator/agent/capabilities/shipstream"
	"github.com/omniretail/orchestrator/agent/capabilities/shopcore"
	classifierx "github.com/omniretail/orchestrator/agent/classifier"
	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	executorx "github.com/omniretail/orchestrator/agent/executor"
	llmx "github.com/omniretail/orchestrator/agent/llm"
	plannerx "github.com/omniretail/orchestrator/agent/planner"
	promptx "github.com/omniretail/orchestrator/agent/prompt"
	registryx "github.com/omniretail/orchestrator/agent/registry"
	statex "github.com/omniretail/orchestrator/agent/state"
	synthx "github.com/omniretail/orchestrator/agent/synth"
	apix "github.com/omniretail/orchestrator/internal/api"
	configx "github.com/omniretail/orchestrator/pkg/config"
	_ "github.com/omniretail/orchestrator/pkg/logger/autoload"
	openrouterx "github.com/omniretail/orchestrator/pkg/openrouter"
)

type AppConfig struct {
	Port    int    `envconfig:"PORT" default:"8000"`
	Version string `envconfig:"VERSION" default:"dev"`

	ShopcoreDSN   string `envconfig:"SHOPCORE_DSN" split_words:"true" required:"true"`
	ShipstreamDSN string `envconfig:"SHIPSTREAM_DSN" split_words:"true" required:"true"`
	PayguardDSN   string `envconfig:"PAYGUARD_DSN" split_words:"true" required:"true"`
	CaredeskDSN   string `envconfig:"CAREDESK_DSN" split_words:"true" required:"true"`

	// SessionBackend selects "memory" or "redis".
	SessionBackend string        `envconfig:"SESSION_BACKEND" split_words:"true" default:"memory"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"30m"`
}

func main() {
	cfg := configx.MustNew[AppConfig]("OMNI")

	shopcoreDB := openDB(cfg.ShopcoreDSN)
	shipstreamDB := openDB(cfg.ShipstreamDSN)
	payguardDB := openDB(cfg.PayguardDSN)
	caredeskDB := openDB(cfg.CaredeskDSN)
	defer shopcoreDB.Close()
	defer shipstreamDB.Close()
	defer payguardDB.Close()
	defer caredeskDB.Close()

	reg, err := buildRegistry(shopcoreDB, shipstreamDB, payguardDB, caredeskDB)
	if err != nil {
		log.Fatal().Err(err).Msg("build capability registry")
	}

	store := buildStore(cfg)

	clf, primarySynth, modelPing := buildModelStack(reg)
	fallbackSynth := synthx.NewFallbackSynthesizer()

	plannerCfg := configx.MustNew[plannerx.Config]("PLANNER")
	executorCfg := configx.MustNew[executorx.Config]("EXECUTOR")
	orchCfg := configx.MustNew[orchestratorx.Config]("ORCHESTRATOR")

	orch, err := orchestratorx.New(
		store,
		clf,
		primarySynth,
		fallbackSynth,
		entityx.NewExtractor(),
		plannerx.New(reg, *plannerCfg),
		executorx.New(reg, *executorCfg),
		*orchCfg,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	pingers := map[string]apix.Pinger{
		"shopcore":   pingDB(shopcoreDB),
		"shipstream": pingDB(shipstreamDB),
		"payguard":   pingDB(payguardDB),
		"caredesk":   pingDB(caredeskDB),
	}
	if modelPing != nil {
		pingers["model"] = modelPing
	}
	handlers := apix.NewHandlers(orch, reg, pingers, cfg.Version)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      apix.NewRouter(handlers),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Int("port", cfg.Port).Str("version", cfg.Version).Msg("orchestrator listening")
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func openDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func pingDB(db *bun.DB) apix.Pinger {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

func buildRegistry(shopcoreDB, shipstreamDB, payguardDB, caredeskDB *bun.DB) (*registryx.Registry, error) {
	descs, err := registryx.LoadDescriptors()
	if err != nil {
		return nil, err
	}

	find := func(name string) registryx.Descriptor {
		d, _ := registryx.FindDescriptor(descs, name)
		return d
	}

	return registryx.New(descs,
		shopcore.NewCatalogResolve(find("catalog-resolve"), shopcoreDB),
		shopcore.NewRecentOrders(find("catalog-recent-orders"), shopcoreDB),
		shipstream.NewLookup(find("logistics-lookup"), shipstreamDB),
		payguard.NewTransactionLookup(find("payments-lookup"), payguardDB),
		payguard.NewWalletBalance(find("payments-balance"), payguardDB),
		caredesk.NewTicketLookup(find("support-ticket-lookup"), caredeskDB),
	)
}

func buildStore(cfg *AppConfig) statex.Store {
	if cfg.SessionBackend == "redis" {
		redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := statex.NewUpstashRedisStore(*redisCfg, statex.WithTTL(cfg.SessionTTL))
		if err != nil {
			log.Fatal().Err(err).Msg("build redis session store")
		}
		return store
	}

	store := statex.NewMemoryStore(cfg.SessionTTL)
	go func() {
		ticker := time.NewTicker(cfg.SessionTTL / 2)
		defer ticker.Stop()
		for range ticker.C {
			if n := store.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("swept idle sessions")
			}
		}
	}()
	return store
}

// buildModelStack wires the LLM classifier and synthesizer when model
// configuration is present, with keyword rules and the deterministic
// template as fallbacks. Without model config the fallbacks run alone and
// the health surface carries no model probe.
func buildModelStack(reg *registryx.Registry) (contractx.Classifier, contractx.Synthesizer, apix.Pinger) {
	rules := classifierx.NewRuleClassifier()

	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil || llmCfg.Validate() != nil {
		log.Warn().Msg("no model configuration, running with keyword classifier and template synthesizer")
		return rules, synthx.NewFallbackSynthesizer(), nil
	}

	ctx := context.Background()
	prompts := promptx.LoadPromptSet()
	modelPing := openrouterx.Ping(openrouterx.NewClient(llmCfg.OpenRouterFor(llmx.RoleClassifier)))

	classifierModelCfg := llmCfg.OpenRouterFor(llmx.RoleClassifier)
	classifierModel, err := classifierModelCfg.New(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("classifier model unavailable, using keyword classifier")
		return rules, synthx.NewFallbackSynthesizer(), modelPing
	}
	llmClf, err := classifierx.NewLLMClassifier(ctx, classifierModel, prompts.Classifier, reg.Names())
	if err != nil {
		log.Warn().Err(err).Msg("classifier graph failed, using keyword classifier")
		return rules, synthx.NewFallbackSynthesizer(), modelPing
	}

	synthModelCfg := llmCfg.OpenRouterFor(llmx.RoleSynthesizer)
	synthModel, err := synthModelCfg.New(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("synthesizer model unavailable, using template synthesizer")
		return classifierx.NewChain(llmClf, rules), synthx.NewFallbackSynthesizer(), modelPing
	}
	llmSynth, err := synthx.NewLLMSynthesizer(ctx, synthModel, prompts.Synthesizer)
	if err != nil {
		log.Warn().Err(err).Msg("synthesizer graph failed, using template synthesizer")
		return classifierx.NewChain(llmClf, rules), synthx.NewFallbackSynthesizer(), modelPing
	}

	return classifierx.NewChain(llmClf, rules), llmSynth, modelPing
}
