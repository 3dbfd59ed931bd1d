package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	agentsx "github.com/shaonidutta/convergeai/agent/agents"
	catalogx "github.com/shaonidutta/convergeai/agent/catalog"
	contractx "github.com/shaonidutta/convergeai/agent/contract"
	coordinatorx "github.com/shaonidutta/convergeai/agent/coordinator"
	dispatchx "github.com/shaonidutta/convergeai/agent/dispatch"
	entityx "github.com/shaonidutta/convergeai/agent/entity"
	intentx "github.com/shaonidutta/convergeai/agent/intent"
	llmx "github.com/shaonidutta/convergeai/agent/llm"
	promptx "github.com/shaonidutta/convergeai/agent/prompt"
	questionx "github.com/shaonidutta/convergeai/agent/question"
	slotfillx "github.com/shaonidutta/convergeai/agent/slotfill"
	statex "github.com/shaonidutta/convergeai/agent/state"
	configx "github.com/shaonidutta/convergeai/pkg/config"
	_ "github.com/shaonidutta/convergeai/pkg/logger/autoload"
	openrouterx "github.com/shaonidutta/convergeai/pkg/openrouter"
	qstashx "github.com/shaonidutta/convergeai/pkg/qstash"
	serverx "github.com/shaonidutta/convergeai/server"
)

type AppConfig struct {
	// StateBackend selects the dialog state store: memory | upstash.
	StateBackend string `envconfig:"STATE_BACKEND" split_words:"true" default:"memory"`
	// CatalogBackend selects the service catalog: static | postgres.
	CatalogBackend string `envconfig:"CATALOG_BACKEND" split_words:"true" default:"static"`
	// DependencyPolicy is what happens to a dependent intent whose
	// prerequisites are absent: drop | clarify.
	DependencyPolicy string `envconfig:"DEPENDENCY_POLICY" split_words:"true" default:"drop"`
	// EntityHorizonDays bounds how far ahead a booking date may be.
	EntityHorizonDays int `envconfig:"ENTITY_HORIZON_DAYS" split_words:"true" default:"90"`
	// TurnEventURL, when set, enables per-turn analytics events through
	// QStash to this destination.
	TurnEventURL string `envconfig:"TURN_EVENT_URL" split_words:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	guard := llmx.NewGuard(*configx.MustNew[llmx.GuardConfig]("LLM_GUARD"))

	// non-fatal reachability probe against the model gateway
	if sdk := openrouterx.NewClient(llmCfg.OpenRouterFor(llmx.RoleClassifier)); sdk != nil {
		go func() {
			if _, err := sdk.Models.List(ctx); err != nil {
				log.Warn().Err(err).Msg("model gateway unreachable at startup")
			}
		}()
	}

	store := buildStore(appCfg)
	catalog := buildCatalog(appCfg)
	prompts := promptx.LoadPromptSet()

	classifierModel, err := llmCfg.OpenRouterFor(llmx.RoleClassifier).New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("creating classifier model failed")
	}
	classifierRunner, err := llmx.NewStructuredRunner[intentx.LLMClassification](
		ctx, classifierModel, prompts.Classifier, "intent.classifier", guard)
	if err != nil {
		log.Fatal().Err(err).Msg("compiling classifier graph failed")
	}

	extractorModel, err := llmCfg.OpenRouterFor(llmx.RoleExtractor).New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("creating extractor model failed")
	}
	extractorRunner, err := llmx.NewStructuredRunner[entityx.LLMExtraction](
		ctx, extractorModel, prompts.Extractor, "entity.extractor", guard)
	if err != nil {
		log.Fatal().Err(err).Msg("compiling extractor graph failed")
	}

	extractor := entityx.NewExtractor(catalog, entityx.NewStructuredLLM(extractorRunner))
	classifier := intentx.NewClassifier(
		*configx.MustNew[intentx.Config]("CLASSIFIER"),
		extractor,
		intentx.NewStructuredLLM(classifierRunner),
	)
	validator := entityx.NewValidator(catalog, time.Duration(appCfg.EntityHorizonDays)*24*time.Hour)
	slotfill := slotfillx.New(
		*configx.MustNew[slotfillx.Config]("SLOTFILL"),
		classifier, extractor, validator, questionx.NewGenerator(),
	)

	registry, err := agentsx.NewRegistry(ctx, *llmCfg, guard)
	if err != nil {
		log.Fatal().Err(err).Msg("building agent registry failed")
	}
	executor := dispatchx.NewExecutor(registry, *configx.MustNew[dispatchx.ExecutorConfig]("EXECUTOR"))
	resolver := dispatchx.NewResolver(dispatchx.MissingPolicy(appCfg.DependencyPolicy))

	var opts []coordinatorx.Option
	if appCfg.TurnEventURL != "" {
		qstashClient := qstashx.MustNew(*configx.MustNew[qstashx.Config]("QSTASH"))
		opts = append(opts, coordinatorx.WithTurnPublisher(&turnPublisher{
			client:      qstashClient,
			destination: appCfg.TurnEventURL,
		}))
	}

	coordinator, err := coordinatorx.New(
		ctx,
		*configx.MustNew[coordinatorx.Config]("COORDINATOR"),
		store, slotfill, resolver, executor,
		opts...,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("building coordinator failed")
	}

	srv := serverx.New(*configx.MustNew[serverx.Config]("SERVER"), coordinator)
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("shutdown complete")
}

func buildStore(cfg *AppConfig) statex.Store {
	switch cfg.StateBackend {
	case "upstash":
		store, err := statex.NewUpstashRedisStore(*configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS"))
		if err != nil {
			log.Fatal().Err(err).Msg("creating upstash state store failed")
		}
		return store
	case "memory":
		return statex.NewMemoryStore()
	default:
		log.Fatal().Str("backend", cfg.StateBackend).Msg("unknown state backend")
		return nil
	}
}

func buildCatalog(cfg *AppConfig) contractx.Catalog {
	switch cfg.CatalogBackend {
	case "postgres":
		catalog, err := catalogx.NewBunCatalog(*configx.MustNew[catalogx.Config]("CATALOG"))
		if err != nil {
			log.Fatal().Err(err).Msg("creating postgres catalog failed")
		}
		return catalog
	case "static":
		return catalogx.NewStaticCatalog()
	default:
		log.Fatal().Str("backend", cfg.CatalogBackend).Msg("unknown catalog backend")
		return nil
	}
}

// turnPublisher forwards turn events to a QStash destination.
type turnPublisher struct {
	client      *qstashx.Client
	destination string
}

func (p *turnPublisher) PublishTurn(ctx context.Context, event coordinatorx.TurnEvent) error {
	return p.client.PublishJSON(ctx, p.destination, event)
}
