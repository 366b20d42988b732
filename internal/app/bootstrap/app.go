package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/funcionariopro/internal/api/router"
	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/internal/catalog"
	"github.com/wolfman30/funcionariopro/internal/chat"
	appconfig "github.com/wolfman30/funcionariopro/internal/config"
	"github.com/wolfman30/funcionariopro/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/funcionariopro/internal/http/middleware"
	"github.com/wolfman30/funcionariopro/internal/llm"
	"github.com/wolfman30/funcionariopro/internal/notify"
	"github.com/wolfman30/funcionariopro/internal/observability/metrics"
	"github.com/wolfman30/funcionariopro/internal/onboarding"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/internal/publish"
	"github.com/wolfman30/funcionariopro/internal/simulation"
	"github.com/wolfman30/funcionariopro/internal/wizard"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

const (
	busBuffer     = 64
	healthTimeout = 2 * time.Second
)

// Options overrides pieces of the graph, mostly for tests.
type Options struct {
	// LLM replaces the provider chain built from config.
	LLM llm.Client
	// Sleeper replaces real timers in the simulation engine.
	Sleeper simulation.Sleeper
	// Registry receives the service metrics. A fresh registry is used when nil.
	Registry *prometheus.Registry
	// SkipExternal leaves Redis and Postgres unconnected.
	SkipExternal bool
}

// App is the assembled API process.
type App struct {
	Handler http.Handler
	Wizard  *wizard.Service
	Bus     *bus.Bus
	Metrics *metrics.GenerationMetrics

	engine *simulation.Engine
	redis  *redis.Client
	pool   *pgxpool.Pool
	llm    *LLMClient
}

// Build wires stores, the LLM chain, every domain service and the router.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	genMetrics := metrics.NewGenerationMetrics(reg)

	app := &App{Metrics: genMetrics}
	if !opts.SkipExternal {
		app.redis = BuildRedisClient(ctx, cfg, logger, true)
		app.pool = BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	}
	stores := BuildStores(app.redis, app.pool)
	logger.Info("state backends selected", "redis", app.redis != nil, "postgres", app.pool != nil)

	client := opts.LLM
	if client == nil {
		chain, err := BuildLLMClient(ctx, cfg, genMetrics, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.llm = chain
		client = chain
	}
	caller := BuildJSONCaller(client, cfg, logger)

	app.Bus = bus.New(busBuffer, logger)
	cat := catalog.Default()

	app.engine = simulation.NewEngine(caller, simulation.Options{
		MaxAttempts:    cfg.SimMaxAttempts,
		RetryDelay:     cfg.SimRetryDelay,
		SettleDelay:    cfg.SimSettleDelay,
		MaxQuestionLen: cfg.SimQuestionSize,
		Sleeper:        opts.Sleeper,
		Publisher:      app.Bus,
		Metrics:        genMetrics,
		Logger:         logger,
	})

	var provider billing.CheckoutProvider
	if cfg.AllowFakePayments {
		provider = billing.NewFakeCheckoutService(cfg.PublicBaseURL, logger)
	} else {
		logger.Warn("fake payments disabled and no checkout provider configured; plan selection unavailable")
	}
	billingSvc := billing.NewService(provider, stores.Billing, app.Bus, logger)

	email := notify.NewSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)

	app.Wizard = wizard.NewService(wizard.Deps{
		Profiles:    profile.NewController(stores.Profiles, app.Bus, logger),
		Catalog:     cat,
		Simulations: app.engine,
		AgentChat:   chat.NewService(chat.AgentPersona, client, stores.AgentChat, genMetrics, cfg.LLMTimeout, logger),
		Calibration: chat.NewService(chat.CalibrationPersona, client, stores.Calibration, genMetrics, cfg.LLMTimeout, logger),
		Billing:     billingSvc,
		Publisher:   publish.NewService(stores.Agents, email, app.Bus, logger),
		Bus:         app.Bus,
		Logger:      logger,
	})

	classifier := onboarding.NewClassifier(caller, cat, logger)
	origins := httpmiddleware.NewOriginPolicy(cfg.CORSAllowedOrigins)

	routerCfg := &router.Config{
		Logger:             logger,
		Catalog:            handlers.NewCatalogHandler(cat, classifier, logger),
		Wizard:             handlers.NewWizardHandler(app.Wizard, logger),
		Stream:             handlers.NewStreamHandler(app.Wizard, app.Bus, origins.CheckOrigin, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:             app.health,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	}
	if provider != nil {
		routerCfg.FakePayments = handlers.NewFakePaymentsHandler(app.Wizard, billingSvc, logger)
	}
	app.Handler = router.New(routerCfg)
	return app, nil
}

func (a *App) health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	out := map[string]string{}
	if a.redis != nil {
		out["redis"] = "ok"
		if err := a.redis.Ping(ctx).Err(); err != nil {
			out["redis"] = "unreachable"
		}
	}
	if a.pool != nil {
		out["postgres"] = "ok"
		if err := a.pool.Ping(ctx); err != nil {
			out["postgres"] = "unreachable"
		}
	}
	return out
}

// Close stops running simulations and releases connections.
func (a *App) Close() error {
	var errs []error
	if a.engine != nil {
		a.engine.Close()
	}
	if a.llm != nil {
		errs = append(errs, a.llm.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
