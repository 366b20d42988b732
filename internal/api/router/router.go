package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/funcionariopro/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/funcionariopro/internal/http/middleware"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Catalog        *handlers.CatalogHandler
	Wizard         *handlers.WizardHandler
	Stream         *handlers.StreamHandler
	FakePayments   *handlers.FakePaymentsHandler
	MetricsHandler http.Handler
	// Health reports dependency status; nil means always healthy.
	Health func() map[string]string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.Health))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.FakePayments != nil {
		r.Mount("/payments/fake", cfg.FakePayments.Routes())
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimitRPS > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}
		if cfg.Catalog != nil {
			api.Get("/templates", cfg.Catalog.ListTemplates)
			api.Get("/templates/{key}", cfg.Catalog.GetTemplate)
			api.Get("/plans", cfg.Catalog.ListPlans)
			api.Post("/onboarding/classify", cfg.Catalog.Classify)
		}
		if cfg.Wizard != nil {
			var stream http.HandlerFunc
			if cfg.Stream != nil {
				stream = cfg.Stream.Stream
			}
			api.Mount("/sessions", cfg.Wizard.Routes(stream))
		}
	})

	return r
}

func healthHandler(check func() map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok"}
		status := http.StatusOK
		if check != nil {
			for name, state := range check() {
				resp[name] = state
				if state != "ok" {
					resp["status"] = "degraded"
					status = http.StatusServiceUnavailable
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
