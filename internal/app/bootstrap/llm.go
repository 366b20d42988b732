package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/funcionariopro/cmd/mainconfig"
	appconfig "github.com/wolfman30/funcionariopro/internal/config"
	"github.com/wolfman30/funcionariopro/internal/llm"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// Provider names accepted by LLM_PROVIDER and LLM_FALLBACK_PROVIDER.
const (
	ProviderOpenAI  = "openai"
	ProviderMistral = "mistral"
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
)

var errLLMNotConfigured = errors.New("bootstrap: no LLM provider configured")

// LLMClient is the chain built from config plus the resources it holds open.
type LLMClient struct {
	llm.Client
	Provider string
	closers  []func() error
}

// Close releases provider connections.
func (c *LLMClient) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildLLMClient wires the primary provider, the optional fallback and the
// call observer. A missing primary key is not fatal: the client fails every
// call so the service still boots and simulations report exhaustion.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, observer llm.CallObserver, logger *logging.Logger) (*LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	out := &LLMClient{Provider: cfg.LLMProvider}
	primary, closeFn, err := buildProvider(ctx, cfg, cfg.LLMProvider)
	switch {
	case errors.Is(err, errLLMNotConfigured):
		logger.Warn("LLM provider not configured; generation will fail until credentials are set",
			"provider", cfg.LLMProvider)
		primary = llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
			return llm.Response{}, errLLMNotConfigured
		})
	case err != nil:
		return nil, err
	}
	if closeFn != nil {
		out.closers = append(out.closers, closeFn)
	}
	primary = llm.NewInstrumentedClient(primary, cfg.LLMProvider, observer)

	var fallback llm.Client
	if name := cfg.LLMFallbackProvider; name != "" && name != cfg.LLMProvider {
		fb, closeFn, err := buildProvider(ctx, cfg, name)
		switch {
		case err != nil:
			logger.Warn("fallback LLM provider unavailable", "provider", name, "error", err)
		default:
			if closeFn != nil {
				out.closers = append(out.closers, closeFn)
			}
			fallback = llm.NewInstrumentedClient(fb, name, observer)
			logger.Info("fallback LLM provider enabled", "provider", name)
		}
	}

	out.Client = llm.NewFallbackClient(primary, fallback, logger)
	logger.Info("LLM client ready", "provider", cfg.LLMProvider, "fallback", fallback != nil)
	return out, nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, name string) (llm.Client, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderOpenAI, ProviderMistral, "":
		if strings.TrimSpace(cfg.LLMAPIKey) == "" {
			return nil, nil, errLLMNotConfigured
		}
		c, err := llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
		return c, nil, err
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, nil, errLLMNotConfigured
		}
		c, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case ProviderBedrock:
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, nil, errLLMNotConfigured
		}
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}
}

// BuildJSONCaller wraps client for the JSON-mode generators.
func BuildJSONCaller(client llm.Client, cfg *appconfig.Config, logger *logging.Logger) *llm.JSONCaller {
	return llm.NewJSONCaller(client, logger, llm.WithTimeout(cfg.LLMTimeout))
}
