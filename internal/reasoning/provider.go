package reasoning

import (
	"fmt"

	"github.com/ankittk/taskwatch/internal/capture"
	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/credentials"
	"github.com/ankittk/taskwatch/pkg/models"
)

// New builds the analyzer selected by cfg. Providers that need a key fail with
// ErrMissingAPIKey when creds has none.
func New(cfg config.LLMConfig, creds credentials.Store) (capture.Analyzer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	key := func() (string, error) {
		if creds == nil {
			return "", fmt.Errorf("%s: %w", cfg.Provider, ErrMissingAPIKey)
		}
		k, err := creds.Get(cfg.Provider)
		if err != nil || k == "" {
			return "", fmt.Errorf("%s: %w", cfg.Provider, ErrMissingAPIKey)
		}
		return k, nil
	}
	switch cfg.Provider {
	case models.ProviderAnthropic:
		k, err := key()
		if err != nil {
			return nil, err
		}
		return NewAnthropic(k, cfg.Model, cfg.Endpoint)
	case models.ProviderOpenAI:
		k, err := key()
		if err != nil {
			return nil, err
		}
		return NewOpenAI(models.ProviderOpenAI, k, cfg.Model, cfg.Endpoint), nil
	case models.ProviderCustom:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("custom provider requires an endpoint")
		}
		// Key is optional for self-hosted endpoints.
		k, _ := key()
		return NewOpenAI(models.ProviderCustom, k, cfg.Model, cfg.Endpoint), nil
	case models.ProviderOllama:
		return NewOllama(cfg.Model, cfg.Endpoint), nil
	case models.ProviderClaudeCLI:
		return NewClaudeCLI(), nil
	case models.ProviderStub:
		return Stub{}, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}
