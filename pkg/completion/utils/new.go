// Package completionutils builds a completion.Provider from configuration.
package completionutils

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/papercomputeco/recall/pkg/completion"
	"github.com/papercomputeco/recall/pkg/completion/ollama"
	"github.com/papercomputeco/recall/pkg/completion/openai"
)

type NewProviderOpts struct {
	// ProviderType is one of "ollama", "openai" or "groq".
	ProviderType string
	TargetURL    string

	// APIKey overrides OPENAI_API_KEY / GROQ_API_KEY.
	APIKey string

	// ImageHosts limits where ollama downloads image attachments from.
	ImageHosts []string

	Logger *slog.Logger
}

func NewProvider(o *NewProviderOpts) (completion.Provider, error) {
	switch o.ProviderType {
	case "ollama", "":
		return ollama.New(ollama.Config{
			BaseURL:    o.TargetURL,
			ImageHosts: o.ImageHosts,
			Logger:     o.Logger,
		}), nil
	case "openai":
		return openai.New(openai.Config{
			Name:    "openai",
			BaseURL: o.TargetURL,
			APIKey:  firstNonEmpty(o.APIKey, os.Getenv("OPENAI_API_KEY")),
			Logger:  o.Logger,
		}), nil
	case "groq":
		return openai.New(openai.Config{
			Name:    "groq",
			BaseURL: firstNonEmpty(o.TargetURL, openai.GroqBaseURL),
			APIKey:  firstNonEmpty(o.APIKey, os.Getenv("GROQ_API_KEY")),
			Logger:  o.Logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", o.ProviderType)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
