// Package memoryutils builds a memory.Driver from configuration.
package memoryutils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	embeddingutils "github.com/papercomputeco/recall/pkg/embeddings/utils"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/memory/local"
	"github.com/papercomputeco/recall/pkg/memory/mem0"
	"github.com/papercomputeco/recall/pkg/memory/vectorstore"
	vectorutils "github.com/papercomputeco/recall/pkg/vector/utils"
)

type NewMemoryDriverOpts struct {
	// ProviderType is one of "local", "mem0", "vectorstore" or "none".
	ProviderType string
	TargetURL    string
	APIKey       string

	// Vector store and embedding settings, used by "vectorstore".
	VectorProvider     string
	VectorTarget       string
	VectorAPIKey       string
	EmbeddingProvider  string
	EmbeddingTarget    string
	EmbeddingModel     string
	EmbeddingDimension uint

	Logger *slog.Logger
}

// NewMemoryDriver returns the configured driver. "none" returns a nil driver,
// which the memory.Adapter treats as not configured.
func NewMemoryDriver(ctx context.Context, o *NewMemoryDriverOpts) (memory.Driver, error) {
	switch o.ProviderType {
	case "local", "":
		return local.NewDriver(), nil
	case "none":
		return nil, nil
	case "mem0":
		return mem0.NewDriver(mem0.Config{
			URL:    o.TargetURL,
			APIKey: o.APIKey,
			Logger: o.Logger,
		})
	case "vectorstore":
		embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: o.EmbeddingProvider,
			TargetURL:    o.EmbeddingTarget,
			Model:        o.EmbeddingModel,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}

		vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
			ProviderType: o.VectorProvider,
			TargetURL:    o.VectorTarget,
			Dimensions:   o.EmbeddingDimension,
			APIKey:       o.VectorAPIKey,
			Logger:       o.Logger,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("creating vector driver: %w", err), embedder.Close())
		}

		return vectorstore.NewDriver(vectorstore.Config{
			Embedder: embedder,
			Vectors:  vectors,
			Logger:   o.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported memory provider: %s", o.ProviderType)
	}
}
