package imagedescriber

import (
	"context"
	"fmt"

	"github.com/menta2k/image-describer/internal/config"
	"github.com/menta2k/image-describer/pkg/azure"
	"github.com/menta2k/image-describer/pkg/client"
	"github.com/menta2k/image-describer/pkg/google"
	"github.com/menta2k/image-describer/pkg/llamacpp"
	"github.com/menta2k/image-describer/pkg/ollama"
)

// ClientFactory builds the vision client for a run
type ClientFactory func(ctx context.Context, s *config.Settings) (client.VisionClient, error)

// NewClient creates the client for the backend named in the settings
func NewClient(ctx context.Context, s *config.Settings) (client.VisionClient, error) {
	switch s.Backend {
	case config.BackendAzure:
		c, err := azure.NewClient(s.Endpoint, s.Key, azure.WithTimeout(s.Timeout()))
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return c, nil
	case config.BackendGoogle:
		addr, err := config.GRPCAddress(s.Endpoint)
		if err != nil {
			return nil, err
		}
		c, err := google.NewClient(ctx, addr, s.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to create Cloud Vision client: %w", err)
		}
		return c, nil
	case config.BackendOllama:
		c, err := ollama.NewClient(s.Endpoint, s.Key, s.Model, s.Timeout())
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case config.BackendLlamaCpp:
		c, err := llamacpp.NewClient(s.Endpoint, s.Key, s.Model, s.Timeout())
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use azure, google, ollama or llamacpp)", s.Backend)
	}
}
