package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/image-describer/pkg/client"
	"github.com/menta2k/image-describer/pkg/detection"
	"github.com/menta2k/image-describer/pkg/processing"
	"github.com/menta2k/image-describer/pkg/thumbnail"
	"github.com/menta2k/image-describer/pkg/types"
)

// DefaultTimeout applies when the caller's context has no deadline
const DefaultTimeout = 300 * time.Second

// MaxImageDim is the longest image side sent to the model
const MaxImageDim = 1536

// Client wraps the Ollama API client
type Client struct {
	client    *api.Client
	model     string
	timeout   time.Duration
	processor *processing.Processor
	thumbs    *thumbnail.Local
}

// NewClient creates a new Ollama client. The key is sent as a bearer token,
// which is what reverse proxies in front of Ollama usually expect.
func NewClient(ollamaURL, key, model string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host required", ollamaURL)
	}

	// Drop any path like /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	processor := processing.NewProcessor()
	return &Client{
		client:    api.NewClient(baseURL, client.NewHTTPClient(key, nil)),
		model:     model,
		timeout:   timeout,
		processor: processor,
		thumbs:    thumbnail.NewLocal(processor, nil),
	}, nil
}

// Analyze asks the model to describe the image and converts its JSON answer
func (c *Client) Analyze(ctx context.Context, image []byte, features []types.VisualFeature) (*types.AnalysisResult, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if len(features) == 0 {
		features = types.DefaultFeatures
	}

	img, err := c.processor.DecodeImage(image)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()

	imgB64, err := c.processor.PrepareImageForModel(img, "jpg", MaxImageDim, 85)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}
	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: detection.DefaultPrompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: modelOptions(c.model),
	}

	var responseContent strings.Builder
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}
	if responseContent.Len() == 0 {
		return nil, fmt.Errorf("empty response from ollama")
	}

	return detection.Parse(responseContent.String(), b.Dx(), b.Dy(), features)
}

// Thumbnail crops and scales the image locally; Ollama has no such endpoint
func (c *Client) Thumbnail(ctx context.Context, width, height int, image []byte, smartCropping bool) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.thumbs.Generate(image, width, height, smartCropping)
}

// Close is a no-op, the SDK client holds no resources
func (c *Client) Close() error {
	return nil
}

// modelOptions tunes sampling for models known to need it
func modelOptions(model string) map[string]any {
	options := map[string]any{"temperature": 0.2}

	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "minicpm-v4") ||
		strings.Contains(modelLower, "minicpm-v-4") ||
		strings.Contains(modelLower, "minicpmv4") {
		options["top_p"] = 0.8
		options["num_ctx"] = 4096
	}
	return options
}
