// Package llamacpp talks to a llama.cpp server through its OpenAI-compatible
// chat completions endpoint.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/image-describer/pkg/client"
	"github.com/menta2k/image-describer/pkg/detection"
	"github.com/menta2k/image-describer/pkg/processing"
	"github.com/menta2k/image-describer/pkg/thumbnail"
	"github.com/menta2k/image-describer/pkg/types"
)

// DefaultTimeout applies when the caller's context has no deadline
const DefaultTimeout = 300 * time.Second

const completionsPath = "/v1/chat/completions"

// Client is a llama.cpp chat completions client
type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	processor  *processing.Processor
	thumbs     *thumbnail.Local
}

// Message is an OpenAI-compatible chat message
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // Can be string or []ContentPart
}

// ContentPart is one text or image part of a message
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image as a data URL
type ImageURL struct {
	URL string `json:"url"`
}

// ResponseFormat constrains the completion, e.g. to a JSON object
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionRequest is an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	TopP           float64         `json:"top_p,omitempty"`
	Stream         bool            `json:"stream"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatCompletionResponse is an OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage,omitempty"`
}

// Choice is one completion candidate
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token counts
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewClient creates a client for the server at serverURL. The key is sent as a
// bearer token; a zero timeout means DefaultTimeout.
func NewClient(serverURL, key, model string, timeout time.Duration) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := client.NewHTTPClient(key, nil)
	httpClient.Timeout = timeout

	processor := processing.NewProcessor()
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSuffix(serverURL, "/"), completionsPath),
		model:      model,
		timeout:    timeout,
		httpClient: httpClient,
		processor:  processor,
		thumbs:     thumbnail.NewLocal(processor, nil),
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

	imgB64, err := c.processor.PrepareImageForModel(img, "jpg", 1536, 85)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: detection.DefaultPrompt},
					{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imgB64}},
				},
			},
		},
		Temperature:    0.2,
		MaxTokens:      4096,
		TopP:           0.8,
		Stream:         false,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	respBody, err := c.sendRequest(ctx, completionsPath, req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	responseText := messageText(resp.Choices[0].Message.Content)
	if responseText == "" {
		return nil, fmt.Errorf("empty response from llama.cpp server")
	}

	return detection.Parse(responseText, b.Dx(), b.Dy(), features)
}

// Thumbnail crops and scales the image locally
func (c *Client) Thumbnail(ctx context.Context, width, height int, image []byte, smartCropping bool) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.thumbs.Generate(image, width, height, smartCropping)
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// messageText extracts text from a message content that is either a string
// or a list of content parts
func messageText(content interface{}) string {
	switch content := content.(type) {
	case string:
		return content
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
