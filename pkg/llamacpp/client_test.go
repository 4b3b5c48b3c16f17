package llamacpp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/menta2k/image-describer/pkg/client"
	"github.com/menta2k/image-describer/pkg/types"
)

var _ client.VisionClient = (*Client)(nil)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func completionServer(t *testing.T, content interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != completionsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected Authorization %q", got)
		}

		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format, got %+v", req.ResponseFormat)
		}
		parts, ok := req.Messages[0].Content.([]interface{})
		if !ok || len(parts) != 2 {
			t.Errorf("expected text and image parts, got %#v", req.Messages[0].Content)
			return
		}
		imagePart := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
		dataURL := imagePart["url"].(string)
		if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
			t.Errorf("unexpected image url prefix %.30s", dataURL)
		}
		if _, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, "data:image/jpeg;base64,")); err != nil {
			t.Errorf("image url is not base64: %v", err)
		}

		json.NewEncoder(w).Encode(ChatCompletionResponse{
			ID:      "chatcmpl-1",
			Model:   req.Model,
			Choices: []Choice{{Message: Message{Role: "assistant", Content: content}, FinishReason: "stop"}},
		})
	}))
}

func TestAnalyze(t *testing.T) {
	answer := `{"captions":[{"text":"a white page","confidence":0.6}],
"categories":[{"name":"outdoor_","score":0.4,"landmarks":[{"name":"Eiffel Tower","confidence":0.9}]}],
"brands":[{"name":"Acme","confidence":0.5,"box":{"x":0,"y":0,"w":0.5,"h":0.5}}],
"objects":[],"moderation":{"adult":false,"racy":false,"gory":true}}`

	srv := completionServer(t, answer)
	defer srv.Close()

	c, err := NewClient(srv.URL+completionsPath, "key", "minicpm", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	result, err := c.Analyze(context.Background(), testPNG(t, 80, 40), types.DefaultFeatures)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(result.Categories) != 1 || result.Categories[0].Detail == nil {
		t.Fatalf("unexpected categories %+v", result.Categories)
	}
	if len(result.Brands) != 1 || result.Brands[0].Rectangle != (types.Rectangle{W: 40, H: 20}) {
		t.Errorf("unexpected brands %+v", result.Brands)
	}
	if len(result.Objects) != 0 {
		t.Errorf("expected no objects, got %+v", result.Objects)
	}
	if result.Adult == nil || !result.Adult.IsGoryContent {
		t.Errorf("expected gory flag, got %+v", result.Adult)
	}
}

func TestAnalyzeContentParts(t *testing.T) {
	parts := []map[string]string{{"type": "text", "text": `{"tags":[{"name":"paper","confidence":0.5}]}`}}
	srv := completionServer(t, parts)
	defer srv.Close()

	c, err := NewClient(srv.URL, "key", "m", 0)
	if err != nil {
		t.Fatal(err)
	}
	result, err := c.Analyze(context.Background(), testPNG(t, 10, 10), []types.VisualFeature{types.FeatureTags})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(result.Tags) != 1 || result.Tags[0].Name != "paper" {
		t.Errorf("unexpected tags %+v", result.Tags)
	}
	if result.Description != nil {
		t.Error("description was not requested")
	}
}

func TestAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "key", "m", 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Analyze(context.Background(), testPNG(t, 10, 10), nil)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status 503 error, got %v", err)
	}
}

func TestAnalyzeNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "key", "m", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Analyze(context.Background(), testPNG(t, 10, 10), nil); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestThumbnail(t *testing.T) {
	c, err := NewClient("", "key", "m", 0)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := c.Thumbnail(context.Background(), 100, 100, testPNG(t, 250, 120), false)
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}
	defer stream.Close()

	img, err := png.Decode(stream)
	if err != nil {
		t.Fatalf("thumbnail is not png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("expected 100x100, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestThumbnailCanceled(t *testing.T) {
	c, err := NewClient("", "key", "m", 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Thumbnail(ctx, 100, 100, testPNG(t, 20, 20), true); err == nil {
		t.Error("expected context error")
	}
}
