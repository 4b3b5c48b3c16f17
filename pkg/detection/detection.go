// Package detection holds the prompt sent to local vision language models
// and turns their JSON answers into analysis results.
package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/menta2k/image-describer/pkg/types"
)

// DefaultPrompt asks the model for every feature the report prints
const DefaultPrompt = `You are an image analysis service.

Return JSON only:
{
  "captions": [{"text": "short neutral sentence (<= 20 words)", "confidence": 0.0}],
  "tags": [{"name": "keyword", "confidence": 0.0}],
  "categories": [{"name": "category_subcategory", "score": 0.0,
                  "landmarks": [{"name": "landmark name", "confidence": 0.0}]}],
  "brands": [{"name": "brand", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}],
  "objects": [{"label": "object", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}],
  "moderation": {"adult": false, "racy": false, "gory": false}
}

HARD RULES
- Confidences and scores are in [0,1].
- All box coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- One entry in "objects" per visible instance, each with a tight box.
- Tags: lowercase, concise, no punctuation.
- Only list landmarks and brands you clearly recognize; otherwise use empty arrays.
- Do not guess real identities of people.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ErrNoJSON is returned when the model answer holds no JSON object
var ErrNoJSON = errors.New("no JSON object in model response")

// Box is a model-space bounding box, normally in [0,1]
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type modelCategory struct {
	Name      string           `json:"name"`
	Score     float64          `json:"score"`
	Landmarks []types.Landmark `json:"landmarks"`
}

type modelBrand struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

type modelObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

type modelModeration struct {
	Adult bool `json:"adult"`
	Racy  bool `json:"racy"`
	Gory  bool `json:"gory"`
}

// modelOutput is the document the prompt asks for
type modelOutput struct {
	Captions   []types.Caption  `json:"captions"`
	Tags       []types.Tag      `json:"tags"`
	Categories []modelCategory  `json:"categories"`
	Brands     []modelBrand     `json:"brands"`
	Objects    []modelObject    `json:"objects"`
	Moderation *modelModeration `json:"moderation"`
}

// Parse turns a raw model answer into an analysis result. Boxes are scaled to
// pixels of a width x height image; only the requested features are kept.
func Parse(raw string, width, height int, features []types.VisualFeature) (*types.AnalysisResult, error) {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, ErrNoJSON
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	result := &types.AnalysisResult{
		Metadata: &types.Metadata{Width: width, Height: height},
	}

	if types.HasFeature(features, types.FeatureDescription) {
		desc := &types.Description{}
		for _, c := range out.Captions {
			if text := strings.TrimSpace(c.Text); text != "" {
				desc.Captions = append(desc.Captions, types.Caption{Text: text, Confidence: clamp(c.Confidence, 0, 1)})
			}
		}
		result.Description = desc
	}

	if types.HasFeature(features, types.FeatureTags) {
		result.Tags = normalizeTags(out.Tags)
	}

	if types.HasFeature(features, types.FeatureCategories) {
		for _, c := range out.Categories {
			if c.Name == "" {
				continue
			}
			cat := types.Category{Name: c.Name, Score: clamp(c.Score, 0, 1)}
			if len(c.Landmarks) > 0 {
				cat.Detail = &types.CategoryDetail{Landmarks: c.Landmarks}
			}
			result.Categories = append(result.Categories, cat)
		}
	}

	if types.HasFeature(features, types.FeatureBrands) {
		for _, b := range out.Brands {
			if b.Name == "" {
				continue
			}
			result.Brands = append(result.Brands, types.Brand{
				Name:       b.Name,
				Confidence: clamp(b.Confidence, 0, 1),
				Rectangle:  ToPixels(b.Box, width, height),
			})
		}
	}

	if types.HasFeature(features, types.FeatureObjects) {
		for _, o := range out.Objects {
			if o.Label == "" {
				continue
			}
			result.Objects = append(result.Objects, types.DetectedObject{
				Label:      o.Label,
				Confidence: clamp(o.Confidence, 0, 1),
				Rectangle:  ToPixels(o.Box, width, height),
			})
		}
	}

	if types.HasFeature(features, types.FeatureAdult) {
		m := &types.Moderation{}
		if out.Moderation != nil {
			m.IsAdultContent = out.Moderation.Adult
			m.IsRacyContent = out.Moderation.Racy
			m.IsGoryContent = out.Moderation.Gory
		}
		result.Adult = m
	}

	return result, nil
}

// ToPixels converts a model box to a pixel rectangle inside a width x height
// image. Boxes with any coordinate above 1 are taken to be in pixels already.
func ToPixels(b Box, width, height int) types.Rectangle {
	fw, fh := float64(width), float64(height)
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		b = Box{X: b.X / fw, Y: b.Y / fh, W: b.W / fw, H: b.H / fh}
	}

	x0 := clamp(b.X, 0, 1) * fw
	y0 := clamp(b.Y, 0, 1) * fh
	x1 := clamp(b.X+b.W, 0, 1) * fw
	y1 := clamp(b.Y+b.H, 0, 1) * fh

	return types.Rectangle{
		X: int(math.Round(x0)),
		Y: int(math.Round(y0)),
		W: int(math.Round(x1 - x0)),
		H: int(math.Round(y1 - y0)),
	}
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// normalizeTags trims and lowercases tag names and drops empty ones.
// Duplicates are kept as the model returned them.
func normalizeTags(tags []types.Tag) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		t.Name = strings.ToLower(strings.TrimSpace(t.Name))
		if t.Name == "" {
			continue
		}
		t.Confidence = clamp(t.Confidence, 0, 1)
		out = append(out, t)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
