// Package google maps the Cloud Vision annotate API onto analysis results.
package google

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/disintegration/imaging"
	"google.golang.org/api/option"

	"github.com/menta2k/image-describer/pkg/processing"
	"github.com/menta2k/image-describer/pkg/thumbnail"
	"github.com/menta2k/image-describer/pkg/types"
)

// LandmarkCategory is the category that carries landmark detections, the
// annotate API having no category taxonomy of its own
const LandmarkCategory = "landmark"

// maxResults caps every list-valued feature
const maxResults = 20

// Client is a Cloud Vision client
type Client struct {
	client    *vision.ImageAnnotatorClient
	processor *processing.Processor
	local     *thumbnail.Local
}

// NewClient connects to the annotate service at addr (host:port). A non-empty
// key is sent as an API key; extra options are applied last.
func NewClient(ctx context.Context, addr, key string, extra ...option.ClientOption) (*Client, error) {
	opts := []option.ClientOption{option.WithEndpoint(addr)}
	if key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	opts = append(opts, extra...)

	c, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	processor := processing.NewProcessor()
	return &Client{
		client:    c,
		processor: processor,
		local:     thumbnail.NewLocal(processor, nil),
	}, nil
}

// featureTypes maps analysis features to annotate feature types
var featureTypes = map[types.VisualFeature][]visionpb.Feature_Type{
	types.FeatureDescription: {visionpb.Feature_WEB_DETECTION},
	types.FeatureTags:        {visionpb.Feature_LABEL_DETECTION},
	types.FeatureCategories:  {visionpb.Feature_LANDMARK_DETECTION},
	types.FeatureBrands:      {visionpb.Feature_LOGO_DETECTION},
	types.FeatureObjects:     {visionpb.Feature_OBJECT_LOCALIZATION},
	types.FeatureAdult:       {visionpb.Feature_SAFE_SEARCH_DETECTION},
}

// Analyze annotates the image and converts the response
func (c *Client) Analyze(ctx context.Context, data []byte, features []types.VisualFeature) (*types.AnalysisResult, error) {
	if len(features) == 0 {
		features = types.DefaultFeatures
	}
	width, height, err := c.processor.Dimensions(data)
	if err != nil {
		return nil, err
	}

	var fs []*visionpb.Feature
	for _, f := range features {
		for _, t := range featureTypes[f] {
			fs = append(fs, &visionpb.Feature{Type: t, MaxResults: maxResults})
		}
	}

	resp, err := c.annotate(ctx, &visionpb.AnnotateImageRequest{
		Image:    &visionpb.Image{Content: data},
		Features: fs,
	})
	if err != nil {
		return nil, err
	}

	result := &types.AnalysisResult{
		Metadata: &types.Metadata{Width: width, Height: height},
	}
	for _, f := range features {
		switch f {
		case types.FeatureDescription:
			result.Description = description(resp.GetWebDetection())
		case types.FeatureTags:
			for _, l := range resp.GetLabelAnnotations() {
				result.Tags = append(result.Tags, types.Tag{
					Name:       strings.ToLower(l.GetDescription()),
					Confidence: float64(l.GetScore()),
				})
			}
		case types.FeatureCategories:
			if cat, ok := landmarkCategory(resp.GetLandmarkAnnotations()); ok {
				result.Categories = append(result.Categories, cat)
			}
		case types.FeatureBrands:
			for _, l := range resp.GetLogoAnnotations() {
				result.Brands = append(result.Brands, types.Brand{
					Name:       l.GetDescription(),
					Confidence: float64(l.GetScore()),
					Rectangle:  pixelRect(l.GetBoundingPoly()),
				})
			}
		case types.FeatureObjects:
			for _, o := range resp.GetLocalizedObjectAnnotations() {
				result.Objects = append(result.Objects, types.DetectedObject{
					Label:      o.GetName(),
					Confidence: float64(o.GetScore()),
					Rectangle:  normalizedRect(o.GetBoundingPoly(), width, height),
				})
			}
		case types.FeatureAdult:
			result.Adult = moderation(resp.GetSafeSearchAnnotation())
		}
	}
	return result, nil
}

// Thumbnail crops the image along the service's crop hint and scales it. Without
// smart cropping, or when the service has no hint, the local cropper is used.
func (c *Client) Thumbnail(ctx context.Context, width, height int, data []byte, smartCropping bool) (io.ReadCloser, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %dx%d", width, height)
	}
	if !smartCropping {
		return c.local.Generate(data, width, height, false)
	}

	resp, err := c.annotate(ctx, &visionpb.AnnotateImageRequest{
		Image:    &visionpb.Image{Content: data},
		Features: []*visionpb.Feature{{Type: visionpb.Feature_CROP_HINTS}},
		ImageContext: &visionpb.ImageContext{
			CropHintsParams: &visionpb.CropHintsParams{
				AspectRatios: []float32{float32(width) / float32(height)},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	hints := resp.GetCropHintsAnnotation().GetCropHints()
	if len(hints) == 0 {
		return c.local.Generate(data, width, height, true)
	}

	img, err := c.processor.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	rect := pixelRect(hints[0].GetBoundingPoly())
	crop := image.Rect(rect.X, rect.Y, rect.X+rect.W, rect.Y+rect.H).Intersect(img.Bounds())
	if crop.Empty() {
		crop = img.Bounds()
	}

	thumb := imaging.Fill(imaging.Crop(img, crop), width, height, imaging.Center, imaging.Lanczos)
	encoded, err := c.processor.EncodePNG(thumb)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(encoded)), nil
}

// Close closes the connection to the service
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) annotate(ctx context.Context, req *visionpb.AnnotateImageRequest) (*visionpb.AnnotateImageResponse, error) {
	batch, err := c.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return nil, fmt.Errorf("annotate request failed: %w", err)
	}
	if len(batch.GetResponses()) == 0 {
		return nil, fmt.Errorf("annotate returned no response")
	}
	resp := batch.GetResponses()[0]
	if e := resp.GetError(); e != nil {
		return nil, fmt.Errorf("vision service error %d: %s", e.GetCode(), e.GetMessage())
	}
	return resp, nil
}

// description turns web best-guess labels into captions. Best-guess labels
// carry no score; the strongest web entity score stands in for it.
func description(web *visionpb.WebDetection) *types.Description {
	desc := &types.Description{}
	if web == nil {
		return desc
	}

	var confidence float64
	for _, e := range web.GetWebEntities() {
		confidence = max(confidence, float64(e.GetScore()))
		if e.GetDescription() != "" {
			desc.Tags = append(desc.Tags, strings.ToLower(e.GetDescription()))
		}
	}
	confidence = min(confidence, 1)

	for _, l := range web.GetBestGuessLabels() {
		if text := strings.TrimSpace(l.GetLabel()); text != "" {
			desc.Captions = append(desc.Captions, types.Caption{Text: text, Confidence: confidence})
		}
	}
	return desc
}

func landmarkCategory(annotations []*visionpb.EntityAnnotation) (types.Category, bool) {
	if len(annotations) == 0 {
		return types.Category{}, false
	}
	cat := types.Category{Name: LandmarkCategory, Detail: &types.CategoryDetail{}}
	for _, a := range annotations {
		score := float64(a.GetScore())
		cat.Score = max(cat.Score, score)
		cat.Detail.Landmarks = append(cat.Detail.Landmarks, types.Landmark{
			Name:       a.GetDescription(),
			Confidence: score,
		})
	}
	return cat, true
}

// moderation treats LIKELY and VERY_LIKELY as a positive verdict
func moderation(s *visionpb.SafeSearchAnnotation) *types.Moderation {
	if s == nil {
		return &types.Moderation{}
	}
	return &types.Moderation{
		IsAdultContent: s.GetAdult() >= visionpb.Likelihood_LIKELY,
		IsRacyContent:  s.GetRacy() >= visionpb.Likelihood_LIKELY,
		IsGoryContent:  s.GetViolence() >= visionpb.Likelihood_LIKELY,
		AdultScore:     likelihoodScore(s.GetAdult()),
		RacyScore:      likelihoodScore(s.GetRacy()),
		GoreScore:      likelihoodScore(s.GetViolence()),
	}
}

// likelihoodScore maps VERY_UNLIKELY..VERY_LIKELY onto 0..1
func likelihoodScore(l visionpb.Likelihood) float64 {
	if l <= visionpb.Likelihood_UNKNOWN {
		return 0
	}
	return float64(l-visionpb.Likelihood_VERY_UNLIKELY) / float64(visionpb.Likelihood_VERY_LIKELY-visionpb.Likelihood_VERY_UNLIKELY)
}

// pixelRect is the bounding rectangle of pixel vertices
func pixelRect(poly *visionpb.BoundingPoly) types.Rectangle {
	vs := poly.GetVertices()
	if len(vs) == 0 {
		return types.Rectangle{}
	}
	minX, minY := vs[0].GetX(), vs[0].GetY()
	maxX, maxY := minX, minY
	for _, v := range vs[1:] {
		minX, maxX = min(minX, v.GetX()), max(maxX, v.GetX())
		minY, maxY = min(minY, v.GetY()), max(maxY, v.GetY())
	}
	return types.Rectangle{X: int(minX), Y: int(minY), W: int(maxX - minX), H: int(maxY - minY)}
}

// normalizedRect scales normalized vertices to a width x height image
func normalizedRect(poly *visionpb.BoundingPoly, width, height int) types.Rectangle {
	vs := poly.GetNormalizedVertices()
	if len(vs) == 0 {
		return pixelRect(poly)
	}
	minX, minY := vs[0].GetX(), vs[0].GetY()
	maxX, maxY := minX, minY
	for _, v := range vs[1:] {
		minX, maxX = min(minX, v.GetX()), max(maxX, v.GetX())
		minY, maxY = min(minY, v.GetY()), max(maxY, v.GetY())
	}
	x0 := int(float64(minX)*float64(width) + 0.5)
	y0 := int(float64(minY)*float64(height) + 0.5)
	x1 := int(float64(maxX)*float64(width) + 0.5)
	y1 := int(float64(maxY)*float64(height) + 0.5)
	return types.Rectangle{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
