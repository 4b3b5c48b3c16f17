package types

// VisualFeature names one kind of analysis the vision service can run
type VisualFeature string

const (
	FeatureDescription VisualFeature = "Description"
	FeatureTags        VisualFeature = "Tags"
	FeatureCategories  VisualFeature = "Categories"
	FeatureBrands      VisualFeature = "Brands"
	FeatureObjects     VisualFeature = "Objects"
	FeatureAdult       VisualFeature = "Adult"
)

// DefaultFeatures is the feature set requested for every analysis
var DefaultFeatures = []VisualFeature{
	FeatureDescription,
	FeatureTags,
	FeatureCategories,
	FeatureBrands,
	FeatureObjects,
	FeatureAdult,
}

// HasFeature reports whether f is part of features
func HasFeature(features []VisualFeature, f VisualFeature) bool {
	for _, v := range features {
		if v == f {
			return true
		}
	}
	return false
}

// Rectangle is a pixel-space bounding box with its origin at the top-left corner
type Rectangle struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Caption is a one-line natural-language description of the image
type Caption struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Description holds the captions and the keywords they were built from
type Description struct {
	Tags     []string  `json:"tags,omitempty"`
	Captions []Caption `json:"captions"`
}

// Tag is a single keyword describing image content
type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Hint       string  `json:"hint,omitempty"`
}

// Landmark is a recognized notable location depicted in the image
type Landmark struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// CategoryDetail carries domain-specific detections attached to a category
type CategoryDetail struct {
	Landmarks []Landmark `json:"landmarks,omitempty"`
}

// Category is a coarse classification bucket
type Category struct {
	Name   string          `json:"name"`
	Score  float64         `json:"score"`
	Detail *CategoryDetail `json:"detail,omitempty"`
}

// Brand is a detected logo or brand mark
type Brand struct {
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	Rectangle  Rectangle `json:"rectangle"`
}

// ObjectHierarchy is the taxonomy parent of a detected object
type ObjectHierarchy struct {
	Label      string           `json:"object"`
	Confidence float64          `json:"confidence"`
	Parent     *ObjectHierarchy `json:"parent,omitempty"`
}

// DetectedObject is one localized object
type DetectedObject struct {
	Label      string           `json:"object"`
	Confidence float64          `json:"confidence"`
	Rectangle  Rectangle        `json:"rectangle"`
	Parent     *ObjectHierarchy `json:"parent,omitempty"`
}

// Moderation holds the content-moderation verdicts
type Moderation struct {
	IsAdultContent bool    `json:"isAdultContent"`
	IsRacyContent  bool    `json:"isRacyContent"`
	IsGoryContent  bool    `json:"isGoryContent"`
	AdultScore     float64 `json:"adultScore"`
	RacyScore      float64 `json:"racyScore"`
	GoreScore      float64 `json:"goreScore"`
}

// Metadata describes the analyzed image as seen by the service
type Metadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// AnalysisResult is the read-only response of one analysis call
type AnalysisResult struct {
	Categories   []Category       `json:"categories,omitempty"`
	Adult        *Moderation      `json:"adult,omitempty"`
	Tags         []Tag            `json:"tags,omitempty"`
	Description  *Description     `json:"description,omitempty"`
	Objects      []DetectedObject `json:"objects,omitempty"`
	Brands       []Brand          `json:"brands,omitempty"`
	RequestID    string           `json:"requestId,omitempty"`
	Metadata     *Metadata        `json:"metadata,omitempty"`
	ModelVersion string           `json:"modelVersion,omitempty"`
}

// Captions returns the captions of the result, or nil when no description was returned
func (r *AnalysisResult) Captions() []Caption {
	if r == nil || r.Description == nil {
		return nil
	}
	return r.Description.Captions
}
