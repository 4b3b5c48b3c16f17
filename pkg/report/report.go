// Package report formats an analysis result as console text.
package report

import (
	"fmt"
	"io"

	"github.com/menta2k/image-describer/pkg/types"
)

// Reporter writes the human-readable analysis report
type Reporter struct {
	w io.Writer
}

// New creates a Reporter writing to w
func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Percent formats a confidence in [0,1] as a percentage with two decimals
func Percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// Summary prints captions, tags, categories, landmarks and brands in that order
func (r *Reporter) Summary(result *types.AnalysisResult) {
	r.Captions(result.Captions())
	r.Tags(result.Tags)
	r.Categories(result.Categories)
	r.Landmarks(Landmarks(result.Categories))
	r.Brands(result.Brands)
}

// Captions prints one line per caption
func (r *Reporter) Captions(captions []types.Caption) {
	for _, c := range captions {
		fmt.Fprintf(r.w, "Description: %s (confidence: %s)\n", c.Text, Percent(c.Confidence))
	}
}

// Tags prints the tag list, or nothing when there are no tags
func (r *Reporter) Tags(tags []types.Tag) {
	if len(tags) == 0 {
		return
	}
	fmt.Fprintln(r.w, "Tags:")
	for _, t := range tags {
		fmt.Fprintf(r.w, " -%s (confidence: %s)\n", t.Name, Percent(t.Confidence))
	}
}

// Categories prints every category with its score
func (r *Reporter) Categories(categories []types.Category) {
	fmt.Fprintln(r.w, "Categories:")
	for _, c := range categories {
		fmt.Fprintf(r.w, " - %s (confidence: %s)\n", c.Name, Percent(c.Score))
	}
}

// Landmarks prints the landmark list, or nothing when there are none
func (r *Reporter) Landmarks(landmarks []types.Landmark) {
	if len(landmarks) == 0 {
		return
	}
	fmt.Fprintln(r.w, "Landmarks:")
	for _, l := range landmarks {
		fmt.Fprintf(r.w, " - %s (confidence: %s)\n", l.Name, Percent(l.Confidence))
	}
}

// Brands prints the brand list, or nothing when there are none
func (r *Reporter) Brands(brands []types.Brand) {
	if len(brands) == 0 {
		return
	}
	fmt.Fprintln(r.w, "Brands:")
	for _, b := range brands {
		fmt.Fprintf(r.w, " - %s (confidence: %s)\n", b.Name, Percent(b.Confidence))
	}
}

// Objects prints the detected object list, or nothing when there are none
func (r *Reporter) Objects(objects []types.DetectedObject) {
	if len(objects) == 0 {
		return
	}
	fmt.Fprintln(r.w, "Objects in image:")
	for _, o := range objects {
		fmt.Fprintf(r.w, " -%s (confidence: %s)\n", o.Label, Percent(o.Confidence))
	}
}

// Saved prints the notice that an output file was written
func (r *Reporter) Saved(path string) {
	fmt.Fprintf(r.w, "  Results saved in %s\n", path)
}

// Moderation prints the three moderation flags. A missing record prints all false.
func (r *Reporter) Moderation(m *types.Moderation) {
	if m == nil {
		m = &types.Moderation{}
	}
	fmt.Fprintf(r.w, "Ratings:\n -Adult: %t\n -Racy: %t\n -Gory: %t\n",
		m.IsAdultContent, m.IsRacyContent, m.IsGoryContent)
}

// Landmarks collects the landmarks attached to the categories, once per
// distinct name in first-seen order.
func Landmarks(categories []types.Category) []types.Landmark {
	seen := make(map[string]struct{})
	var out []types.Landmark
	for _, c := range categories {
		if c.Detail == nil {
			continue
		}
		for _, l := range c.Detail.Landmarks {
			if _, ok := seen[l.Name]; ok {
				continue
			}
			seen[l.Name] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}
