// Package smartcrop picks the most salient region of an image for a target
// aspect ratio and produces thumbnails from it.
package smartcrop

import (
	"errors"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// ErrEmptyImage is returned for images without pixels
var ErrEmptyImage = errors.New("invalid image dimensions")

// Config holds configuration for subject detection
type Config struct {
	// EdgeWeight scales the local contrast term of the saliency map.
	EdgeWeight float64
	// BrightnessWeight scales the brightness term of the saliency map.
	BrightnessWeight float64
	// Threshold is the minimum mean saliency for a window to count as a subject.
	Threshold float64
	// MinSubjectRatio is the minimum subject area relative to the image.
	MinSubjectRatio float64
	// AnalysisSize is the long side the image is reduced to before analysis.
	AnalysisSize int
	// MaxSubjects limits the number of subjects considered.
	MaxSubjects int
}

// DefaultConfig returns the detection defaults
func DefaultConfig() Config {
	return Config{
		EdgeWeight:       0.3,
		BrightnessWeight: 0.2,
		Threshold:        0.01,
		MinSubjectRatio:  0.002,
		AnalysisSize:     256,
		MaxSubjects:      10,
	}
}

// Region represents a rectangular region of interest in source pixels
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Rect returns the region as an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Cropper finds salient regions and crops around them
type Cropper struct {
	config Config
}

// New creates a Cropper with default configuration
func New() *Cropper {
	return &Cropper{config: DefaultConfig()}
}

// NewWithConfig creates a Cropper with custom configuration
func NewWithConfig(config Config) *Cropper {
	return &Cropper{config: config}
}

// DetectSubjects returns the highest scoring regions of interest, best first.
// Coordinates are relative to the image bounds origin.
func (c *Cropper) DetectSubjects(img image.Image) ([]Region, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyImage
	}

	small, scale := c.reduce(img)
	sat := c.saliency(small)
	sw, sh := small.Bounds().Dx(), small.Bounds().Dy()

	minArea := float64(sw*sh) * c.config.MinSubjectRatio
	var regions []Region
	for _, div := range []int{20, 16, 12, 8, 4} {
		size := max(sw, sh) / div
		if size < 4 || size > sw || size > sh {
			continue
		}
		if float64(size*size) < minArea {
			continue
		}
		step := max(size/8, 1)
		for y := 0; y+size <= sh; y += step {
			for x := 0; x+size <= sw; x += step {
				score := sat.mean(x, y, size, size)
				if score > c.config.Threshold {
					regions = append(regions, Region{X: x, Y: y, Width: size, Height: size, Score: score})
				}
			}
		}
	}

	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Score > regions[j].Score })
	if c.config.MaxSubjects > 0 && len(regions) > c.config.MaxSubjects {
		regions = regions[:c.config.MaxSubjects]
	}
	for i := range regions {
		regions[i] = scaleRegion(regions[i], scale)
	}
	return regions, nil
}

// BestCrop finds the largest crop with the target aspect ratio (width/height)
// that covers the most subject saliency.
func (c *Cropper) BestCrop(img image.Image, targetRatio float64) (Region, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 || targetRatio <= 0 {
		return Region{}, ErrEmptyImage
	}

	subjects, err := c.DetectSubjects(img)
	if err != nil {
		return Region{}, err
	}

	cropWidth, cropHeight := width, height
	if targetRatio > float64(width)/float64(height) {
		cropHeight = max(int(float64(width)/targetRatio), 1)
	} else {
		cropWidth = max(int(float64(height)*targetRatio), 1)
	}

	return optimalPosition(subjects, cropWidth, cropHeight, width, height), nil
}

// Thumbnail produces a width x height thumbnail. With smart cropping the crop
// follows the salient region; otherwise it is centered.
func (c *Cropper) Thumbnail(img image.Image, width, height int, smart bool) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("thumbnail dimensions must be positive")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyImage
	}
	if !smart {
		return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos), nil
	}

	region, err := c.BestCrop(img, float64(width)/float64(height))
	if err != nil {
		return nil, err
	}
	cropped := imaging.Crop(img, region.Rect().Add(b.Min))
	return imaging.Resize(cropped, width, height, imaging.Lanczos), nil
}

func (c *Cropper) reduce(img image.Image) (*image.NRGBA, float64) {
	b := img.Bounds()
	long := max(b.Dx(), b.Dy())
	if c.config.AnalysisSize <= 0 || long <= c.config.AnalysisSize {
		return imaging.Clone(img), 1
	}
	small := imaging.Fit(img, c.config.AnalysisSize, c.config.AnalysisSize, imaging.Box)
	return small, float64(long) / float64(max(small.Bounds().Dx(), small.Bounds().Dy()))
}

// saliency computes a per-pixel saliency (local contrast plus brightness) and
// returns its summed-area table.
func (c *Cropper) saliency(img *image.NRGBA) summedArea {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	sat := newSummedArea(w, h)

	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := img.PixOffset(x, y)
			r, g, b := float64(img.Pix[p]), float64(img.Pix[p+1]), float64(img.Pix[p+2])
			lum[y*w+x] = (r + g + b) / (3 * 255)
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			if x > 0 && y > 0 && x < w-1 && y < h-1 {
				centre := lum[y*w+x]
				var edge float64
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx != 0 || dy != 0 {
							edge += math.Abs(centre - lum[(y+dy)*w+x+dx])
						}
					}
				}
				s = c.config.EdgeWeight*(edge/8) + c.config.BrightnessWeight*centre
			}
			sat.set(x, y, s)
		}
	}
	return sat
}

func optimalPosition(subjects []Region, cropWidth, cropHeight, imageWidth, imageHeight int) Region {
	best := Region{
		X:      (imageWidth - cropWidth) / 2,
		Y:      (imageHeight - cropHeight) / 2,
		Width:  cropWidth,
		Height: cropHeight,
	}
	if len(subjects) == 0 {
		return best
	}

	step := max(max(cropWidth, cropHeight)/20, 1)
	bestScore := coverage(subjects, best)
	for y := 0; y <= imageHeight-cropHeight; y += step {
		for x := 0; x <= imageWidth-cropWidth; x += step {
			candidate := Region{X: x, Y: y, Width: cropWidth, Height: cropHeight}
			if score := coverage(subjects, candidate); score > bestScore {
				bestScore = score
				best = candidate
			}
		}
	}
	best.Score = bestScore
	return best
}

// coverage sums, per subject, the covered fraction weighted by its score
func coverage(subjects []Region, crop Region) float64 {
	var score float64
	cr := crop.Rect()
	for _, s := range subjects {
		overlap := cr.Intersect(s.Rect())
		if overlap.Empty() || s.Area() == 0 {
			continue
		}
		score += float64(overlap.Dx()*overlap.Dy()) / float64(s.Area()) * s.Score
	}
	return score
}

func scaleRegion(r Region, scale float64) Region {
	if scale == 1 {
		return r
	}
	return Region{
		X:      int(float64(r.X) * scale),
		Y:      int(float64(r.Y) * scale),
		Width:  int(math.Ceil(float64(r.Width) * scale)),
		Height: int(math.Ceil(float64(r.Height) * scale)),
		Score:  r.Score,
	}
}

// summedArea is an integral image over saliency values
type summedArea struct {
	w, h int
	sum  []float64
}

func newSummedArea(w, h int) summedArea {
	return summedArea{w: w, h: h, sum: make([]float64, (w+1)*(h+1))}
}

// set must be called in row-major order
func (s summedArea) set(x, y int, v float64) {
	stride := s.w + 1
	s.sum[(y+1)*stride+x+1] = v + s.sum[y*stride+x+1] + s.sum[(y+1)*stride+x] - s.sum[y*stride+x]
}

func (s summedArea) mean(x, y, w, h int) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	stride := s.w + 1
	x1, y1 := x+w, y+h
	total := s.sum[y1*stride+x1] - s.sum[y*stride+x1] - s.sum[y1*stride+x] + s.sum[y*stride+x]
	return total / float64(w*h)
}
