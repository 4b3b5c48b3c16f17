// Package annotate draws detected objects onto a copy of the source image.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/image-describer/pkg/processing"
	"github.com/menta2k/image-describer/pkg/types"
)

// DefaultOutput is the file the annotated image is written to
const DefaultOutput = "objects.jpg"

// Style is the fixed look of boxes and labels
type Style struct {
	Stroke     color.NRGBA
	StrokeSize int
	Text       color.NRGBA
	FontSize   float64
}

// DefaultStyle draws 3px cyan boxes with 16px black labels
var DefaultStyle = Style{
	Stroke:     color.NRGBA{0, 255, 255, 255},
	StrokeSize: 3,
	Text:       color.NRGBA{0, 0, 0, 255},
	FontSize:   16,
}

// Annotator renders bounding boxes and labels
type Annotator struct {
	style     Style
	processor *processing.Processor

	faceOnce sync.Once
	face     font.Face
	faceErr  error
}

// New creates an Annotator with the default style
func New(processor *processing.Processor) *Annotator {
	return NewWithStyle(processor, DefaultStyle)
}

// NewWithStyle creates an Annotator with a custom style
func NewWithStyle(processor *processing.Processor, style Style) *Annotator {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Annotator{style: style, processor: processor}
}

// Annotate draws the objects onto a copy of the image at srcPath and saves it
// to outPath, overwriting any existing file. With no objects nothing is read
// or written and false is returned.
func (a *Annotator) Annotate(srcPath string, objects []types.DetectedObject, outPath string) (bool, error) {
	if len(objects) == 0 {
		return false, nil
	}

	img, err := a.processor.LoadImage(srcPath)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", srcPath, err)
	}

	out, err := a.Render(img, objects)
	if err != nil {
		return false, err
	}

	if err := a.processor.SaveImage(out, outPath); err != nil {
		return false, fmt.Errorf("failed to save %s: %w", outPath, err)
	}
	return true, nil
}

// Render returns a copy of img with one rectangle and one label per object,
// drawn in list order.
func (a *Annotator) Render(img image.Image, objects []types.DetectedObject) (*image.NRGBA, error) {
	face, err := a.fontFace()
	if err != nil {
		return nil, err
	}

	canvas := imaging.Clone(img)
	text := image.NewUniform(a.style.Text)
	for _, obj := range objects {
		drawRect(canvas, obj.Rectangle, a.style.Stroke, a.style.StrokeSize)
		drawLabel(canvas, obj.Label, obj.Rectangle.X, obj.Rectangle.Y, face, text)
	}
	return canvas, nil
}

func (a *Annotator) fontFace() (font.Face, error) {
	a.faceOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			a.faceErr = fmt.Errorf("failed to parse label font: %w", err)
			return
		}
		a.face, a.faceErr = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    a.style.FontSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	})
	return a.face, a.faceErr
}

// drawLabel draws text whose top-left corner sits at (x, y)
func drawLabel(img draw.Image, label string, x, y int, face font.Face, src image.Image) {
	d := &font.Drawer{
		Dst:  img,
		Src:  src,
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x),
			Y: fixed.I(y) + face.Metrics().Ascent,
		},
	}
	d.DrawString(label)
}

// drawRect strokes the inside edge of r with the given thickness
func drawRect(img *image.NRGBA, r types.Rectangle, c color.NRGBA, stroke int) {
	if r.W <= 0 || r.H <= 0 {
		return
	}
	x0, y0 := r.X, r.Y
	x1, y1 := r.X+r.W, r.Y+r.H
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, b.Min.X), min(x1, b.Max.X)
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0, y1 = max(y0, b.Min.Y), min(y1, b.Max.Y)
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
