// Package thumbnail requests thumbnails from a vision backend and writes them
// to disk. It also provides the local generator used by backends that have
// no thumbnail endpoint.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/menta2k/image-describer/internal/utils"
	"github.com/menta2k/image-describer/pkg/client"
	"github.com/menta2k/image-describer/pkg/processing"
	"github.com/menta2k/image-describer/pkg/smartcrop"
)

// Fixed request parameters
const (
	DefaultWidth  = 100
	DefaultHeight = 100
	DefaultOutput = "thumbnail.png"
)

// Requester asks the vision backend for a thumbnail and saves it
type Requester struct {
	client        client.VisionClient
	Width         int
	Height        int
	SmartCropping bool
}

// NewRequester creates a Requester for a 100x100 smart-cropped thumbnail
func NewRequester(c client.VisionClient) *Requester {
	return &Requester{
		client:        c,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		SmartCropping: true,
	}
}

// Save requests a thumbnail of the upload payload data and streams it to
// outPath, overwriting any existing file. The output file is only created
// once the service answered; a failed copy removes it again.
func (r *Requester) Save(ctx context.Context, data []byte, outPath string) (int64, error) {
	if len(data) == 0 {
		return 0, errors.New("no image data to send")
	}

	stream, err := r.client.Thumbnail(ctx, r.Width, r.Height, data, r.SmartCropping)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outPath, err)
	}

	n, err := io.Copy(f, stream)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := utils.RemoveQuietly(outPath); rerr != nil {
			return n, fmt.Errorf("failed to write %s: %w (cleanup: %v)", outPath, err, rerr)
		}
		return n, fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return n, nil
}

// Local generates thumbnails on this machine with the saliency cropper
type Local struct {
	processor *processing.Processor
	cropper   *smartcrop.Cropper
}

// NewLocal creates a local thumbnail generator
func NewLocal(processor *processing.Processor, cropper *smartcrop.Cropper) *Local {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if cropper == nil {
		cropper = smartcrop.New()
	}
	return &Local{processor: processor, cropper: cropper}
}

// Generate returns a PNG-encoded width x height thumbnail of the image
func (l *Local) Generate(data []byte, width, height int, smartCropping bool) (io.ReadCloser, error) {
	img, err := l.processor.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	thumb, err := l.cropper.Thumbnail(img, width, height, smartCropping)
	if err != nil {
		return nil, fmt.Errorf("failed to generate thumbnail: %w", err)
	}
	encoded, err := l.processor.EncodePNG(thumb)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(encoded)), nil
}
