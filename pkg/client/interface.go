package client

import (
	"context"
	"io"

	"github.com/menta2k/image-describer/pkg/types"
)

// VisionClient is a handle to one vision backend. It is created once per run
// and passed explicitly to the steps that need it.
type VisionClient interface {
	// Analyze runs the requested features over the raw image bytes.
	Analyze(ctx context.Context, image []byte, features []types.VisualFeature) (*types.AnalysisResult, error)
	// Thumbnail returns an encoded width x height thumbnail of the image.
	// The caller must close the returned stream.
	Thumbnail(ctx context.Context, width, height int, image []byte, smartCropping bool) (io.ReadCloser, error)
	Close() error
}
