// Package imagedescriber sends an image to a vision service and reports what
// it found.
//
// A run analyzes the image, prints the captions, tags, categories, landmarks,
// brands and moderation verdicts, draws the detected objects into
// objects.jpg and finally asks the service for a 100x100 smart-cropped
// thumbnail saved as thumbnail.png.
//
// Basic usage:
//
//	ctx := context.Background()
//	if err := imagedescriber.Run(ctx, "images/street.jpg", imagedescriber.Options{}); err != nil {
//		fmt.Println(err)
//		os.Exit(1)
//	}
//
// The vision backend is chosen in appsettings.json: the hosted Computer Vision
// REST API (default), Google Cloud Vision, or a local vision model served by
// Ollama or llama.cpp.
package imagedescriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/menta2k/image-describer/internal/config"
	"github.com/menta2k/image-describer/internal/utils"
	"github.com/menta2k/image-describer/pkg/annotate"
	"github.com/menta2k/image-describer/pkg/client"
	"github.com/menta2k/image-describer/pkg/inspect"
	"github.com/menta2k/image-describer/pkg/processing"
	"github.com/menta2k/image-describer/pkg/report"
	"github.com/menta2k/image-describer/pkg/thumbnail"
	"github.com/menta2k/image-describer/pkg/types"
)

// Version of the image describer
const Version = "1.0.0"

// DefaultImage is analyzed when no path is given
const DefaultImage = "images/street.jpg"

// ErrEmptyResponse is returned when a client reports success without a result
var ErrEmptyResponse = errors.New("empty analysis response")

// Describer runs one analysis and one thumbnail request against a client
type Describer struct {
	client    client.VisionClient
	out       io.Writer
	reporter  *report.Reporter
	inspector *inspect.Inspector
	processor *processing.Processor
	annotator *annotate.Annotator
	thumbs    *thumbnail.Requester

	// Features requested from the service
	Features []types.VisualFeature
	// ObjectsPath receives the annotated copy of the image
	ObjectsPath string
	// ThumbnailPath receives the thumbnail
	ThumbnailPath string
}

// New creates a Describer writing its report to out
func New(c client.VisionClient, out io.Writer) *Describer {
	processor := processing.NewProcessor()
	return &Describer{
		client:        c,
		out:           out,
		reporter:      report.New(out),
		inspector:     inspect.New(),
		processor:     processor,
		annotator:     annotate.New(processor),
		thumbs:        thumbnail.NewRequester(c),
		Features:      types.DefaultFeatures,
		ObjectsPath:   annotate.DefaultOutput,
		ThumbnailPath: thumbnail.DefaultOutput,
	}
}

// Describe analyzes the image and then generates its thumbnail. An analysis
// failure is returned. A thumbnail failure is reported to the output and the
// run still succeeds.
func (d *Describer) Describe(ctx context.Context, imagePath string) error {
	if err := d.Analyze(ctx, imagePath); err != nil {
		return err
	}
	if err := d.Thumbnail(ctx, imagePath); err != nil {
		fmt.Fprintf(d.out, "An error occurred: %v\n", err)
	}
	return nil
}

// Analyze sends the image for analysis and prints the report
func (d *Describer) Analyze(ctx context.Context, imagePath string) error {
	fmt.Fprintf(d.out, "Analyzing %s\n", imagePath)

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	info, err := d.inspector.Inspect(data)
	if err != nil {
		return fmt.Errorf("%s: %w", imagePath, err)
	}
	log.Printf("image %s: %dx%d %s, %s", imagePath, info.Width, info.Height, info.Format, utils.FormatFileSize(int64(info.Size)))

	payload, err := d.processor.PrepareUpload(data)
	if err != nil {
		return err
	}

	result, err := d.client.Analyze(ctx, payload, d.Features)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if result == nil {
		return ErrEmptyResponse
	}

	d.reporter.Summary(result)

	if len(result.Objects) > 0 {
		d.reporter.Objects(result.Objects)
		saved, err := d.annotator.Annotate(imagePath, result.Objects, d.ObjectsPath)
		if err != nil {
			return fmt.Errorf("failed to annotate objects: %w", err)
		}
		if saved {
			d.reporter.Saved(d.ObjectsPath)
		}
	}

	d.reporter.Moderation(result.Adult)
	return nil
}

// Thumbnail requests the thumbnail and saves it
func (d *Describer) Thumbnail(ctx context.Context, imagePath string) error {
	fmt.Fprintln(d.out, "Generating thumbnail")

	payload, err := d.payload(imagePath)
	if err != nil {
		return err
	}
	n, err := d.thumbs.Save(ctx, payload, d.ThumbnailPath)
	if err != nil {
		return err
	}
	log.Printf("wrote %s (%s)", d.ThumbnailPath, utils.FormatFileSize(n))
	fmt.Fprintf(d.out, "Thumbnail saved in %s\n", d.ThumbnailPath)
	return nil
}

// payload reads the image and converts it to a format the services accept,
// the same bytes Analyze uploads
func (d *Describer) payload(imagePath string) ([]byte, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return d.processor.PrepareUpload(data)
}

// Options configures Run. Zero values select the defaults.
type Options struct {
	// SettingsPath defaults to appsettings.json
	SettingsPath string
	// Out defaults to os.Stdout
	Out io.Writer
	// NewClient defaults to NewClient
	NewClient ClientFactory
}

// Run loads the settings, connects to the configured backend and describes
// the image. Settings are validated before any client is built.
func Run(ctx context.Context, imagePath string, opts Options) error {
	if opts.SettingsPath == "" {
		opts.SettingsPath = config.DefaultPath
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.NewClient == nil {
		opts.NewClient = NewClient
	}
	if imagePath == "" {
		imagePath = DefaultImage
	}

	settings, err := config.Load(opts.SettingsPath)
	if err != nil {
		return err
	}

	c, err := opts.NewClient(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("close client: %v", err)
		}
	}()

	log.Printf("using %s backend at %s", settings.Backend, settings.Endpoint)
	return New(c, opts.Out).Describe(ctx, imagePath)
}

// GetVersion returns the version
func GetVersion() string {
	return Version
}
