package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnsupportedFormat is returned for payloads that are not a known image format
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrOutOfBounds is returned when the image size or payload is outside the accepted limits
	ErrOutOfBounds = errors.New("image outside accepted limits")
)

// Inspector checks images before they are uploaded to a vision service
type Inspector struct {
	config Config
}

// Config holds the limits enforced by the inspector
type Config struct {
	SupportedFormats []string
	MinDimension     int
	MaxDimension     int
	MaxBytes         int
}

// DefaultConfig mirrors the limits of the hosted analyze endpoint
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "bmp", "webp"},
		MinDimension:     50,
		MaxDimension:     16000,
		MaxBytes:         4 * 1024 * 1024,
	}
}

// New creates an Inspector with default limits
func New() *Inspector {
	return &Inspector{config: DefaultConfig()}
}

// NewWithConfig creates an Inspector with custom limits
func NewWithConfig(config Config) *Inspector {
	return &Inspector{config: config}
}

// Info contains basic image metadata
type Info struct {
	Width       int
	Height      int
	Format      string
	Size        int
	AspectRatio float64
}

// Inspect reads the image header and validates it against the limits
func (in *Inspector) Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	info := Info{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
		Size:   len(data),
	}
	if cfg.Height > 0 {
		info.AspectRatio = float64(cfg.Width) / float64(cfg.Height)
	}

	if !in.isFormatSupported(format) {
		return info, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err := in.validate(info); err != nil {
		return info, err
	}
	return info, nil
}

func (in *Inspector) validate(info Info) error {
	c := in.config
	if c.MinDimension > 0 && (info.Width < c.MinDimension || info.Height < c.MinDimension) {
		return fmt.Errorf("%w: image too small: %dx%d (minimum: %d)",
			ErrOutOfBounds, info.Width, info.Height, c.MinDimension)
	}
	if c.MaxDimension > 0 && (info.Width > c.MaxDimension || info.Height > c.MaxDimension) {
		return fmt.Errorf("%w: image too large: %dx%d (maximum: %d)",
			ErrOutOfBounds, info.Width, info.Height, c.MaxDimension)
	}
	if c.MaxBytes > 0 && info.Size > c.MaxBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrOutOfBounds, info.Size, c.MaxBytes)
	}
	return nil
}

func (in *Inspector) isFormatSupported(format string) bool {
	for _, supported := range in.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
