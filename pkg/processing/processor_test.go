package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// createTestImage creates a simple gradient test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.Set(x, y, color.RGBA{r, g, 128, 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(120, 80)

	for _, name := range []string{"out.jpg", "out.png", "out.webp"} {
		path := filepath.Join(dir, name)
		if err := p.SaveImage(img, path); err != nil {
			t.Fatalf("SaveImage(%s) failed: %v", name, err)
		}
		loaded, err := p.LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage(%s) failed: %v", name, err)
		}
		if b := loaded.Bounds(); b.Dx() != 120 || b.Dy() != 80 {
			t.Errorf("%s: expected 120x80, got %dx%d", name, b.Dx(), b.Dy())
		}
	}
}

func TestSaveImageOverwrites(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "objects.jpg")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.SaveImage(createTestImage(30, 30), path); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	if _, err := p.LoadImage(path); err != nil {
		t.Errorf("overwritten file should decode: %v", err)
	}
}

// exifOrientation6 is an APP1 segment holding a single Orientation=6 tag
var exifOrientation6 = []byte{
	0xFF, 0xE1, 0x00, 0x22,
	'E', 'x', 'i', 'f', 0x00, 0x00,
	'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08,
	0x00, 0x01,
	0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x06, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// withOrientation inserts the EXIF segment right after the JPEG SOI marker
func withOrientation(data []byte) []byte {
	out := append([]byte{}, data[:2]...)
	out = append(out, exifOrientation6...)
	return append(out, data[2:]...)
}

func TestLoadImageIgnoresEXIFOrientation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotated.jpg")
	data := withOrientation(encodeJPEG(t, createTestImage(200, 100)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	// the fixture must actually carry a rotation
	rotated, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		t.Fatal(err)
	}
	if b := rotated.Bounds(); b.Dx() != 100 || b.Dy() != 200 {
		t.Fatalf("fixture not rotated by EXIF, got %dx%d", b.Dx(), b.Dy())
	}

	p := NewProcessor()
	img, err := p.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	w, h, err := p.Dimensions(data)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		t.Errorf("LoadImage gave %dx%d, Dimensions %dx%d", b.Dx(), b.Dy(), w, h)
	}
}

func TestLoadImageUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewProcessor().LoadImage(path); err == nil {
		t.Error("expected error for non-image file")
	}
}

func TestPrepareUploadPassesJPEGThrough(t *testing.T) {
	data := encodeJPEG(t, createTestImage(64, 64))
	out, err := NewProcessor().PrepareUpload(data)
	if err != nil {
		t.Fatalf("PrepareUpload failed: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("jpeg payload should be sent unchanged")
	}
}

func TestPrepareUploadTranscodesWebP(t *testing.T) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, createTestImage(64, 48), &webp.Options{Lossless: true}); err != nil {
		t.Fatal(err)
	}

	out, err := NewProcessor().PrepareUpload(buf.Bytes())
	if err != nil {
		t.Fatalf("PrepareUpload failed: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("transcoded payload does not decode: %v", err)
	}
	if format != "png" {
		t.Errorf("expected png, got %s", format)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("expected 64x48, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(400, 200), "png", 100, 85)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("result is not base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("result is not a png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("expected long side scaled to 100 (100x50), got %dx%d", b.Dx(), b.Dy())
	}
}

func TestDimensions(t *testing.T) {
	w, h, err := NewProcessor().Dimensions(encodeJPEG(t, createTestImage(33, 21)))
	if err != nil {
		t.Fatalf("Dimensions failed: %v", err)
	}
	if w != 33 || h != 21 {
		t.Errorf("expected 33x21, got %dx%d", w, h)
	}
}

func BenchmarkPrepareImageForModel(b *testing.B) {
	p := NewProcessor()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.PrepareImageForModel(img, "jpg", 1536, 85)
	}
}
