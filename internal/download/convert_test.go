package download

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestConvert(t *testing.T) {
	t.Parallel()

	src := pngBytes(t, 40, 30, color.RGBA{R: 90, G: 60, B: 30, A: 255})

	for _, format := range []string{"jpeg", "gif", "bmp", "tiff"} {
		t.Run(format, func(t *testing.T) {
			t.Parallel()
			out, err := convert(src, format, 85)
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			cfg, got, err := image.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode converted: %v", err)
			}
			if got != format || cfg.Width != 40 || cfg.Height != 30 {
				t.Errorf("unexpected result %s %dx%d", got, cfg.Width, cfg.Height)
			}
		})
	}

	t.Run("same format keeps bytes", func(t *testing.T) {
		t.Parallel()
		out, err := convert(src, "png", 85)
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if !bytes.Equal(out, src) {
			t.Error("expected original bytes")
		}
	})

	t.Run("undecodable input fails", func(t *testing.T) {
		t.Parallel()
		if _, err := convert([]byte("not an image"), "png", 85); err == nil {
			t.Error("expected error")
		}
	})
}

func TestReadEXIF_NoMetadata(t *testing.T) {
	t.Parallel()

	if got := readEXIF(pngBytes(t, 4, 4, color.White)); got != (exifSummary{}) {
		t.Errorf("expected empty summary, got %+v", got)
	}
}
