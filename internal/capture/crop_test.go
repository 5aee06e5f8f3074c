package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"livehost-go/internal/types"
)

func TestSourceRect(t *testing.T) {
	tests := []struct {
		name    string
		native  image.Point
		surface Surface
		region  types.Region
		want    image.Rectangle
		ok      bool
	}{
		{
			name:    "same size is identity",
			native:  image.Pt(1920, 1080),
			surface: Surface{Width: 1920, Height: 1080},
			region:  types.Region{X: 100, Y: 200, Width: 300, Height: 400},
			want:    image.Rect(100, 200, 400, 600),
			ok:      true,
		},
		{
			name:    "half size container doubles coordinates",
			native:  image.Pt(1920, 1080),
			surface: Surface{Width: 960, Height: 540},
			region:  types.Region{X: 50, Y: 50, Width: 100, Height: 100},
			want:    image.Rect(100, 100, 300, 300),
			ok:      true,
		},
		{
			// 16:9 の映像を 1000x1000 に表示: 高さ 562.5、上下に 218.75 の帯
			name:    "letterbox offset is subtracted",
			native:  image.Pt(1600, 900),
			surface: Surface{Width: 1000, Height: 1000},
			region:  types.Region{X: 0, Y: 218.75, Width: 500, Height: 281.25},
			want:    image.Rect(0, 0, 800, 450),
			ok:      true,
		},
		{
			// 16:9 を 2000x900 に表示: 幅 1600、左右に 200 の帯
			name:    "pillarbox offset is subtracted",
			native:  image.Pt(1600, 900),
			surface: Surface{Width: 2000, Height: 900},
			region:  types.Region{X: 300, Y: 100, Width: 200, Height: 200},
			want:    image.Rect(100, 100, 300, 300),
			ok:      true,
		},
		{
			name:    "clamped to native bounds",
			native:  image.Pt(640, 480),
			surface: Surface{Width: 640, Height: 480},
			region:  types.Region{X: 600, Y: 400, Width: 300, Height: 300},
			want:    image.Rect(600, 400, 640, 480),
			ok:      true,
		},
		{
			name:    "region left of the picture starts at zero",
			native:  image.Pt(1600, 900),
			surface: Surface{Width: 2000, Height: 900},
			region:  types.Region{X: 100, Y: 0, Width: 300, Height: 300},
			want:    image.Rect(0, 0, 300, 300),
			ok:      true,
		},
		{
			name:    "no decoded frame",
			native:  image.Pt(0, 0),
			surface: Surface{Width: 100, Height: 100},
			region:  types.Region{Width: 50, Height: 50},
		},
		{
			name:    "zero sized container",
			native:  image.Pt(640, 480),
			surface: Surface{},
			region:  types.Region{Width: 50, Height: 50},
		},
		{
			name:    "degenerate crop",
			native:  image.Pt(640, 480),
			surface: Surface{Width: 640, Height: 480},
			region:  types.Region{X: 10, Y: 10, Width: 10, Height: 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SourceRect(tt.native, tt.surface, tt.region)
			if ok != tt.ok {
				t.Fatalf("SourceRect() ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("SourceRect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCropperCopiesPixelsAndResizes(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			frame.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	c := NewCropper()
	surface := Surface{Width: 200, Height: 100}

	out, ok := c.Crop(frame, surface, types.Region{X: 20, Y: 30, Width: 50, Height: 40})
	if !ok {
		t.Fatal("Crop() ok = false")
	}
	if got := out.Bounds(); got != image.Rect(0, 0, 50, 40) {
		t.Fatalf("bounds = %v, want 50x40", got)
	}
	if got := out.RGBAAt(0, 0); got.R != 20 || got.G != 30 {
		t.Errorf("pixel(0,0) = %+v, want R=20 G=30", got)
	}

	out, ok = c.Crop(frame, surface, types.Region{X: 0, Y: 0, Width: 120, Height: 60})
	if !ok {
		t.Fatal("second Crop() ok = false")
	}
	if got := out.Bounds(); got != image.Rect(0, 0, 120, 60) {
		t.Fatalf("resized bounds = %v, want 120x60", got)
	}
	if got := out.RGBAAt(119, 59); got.R != 119 || got.G != 59 {
		t.Errorf("pixel(119,59) = %+v", got)
	}
}

func TestCropperRejectsTransientStates(t *testing.T) {
	c := NewCropper()
	if _, ok := c.Crop(nil, Surface{Width: 10, Height: 10}, types.Region{Width: 5, Height: 5}); ok {
		t.Error("nil frame must be rejected")
	}
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	if _, ok := c.Crop(frame, Surface{}, types.Region{Width: 50, Height: 50}); ok {
		t.Error("zero container must be rejected")
	}
	if _, ok := c.Crop(frame, Surface{Width: 100, Height: 100}, types.Region{Width: 8, Height: 50}); ok {
		t.Error("crop narrower than the minimum must be rejected")
	}
}

func TestEncodeSnapshotDownscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	data, err := EncodeSnapshot(img, SnapshotOptions{Quality: 60, MaxWidth: 100})
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := decoded.Bounds().Size(); got != image.Pt(100, 50) {
		t.Errorf("size = %v, want 100x50", got)
	}
}

func TestFileSourceEndsWithoutLoop(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png"} {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 20, 20))); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	src, err := NewFileSource(dir, false)
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := src.Frame(ctx); err != nil {
			t.Fatalf("Frame(%d) error = %v", i, err)
		}
	}
	if _, err := src.Frame(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Frame() after last = %v, want ErrEndOfStream", err)
	}
	select {
	case <-src.Done():
	default:
		t.Error("Done() not closed after end of stream")
	}
}
