package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// SnapshotOptions は推論サービスへ送る映像スナップショットの形式です。
type SnapshotOptions struct {
	// JPEG 品質 (1-100)
	Quality int `koanf:"quality"`
	// 幅がこれを超える場合は縮小する。0 は縮小なし。
	MaxWidth int `koanf:"max_width"`
}

// EncodeSnapshot は切り出した画像を送信用の JPEG に変換します。
func EncodeSnapshot(img image.Image, opts SnapshotOptions) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("snapshot image is nil")
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 60
	}

	src := img
	b := img.Bounds()
	if opts.MaxWidth > 0 && b.Dx() > opts.MaxWidth {
		h := b.Dy() * opts.MaxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, opts.MaxWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("スナップショットのJPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
