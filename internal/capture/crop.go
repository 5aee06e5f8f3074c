package capture

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"livehost-go/internal/types"
)

// MinCropSize 以下の幅・高さの切り出しはウォームアップ中などの一時的な状態として拒否します。
const MinCropSize = 10

// Surface は映像が表示されているコンテナの計測サイズです。
// 映像はアスペクト比を保ったまま (object-fit: contain) 中央に表示される前提です。
type Surface struct {
	Width  float64 `json:"width" koanf:"width"`
	Height float64 `json:"height" koanf:"height"`
}

// SourceRect は表示座標系の領域をネイティブ映像のピクセル矩形に変換します。
// フレーム未取得、コンテナサイズ0、切り出し幅・高さが MinCropSize 以下の場合は false を返します。
func SourceRect(native image.Point, s Surface, r types.Region) (image.Rectangle, bool) {
	if native.X <= 0 || native.Y <= 0 {
		return image.Rectangle{}, false
	}
	if s.Width <= 0 || s.Height <= 0 {
		return image.Rectangle{}, false
	}

	vw, vh := float64(native.X), float64(native.Y)
	videoRatio := vw / vh
	containerRatio := s.Width / s.Height

	// 1. レターボックス/ピラーボックスのオフセットと表示サイズを計算
	var displayedW, displayedH, offsetX, offsetY float64
	if containerRatio > videoRatio {
		displayedH = s.Height
		displayedW = displayedH * videoRatio
		offsetX = (s.Width - displayedW) / 2
	} else {
		displayedW = s.Width
		displayedH = displayedW / videoRatio
		offsetY = (s.Height - displayedH) / 2
	}

	scaleX := vw / displayedW
	scaleY := vh / displayedH

	// 2. コンテナ座標からネイティブ座標へ変換し、フレーム内にクランプ
	sx := math.Max(0, (r.X-offsetX)*scaleX)
	sy := math.Max(0, (r.Y-offsetY)*scaleY)
	sw := math.Min(r.Width*scaleX, vw-sx)
	sh := math.Min(r.Height*scaleY, vh-sy)

	if sw <= MinCropSize || sh <= MinCropSize {
		return image.Rectangle{}, false
	}

	x0, y0 := int(sx), int(sy)
	rect := image.Rect(x0, y0, x0+int(sw), y0+int(sh))
	return rect.Intersect(image.Rect(0, 0, native.X, native.Y)), true
}

// Cropper はフレームの一部を再利用可能なサーフェスに描画します。
// 返される画像は次の Crop 呼び出しまで有効です。
type Cropper struct {
	target *image.RGBA
}

// NewCropper は空のサーフェスを持つ Cropper を作成します。
func NewCropper() *Cropper {
	return &Cropper{}
}

// Crop は region を frame のネイティブ解像度で切り出します。
// 切り出しできない一時的な状態では (nil, false) を返します。エラーではありません。
func (c *Cropper) Crop(frame image.Image, s Surface, r types.Region) (*image.RGBA, bool) {
	if frame == nil {
		return nil, false
	}
	b := frame.Bounds()
	rect, ok := SourceRect(b.Size(), s, r)
	if !ok || rect.Empty() {
		return nil, false
	}
	rect = rect.Add(b.Min)

	// リサイズ可能な領域に対応するため、毎回サーフェスを切り出しサイズに合わせる
	c.resize(rect.Dx(), rect.Dy())
	draw.Draw(c.target, c.target.Bounds(), frame, rect.Min, draw.Src)
	return c.target, true
}

func (c *Cropper) resize(w, h int) {
	need := 4 * w * h
	if c.target != nil && cap(c.target.Pix) >= need {
		c.target.Pix = c.target.Pix[:need]
		c.target.Stride = 4 * w
		c.target.Rect = image.Rect(0, 0, w, h)
		return
	}
	c.target = image.NewRGBA(image.Rect(0, 0, w, h))
}
