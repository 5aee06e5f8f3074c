package ocr

import "image"

const (
	// これより狭いダイナミックレンジ (単色背景など) ではコントラスト伸長をしない
	noiseGateRange = 30
	// 伸長後の輝度がこれを超える画素を文字とみなす
	binarizeThreshold = 150
)

// Binarize はチャット領域の画像をその場で白黒化します。
//
// ライブチャットの文字は暗い背景上の明るい文字が前提です。
// OCR エンジンは白地に黒文字を得意とするため、明るい画素を黒 (文字)、
// それ以外を白 (背景) に反転します。
func Binarize(img *image.RGBA) {
	b := img.Bounds()
	if b.Empty() {
		return
	}

	// 1. コントラスト伸長のための平均輝度の最小・最大
	lo, hi := 255.0, 0.0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			avg := (float64(row[i]) + float64(row[i+1]) + float64(row[i+2])) / 3
			if avg < lo {
				lo = avg
			}
			if avg > hi {
				hi = avg
			}
		}
	}

	// ノイズゲート: レンジが狭すぎる場合は伸長しない
	if hi-lo < noiseGateRange {
		lo, hi = 0, 255
	}
	if hi == lo {
		hi = 255
	}

	// 2. 伸長と二値化
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			gray := 0.299*float64(row[i]) + 0.587*float64(row[i+1]) + 0.114*float64(row[i+2])
			gray = (gray - lo) / (hi - lo) * 255

			var v uint8 = 255
			if gray > binarizeThreshold {
				v = 0
			}
			row[i], row[i+1], row[i+2] = v, v, v
		}
	}
}
