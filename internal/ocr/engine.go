package ocr

import (
	"context"
	"image"
)

// Line は OCR エンジンが認識した1行分のテキストです。
type Line struct {
	Text string
	// ネイティブ画像座標でのバウンディングボックス
	Box image.Rectangle
	// 信頼度 (0-100)
	Confidence float64
}

// Engine はラスター画像からテキスト行を認識する OCR 機能です。
// 初期化 (ウォームアップ) はコンストラクタで一度だけ行い、終了時に Close します。
type Engine interface {
	Recognize(ctx context.Context, img image.Image) ([]Line, error)
	Close() error
}
