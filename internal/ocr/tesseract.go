package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// DefaultWhitelist はチャットに現れる文字の許可リストです。
const DefaultWhitelist = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ:? .!,@#()_-"

// TesseractConfig は Tesseract エンジンの設定です。
type TesseractConfig struct {
	Languages []string `koanf:"languages"`
	Whitelist string   `koanf:"whitelist"`
}

// Tesseract は gosseract による Engine の実装です。
// gosseract のクライアントはスレッドセーフではないため、認識は直列化します。
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract はエンジンを初期化 (ウォームアップ) します。
func NewTesseract(cfg TesseractConfig) (*Tesseract, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"ind", "eng"}
	}
	whitelist := cfg.Whitelist
	if whitelist == "" {
		whitelist = DefaultWhitelist
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("Tesseract の言語設定に失敗: %w", err)
	}
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("Tesseract の文字リスト設定に失敗: %w", err)
	}

	slog.Info("OCR エンジンを初期化しました。", "version", client.Version(), "languages", langs)
	return &Tesseract{client: client}, nil
}

// Recognize は画像をテキスト行単位で認識します。
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("OCR 入力画像のエンコードに失敗: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("OCR 入力画像の設定に失敗: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("OCR 行の取得に失敗: %w", err)
	}

	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, Line{
			Text:       b.Word,
			Box:        b.Box,
			Confidence: b.Confidence,
		})
	}
	return lines, nil
}

// Close はエンジンを解放します。
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
