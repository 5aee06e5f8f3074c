package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"livehost-go/internal/types"
)

// Config は OCR 後処理の設定です。
type Config struct {
	Cluster ClusterConfig `koanf:",squash"`
	Dedup   DedupConfig   `koanf:",squash"`
	// これ以下の信頼度の行は捨てる
	MinConfidence float64 `koanf:"min_confidence"`
}

// DefaultConfig は既定の後処理設定です。
func DefaultConfig() Config {
	return Config{
		Cluster:       DefaultClusterConfig(),
		Dedup:         DefaultDedupConfig(),
		MinConfidence: 50,
	}
}

// Reconstructor は OCR の認識結果をチャットメッセージに復元します。
type Reconstructor struct {
	engine Engine
	cfg    Config
	now    func() time.Time

	// 前のフレームの処理中は新しいフレームを捨てる
	busy atomic.Bool

	mu   sync.Mutex
	seen *Seen
}

// Option は Reconstructor の設定を変更します。
type Option func(*Reconstructor)

// WithClock は重複判定に使う時計を差し替えます (テスト用)。
func WithClock(now func() time.Time) Option {
	return func(r *Reconstructor) { r.now = now }
}

// NewReconstructor は新しい Reconstructor を作成します。
func NewReconstructor(engine Engine, cfg Config, opts ...Option) *Reconstructor {
	r := &Reconstructor{
		engine: engine,
		cfg:    cfg,
		now:    time.Now,
		seen:   NewSeen(cfg.Dedup),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process はチャット領域のキャプチャ画像から新しいメッセージを取り出します。
// 画像はその場で二値化されます。前の呼び出しがまだ処理中の場合は何もせず空を返します。
func (r *Reconstructor) Process(ctx context.Context, img *image.RGBA) ([]types.ChatMessage, error) {
	if img == nil {
		return nil, nil
	}
	if b := img.Bounds(); b.Dx() <= 10 || b.Dy() <= 10 {
		return nil, nil
	}
	if !r.busy.CompareAndSwap(false, true) {
		return nil, nil
	}
	defer r.busy.Store(false)

	// 1. 前処理 (コントラスト伸長と反転二値化)
	Binarize(img)

	// 2. 行の認識
	lines, err := r.engine.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("OCR 認識に失敗: %w", err)
	}

	return r.Reconstruct(lines), nil
}

// Reconstruct は認識済みの行からメッセージを復元します。
// 出力順はブロックの縦位置 (上から下) に従います。
func (r *Reconstructor) Reconstruct(lines []Line) []types.ChatMessage {
	// 2-3. 信頼度の低い行・短すぎる行を捨て、バッジを除去
	valid := make([]Line, 0, len(lines))
	for _, l := range lines {
		text := CleanText(l.Text)
		if l.Confidence <= r.cfg.MinConfidence || utf8.RuneCountInString(text) <= 1 {
			continue
		}
		l.Text = text
		valid = append(valid, l)
	}
	if len(valid) == 0 {
		return nil
	}

	// 4. 縦方向のクラスタリング
	clusters := Cluster(valid, r.cfg.Cluster)

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.ChatMessage
	for _, cluster := range clusters {
		// 5-6. 投稿者と本文への分割、投稿者名の整形
		author, body, ok := SplitCluster(cluster)
		if !ok {
			continue
		}

		// 7. システム通知を除外
		if IsSystemEvent(body) {
			slog.Debug("システム通知を除外しました。", "body", body)
			continue
		}

		// 8. 重複抑制
		if !r.seen.Admit(Fingerprint(author, body), now) {
			continue
		}

		out = append(out, types.ChatMessage{
			ID:         "ocr_" + uuid.NewString(),
			Author:     author,
			Body:       body,
			ObservedAt: now,
		})
	}
	return out
}
