package audio

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNoOutput は音声出力デバイスが利用できないことを示します。
var ErrNoOutput = errors.New("audio: no output device available")

// Sink はクリップを1つずつ再生する出力先です。
// Play は再生完了か ctx のキャンセルまでブロックします。
type Sink interface {
	Play(ctx context.Context, clip *Clip) error
}

// TimingSink は音を出さず、クリップの長さだけ待つ出力先です (ドライラン用)。
type TimingSink struct {
	// 1 より大きいと待ち時間が短くなる
	Speed float64
}

// Play はクリップの再生時間だけ待機します。
func (s TimingSink) Play(ctx context.Context, clip *Clip) error {
	d := clip.Duration()
	if s.Speed > 0 {
		d = time.Duration(float64(d) / s.Speed)
	}
	slog.Info("(dry-run) 音声を再生します。", "duration", clip.Duration().Round(time.Millisecond))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
