package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebitengine/oto/v3"
)

// 再生終了を確認する間隔
const pollInterval = 10 * time.Millisecond

// OtoSink はスピーカーへ出力する Sink です。
// oto の Context はプロセスに1つしか作れないため、OtoSink も1つだけ作成してください。
type OtoSink struct {
	ctx  *oto.Context
	rate int
}

// NewOtoSink はデバイスを初期化し、準備ができるまで待ちます。
func NewOtoSink(sampleRate int) (*OtoSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoOutput, err)
	}
	<-ready

	slog.Info("音声出力を初期化しました。", "sample_rate", sampleRate)
	return &OtoSink{ctx: ctx, rate: sampleRate}, nil
}

// Play はクリップを最後まで再生します。ctx がキャンセルされると再生を中断します。
func (s *OtoSink) Play(ctx context.Context, clip *Clip) error {
	if clip.SampleRate != s.rate {
		return fmt.Errorf("sample rate mismatch: clip %d Hz, device %d Hz", clip.SampleRate, s.rate)
	}

	player := s.ctx.NewPlayer(bytes.NewReader(clip.Float32LE()))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}
