package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/kbinani/screenshot"
)

// ScreenSource は指定ディスプレイ (またはその一部) を共有画面としてキャプチャします。
type ScreenSource struct {
	display int
	bounds  image.Rectangle

	done      chan struct{}
	closeOnce sync.Once
}

// NewScreenSource はディスプレイ番号を検証して ScreenSource を作成します。
func NewScreenSource(display int) (*ScreenSource, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("アクティブなディスプレイが見つかりません")
	}
	if display < 0 || display >= n {
		return nil, fmt.Errorf("ディスプレイ番号 %d は範囲外です (0..%d)", display, n-1)
	}

	bounds := screenshot.GetDisplayBounds(display)
	slog.Info("画面キャプチャを初期化しました。", "display", display, "resolution", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()))

	return &ScreenSource{
		display: display,
		bounds:  bounds,
		done:    make(chan struct{}),
	}, nil
}

// Frame は現在の画面を1枚キャプチャします。
func (s *ScreenSource) Frame(ctx context.Context) (image.Image, error) {
	select {
	case <-s.done:
		return nil, ErrEndOfStream
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		return nil, fmt.Errorf("画面キャプチャに失敗: %w", err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrNoFrame
	}
	return img, nil
}

// Done はキャプチャ終了時に閉じられるチャネルを返します。
func (s *ScreenSource) Done() <-chan struct{} {
	return s.done
}

// Close はキャプチャを終了します。複数回呼んでも安全です。
func (s *ScreenSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
