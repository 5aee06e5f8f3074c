package capture

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrNoFrame はまだデコード済みのフレームがないことを示します (一時的な状態)。
	ErrNoFrame = errors.New("capture: no frame decoded yet")

	// ErrEndOfStream はユーザー操作などでキャプチャが終了したことを示します。
	ErrEndOfStream = errors.New("capture: end of stream")
)

// Source は映像フレームの供給元です。
// Done はストリーム終了時に閉じられ、明示的な停止と同じように扱われます。
type Source interface {
	Frame(ctx context.Context) (image.Image, error)
	Done() <-chan struct{}
	Close() error
}
