package pipeline

import (
	"sync"

	"livehost-go/internal/types"
)

// HistorySize は表示用に保持する直近のコメント数です。
const HistorySize = 50

// History は直近のコメントを新しい順に保持する表示用のバッファです。
type History struct {
	mu   sync.Mutex
	msgs []types.ChatMessage
	size int
}

// NewHistory は最大 size 件のバッファを作成します。
func NewHistory(size int) *History {
	if size <= 0 {
		size = HistorySize
	}
	return &History{size: size}
}

// Add は新しいコメントを先頭に追加します。msgs は古い順で渡します。
func (h *History) Add(msgs ...types.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make([]types.ChatMessage, 0, min(len(msgs)+len(h.msgs), h.size))
	for i := len(msgs) - 1; i >= 0 && len(next) < h.size; i-- {
		next = append(next, msgs[i])
	}
	for _, m := range h.msgs {
		if len(next) >= h.size {
			break
		}
		next = append(next, m)
	}
	h.msgs = next
}

// Recent は新しい順のコピーを返します。
func (h *History) Recent() []types.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.ChatMessage(nil), h.msgs...)
}

// Reset はバッファを空にします。
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}
