package pipeline

import (
	"sync"

	"livehost-go/internal/types"
)

// Intake は応答待ちのコメントのキューです。到着順を保ちます。
// 書き込みは OCR ループと YouTube ブリッジ、読み出しは Brain から行われます。
type Intake struct {
	mu      sync.Mutex
	pending []types.ChatMessage
	total   int
}

// NewIntake は空のキューを作成します。
func NewIntake() *Intake {
	return &Intake{}
}

// Push はコメントを末尾に追加します。
func (q *Intake) Push(msgs ...types.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, msgs...)
	q.total += len(msgs)
}

// Take は古い順に最大 n 件を取り出します。残りはキューに留まります。
func (q *Intake) Take(n int) []types.ChatMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.pending) == 0 {
		return nil
	}
	if n > len(q.pending) {
		n = len(q.pending)
	}
	batch := make([]types.ChatMessage, n)
	copy(batch, q.pending[:n])
	q.pending = append(q.pending[:0:0], q.pending[n:]...)
	return batch
}

// Len は待ち件数を返します。
func (q *Intake) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Total はこれまでに受け付けたコメントの総数です。
func (q *Intake) Total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}

// Snapshot は待ちコメントのコピーを返します。
func (q *Intake) Snapshot() []types.ChatMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.ChatMessage(nil), q.pending...)
}

// Reset は待ちコメントを破棄します。
func (q *Intake) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}
