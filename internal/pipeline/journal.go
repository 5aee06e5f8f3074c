package pipeline

import (
	"sync"

	"livehost-go/internal/types"
)

// JournalSize は表示ログに保持するエントリ数です。
const JournalSize = 100

// Journal は再生が始まった回答の表示ログです (新しい順)。
// 購読者には追加のたびにエントリが通知されます。
type Journal struct {
	mu       sync.Mutex
	entries  []types.LogEntry
	answered int
	subs     map[int]chan types.LogEntry
	nextSub  int
}

// NewJournal は空のログを作成します。
func NewJournal() *Journal {
	return &Journal{subs: make(map[int]chan types.LogEntry)}
}

// Append はエントリを先頭に追加し、購読者に通知します。
// 受信が追いつかない購読者への通知は捨てます。
func (j *Journal) Append(e types.LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append([]types.LogEntry{e}, j.entries...)
	if len(j.entries) > JournalSize {
		j.entries = j.entries[:JournalSize]
	}
	j.answered++

	for _, ch := range j.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Entries は新しい順のコピーを返します。
func (j *Journal) Entries() []types.LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]types.LogEntry(nil), j.entries...)
}

// LastAnswer は最後に表示された回答のテキストです。
func (j *Journal) LastAnswer() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) == 0 {
		return ""
	}
	return j.entries[0].Answer
}

// Answered は再生を開始した回答の総数です。
func (j *Journal) Answered() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.answered
}

// Subscribe は追加されたエントリを受け取るチャネルと、購読を解除する関数を返します。
func (j *Journal) Subscribe(buffer int) (<-chan types.LogEntry, func()) {
	ch := make(chan types.LogEntry, buffer)

	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	j.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subs, id)
			j.mu.Unlock()
			close(ch)
		})
	}
}
