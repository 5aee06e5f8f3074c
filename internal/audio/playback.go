package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"livehost-go/internal/types"
)

// Item は再生待ちの音声と、再生開始時に表示ログへ追加するエントリの組です。
type Item struct {
	Clip  *Clip
	Entry types.LogEntry
}

// Scheduler は音声を1つずつ順番に再生する単一消費者の FIFO です。
// 同時に再生されるクリップは常に高々1つです。
//
// キューを破棄するたびにエポックが進みます。生成開始時のエポックを Enqueue に渡すことで、
// 生成中に声が切り替わった古い音声は再生されずに捨てられます。
type Scheduler struct {
	sink Sink

	mu      sync.Mutex
	queue   []Item
	playing bool
	epoch   uint64
	cancel  context.CancelFunc
	onStart func(types.LogEntry)

	wg sync.WaitGroup
}

// NewScheduler は新しい Scheduler を作成します。sink が nil の場合は何も再生しません。
func NewScheduler(sink Sink) *Scheduler {
	return &Scheduler{sink: sink}
}

// OnStart は各クリップの再生開始時に呼ばれる関数を設定します。
func (s *Scheduler) OnStart(fn func(types.LogEntry)) {
	s.mu.Lock()
	s.onStart = fn
	s.mu.Unlock()
}

// Epoch は現在のエポックを返します。
func (s *Scheduler) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Enqueue はエポックが現在と一致する場合のみアイテムを末尾に追加し、
// 再生が止まっていれば再生を開始します。
func (s *Scheduler) Enqueue(epoch uint64, item Item) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		slog.Debug("破棄済みのエポックの音声を捨てました。", "epoch", epoch)
		return false
	}
	s.queue = append(s.queue, item)
	s.mu.Unlock()

	// 空から非空になった場合も含め、アイドルなら再生を始める
	s.PlayNext()
	return true
}

// PlayNext は再生中でなくキューが空でなければ先頭を再生します。
// 条件を満たさない場合は何もしません (冪等)。
// 再生が終わると (失敗した場合も) 自動的に次のアイテムへ進みます。
func (s *Scheduler) PlayNext() {
	s.mu.Lock()
	if s.playing || len(s.queue) == 0 || s.sink == nil {
		s.mu.Unlock()
		return
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	s.playing = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	onStart := s.onStart
	s.wg.Add(1)
	s.mu.Unlock()

	// 表示ログは生成時ではなく再生開始時に追加する
	if onStart != nil {
		onStart(item.Entry)
	}

	go func() {
		defer s.wg.Done()
		err := s.sink.Play(ctx, item.Clip)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("音声の再生に失敗しました。次の音声に進みます。", "entry", item.Entry.ID, "error", err)
		}

		s.mu.Lock()
		s.playing = false
		s.cancel = nil
		s.mu.Unlock()

		s.PlayNext()
	}()
}

// Pending は再生待ちのクリップ数です。
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Playing は再生中かどうかを返します。
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Clear は再生待ちのキューを無条件に破棄し、エポックを進めます。
// 再生中のクリップはそのまま最後まで再生されます。
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.queue = nil
}

// Stop はキューを破棄し、再生中のクリップも中断します。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.epoch++
	s.queue = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// Wait は実行中の再生がすべて終わるまで待ちます。
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
