package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"livehost-go/internal/audio"
	"livehost-go/internal/gemini"
	"livehost-go/internal/types"
)

type fakeAnswerer struct {
	mu     sync.Mutex
	answer types.AIAnswer
	err    error
	reqs   []gemini.AnswerRequest
}

func (f *fakeAnswerer) Answer(_ context.Context, req gemini.AnswerRequest) (types.AIAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.answer, f.err
}

func (f *fakeAnswerer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeSynth struct {
	mu    sync.Mutex
	pcm   []byte
	err   error
	texts []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, _ types.HostProfile) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.pcm, f.err
}

func (f *fakeSynth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakePlayback struct {
	pending  int
	playing  bool
	epoch    uint64
	reject   bool
	enqueued []audio.Item
}

func (f *fakePlayback) Pending() int  { return f.pending }
func (f *fakePlayback) Playing() bool { return f.playing }
func (f *fakePlayback) Epoch() uint64 { return f.epoch }

func (f *fakePlayback) Enqueue(epoch uint64, item audio.Item) bool {
	if f.reject || epoch != f.epoch {
		return false
	}
	f.enqueued = append(f.enqueued, item)
	return true
}

type brainFixture struct {
	brain    *Brain
	intake   *Intake
	journal  *Journal
	persona  *Persona
	playback *fakePlayback
	answerer *fakeAnswerer
	synth    *fakeSynth
	clock    time.Time
	snapped  int
}

func newBrainFixture(t *testing.T, mutate func(*BrainConfig)) *brainFixture {
	t.Helper()
	cfg := DefaultBrainConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f := &brainFixture{
		intake:   NewIntake(),
		journal:  NewJournal(),
		persona:  NewPersona(types.DefaultHostProfile(), nil),
		playback: &fakePlayback{},
		answerer: &fakeAnswerer{answer: types.AIAnswer{Intent: types.IntentChatResponse, TextAnswer: "Budi! 89 ribu aja.", Confidence: types.ConfidenceHigh}},
		synth:    &fakeSynth{pcm: make([]byte, 4800)},
		clock:    time.Unix(1700000000, 0),
	}
	f.brain = NewBrain(cfg, f.intake, f.journal, f.persona, f.playback, f.answerer, f.synth,
		WithBrainClock(func() time.Time { return f.clock }),
		WithSnapshot(func() ([]byte, bool) {
			f.snapped++
			return []byte("jpeg"), true
		}),
	)
	return f
}

func chat(author, body string) types.ChatMessage {
	return types.ChatMessage{ID: author + body, Author: author, Body: body}
}

func TestCycleSkipsWhenTalkingTooMuch(t *testing.T) {
	f := newBrainFixture(t, nil)
	f.intake.Push(chat("Budi", "Harga berapa kak?"))
	f.playback.pending = 3

	if got := f.brain.Cycle(context.Background()); got != OutcomeSkippedBackpressure {
		t.Fatalf("Cycle() = %v, want skipped_backpressure", got)
	}
	if f.answerer.calls() != 0 {
		t.Error("answer capability was called under backpressure")
	}
	if f.intake.Len() != 1 {
		t.Errorf("intake drained under backpressure: Len() = %d", f.intake.Len())
	}

	f.playback.pending = 2
	if got := f.brain.Cycle(context.Background()); got != OutcomeEnqueued {
		t.Errorf("Cycle() at threshold = %v, want enqueued", got)
	}
}

func TestCycleSkipsWhilePaused(t *testing.T) {
	f := newBrainFixture(t, nil)
	f.intake.Push(chat("Budi", "Harga berapa kak?"))

	f.brain.Pause()
	if !f.brain.Paused() {
		t.Fatal("Paused() = false after Pause")
	}
	if got := f.brain.Cycle(context.Background()); got != OutcomeSkippedPaused {
		t.Fatalf("Cycle() = %v, want skipped_paused", got)
	}
	if f.answerer.calls() != 0 || f.intake.Len() != 1 {
		t.Errorf("paused cycle touched the batch: calls = %d, Len() = %d", f.answerer.calls(), f.intake.Len())
	}

	f.brain.Resume()
	if got := f.brain.Cycle(context.Background()); got != OutcomeEnqueued {
		t.Errorf("Cycle() after Resume = %v, want enqueued", got)
	}
}

func TestCycleSkipsWhileBusy(t *testing.T) {
	f := newBrainFixture(t, nil)
	f.intake.Push(chat("Budi", "Harga berapa kak?"))
	f.brain.busy.Store(true)

	if got := f.brain.Cycle(context.Background()); got != OutcomeSkippedBusy {
		t.Fatalf("Cycle() = %v, want skipped_busy", got)
	}
	if f.intake.Len() != 1 {
		t.Error("batch was taken while busy")
	}
}

func TestCycleReactiveEnqueues(t *testing.T) {
	f := newBrainFixture(t, nil)
	f.intake.Push(chat("Budi", "Harga berapa kak?"))

	if got := f.brain.Cycle(context.Background()); got != OutcomeEnqueued {
		t.Fatalf("Cycle() = %v, want enqueued", got)
	}
	if f.brain.Thinking() {
		t.Error("busy flag not released")
	}

	req := f.answerer.reqs[0]
	if req.Mode != types.ModeReactive || len(req.Batch) != 1 || string(req.Snapshot) != "jpeg" {
		t.Errorf("request = %+v", req)
	}
	if len(f.playback.enqueued) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(f.playback.enqueued))
	}
	item := f.playback.enqueued[0]
	if item.Entry.User != "Budi" || item.Entry.Question != "Harga berapa kak?" || item.Entry.Answer != "Budi! 89 ribu aja." {
		t.Errorf("entry = %+v", item.Entry)
	}
	if item.Clip.SampleRate != types.DefaultSampleRate || len(item.Clip.Samples) != 2400 {
		t.Errorf("clip = %d samples @ %d Hz", len(item.Clip.Samples), item.Clip.SampleRate)
	}
	// 表示ログへの追加は再生開始時なので、ここではまだ空
	if f.journal.Answered() != 0 {
		t.Error("journal appended at enqueue time")
	}
}

func TestCycleTakesBoundedBatch(t *testing.T) {
	f := newBrainFixture(t, nil)
	for i := 0; i < 10; i++ {
		f.intake.Push(chat(fmt.Sprintf("user%d", i), "halo kak"))
	}

	f.brain.Cycle(context.Background())

	req := f.answerer.reqs[0]
	if len(req.Batch) != 8 || req.Batch[0].Author != "user0" || req.Batch[7].Author != "user7" {
		t.Errorf("batch = %+v", req.Batch)
	}
	if f.intake.Len() != 2 {
		t.Errorf("remaining = %d, want 2", f.intake.Len())
	}
	if got := f.playback.enqueued[0].Entry.User; got != "8 Users" {
		t.Errorf("entry user = %q", got)
	}
}

func TestCycleSuppressesDuplicateAnswer(t *testing.T) {
	f := newBrainFixture(t, nil)
	f.journal.Append(types.LogEntry{ID: "1", Answer: "Budi! 89 ribu aja."})
	f.intake.Push(chat("Budi", "Harga berapa kak?"))

	if got := f.brain.Cycle(context.Background()); got != OutcomeDuplicate {
		t.Fatalf("Cycle() = %v, want duplicate", got)
	}
	if f.synth.calls() != 0 {
		t.Error("synthesis called for a duplicate answer")
	}
	if f.answerer.reqs[0].LastAnswer != "Budi! 89 ribu aja." {
		t.Errorf("LastAnswer = %q", f.answerer.reqs[0].LastAnswer)
	}
}

func TestCycleIgnoredAnswer(t *testing.T) {
	f := newBrainFixture(t, nil)
	f.answerer.answer = types.IgnoreAnswer()
	f.intake.Push(chat("Budi", "wkwk"))

	if got := f.brain.Cycle(context.Background()); got != OutcomeIgnored {
		t.Fatalf("Cycle() = %v, want ignored", got)
	}
	if f.synth.calls() != 0 {
		t.Error("synthesis called for ignore")
	}
}

func TestCycleFailuresReleaseBusy(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*brainFixture)
		synths int
	}{
		{"answer error", func(f *brainFixture) { f.answerer.err = errors.New("network down") }, 0},
		{"quota error", func(f *brainFixture) { f.answerer.err = gemini.ErrQuota }, 0},
		{"synthesis error", func(f *brainFixture) { f.synth.err = gemini.ErrNoAudio }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBrainFixture(t, nil)
			tt.setup(f)
			f.intake.Push(chat("Budi", "Harga berapa kak?"))

			if got := f.brain.Cycle(context.Background()); got != OutcomeFailed {
				t.Fatalf("Cycle() = %v, want failed", got)
			}
			if f.brain.Thinking() {
				t.Error("busy flag not released")
			}
			if f.synth.calls() != tt.synths || len(f.playback.enqueued) != 0 {
				t.Errorf("synth calls = %d, enqueued = %d", f.synth.calls(), len(f.playback.enqueued))
			}
		})
	}
}

func TestCycleDiscardsAfterVoiceChange(t *testing.T) {
	f := newBrainFixture(t, nil)
	f.intake.Push(chat("Budi", "Harga berapa kak?"))
	f.playback.reject = true

	if got := f.brain.Cycle(context.Background()); got != OutcomeDiscarded {
		t.Fatalf("Cycle() = %v, want discarded", got)
	}
}

func TestCycleProactive(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newBrainFixture(t, func(c *BrainConfig) { c.Proactive = false })
		if got := f.brain.Cycle(context.Background()); got != OutcomeSkippedIdle {
			t.Errorf("Cycle() = %v, want skipped_idle", got)
		}
	})
	t.Run("suppressed while speaking", func(t *testing.T) {
		f := newBrainFixture(t, nil)
		f.clock = f.clock.Add(time.Minute)
		f.playback.playing = true
		if got := f.brain.Cycle(context.Background()); got != OutcomeSkippedProactive {
			t.Errorf("Cycle() = %v, want skipped_proactive", got)
		}
	})
	t.Run("suppressed with audio queued", func(t *testing.T) {
		f := newBrainFixture(t, nil)
		f.clock = f.clock.Add(time.Minute)
		f.playback.pending = 1
		if got := f.brain.Cycle(context.Background()); got != OutcomeSkippedProactive {
			t.Errorf("Cycle() = %v, want skipped_proactive", got)
		}
	})
	t.Run("waits for silence", func(t *testing.T) {
		f := newBrainFixture(t, nil)
		f.clock = f.clock.Add(10 * time.Second)
		if got := f.brain.Cycle(context.Background()); got != OutcomeSkippedProactive {
			t.Errorf("Cycle() = %v, want skipped_proactive", got)
		}
		f.clock = f.clock.Add(10 * time.Second)
		if got := f.brain.Cycle(context.Background()); got != OutcomeEnqueued {
			t.Fatalf("Cycle() = %v, want enqueued", got)
		}
		req := f.answerer.reqs[0]
		if req.Mode != types.ModeProactive || len(req.Batch) != 0 {
			t.Errorf("request = %+v", req)
		}
		if e := f.playback.enqueued[0].Entry; e.User != "System" || e.Question != "Visual/Gift" {
			t.Errorf("entry = %+v", e)
		}
	})
}

func TestCycleSnapshotOnlyWhenVisionNeeded(t *testing.T) {
	f := newBrainFixture(t, nil)
	p := types.DefaultHostProfile()
	p.SellerMode = false
	p.Vision = false
	f.persona.SetProfile(p)
	f.intake.Push(chat("Budi", "lagi apa kak?"))

	f.brain.Cycle(context.Background())

	if f.snapped != 0 || f.answerer.reqs[0].Snapshot != nil {
		t.Errorf("snapshot taken without vision: snapped=%d", f.snapped)
	}
}

func TestActiveProductHold(t *testing.T) {
	f := newBrainFixture(t, nil)
	f.answerer.answer.DetectedProductID = "p1"
	f.intake.Push(chat("Budi", "yang nomor 3 berapa?"))
	f.brain.Cycle(context.Background())

	if got := f.brain.ActiveProduct(); got != "p1" {
		t.Fatalf("ActiveProduct() = %q, want p1", got)
	}
	f.clock = f.clock.Add(11 * time.Second)
	if got := f.brain.ActiveProduct(); got != "" {
		t.Errorf("ActiveProduct() after hold = %q, want empty", got)
	}
}

func TestSummarizeQuestionTruncates(t *testing.T) {
	long := make([]types.ChatMessage, 0, 5)
	for i := 0; i < 5; i++ {
		long = append(long, chat("u", "pertanyaan yang cukup panjang sekali"))
	}
	got := summarizeQuestion(long)
	if want := 103; len([]rune(got)) != want {
		t.Errorf("len = %d, want %d (%q)", len([]rune(got)), want, got)
	}
}
