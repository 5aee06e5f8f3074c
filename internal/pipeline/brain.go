package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"livehost-go/internal/audio"
	"livehost-go/internal/gemini"
	"livehost-go/internal/types"
)

var tracer = otel.Tracer("livehost-go/internal/pipeline")

// Answerer は映像とコメントから回答を生成する外部ケイパビリティです。
type Answerer interface {
	Answer(ctx context.Context, req gemini.AnswerRequest) (types.AIAnswer, error)
}

// Synthesizer は回答テキストを 16bit PCM に変換する外部ケイパビリティです。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, p types.HostProfile) ([]byte, error)
}

// Playback は Brain から見た再生スケジューラです。
type Playback interface {
	Pending() int
	Playing() bool
	Epoch() uint64
	Enqueue(epoch uint64, item audio.Item) bool
}

// SnapshotFunc は映像領域を切り出して JPEG にエンコードします。切り出せなければ ok=false です。
type SnapshotFunc func() (jpeg []byte, ok bool)

// BrainConfig は応答サイクルの閾値と周期です。
type BrainConfig struct {
	// 1サイクルで取り出すコメントの最大数
	MaxBatch int `koanf:"max_batch"`
	// 再生待ちがこれを超えるとサイクルを丸ごと見送る
	MaxPendingAudio int           `koanf:"max_pending_audio"`
	Interval        time.Duration `koanf:"interval"`
	// キューが残っている場合の次サイクルまでの待ち時間
	FollowUp time.Duration `koanf:"follow_up"`
	// 沈黙時に映像へコメントするか
	Proactive bool `koanf:"proactive"`
	// 最後の発話からこの時間が経つまで proactive サイクルを行わない
	ProactiveAfter time.Duration `koanf:"proactive_after"`
	// 検出した商品を「紹介中」として表示する時間
	ProductHold time.Duration `koanf:"product_hold"`
	SampleRate  int           `koanf:"sample_rate"`
}

// DefaultBrainConfig は既定の設定です。
func DefaultBrainConfig() BrainConfig {
	return BrainConfig{
		MaxBatch:        8,
		MaxPendingAudio: 2,
		Interval:        time.Second,
		FollowUp:        100 * time.Millisecond,
		Proactive:       true,
		ProactiveAfter:  20 * time.Second,
		ProductHold:     10 * time.Second,
		SampleRate:      types.DefaultSampleRate,
	}
}

// Outcome は1サイクルの結果です。
type Outcome int

const (
	OutcomeSkippedPaused Outcome = iota
	OutcomeSkippedBackpressure
	OutcomeSkippedBusy
	OutcomeSkippedIdle
	OutcomeSkippedProactive
	OutcomeIgnored
	OutcomeDuplicate
	OutcomeFailed
	OutcomeDiscarded
	OutcomeEnqueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkippedPaused:
		return "skipped_paused"
	case OutcomeSkippedBackpressure:
		return "skipped_backpressure"
	case OutcomeSkippedBusy:
		return "skipped_busy"
	case OutcomeSkippedIdle:
		return "skipped_idle"
	case OutcomeSkippedProactive:
		return "skipped_proactive"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailed:
		return "failed"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeEnqueued:
		return "enqueued"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Brain は応答サイクルを回すスケジューラです。
// 推論の同時実行は busy フラグ1つで防ぎます。フラグは最初のブロッキング呼び出しより前に立てます。
type Brain struct {
	cfg      BrainConfig
	intake   *Intake
	journal  *Journal
	persona  *Persona
	playback Playback
	answerer Answerer
	synth    Synthesizer
	snapshot SnapshotFunc
	now      func() time.Time

	busy atomic.Bool
	// 一時停止中はキャプチャを続けたままサイクルを行わない
	paused atomic.Bool

	mu            sync.Mutex
	lastSpoke     time.Time
	latency       time.Duration
	activeProduct string
	productUntil  time.Time
}

// BrainOption は Brain の設定を変更します。
type BrainOption func(*Brain)

// WithSnapshot は映像スナップショットの取得関数を設定します。
func WithSnapshot(fn SnapshotFunc) BrainOption {
	return func(b *Brain) { b.snapshot = fn }
}

// WithBrainClock は時計を差し替えます (テスト用)。
func WithBrainClock(now func() time.Time) BrainOption {
	return func(b *Brain) { b.now = now }
}

// NewBrain は新しい Brain を作成します。
func NewBrain(cfg BrainConfig, intake *Intake, journal *Journal, persona *Persona, playback Playback, answerer Answerer, synth Synthesizer, opts ...BrainOption) *Brain {
	b := &Brain{
		cfg:      cfg,
		intake:   intake,
		journal:  journal,
		persona:  persona,
		playback: playback,
		answerer: answerer,
		synth:    synth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastSpoke = b.now()
	return b
}

// Thinking は推論または音声合成の実行中かを返します。
func (b *Brain) Thinking() bool {
	return b.busy.Load()
}

// Latency は直近の推論にかかった時間です。
func (b *Brain) Latency() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latency
}

// ActiveProduct は直近に検出された商品IDを返します。保持時間を過ぎると空です。
func (b *Brain) ActiveProduct() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.activeProduct == "" || b.now().After(b.productUntil) {
		return ""
	}
	return b.activeProduct
}

// Pause は応答サイクルを一時停止します。実行中のサイクルは最後まで進みます。
func (b *Brain) Pause() {
	b.paused.Store(true)
}

// Resume は一時停止を解除します。再開直後に proactive サイクルが走らないよう発話時刻をリセットします。
func (b *Brain) Resume() {
	b.Reset()
	b.paused.Store(false)
}

// Paused は一時停止中かを返します。
func (b *Brain) Paused() bool {
	return b.paused.Load()
}

// Run は ctx がキャンセルされるまで周期的にサイクルを実行します。
// キューにコメントが残っている間は FollowUp 間隔で続けて実行します。
func (b *Brain) Run(ctx context.Context) {
	slog.Info("応答ループを開始します。", "interval", b.cfg.Interval, "max_batch", b.cfg.MaxBatch)
	timer := time.NewTimer(b.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("応答ループを停止しました。")
			return
		case <-timer.C:
		}

		outcome := b.Cycle(ctx)
		slog.Debug("応答サイクル完了", "outcome", outcome, "pending", b.intake.Len())

		next := b.cfg.Interval
		if b.intake.Len() > 0 && outcome != OutcomeSkippedBackpressure && outcome != OutcomeSkippedPaused {
			next = b.cfg.FollowUp
		}
		timer.Reset(next)
	}
}

// Cycle は応答サイクルを1回実行します。
// 推論・合成の失敗はすべて Outcome に変換され、呼び出し側には伝播しません。
func (b *Brain) Cycle(ctx context.Context) Outcome {
	if b.paused.Load() {
		return OutcomeSkippedPaused
	}

	// 1. 流量制御: 話しすぎている間は新しい回答を作らない
	if b.playback.Pending() > b.cfg.MaxPendingAudio {
		return OutcomeSkippedBackpressure
	}

	// 2. 再入防止
	if !b.busy.CompareAndSwap(false, true) {
		return OutcomeSkippedBusy
	}
	defer b.busy.Store(false)

	// 声の切り替えで破棄されたかを判定するため、生成前のエポックを控える
	epoch := b.playback.Epoch()

	// 3. バッチの取り出し
	batch := b.intake.Take(b.cfg.MaxBatch)

	// 4. モードの選択
	mode := types.ModeReactive
	if len(batch) == 0 {
		mode = types.ModeProactive
		if !b.cfg.Proactive {
			return OutcomeSkippedIdle
		}
		if b.playback.Pending() > 0 || b.playback.Playing() || b.now().Sub(b.lastSpokeAt()) < b.cfg.ProactiveAfter {
			return OutcomeSkippedProactive
		}
	}

	ctx, span := tracer.Start(ctx, "pipeline.Cycle")
	defer span.End()
	span.SetAttributes(attribute.String("mode", string(mode)), attribute.Int("batch", len(batch)))

	profile, products := b.persona.Get()

	// 5. 映像スナップショット (失敗しても画像なしで続行)
	var snapshot []byte
	if profile.NeedsVision() && b.snapshot != nil {
		if data, ok := b.snapshot(); ok {
			snapshot = data
		}
	}

	// 6. 推論
	lastAnswer := b.journal.LastAnswer()
	start := b.now()
	answer, err := b.answerer.Answer(ctx, gemini.AnswerRequest{
		Snapshot:   snapshot,
		Batch:      batch,
		Products:   products,
		Profile:    profile,
		Mode:       mode,
		LastAnswer: lastAnswer,
	})
	b.setLatency(b.now().Sub(start))
	if err != nil {
		slog.Warn("回答の生成に失敗しました。", "mode", mode, "batch", len(batch), "error", err)
		return OutcomeFailed
	}
	span.SetAttributes(attribute.String("intent", string(answer.Intent)))

	if !answer.Speakable() {
		return OutcomeIgnored
	}

	// 7. 同じ回答の繰り返しは合成しない
	if answer.TextAnswer == lastAnswer {
		slog.Debug("前回と同じ回答のため破棄しました。")
		return OutcomeDuplicate
	}
	if answer.DetectedProductID != "" {
		b.setActiveProduct(answer.DetectedProductID)
	}

	// 8. 音声合成
	pcm, err := b.synth.Synthesize(ctx, answer.TextAnswer, profile)
	if err != nil {
		slog.Warn("音声合成に失敗しました。", "intent", answer.Intent, "error", err)
		return OutcomeFailed
	}
	clip := audio.DecodePCM16(pcm, b.cfg.SampleRate)

	// 9. 再生キューへ追加 (アイドルなら再生が始まる)
	entry := types.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: b.now(),
		User:      summarizeUsers(batch),
		Question:  summarizeQuestion(batch),
		Answer:    answer.TextAnswer,
		Intent:    answer.Intent,
	}
	if !b.playback.Enqueue(epoch, audio.Item{Clip: clip, Entry: entry}) {
		slog.Info("声の切り替えまたは停止により回答を破棄しました。", "intent", answer.Intent)
		return OutcomeDiscarded
	}

	b.mu.Lock()
	b.lastSpoke = b.now()
	b.mu.Unlock()

	slog.Info("回答を再生キューに追加しました。",
		"mode", mode,
		"intent", answer.Intent,
		"user", entry.User,
		"duration", clip.Duration().Round(time.Millisecond),
	)
	return OutcomeEnqueued
}

// Reset は発話時刻と紹介中の商品をリセットします。
func (b *Brain) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSpoke = b.now()
	b.activeProduct = ""
}

func (b *Brain) lastSpokeAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSpoke
}

func (b *Brain) setLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

func (b *Brain) setActiveProduct(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeProduct = id
	b.productUntil = b.now().Add(b.cfg.ProductHold)
}

const maxQuestionLen = 100

func summarizeUsers(batch []types.ChatMessage) string {
	switch len(batch) {
	case 0:
		return "System"
	case 1:
		return batch[0].Author
	}
	return fmt.Sprintf("%d Users", len(batch))
}

func summarizeQuestion(batch []types.ChatMessage) string {
	if len(batch) == 0 {
		return "Visual/Gift"
	}
	bodies := make([]string, len(batch))
	for i, m := range batch {
		bodies[i] = m.Body
	}
	q := strings.Join(bodies, " | ")
	if utf8.RuneCountInString(q) > maxQuestionLen {
		q = string([]rune(q)[:maxQuestionLen]) + "..."
	}
	return q
}
