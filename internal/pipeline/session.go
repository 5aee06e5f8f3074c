package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"livehost-go/internal/audio"
	"livehost-go/internal/capture"
	"livehost-go/internal/gemini"
	"livehost-go/internal/ocr"
	"livehost-go/internal/types"
)

// RegionKind は2つのキャプチャ領域のどちらかを表します。
type RegionKind string

const (
	RegionChat   RegionKind = "chat"
	RegionVision RegionKind = "vision"
)

// Config はセッション全体の設定です。
type Config struct {
	// フレーム取得と OCR の周期
	CaptureInterval time.Duration `koanf:"capture_interval"`
	// 領域の座標系となるコンテナのサイズ。0 ならフレームの解像度をそのまま使う
	Surface      capture.Surface         `koanf:"surface"`
	Snapshot     capture.SnapshotOptions `koanf:"snapshot"`
	ChatRegion   types.Region            `koanf:"chat_region"`
	VisionRegion types.Region            `koanf:"vision_region"`
	Brain        BrainConfig             `koanf:"brain"`
}

// DefaultConfig は既定のセッション設定です。
func DefaultConfig() Config {
	return Config{
		CaptureInterval: 1200 * time.Millisecond,
		Snapshot:        capture.SnapshotOptions{Quality: 60, MaxWidth: 1024},
		Brain:           DefaultBrainConfig(),
	}
}

// Components はセッションが使う外部ケイパビリティです。
// Source と OCR が nil の場合、コメントは Ingest からのみ受け付けます。
type Components struct {
	Source   capture.Source
	OCR      *ocr.Reconstructor
	Answerer Answerer
	Synth    Synthesizer
	// nil の場合は音声を再生しない
	Sink  audio.Sink
	Quota *gemini.QuotaTracker
}

// StatusSnapshot はダッシュボード向けの状態一覧です。
type StatusSnapshot struct {
	Status        types.SystemStatus `json:"status"`
	Waitlist      int                `json:"waitlist"`
	TotalChats    int                `json:"total_chats"`
	Answered      int                `json:"answered"`
	AudioQueue    int                `json:"audio_queue"`
	LatencyMs     int64              `json:"latency_ms"`
	Quota         gemini.QuotaLevel  `json:"quota"`
	QuotaError    string             `json:"quota_error,omitempty"`
	ActiveProduct string             `json:"active_product,omitempty"`
	Profile       types.HostProfile  `json:"profile"`
	ChatRegion    types.Region       `json:"chat_region"`
	VisionRegion  types.Region       `json:"vision_region"`
}

// Session はキャプチャ・OCR・応答ループ・再生を1つのライブセッションとして束ねます。
type Session struct {
	cfg    Config
	source capture.Source
	recon  *ocr.Reconstructor
	quota  *gemini.QuotaTracker

	intake   *Intake
	history  *History
	journal  *Journal
	persona  *Persona
	playback *audio.Scheduler
	brain    *Brain

	mu            sync.Mutex
	chatRegion    types.Region
	visionRegion  types.Region
	frame         image.Image
	visionCropper *capture.Cropper
	capturing     bool
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewSession は新しい Session を作成します。
func NewSession(cfg Config, c Components, profile types.HostProfile, products []types.Product) *Session {
	s := &Session{
		cfg:           cfg,
		source:        c.Source,
		recon:         c.OCR,
		quota:         c.Quota,
		intake:        NewIntake(),
		history:       NewHistory(HistorySize),
		journal:       NewJournal(),
		persona:       NewPersona(profile, products),
		playback:      audio.NewScheduler(c.Sink),
		chatRegion:    cfg.ChatRegion,
		visionRegion:  cfg.VisionRegion,
		visionCropper: capture.NewCropper(),
	}
	// 表示ログへの追加は再生開始時に行う
	s.playback.OnStart(s.journal.Append)
	s.brain = NewBrain(cfg.Brain, s.intake, s.journal, s.persona, s.playback, c.Answerer, c.Synth, WithSnapshot(s.visionSnapshot))
	return s
}

// Journal は表示ログを返します。
func (s *Session) Journal() *Journal { return s.journal }

// History は直近のコメントを返します (新しい順)。
func (s *Session) History() []types.ChatMessage { return s.history.Recent() }

// Pending はまだ回答されていない待ちコメントを受付順に返します。
func (s *Session) Pending() []types.ChatMessage { return s.intake.Snapshot() }

// Start はキャプチャループ、応答ループ、ストリーム終了の監視を開始します。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturing {
		return errors.New("session is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.capturing = true
	s.running = true
	s.brain.Resume()
	s.history.Reset()

	if s.source != nil {
		s.wg.Add(2)
		go s.captureLoop(ctx)
		go s.watchSource(ctx)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.brain.Run(ctx)
	}()

	slog.Info("ライブセッションを開始しました。", "capture", s.source != nil, "ocr", s.recon != nil)
	return nil
}

// Stop は全てのループを停止し、再生キューと待ちコメントを破棄して idle に戻します。
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.capturing {
		s.mu.Unlock()
		return
	}
	s.capturing = false
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.playback.Stop()
	// 実行中の OCR が結果を積み終えてから破棄する
	s.wg.Wait()
	s.intake.Reset()
	s.playback.Wait()

	slog.Info("ライブセッションを停止しました。")
}

// Pause はキャプチャと OCR を続けたまま応答ループだけを止めます。
// 待ちコメントは保持され、再生中の音声はそのまま流れます。
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.capturing {
		return errors.New("session is not running")
	}
	if !s.running {
		return nil
	}
	s.running = false
	s.brain.Pause()
	slog.Info("応答ループを一時停止しました。", "pending", s.intake.Len())
	return nil
}

// Resume は一時停止した応答ループを再開します。
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.capturing {
		return errors.New("session is not running")
	}
	if s.running {
		return nil
	}
	s.running = true
	s.brain.Resume()
	slog.Info("応答ループを再開しました。", "pending", s.intake.Len())
	return nil
}

// Ingest は OCR 以外 (チャットAPIなど) から得たコメントを受け付けます。
func (s *Session) Ingest(msgs ...types.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	s.intake.Push(msgs...)
	s.history.Add(msgs...)
}

// SetRegion はチャット領域または映像領域を更新します。
func (s *Session) SetRegion(kind RegionKind, r types.Region) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case RegionChat:
		s.chatRegion = r
	case RegionVision:
		s.visionRegion = r
	default:
		return fmt.Errorf("unknown region %q", kind)
	}
	slog.Debug("キャプチャ領域を更新しました。", "kind", kind, "region", r)
	return nil
}

// SetProfile はホストプロファイルを差し替えます。
// 声 (性別・人格) が変わった場合、再生待ちの音声は生成中のものも含めて破棄されます。
func (s *Session) SetProfile(p types.HostProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if s.persona.SetProfile(p) {
		s.playback.Clear()
		slog.Info("声が切り替わったため再生待ちの音声を破棄しました。", "voice", p.VoiceKey())
	}
	return nil
}

// SetProducts は商品カタログを差し替えます。
func (s *Session) SetProducts(products []types.Product) {
	s.persona.SetProducts(products)
}

// Status は各ステージの状態から導出したシステム状態を返します。
func (s *Session) Status() types.SystemStatus {
	s.mu.Lock()
	capturing, running := s.capturing, s.running
	s.mu.Unlock()
	return types.DeriveStatus(capturing, running, s.brain.Thinking(), s.playback.Playing())
}

// Snapshot はダッシュボード向けの状態をまとめて返します。
func (s *Session) Snapshot() StatusSnapshot {
	s.mu.Lock()
	chat, vision := s.chatRegion, s.visionRegion
	s.mu.Unlock()

	quota, quotaErr := gemini.QuotaNormal, ""
	if s.quota != nil {
		quota = s.quota.Level()
		if quota != gemini.QuotaNormal {
			quotaErr = s.quota.LastError()
		}
	}
	return StatusSnapshot{
		Status:        s.Status(),
		Waitlist:      s.intake.Len(),
		TotalChats:    s.intake.Total(),
		Answered:      s.journal.Answered(),
		AudioQueue:    s.playback.Pending(),
		LatencyMs:     s.brain.Latency().Milliseconds(),
		Quota:         quota,
		QuotaError:    quotaErr,
		ActiveProduct: s.brain.ActiveProduct(),
		Profile:       s.persona.Profile(),
		ChatRegion:    chat,
		VisionRegion:  vision,
	}
}

func (s *Session) captureLoop(ctx context.Context) {
	defer s.wg.Done()

	// チャット領域用のサーフェスはこのゴルーチンだけが使う
	cropper := capture.NewCropper()
	ticker := time.NewTicker(s.cfg.CaptureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := s.source.Frame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrNoFrame), errors.Is(err, context.Canceled):
			continue
		case errors.Is(err, capture.ErrEndOfStream):
			return
		default:
			slog.Warn("フレームの取得に失敗しました。", "error", err)
			continue
		}

		s.mu.Lock()
		s.frame = frame
		region := s.chatRegion
		s.mu.Unlock()

		if s.recon == nil {
			continue
		}
		img, ok := cropper.Crop(frame, s.surfaceFor(frame), region)
		if !ok {
			continue
		}
		msgs, err := s.recon.Process(ctx, img)
		if err != nil {
			slog.Warn("OCR に失敗しました。", "error", err)
			continue
		}
		// Stop 後に戻ってきた認識結果は捨てる
		if ctx.Err() != nil {
			return
		}
		if len(msgs) > 0 {
			slog.Debug("新しいコメントを検出しました。", "count", len(msgs))
			s.Ingest(msgs...)
		}
	}
}

// watchSource はストリームが終了したらセッションを停止します。
func (s *Session) watchSource(ctx context.Context) {
	defer s.wg.Done()
	select {
	case <-ctx.Done():
	case <-s.source.Done():
		slog.Info("キャプチャが終了したためセッションを停止します。")
		// Stop は wg を待つため別ゴルーチンで呼ぶ
		go s.Stop()
	}
}

// visionSnapshot は最新フレームから映像領域を切り出して JPEG にします。
func (s *Session) visionSnapshot() ([]byte, bool) {
	s.mu.Lock()
	frame, region := s.frame, s.visionRegion
	s.mu.Unlock()
	if frame == nil {
		return nil, false
	}
	// visionCropper は応答サイクルからのみ使われ、サイクルは直列に実行される
	img, ok := s.visionCropper.Crop(frame, s.surfaceFor(frame), region)
	if !ok {
		return nil, false
	}
	data, err := capture.EncodeSnapshot(img, s.cfg.Snapshot)
	if err != nil {
		slog.Warn("スナップショットのエンコードに失敗しました。", "error", err)
		return nil, false
	}
	return data, true
}

func (s *Session) surfaceFor(frame image.Image) capture.Surface {
	if s.cfg.Surface.Width > 0 && s.cfg.Surface.Height > 0 {
		return s.cfg.Surface
	}
	b := frame.Bounds()
	return capture.Surface{Width: float64(b.Dx()), Height: float64(b.Dy())}
}
