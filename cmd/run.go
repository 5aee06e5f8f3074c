package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"livehost-go/internal/audio"
	"livehost-go/internal/capture"
	"livehost-go/internal/config"
	"livehost-go/internal/gemini"
	"livehost-go/internal/ocr"
	"livehost-go/internal/pipeline"
	"livehost-go/internal/server"
	"livehost-go/internal/services/live_processor"
	"livehost-go/internal/telemetry"
	"livehost-go/internal/types"
	"livehost-go/internal/util"
	"livehost-go/internal/youtube"
)

var errStreamEnded = errors.New("capture stream ended")

// runFlags は run コマンドのフラグを保持するための構造体です。
var runFlags struct {
	source      string
	path        string
	addr        string
	channelID   string
	postAnswers bool
	dryRun      bool
	trace       bool
	tokenPath   string
	oauthPort   int
}

// runCmd はライブセッションを開始するためのコマンドです。
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "画面キャプチャ、OCR、応答生成、音声再生のライブセッションを開始します。",
	Long: `設定したチャット領域を定期的に読み取り、新しいコメントに Gemini で回答を生成して読み上げます。
--addr を指定すると状態確認と領域・ペルソナ変更のための API を公開します。`,
	RunE: runRunE,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringVar(&runFlags.source, "source", "", "キャプチャ元 (screen, file, none)")
	f.StringVar(&runFlags.path, "file", "", "source=file の場合に読み込む画像またはディレクトリ")
	f.StringVar(&runFlags.addr, "addr", "", "状態APIの待ち受けアドレス (例: :8080)")
	f.StringVar(&runFlags.channelID, "youtube-channel-id", "", "コメントを取り込む YouTube チャンネルID")
	f.BoolVar(&runFlags.postAnswers, "post-answers", false, "再生した回答を YouTube ライブチャットにも投稿する")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "音声を出力せず、チャットにも投稿しない (テスト用)")
	f.BoolVar(&runFlags.trace, "trace", false, "トレースを標準エラーに出力する")
	f.StringVar(&runFlags.tokenPath, "token", util.TokenPath, "YouTube の OAuth トークンファイル")
	f.IntVar(&runFlags.oauthPort, "oauth-port", 8080, "OAuth2 認証フローで使用したポート")
}

// applyRunFlags はフラグで指定された項目を設定に反映します。
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Capture.Source = runFlags.source
	}
	if flags.Changed("file") {
		cfg.Capture.Path = runFlags.path
		if !flags.Changed("source") {
			cfg.Capture.Source = "file"
		}
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = runFlags.addr
	}
	if flags.Changed("youtube-channel-id") {
		cfg.YouTube.ChannelID = runFlags.channelID
	}
	if flags.Changed("post-answers") {
		cfg.YouTube.PostAnswers = runFlags.postAnswers
	}
	if flags.Changed("dry-run") {
		cfg.Audio.DryRun = runFlags.dryRun
	}
	if flags.Changed("trace") {
		cfg.Trace = runFlags.trace
	}
}

func runRunE(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("設定が不正です:\n%w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. トレース
	if cfg.Trace {
		shutdown, err := telemetry.InitTracer(telemetry.ServiceName, os.Stderr)
		if err != nil {
			return fmt.Errorf("トレースの初期化に失敗: %w", err)
		}
		defer shutdown(context.Background())
	}

	// 2. Gemini クライアント
	live := cfg.LiveAPIConfig()
	quota := gemini.NewQuotaTracker()
	answerer, err := gemini.NewAnswerClient(ctx, live, quota)
	if err != nil {
		return err
	}
	defer answerer.Close()
	synth, err := gemini.NewSpeechClient(ctx, live, quota)
	if err != nil {
		return err
	}

	// 3. キャプチャと OCR
	source, err := newSource(cfg.Capture)
	if err != nil {
		return err
	}
	components := pipeline.Components{
		Source:   source,
		Answerer: answerer,
		Synth:    synth,
		Quota:    quota,
	}
	if source != nil {
		defer source.Close()
		if cfg.OCR.Enabled {
			engine, err := ocr.NewTesseract(cfg.TesseractConfig())
			if err != nil {
				return err
			}
			defer engine.Close()
			components.OCR = ocr.NewReconstructor(engine, cfg.OCR.Config)
		}
	}

	// 4. 音声出力
	components.Sink = newSink(cfg.Audio, live.SampleRate)

	session := pipeline.NewSession(cfg.SessionConfig(), components, cfg.Host, cfg.Products)

	slog.Info("--- livehost を起動します ---",
		"answer_model", live.AnswerModel,
		"speech_model", live.SpeechModel,
		"api_keys", len(live.Keys()),
		"source", cfg.Capture.Source,
		"personality", cfg.Host.Personality,
		"dry_run", cfg.Audio.DryRun,
	)

	// 5. セッション、API、チャット取り込みを並行して実行
	g, gctx := errgroup.WithContext(ctx)

	if err := session.Start(gctx); err != nil {
		return err
	}
	defer session.Stop()

	if cfg.Server.Addr != "" {
		srv := server.New(cfg.Server.Addr, session)
		g.Go(func() error { return srv.Start(gctx) })
	}

	if cfg.YouTube.ChannelID != "" {
		processor, answers, err := newChatBridge(gctx, cfg, session)
		if err != nil {
			return err
		}
		g.Go(func() error { return processor.Run(gctx, answers) })
	}

	// API がなければキャプチャの終了でプロセスも終了する
	if source != nil && cfg.Server.Addr == "" {
		g.Go(func() error {
			select {
			case <-source.Done():
				return errStreamEnded
			case <-gctx.Done():
				return nil
			}
		})
	}

	<-gctx.Done()
	slog.Info("終了処理を開始します。")
	session.Stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errStreamEnded) {
		return err
	}
	slog.Info("アプリケーションが正常に終了しました。", "answered", session.Journal().Answered())
	return nil
}

func newSource(cfg config.CaptureConfig) (capture.Source, error) {
	switch cfg.Source {
	case "screen":
		src, err := capture.NewScreenSource(cfg.Display)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "file":
		src, err := capture.NewFileSource(cfg.Path, cfg.Loop)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, nil
	}
}

// newSink は音声出力を初期化します。デバイスが使えない場合は再生時間だけ待つ出力に切り替えます。
func newSink(cfg config.AudioConfig, sampleRate int) audio.Sink {
	if cfg.DryRun {
		return audio.TimingSink{Speed: 1}
	}
	sink, err := audio.NewOtoSink(sampleRate)
	if err != nil {
		slog.Warn("音声出力を利用できないため、無音で再生します。", "error", err)
		return audio.TimingSink{Speed: 1}
	}
	return sink
}

// newChatBridge は YouTube ライブチャットのコメントをセッションに取り込むプロセッサを作成します。
func newChatBridge(ctx context.Context, cfg *config.Config, session *pipeline.Session) (*live_processor.Processor, <-chan types.LogEntry, error) {
	oauth, err := youtube.OAuth2Config(runFlags.oauthPort)
	if err != nil {
		return nil, nil, err
	}
	httpClient, err := youtube.HTTPClient(ctx, oauth, runFlags.tokenPath)
	if err != nil {
		return nil, nil, err
	}
	client, err := youtube.NewClient(ctx, cfg.YouTube.ChannelID, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, nil, err
	}

	processor := live_processor.NewProcessor(client, session, cfg.YouTube.PollInterval, cfg.Audio.DryRun)
	if !cfg.YouTube.PostAnswers {
		return processor, nil, nil
	}
	// 購読はプロセス終了まで続ける
	answers, _ := session.Journal().Subscribe(8)
	return processor, answers, nil
}
