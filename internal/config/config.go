package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"livehost-go/internal/capture"
	"livehost-go/internal/ocr"
	"livehost-go/internal/pipeline"
	"livehost-go/internal/types"
)

// EnvPrefix は設定を上書きする環境変数の接頭辞です。
// LIVEHOST_BRAIN__MAX_BATCH=4 は brain.max_batch になります。
const EnvPrefix = "LIVEHOST_"

// DefaultPath は既定の設定ファイルです。存在しなくても構いません。
const DefaultPath = "livehost.yaml"

// Config はアプリケーション全体の設定です。
type Config struct {
	Log      LogConfig            `koanf:"log"`
	Gemini   GeminiConfig         `koanf:"gemini"`
	Capture  CaptureConfig        `koanf:"capture"`
	OCR      OCRConfig            `koanf:"ocr"`
	Brain    pipeline.BrainConfig `koanf:"brain"`
	Host     types.HostProfile    `koanf:"host"`
	Products []types.Product      `koanf:"products"`
	Audio    AudioConfig          `koanf:"audio"`
	Server   ServerConfig         `koanf:"server"`
	YouTube  YouTubeConfig        `koanf:"youtube"`
	Trace    bool                 `koanf:"trace"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type GeminiConfig struct {
	APIKey      string   `koanf:"api_key"`
	APIKeys     []string `koanf:"api_keys"`
	AnswerModel string   `koanf:"answer_model"`
	SpeechModel string   `koanf:"speech_model"`
	Temperature float32  `koanf:"temperature"`
	SampleRate  int      `koanf:"sample_rate"`
}

type CaptureConfig struct {
	Source       string                  `koanf:"source"` // screen, file, none
	Display      int                     `koanf:"display"`
	Path         string                  `koanf:"path"`
	Loop         bool                    `koanf:"loop"`
	Interval     time.Duration           `koanf:"interval"`
	Surface      capture.Surface         `koanf:"surface"`
	Snapshot     capture.SnapshotOptions `koanf:"snapshot"`
	ChatRegion   types.Region            `koanf:"chat_region"`
	VisionRegion types.Region            `koanf:"vision_region"`
}

type OCRConfig struct {
	ocr.Config `koanf:",squash"`
	Enabled    bool     `koanf:"enabled"`
	Languages  []string `koanf:"languages"`
	Whitelist  string   `koanf:"whitelist"`
}

type AudioConfig struct {
	// true なら音を出さずに再生時間だけ待つ
	DryRun bool `koanf:"dry_run"`
}

type ServerConfig struct {
	// 空なら状態APIを起動しない
	Addr string `koanf:"addr"`
}

type YouTubeConfig struct {
	ChannelID    string        `koanf:"channel_id"`
	PollInterval time.Duration `koanf:"poll_interval"`
	// 再生を開始した回答をライブチャットにも投稿する
	PostAnswers bool `koanf:"post_answers"`
}

// Default は既定値の設定を返します。
func Default() Config {
	session := pipeline.DefaultConfig()
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Gemini: GeminiConfig{
			AnswerModel: types.DefaultAnswerModel,
			SpeechModel: types.DefaultSpeechModel,
			Temperature: 0.7,
			SampleRate:  types.DefaultSampleRate,
		},
		Capture: CaptureConfig{
			Source:   "screen",
			Interval: session.CaptureInterval,
			Snapshot: session.Snapshot,
		},
		OCR: OCRConfig{
			Config:    ocr.DefaultConfig(),
			Enabled:   true,
			Languages: []string{"ind", "eng"},
			Whitelist: ocr.DefaultWhitelist,
		},
		Brain: session.Brain,
		Host:  types.DefaultHostProfile(),
		YouTube: YouTubeConfig{
			PollInterval: 5 * time.Second,
		},
	}
}

// Load は既定値、設定ファイル、環境変数の順に読み込みます。
// path が空なら DefaultPath を使い、存在しなければ無視します。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// 明示されていないファイルがないのは問題ない
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	// 環境変数で上書き
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}

	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.YouTube.ChannelID == "" {
		cfg.YouTube.ChannelID = os.Getenv("YOUTUBE_CHANNEL_ID")
	}
	return &cfg, nil
}

// Validate は不正な項目をすべてまとめたエラーを返します。
func (c *Config) Validate() error {
	var errs []error
	if len(c.LiveAPIConfig().Keys()) == 0 {
		errs = append(errs, errors.New("gemini.api_key (または GEMINI_API_KEY) が設定されていません"))
	}
	switch c.Capture.Source {
	case "screen", "none":
	case "file":
		if c.Capture.Path == "" {
			errs = append(errs, errors.New("capture.source=file には capture.path が必要です"))
		}
	default:
		errs = append(errs, fmt.Errorf("capture.source %q は不明です (screen, file, none)", c.Capture.Source))
	}
	if c.Capture.Interval <= 0 {
		errs = append(errs, errors.New("capture.interval は正の値である必要があります"))
	}
	if err := c.Capture.ChatRegion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("capture.chat_region: %w", err))
	}
	if err := c.Capture.VisionRegion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("capture.vision_region: %w", err))
	}
	if c.Brain.MaxBatch <= 0 {
		errs = append(errs, errors.New("brain.max_batch は1以上である必要があります"))
	}
	if c.Brain.MaxPendingAudio < 0 {
		errs = append(errs, errors.New("brain.max_pending_audio は0以上である必要があります"))
	}
	if c.Brain.Interval <= 0 || c.Brain.FollowUp <= 0 {
		errs = append(errs, errors.New("brain.interval と brain.follow_up は正の値である必要があります"))
	}
	if c.OCR.Cluster.GapFactor <= 0 || c.OCR.Cluster.MaxIndent <= 0 {
		errs = append(errs, errors.New("ocr.gap_factor と ocr.max_indent は正の値である必要があります"))
	}
	if c.OCR.Dedup.Window <= 0 {
		errs = append(errs, errors.New("ocr.dedup_window は正の値である必要があります"))
	}
	if err := c.Host.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("host: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q は不明です (text, json)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LiveAPIConfig は Gemini クライアント用の設定を返します。
func (c *Config) LiveAPIConfig() types.LiveAPIConfig {
	return types.LiveAPIConfig{
		APIKey:      c.Gemini.APIKey,
		APIKeys:     c.Gemini.APIKeys,
		AnswerModel: c.Gemini.AnswerModel,
		SpeechModel: c.Gemini.SpeechModel,
		Temperature: c.Gemini.Temperature,
		SampleRate:  c.Gemini.SampleRate,
	}.WithDefaults()
}

// SessionConfig はパイプライン用の設定を返します。
func (c *Config) SessionConfig() pipeline.Config {
	brain := c.Brain
	brain.SampleRate = c.LiveAPIConfig().SampleRate
	return pipeline.Config{
		CaptureInterval: c.Capture.Interval,
		Surface:         c.Capture.Surface,
		Snapshot:        c.Capture.Snapshot,
		ChatRegion:      c.Capture.ChatRegion,
		VisionRegion:    c.Capture.VisionRegion,
		Brain:           brain,
	}
}

// TesseractConfig は OCR エンジン用の設定を返します。
func (c *Config) TesseractConfig() ocr.TesseractConfig {
	return ocr.TesseractConfig{Languages: c.OCR.Languages, Whitelist: c.OCR.Whitelist}
}
