package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"livehost-go/internal/config"
)

var (
	// コマンドラインフラグを保持する変数
	cfgFile   string
	logLevel  string
	logFormat string
	apiKey    string

	// PersistentPreRunE で読み込んだ設定
	appConfig *config.Config
)

// rootCmd はアプリケーション全体のルートコマンドを定義します。
var rootCmd = &cobra.Command{
	Use:   "livehost",
	Short: "配信画面のチャットを読み取り、AIホストが音声で応答するライブコホスト",
	Long: `livehost は配信画面のチャット欄を OCR で読み取り、Gemini で回答を生成して
音声で読み上げるライブコマース向けのAIコホストです。

チャットが静かな間は映像の内容にコメントし、YouTube ライブチャットからのコメントも受け付けます。`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute はルートコマンドを実行します。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "設定ファイルのパス (既定: ./"+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "ログ形式 (text, json)")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "gemini-api-key", "k", "", "Gemini APIキー。環境変数 GEMINI_API_KEY でも設定可能。")
}

// loadConfig は .env、設定ファイル、環境変数、フラグの順に設定を読み込み、ロガーを設定します。
func loadConfig(cmd *cobra.Command, args []string) error {
	// 1. .env は任意
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(".env の読み込みに失敗: %w", err)
	}

	// 2. 設定ファイルと環境変数
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// 3. フラグによる上書き
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if apiKey != "" {
		cfg.Gemini.APIKey = apiKey
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	appConfig = cfg
	return nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("ログレベル %q は不明です: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("ログ形式 %q は不明です (text, json)", cfg.Format)
	}
}
