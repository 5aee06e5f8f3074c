package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"livehost-go/internal/util"
	"livehost-go/internal/youtube"
)

var authFlags struct {
	oauthPort int
	tokenPath string
}

// authCmd は YouTube 認証フローを開始するためのコマンド定義です。
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "YouTube Data API の OAuth 2.0 認証を行い、トークンを保存します。",
	Long: `ライブチャットのコメント取得と回答の投稿に必要な権限を取得します。
YT_CLIENT_ID / YT_CLIENT_SECRET または client_secret.json が必要です。`,
	RunE: authApplication,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.Flags().IntVar(&authFlags.oauthPort, "oauth-port", 8080, "OAuth2 認証フローのコールバックを待ち受けるポート")
	authCmd.Flags().StringVar(&authFlags.tokenPath, "token", util.TokenPath, "トークンの保存先")
}

// authApplication は認証フローを実行します。
func authApplication(cmd *cobra.Command, args []string) error {
	slog.Info("YouTube OAuth2 認証を開始します。", "port", authFlags.oauthPort)

	// 1. OAuth2 設定を取得
	config, err := youtube.OAuth2Config(authFlags.oauthPort)
	if err != nil {
		return err
	}

	// 2. ブラウザでの同意を待ってトークンを保存
	if _, err := youtube.Authorize(cmd.Context(), config, authFlags.oauthPort, authFlags.tokenPath); err != nil {
		return err
	}

	slog.Info("✅ 認証に成功しました。", "token", authFlags.tokenPath)
	return nil
}
