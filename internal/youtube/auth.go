package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"livehost-go/internal/util"
)

// ClientSecretFile は OAuth クライアント情報のファイルです。
// 環境変数 YT_CLIENT_ID / YT_CLIENT_SECRET が設定されていればそちらを優先します。
const ClientSecretFile = "client_secret.json"

// CallbackPath は認証コードを受け取るパスです。
const CallbackPath = "/oauth/callback"

// 認証フロー全体のタイムアウト
const authTimeout = 5 * time.Minute

// OAuth2Config は YouTube Data API 用の OAuth2 設定を返します。
func OAuth2Config(port int) (*oauth2.Config, error) {
	// 投稿には youtube スコープが必要
	scopes := []string{
		youtube.YoutubeForceSslScope,
		youtube.YoutubeReadonlyScope,
		youtube.YoutubeScope,
	}
	redirect := "http://localhost:" + strconv.Itoa(port) + CallbackPath

	if id, secret := os.Getenv("YT_CLIENT_ID"), os.Getenv("YT_CLIENT_SECRET"); id != "" && secret != "" {
		return &oauth2.Config{
			ClientID:     id,
			ClientSecret: secret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
			RedirectURL:  redirect,
		}, nil
	}

	data, err := os.ReadFile(ClientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("YT_CLIENT_ID/YT_CLIENT_SECRET も %s も見つかりません: %w", ClientSecretFile, err)
	}
	config, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("クライアント情報の解析に失敗: %w", err)
	}
	config.RedirectURL = redirect
	return config, nil
}

// Authorize はブラウザでの同意フローを実行し、取得したトークンを tokenPath に保存します。
func Authorize(ctx context.Context, config *oauth2.Config, port int, tokenPath string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	r := chi.NewRouter()
	r.Get(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "<h1>認証エラー</h1><p>認証に失敗しました: %s</p>", r.URL.Query().Get("error"))
			select {
			case errCh <- fmt.Errorf("認証コードが空です: %s", r.URL.Query().Get("error")):
			default:
			}
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<h1>認証が完了しました！</h1><p>ブラウザを閉じてください。</p>")
		select {
		case codeCh <- code:
		default:
		}
	})

	ln, err := net.Listen("tcp", "localhost:"+strconv.Itoa(port))
	if err != nil {
		return nil, fmt.Errorf("コールバックサーバーの起動に失敗: %w", err)
	}
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("OAuthサーバーが予期せぬエラーで停止しました。", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	url := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	slog.Info("ブラウザで次のURLを開いて認証してください。", "url", url)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("認証がタイムアウトしました: %w", ctx.Err())
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("トークンの取得に失敗: %w", err)
	}
	if err := util.SaveToken(tokenPath, token); err != nil {
		return nil, err
	}
	slog.Info("トークンを保存しました。", "path", tokenPath)
	return token, nil
}

// HTTPClient は保存済みトークンから認証済みの HTTP クライアントを作成します。
// トークンがリフレッシュされると tokenPath に書き戻されます。
func HTTPClient(ctx context.Context, config *oauth2.Config, tokenPath string) (*http.Client, error) {
	token, err := util.LoadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	ts := util.NewAutoSavingTokenSource(config.TokenSource(ctx, token), tokenPath, token)
	return oauth2.NewClient(ctx, ts), nil
}
