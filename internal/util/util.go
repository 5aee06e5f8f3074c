package util

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// TokenPath は YouTube の OAuth2 トークンを保存する既定のパスです。
const TokenPath = "config/token.json"

// LoadToken はローカルファイルから認証トークンを読み込みます。
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("トークンファイルのオープンに失敗 (auth コマンドで認証してください): %w", err)
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("トークンファイルのデコードに失敗: %w", err)
	}
	return token, nil
}

// SaveToken は認証トークンを 0600 のパーミッションで保存します。
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("ディレクトリ作成に失敗: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("トークンファイルの作成/オープンに失敗: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("トークンファイルのエンコードに失敗: %w", err)
	}
	return nil
}

// autoSavingTokenSource はリフレッシュされたトークンをファイルに書き戻します。
type autoSavingTokenSource struct {
	src  oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

// NewAutoSavingTokenSource は src が新しいアクセストークンを返すたびに path へ保存する TokenSource を返します。
func NewAutoSavingTokenSource(src oauth2.TokenSource, path string, initial *oauth2.Token) oauth2.TokenSource {
	ts := &autoSavingTokenSource{src: src, path: path}
	if initial != nil {
		ts.last = initial.AccessToken
	}
	return ts
}

func (s *autoSavingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := SaveToken(s.path, token); err != nil {
			// 保存に失敗しても今回のリクエストは続行できる
			slog.Warn("リフレッシュしたトークンの保存に失敗しました。", "error", err)
		} else {
			slog.Debug("リフレッシュしたトークンを保存しました。", "path", s.path)
		}
	}
	return token, nil
}
