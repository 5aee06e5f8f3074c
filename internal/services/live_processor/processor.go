package live_processor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"livehost-go/internal/types"
	"livehost-go/internal/youtube"
)

// ライブチャットの投稿の上限文字数
const chatMessageLimit = 200

var codeBlock = regexp.MustCompile("(?s)```.*?```")

// ChatAPI はライブチャットの読み書きを行うクライアントです。
type ChatAPI interface {
	FetchLiveChatMessages(ctx context.Context) ([]youtube.Comment, error)
	PostComment(ctx context.Context, text string) error
}

// Ingester は取得したコメントを受け取るパイプラインです。
type Ingester interface {
	Ingest(msgs ...types.ChatMessage)
}

// Processor はライブチャットをポーリングしてパイプラインに流し込み、
// 必要なら再生された回答をチャットにも投稿します。
type Processor struct {
	chat     ChatAPI
	sink     Ingester
	interval time.Duration
	dryRun   bool
}

// NewProcessor は新しい Processor インスタンスを作成します。
// dryRun が true の場合、回答は投稿せずログにだけ出力します。
func NewProcessor(chat ChatAPI, sink Ingester, interval time.Duration, dryRun bool) *Processor {
	return &Processor{
		chat:     chat,
		sink:     sink,
		interval: interval,
		dryRun:   dryRun,
	}
}

// ProcessNextBatch は新しいコメントを取得してパイプラインに渡し、渡した件数を返します。
// 配信者自身の投稿は応答対象にしません。
func (p *Processor) ProcessNextBatch(ctx context.Context) (int, error) {
	comments, err := p.chat.FetchLiveChatMessages(ctx)
	if err != nil {
		return 0, fmt.Errorf("コメント取得エラー: %w", err)
	}

	msgs := make([]types.ChatMessage, 0, len(comments))
	for _, c := range comments {
		body := strings.TrimSpace(c.Message)
		if c.Owner || body == "" {
			continue
		}
		author := strings.TrimSpace(c.Author)
		if author == "" {
			author = types.UnknownAuthor
		}
		msgs = append(msgs, types.ChatMessage{
			ID:         "yt_" + c.ID,
			Author:     author,
			Body:       body,
			ObservedAt: c.Time,
		})
	}
	if len(msgs) > 0 {
		slog.Debug("ライブチャットから新しいコメントを取得しました。", "count", len(msgs))
		p.sink.Ingest(msgs...)
	}
	return len(msgs), nil
}

// Run は ctx が終了するまでポーリングを続けます。
// answers が nil でなければ、届いた回答をライブチャットに投稿します。
func (p *Processor) Run(ctx context.Context, answers <-chan types.LogEntry) error {
	slog.Info("ライブチャットのポーリングを開始します。", "interval", p.interval, "post_answers", answers != nil)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if _, err := p.ProcessNextBatch(ctx); err != nil {
		slog.Warn("初回ポーリングエラー", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.ProcessNextBatch(ctx); err != nil {
				slog.Error("ポーリングエラー", "error", err)
			}
		case entry, ok := <-answers:
			if !ok {
				answers = nil
				continue
			}
			p.postAnswer(ctx, entry)
		}
	}
}

func (p *Processor) postAnswer(ctx context.Context, entry types.LogEntry) {
	text := sanitizeMessage(entry.Answer)
	if text == "" {
		return
	}
	if p.dryRun {
		slog.Info("ドライラン: コメントは投稿されません。", "answer", text)
		return
	}
	if err := p.chat.PostComment(ctx, text); err != nil {
		slog.Error("コメント投稿失敗", "error", err, "answer", text)
	}
}

// sanitizeMessage は回答をライブチャットの制約に合わせて整形します。
func sanitizeMessage(message string) string {
	// 1. マークダウンのコードブロックを削除
	message = codeBlock.ReplaceAllString(message, "")

	// 2. 改行を空白にまとめ、前後の空白を削除
	message = strings.Join(strings.Fields(message), " ")

	// 3. 上限文字数で切り詰め
	if runes := []rune(message); len(runes) > chatMessageLimit {
		slog.Debug("メッセージが長すぎるため切り詰めます。", "original_len", len(runes), "limit", chatMessageLimit)
		message = string(runes[:chatMessageLimit])
	}
	return message
}
