package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/api/googleapi"
)

// ErrQuota はリトライ後もクォータ・レート制限が解消しなかったことを示します。
var ErrQuota = errors.New("gemini: quota exhausted")

// QuotaLevel はクォータの劣化状態です。
type QuotaLevel string

const (
	QuotaNormal    QuotaLevel = "normal"
	QuotaWarning   QuotaLevel = "warning"
	QuotaExhausted QuotaLevel = "exhausted"
)

// retryBackoff はクォータエラー時の待機時間です。要素数が最大リトライ回数になります。
var retryBackoff = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// QuotaTracker は回答生成と音声合成で共有されるクォータ状態です。
type QuotaTracker struct {
	level atomic.Value // QuotaLevel

	mu      sync.Mutex
	lastErr string

	// テストで差し替える待機関数
	sleep func(ctx context.Context, d time.Duration) error
}

// NewQuotaTracker は normal 状態のトラッカーを作成します。
func NewQuotaTracker() *QuotaTracker {
	q := &QuotaTracker{sleep: sleepContext}
	q.level.Store(QuotaNormal)
	return q
}

// Level は現在のクォータ状態を返します。
func (q *QuotaTracker) Level() QuotaLevel {
	return q.level.Load().(QuotaLevel)
}

// LastError は最後に記録されたエラーの説明を返します。
func (q *QuotaTracker) LastError() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

func (q *QuotaTracker) setLevel(next QuotaLevel) {
	prev := q.level.Swap(next).(QuotaLevel)
	if prev == next {
		return
	}
	switch next {
	case QuotaExhausted:
		slog.Error("Gemini のクォータが枯渇しました。", "previous", prev)
	case QuotaWarning:
		slog.Warn("Gemini のレート制限を検出しました。", "previous", prev)
	default:
		slog.Info("Gemini のクォータ状態が回復しました。", "previous", prev)
	}
}

func (q *QuotaTracker) recordError(op string, err error) {
	q.mu.Lock()
	q.lastErr = fmt.Sprintf("%s: %v", op, err)
	q.mu.Unlock()
}

// withRetry は fn を実行し、クォータエラーの場合のみ待機して再試行します。
// 成功するとクォータ状態は normal に戻ります。
func withRetry[T any](ctx context.Context, q *QuotaTracker, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			q.setLevel(QuotaNormal)
			return v, nil
		}
		q.recordError(op, err)

		if !IsQuotaError(err) {
			return zero, err
		}
		if attempt >= len(retryBackoff) {
			q.setLevel(QuotaExhausted)
			return zero, fmt.Errorf("%s: %w: %v", op, ErrQuota, err)
		}

		q.setLevel(QuotaWarning)
		slog.Warn("レート制限のため再試行します。", "op", op, "attempt", attempt+1, "max", len(retryBackoff))
		if err := q.sleep(ctx, retryBackoff[attempt]); err != nil {
			return zero, err
		}
	}
}

// IsQuotaError はエラーがクォータ・レート制限に起因するかを判定します。
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuota) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}

	// genai の APIError などはメッセージにステータスを含む
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "resource_exhausted", "quota", "limit"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
