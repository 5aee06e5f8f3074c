package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"livehost-go/internal/types"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
)

var tracer = otel.Tracer("livehost-go/internal/gemini")

// AnswerClient は映像とコメントから回答を生成する "answer" ケイパビリティです。
// 複数のAPIキーが設定されている場合はラウンドロビンで使い分けます。
type AnswerClient struct {
	clients     []*genai.Client
	next        atomic.Uint32
	modelName   string
	temperature float32
	quota       *QuotaTracker
}

// NewAnswerClient は新しい AnswerClient インスタンスを作成します。
func NewAnswerClient(ctx context.Context, cfg types.LiveAPIConfig, quota *QuotaTracker) (*AnswerClient, error) {
	cfg = cfg.WithDefaults()
	keys := cfg.Keys()
	if len(keys) == 0 {
		return nil, errors.New("gemini API key is required")
	}

	// 1. キーごとに genai.Client を初期化
	clients := make([]*genai.Client, 0, len(keys))
	for _, key := range keys {
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		clients = append(clients, client)
	}

	slog.Info("Gemini 回答クライアントを初期化しました。", "model", cfg.AnswerModel, "keys", len(clients))

	// 2. Client構造体を作成
	return &AnswerClient{
		clients:     clients,
		modelName:   cfg.AnswerModel,
		temperature: cfg.Temperature,
		quota:       quota,
	}, nil
}

func (c *AnswerClient) client() *genai.Client {
	i := c.next.Add(1) - 1
	return c.clients[int(i)%len(c.clients)]
}

// Answer は1サイクル分の文脈から回答を生成します。
// 解釈できない応答は ignore として返し、通信・クォータの失敗のみエラーを返します。
func (c *AnswerClient) Answer(ctx context.Context, req AnswerRequest) (types.AIAnswer, error) {
	ctx, span := tracer.Start(ctx, "gemini.Answer", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("mode", string(req.Mode)),
		attribute.Int("batch", len(req.Batch)),
		attribute.Bool("snapshot", len(req.Snapshot) > 0),
	)

	// 1. モデルを取得し、システム指示と JSON 応答を設定
	model := c.client().GenerativeModel(c.modelName)
	model.SetTemperature(c.temperature)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(SystemInstruction(req.Profile, req.LastAnswer)))

	// 2. 入力パーツを構築 (テキスト + 任意のスナップショット)
	parts := []genai.Part{genai.Text(UserPrompt(req))}
	if len(req.Snapshot) > 0 {
		parts = append(parts, genai.ImageData("jpeg", req.Snapshot))
	}

	// 3. API呼び出しの実行 (クォータエラーのみ再試行)
	resp, err := withRetry(ctx, c.quota, "answer", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, parts...)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return types.IgnoreAnswer(), fmt.Errorf("Gemini API でのコンテンツ生成に失敗: %w", err)
	}

	// 4. 応答テキストを回答に変換
	answer := ParseAnswer(responseText(resp))
	span.SetAttributes(attribute.String("intent", string(answer.Intent)))
	return answer, nil
}

// PingResult は接続確認の結果です。
type PingResult struct {
	Latency time.Duration
	Model   string
	Quota   QuotaLevel
}

// Ping は最小のリクエストを送り、APIキーとモデルの疎通を確認します。
func (c *AnswerClient) Ping(ctx context.Context) (PingResult, error) {
	start := time.Now()
	model := c.client().GenerativeModel(c.modelName)

	_, err := withRetry(ctx, c.quota, "ping", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, genai.Text("ping"))
	})
	result := PingResult{Latency: time.Since(start), Model: c.modelName, Quota: c.quota.Level()}
	if err != nil {
		return result, fmt.Errorf("接続確認に失敗: %w", err)
	}
	return result, nil
}

// Close は基盤となる genai.Client 接続を閉じます。
func (c *AnswerClient) Close() {
	for _, client := range c.clients {
		if client != nil {
			client.Close()
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
