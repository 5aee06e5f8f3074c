package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"livehost-go/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// ErrNoAudio は合成応答に音声データが含まれていなかったことを示します。
var ErrNoAudio = errors.New("gemini: no audio generated")

// 性別ごとのプリセット音声。声が混ざらないよう固定する
var voiceNames = map[types.Gender]string{
	types.GenderFemale: "Kore",
	types.GenderMale:   "Fenrir",
}

// toneWrappers は人格ごとの読み上げスタイル指示です。
var toneWrappers = map[types.Personality]string{
	types.PersonalityEnthusiast: "[Spoken naturally like a real human, conversational, fast-paced, slightly imperfect flow, not robotic]",
	types.PersonalityExpert:     "[Spoken confidently, natural flow, like a shopkeeper explaining, not reading]",
	types.PersonalityCompanion:  "[Spoken intimately, soft, human-like, conversational, relaxed]",
}

// VoiceName はプロファイルの性別に対応する音声名を返します。
func VoiceName(g types.Gender) string {
	if g == types.GenderMale {
		return voiceNames[types.GenderMale]
	}
	return voiceNames[types.GenderFemale]
}

// StyledText は読み上げスタイル指示を付けたテキストを返します。
func StyledText(text string, p types.Personality) string {
	wrapper, ok := toneWrappers[p]
	if !ok {
		wrapper = toneWrappers[types.PersonalityEnthusiast]
	}
	return wrapper + " " + text
}

// SpeechClient は回答テキストを音声に変換する "synthesize" ケイパビリティです。
// 出力は 16bit signed / mono の生 PCM です。
type SpeechClient struct {
	clients   []*genai.Client
	next      atomic.Uint32
	modelName string
	quota     *QuotaTracker
}

// NewSpeechClient は新しい SpeechClient を作成します。
func NewSpeechClient(ctx context.Context, cfg types.LiveAPIConfig, quota *QuotaTracker) (*SpeechClient, error) {
	cfg = cfg.WithDefaults()
	keys := cfg.Keys()
	if len(keys) == 0 {
		return nil, errors.New("gemini API key is required")
	}

	clients := make([]*genai.Client, 0, len(keys))
	for _, key := range keys {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("音声合成クライアントの初期化に失敗: %w", err)
		}
		clients = append(clients, client)
	}

	slog.Info("Gemini 音声合成クライアントを初期化しました。", "model", cfg.SpeechModel)
	return &SpeechClient{clients: clients, modelName: cfg.SpeechModel, quota: quota}, nil
}

// Synthesize はプロファイルの声と人格でテキストを読み上げた PCM を返します。
func (c *SpeechClient) Synthesize(ctx context.Context, text string, p types.HostProfile) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "gemini.Synthesize", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	voice := VoiceName(p.Gender)
	span.SetAttributes(attribute.String("voice", voice), attribute.Int("chars", len(text)))

	i := c.next.Add(1) - 1
	client := c.clients[int(i)%len(c.clients)]

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := withRetry(ctx, c.quota, "synthesize", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return client.Models.GenerateContent(ctx, c.modelName, genai.Text(StyledText(text, p.Personality)), config)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("音声合成に失敗: %w", err)
	}

	data := inlineAudio(resp)
	if len(data) == 0 {
		span.SetStatus(codes.Error, ErrNoAudio.Error())
		return nil, ErrNoAudio
	}
	span.SetAttributes(attribute.Int("bytes", len(data)))
	return data, nil
}

func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}
