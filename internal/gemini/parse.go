package gemini

import (
	"encoding/json"
	"strings"

	"livehost-go/internal/types"
)

// ParseAnswer はモデルの出力テキストを AIAnswer に変換します。
// コードフェンスは除去します。解釈できない出力や未知の意図は ignore として扱います。
func ParseAnswer(text string) types.AIAnswer {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return types.IgnoreAnswer()
	}

	var raw struct {
		Intent            string `json:"intent"`
		TextAnswer        string `json:"text_answer"`
		DetectedProductID string `json:"detected_product_id"`
		Confidence        string `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return types.IgnoreAnswer()
	}

	answer := types.AIAnswer{
		Intent:            types.Intent(strings.TrimSpace(raw.Intent)),
		TextAnswer:        strings.TrimSpace(raw.TextAnswer),
		DetectedProductID: strings.TrimSpace(raw.DetectedProductID),
		Confidence:        types.Confidence(strings.ToLower(strings.TrimSpace(raw.Confidence))),
	}
	if !answer.Intent.Valid() || answer.Intent == types.IntentIgnore || answer.TextAnswer == "" {
		return types.IgnoreAnswer()
	}
	switch answer.Confidence {
	case types.ConfidenceLow, types.ConfidenceMedium, types.ConfidenceHigh:
	default:
		answer.Confidence = types.ConfidenceLow
	}
	// 出力例のプレースホルダがそのまま返ることがある
	if answer.DetectedProductID == "DB_ID" {
		answer.DetectedProductID = ""
	}
	return answer
}
