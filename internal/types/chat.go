package types

import (
	"fmt"
	"strings"
	"time"
)

// UnknownAuthor は投稿者名を特定できなかった場合の代替名です。
const UnknownAuthor = "Viewer"

// Region は表示座標系における矩形 (キャプチャ領域) です。
type Region struct {
	X      float64 `json:"x" koanf:"x"`
	Y      float64 `json:"y" koanf:"y"`
	Width  float64 `json:"width" koanf:"width"`
	Height float64 `json:"height" koanf:"height"`
}

// Validate は負の値を含む領域を拒否します。
func (r Region) Validate() error {
	if r.X < 0 || r.Y < 0 || r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("region must be non-negative: %+v", r)
	}
	return nil
}

// ChatMessage は OCR またはチャットAPIから得られた1件の視聴者コメントです。
// 生成後に変更されることはありません。
type ChatMessage struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	ObservedAt time.Time `json:"observed_at"`
}

// Mode は応答サイクルの種類です。
type Mode string

const (
	// ModeReactive はキュー内のコメントに答えるサイクルです。
	ModeReactive Mode = "reactive"
	// ModeProactive は沈黙時に映像についてコメントするサイクルです。
	ModeProactive Mode = "proactive"
)

// Intent は AI 回答の意図です。
type Intent string

const (
	IntentChatResponse   Intent = "chat_response"
	IntentVisualSpill    Intent = "visual_spill"
	IntentGiftThanks     Intent = "gift_thanks"
	IntentCheckoutThanks Intent = "checkout_thanks"
	IntentIgnore         Intent = "ignore"
)

// Valid は既知の意図かどうかを返します。
func (i Intent) Valid() bool {
	switch i {
	case IntentChatResponse, IntentVisualSpill, IntentGiftThanks, IntentCheckoutThanks, IntentIgnore:
		return true
	}
	return false
}

// Confidence は回答の確信度です。
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// AIAnswer は推論サービスから返る1サイクル分の回答です。
type AIAnswer struct {
	Intent            Intent     `json:"intent"`
	TextAnswer        string     `json:"text_answer"`
	DetectedProductID string     `json:"detected_product_id,omitempty"`
	Confidence        Confidence `json:"confidence"`
}

// IgnoreAnswer は何も話さない回答を返します。
func IgnoreAnswer() AIAnswer {
	return AIAnswer{Intent: IntentIgnore, Confidence: ConfidenceLow}
}

// Speakable は音声合成に回すべき回答かどうかを返します。
func (a AIAnswer) Speakable() bool {
	return a.Intent != IntentIgnore && strings.TrimSpace(a.TextAnswer) != ""
}

// LogEntry は再生が始まった回答の表示ログです。作成後は不変です。
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Intent    Intent    `json:"intent"`
}

// SystemStatus はパイプライン全体の状態です。
// 常にキューとフラグの状態から導出され、独立した値としては保持しません。
type SystemStatus string

const (
	StatusIdle      SystemStatus = "idle"
	StatusCapturing SystemStatus = "capturing"
	StatusActive    SystemStatus = "active"
	StatusThinking  SystemStatus = "thinking"
	StatusSpeaking  SystemStatus = "speaking"
)

// DeriveStatus は各ステージの状態から SystemStatus を射影します。
// 再生中 > 生成中 > 応答ループ稼働中 > キャプチャ中 > 停止 の順で優先します。
func DeriveStatus(capturing, running, thinking, speaking bool) SystemStatus {
	switch {
	case !capturing:
		return StatusIdle
	case speaking:
		return StatusSpeaking
	case thinking:
		return StatusThinking
	case running:
		return StatusActive
	default:
		return StatusCapturing
	}
}
