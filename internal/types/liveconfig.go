package types

import "strings"

// 既定のモデル名と音声フォーマット
const (
	DefaultAnswerModel = "gemini-2.5-flash"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"

	// TTS が返す PCM のサンプルレート (16bit signed, mono)
	DefaultSampleRate = 24000
)

// LiveAPIConfig は Gemini API の接続とモデル設定を保持します。
type LiveAPIConfig struct {
	// Gemini APIキー (認証に使用)
	APIKey string

	// 追加のAPIキー。指定するとリクエストごとにローテーションします。
	APIKeys []string

	// 回答生成に使用するモデル名 (例: gemini-2.5-flash)
	AnswerModel string

	// 音声合成に使用するモデル名
	SpeechModel string

	// 回答生成の温度。キャラクター設定を守るため低めが推奨です。
	Temperature float32

	// TTS 出力のサンプルレート
	SampleRate int
}

// WithDefaults は未設定のフィールドを既定値で埋めたコピーを返します。
func (c LiveAPIConfig) WithDefaults() LiveAPIConfig {
	if c.AnswerModel == "" {
		c.AnswerModel = DefaultAnswerModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = DefaultSpeechModel
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	return c
}

// Keys は APIKey と APIKeys を空要素と重複を除いて返します。
func (c LiveAPIConfig) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, k := range append([]string{c.APIKey}, c.APIKeys...) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
