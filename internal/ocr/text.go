package ocr

import (
	"regexp"
	"strings"

	"livehost-go/internal/types"
)

// バッジ・レベル表記・装飾記号 (行テキストから最初に除去する)
var badgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)No\.\s*\d+`),
	regexp.MustCompile(`(?i)No\s*\d+`),
	regexp.MustCompile(`(?i)Lvl\s*\d+`),
	regexp.MustCompile(`(?i)Rank\s*\d+`),
	regexp.MustCompile(`\[.*?\]`),
}

var glyphReplacer = strings.NewReplacer(
	"★", "", "☆", "", "💎", "", "👑", "", "🔥", "", "✨", "", "⚡", "",
	"📍", "", "👤", "", "\u2764\uFE0F", "", "\u2764", "", "🧡", "", "💛", "", "💚", "",
	"💜", "", "🖤", "", "👋", "", "🌹", "", "\uFE0F", "",
)

// 投稿者名の前後に付くメタデータ (ロールタグ、カウンタ、数字など)
var authorPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`^[A-Z]\d\s+`), ""},    // A8, Q1 などのロールタグ
	{regexp.MustCompile(`^[A-Z]\)\s+`), ""},    // Q) などのタグ
	{regexp.MustCompile(`^\(\d+,\s*`), ""},     // (254, などのメタデータ
	{regexp.MustCompile(`^[A-Z]{2}\s+`), ""},   // AS, RM などの2文字プレフィックス
	{regexp.MustCompile(`^[0-9]+\s+`), ""},     // 先頭の数字
	{regexp.MustCompile(`\s+[0-9]+$`), ""},     // 末尾の数字
	{regexp.MustCompile(`[#()]`), ""},          // 記号
	{regexp.MustCompile(`\s{2,}`), " "},        // 連続空白
	{regexp.MustCompile(`^[^a-zA-Z0-9]+`), ""}, // 先頭の記号
}

var numericOnly = regexp.MustCompile(`^\d+$`)

// systemEventPhrases はプラットフォームの通知メッセージ (フォロー、いいね、ギフト、入室、カート追加など) です。
var systemEventPhrases = []string{
	"followed the host", "mengikuti host",
	"liked the stream", "menyukai siaran",
	"shared the live", "membagikan live",
	"sent a gift", "mengirim hadiah",
	"added to cart", "menambahkan ke keranjang", "telah memesan",
	"welcome to the live", "selamat datang", "tap tap",
	"top viewer", "gifter", "subscribe", "berlangganan", "joined", "bergabung",
	"invited you", "mengundang anda",
}

// CleanText は行テキストからバッジや装飾記号を取り除きます。
func CleanText(raw string) string {
	s := raw
	for _, re := range badgePatterns {
		s = re.ReplaceAllString(s, "")
	}
	s = glyphReplacer.Replace(s)
	return strings.TrimSpace(s)
}

// SanitizeAuthor は投稿者名からメタデータを除去します。
// 2文字未満または数字のみになった場合は types.UnknownAuthor を返します。
func SanitizeAuthor(raw string) string {
	name := raw
	for _, p := range authorPatterns {
		name = p.re.ReplaceAllString(name, p.repl)
	}
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 2 || numericOnly.MatchString(name) {
		return types.UnknownAuthor
	}
	return name
}

// IsSystemEvent はプラットフォーム通知かどうかを判定します。
// ギフトやイベントについての質問は残すため、"?" を含む本文は通知とみなしません。
func IsSystemEvent(body string) bool {
	low := strings.ToLower(body)
	if strings.Contains(low, "?") {
		return false
	}
	for _, phrase := range systemEventPhrases {
		if strings.Contains(low, phrase) {
			return true
		}
	}
	return false
}

// Fingerprint は重複判定用に (投稿者+本文) を正規化したキーです。
func Fingerprint(author, body string) string {
	low := strings.ToLower(author + ":" + body)
	var b strings.Builder
	b.Grow(len(low))
	for _, r := range low {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
