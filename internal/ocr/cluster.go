package ocr

import (
	"sort"
	"strings"
	"unicode/utf8"

	"livehost-go/internal/types"
)

// ClusterConfig はメッセージブロックへのまとめ方の閾値です。
// 経験的な値であり、マルチカラムのレイアウトでは調整が必要になることがあります。
type ClusterConfig struct {
	// 前の行の高さに対する縦方向の隙間の上限倍率
	GapFactor float64 `koanf:"gap_factor"`
	// 行頭の横方向のずれの上限 (px)
	MaxIndent int `koanf:"max_indent"`
}

// DefaultClusterConfig は既定の閾値です。
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{GapFactor: 1.5, MaxIndent: 300}
}

const (
	maxAuthorLen      = 25
	maxColonAuthorLen = 20
	minBodyLen        = 2
)

// Cluster は行を上から順にたどり、メッセージブロックにまとめます。
// 前の行との縦の隙間が前の行の高さ×GapFactor 未満、かつ行頭のずれが MaxIndent 未満なら同じブロックです。
func Cluster(lines []Line, cfg ClusterConfig) [][]Line {
	if len(lines) == 0 {
		return nil
	}
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Box.Min.Y < sorted[j].Box.Min.Y
	})

	var clusters [][]Line
	current := []Line{sorted[0]}
	for _, line := range sorted[1:] {
		prev := current[len(current)-1]
		gap := float64(line.Box.Min.Y - prev.Box.Max.Y)
		height := float64(prev.Box.Dy())

		near := gap < height*cfg.GapFactor
		aligned := abs(line.Box.Min.X-prev.Box.Min.X) < cfg.MaxIndent

		if near && aligned {
			current = append(current, line)
			continue
		}
		clusters = append(clusters, current)
		current = []Line{line}
	}
	return append(clusters, current)
}

// SplitCluster はブロックを (投稿者, 本文) に分割します。
// 行テキストは CleanText 済みである必要があります。本文が得られない場合は ok=false です。
func SplitCluster(cluster []Line) (author, body string, ok bool) {
	author = types.UnknownAuthor

	switch {
	case len(cluster) >= 2:
		// 複数行: 1行目が短く "?" を含まなければ投稿者名
		first := cluster[0].Text
		if utf8.RuneCountInString(first) <= maxAuthorLen && !strings.Contains(first, "?") {
			author = SanitizeAuthor(first)
			body = joinText(cluster[1:])
		} else {
			body = joinText(cluster)
		}
	case len(cluster) == 1:
		// 1行: "投稿者: 本文" の形式を試す
		text := cluster[0].Text
		if utf8.RuneCountInString(text) <= 2 {
			return "", "", false
		}
		name, rest, found := strings.Cut(text, ":")
		if found && utf8.RuneCountInString(name) < maxColonAuthorLen {
			author = SanitizeAuthor(name)
			body = strings.TrimSpace(rest)
		} else {
			body = text
		}
	default:
		return "", "", false
	}

	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) < minBodyLen {
		return "", "", false
	}
	return author, body, true
}

func joinText(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, " ")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
