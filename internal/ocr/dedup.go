package ocr

import "time"

// DedupConfig は重複抑制の時間窓と掃除の条件です。
type DedupConfig struct {
	// 同じフィンガープリントを再度出力しない期間
	Window time.Duration `koanf:"dedup_window"`
	// 掃除時にこれより古いエントリを削除する
	EvictAfter time.Duration `koanf:"evict_after"`
	// テーブルがこの件数を超えたら掃除する
	EvictThreshold int `koanf:"evict_threshold"`
}

// DefaultDedupConfig は既定値 (15秒窓、60秒/500件で掃除) です。
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		Window:         15 * time.Second,
		EvictAfter:     60 * time.Second,
		EvictThreshold: 500,
	}
}

// Seen はフィンガープリントから最終出力時刻へのテーブルです。
// 同じフィンガープリントのメッセージは Window 内に2回出力されません。
// Reconstructor からのみ使われ、排他は呼び出し側で行います。
type Seen struct {
	cfg  DedupConfig
	last map[string]time.Time
}

// NewSeen は空のテーブルを作成します。
func NewSeen(cfg DedupConfig) *Seen {
	return &Seen{cfg: cfg, last: make(map[string]time.Time)}
}

// Admit は fingerprint を now に出力してよいかを判定し、よければ記録します。
// 抑制された場合、記録時刻は更新しません。
func (s *Seen) Admit(fingerprint string, now time.Time) bool {
	if last, ok := s.last[fingerprint]; ok && now.Sub(last) <= s.cfg.Window {
		return false
	}
	s.last[fingerprint] = now

	if len(s.last) > s.cfg.EvictThreshold {
		for key, ts := range s.last {
			if now.Sub(ts) > s.cfg.EvictAfter {
				delete(s.last, key)
			}
		}
	}
	return true
}

// Len はテーブルのエントリ数を返します。
func (s *Seen) Len() int {
	return len(s.last)
}
