package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Clip は再生可能なモノラル音声です。サンプルは [-1, 1) に正規化されています。
type Clip struct {
	Samples    []float32
	SampleRate int
}

// DecodePCM16 はリトルエンディアンの 16bit signed PCM をデコードします。
// 末尾の半端な1バイトは無視します。
func DecodePCM16(data []byte, rate int) *Clip {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		samples[i] = float32(v) / 32768
	}
	return &Clip{Samples: samples, SampleRate: rate}
}

// Duration はクリップの再生時間です。
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Float32LE は出力デバイス向けに float32 リトルエンディアンのバイト列へ変換します。
func (c *Clip) Float32LE() []byte {
	buf := make([]byte, 4*len(c.Samples))
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(s))
	}
	return buf
}
