package pipeline

import (
	"sync"

	"livehost-go/internal/types"
)

// Persona は現在のホストプロファイルと商品カタログを保持します。
type Persona struct {
	mu       sync.RWMutex
	profile  types.HostProfile
	products []types.Product
}

// NewPersona は初期プロファイルとカタログから Persona を作成します。
func NewPersona(profile types.HostProfile, products []types.Product) *Persona {
	return &Persona{profile: profile, products: append([]types.Product(nil), products...)}
}

// Get は現在のプロファイルとカタログのコピーを返します。
func (p *Persona) Get() (types.HostProfile, []types.Product) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.profile, append([]types.Product(nil), p.products...)
}

// Profile は現在のプロファイルを返します。
func (p *Persona) Profile() types.HostProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.profile
}

// SetProfile はプロファイルを差し替え、声 (性別・人格) が変わったかを返します。
func (p *Persona) SetProfile(next types.HostProfile) (voiceChanged bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	voiceChanged = p.profile.VoiceKey() != next.VoiceKey()
	p.profile = next
	return voiceChanged
}

// SetProducts はカタログを差し替えます。
func (p *Persona) SetProducts(products []types.Product) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.products = append([]types.Product(nil), products...)
}
