package types

import (
	"errors"
	"fmt"
)

// Gender はホストの声の性別です。
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Personality はホストの話し方のプロファイルです。
type Personality string

const (
	PersonalityEnthusiast Personality = "enthusiast"
	PersonalityExpert     Personality = "expert"
	PersonalityCompanion  Personality = "companion"
	PersonalityExpressive Personality = "expressive"
)

// PersonalityProfile はプロンプトに埋め込む人格の説明です。
type PersonalityProfile struct {
	Name        string
	Description string
	Instruction string
}

// PersonalityProfiles は人格ごとの指示文です。
var PersonalityProfiles = map[Personality]PersonalityProfile{
	PersonalityEnthusiast: {
		Name:        "Enthusiastic Seller",
		Description: "High energy, persuasive, fast-paced.",
		Instruction: "PERSONALITY: You are a star live seller. TONE: High energy, very hyped, and fast-paced. STYLE: Use energetic Indonesian slang (Kakak, Bunda, Gaskeun abis!, Mantul!). Mention names with excitement. End with persuasive calls to action when appropriate.",
	},
	PersonalityExpert: {
		Name:        "Informative Expert",
		Description: "Technical, detailed, professional.",
		Instruction: "PERSONALITY: You are a product specialist. TONE: Professional, calm, and authoritative. STYLE: Clear, informative, and detailed Indonesian. Focus on quality, materials, and comparisons. Address users respectfully by name.",
	},
	PersonalityCompanion: {
		Name:        "Friendly Companion",
		Description: "Casual, warm, relatable.",
		Instruction: "PERSONALITY: You are a shopping bestie. TONE: Warm, empathetic, and gentle. STYLE: Casual and friendly Indonesian (Wah Kak [Name], ini sih favorit aku juga!). Talk like a friend sharing a personal secret or recommendation.",
	},
	PersonalityExpressive: {
		Name:        "Expressive Host",
		Description: "Dynamic, dramatic, storytelling.",
		Instruction: "PERSONALITY: You are a dramatic and expressive storyteller. TONE: High dynamic range, emotional, and varied. STYLE: Use emphasis, dramatic pauses, and rich intonation. Speak like you are telling an engaging story.",
	},
}

// HostProfile は推論プロンプトと音声合成の両方を形作るペルソナ設定です。
type HostProfile struct {
	Gender          Gender      `json:"gender" koanf:"gender"`
	Personality     Personality `json:"personality" koanf:"personality"`
	SellerMode      bool        `json:"seller_mode" koanf:"seller_mode"`
	RoleDescription string      `json:"role_description" koanf:"role_description"`
	Username        string      `json:"username" koanf:"username"`
	GiftDetection   bool        `json:"gift_detection" koanf:"gift_detection"`
	Vision          bool        `json:"vision" koanf:"vision"`
}

// DefaultHostProfile は販売モードの既定プロファイルです。
func DefaultHostProfile() HostProfile {
	return HostProfile{
		Gender:      GenderFemale,
		Personality: PersonalityEnthusiast,
		SellerMode:  true,
		Vision:      true,
	}
}

// NeedsVision は映像スナップショットが必要かどうかを返します。
func (p HostProfile) NeedsVision() bool {
	return p.SellerMode || p.Vision
}

// VoiceKey は声の切り替えを検出するためのキーです。
// 値が変わると再生待ちの音声は破棄されます。
func (p HostProfile) VoiceKey() string {
	return string(p.Gender) + "/" + string(p.Personality)
}

// Validate は未知の性別・人格を拒否します。
func (p HostProfile) Validate() error {
	var errs []error
	switch p.Gender {
	case GenderFemale, GenderMale:
	default:
		errs = append(errs, fmt.Errorf("unknown gender %q", p.Gender))
	}
	if _, ok := PersonalityProfiles[p.Personality]; !ok {
		errs = append(errs, fmt.Errorf("unknown personality %q", p.Personality))
	}
	return errors.Join(errs...)
}

// ProductSpec は商品の仕様1項目です。
type ProductSpec struct {
	Label string `json:"label" koanf:"label"`
	Value string `json:"value" koanf:"value"`
}

// Product はショーケース (etalase) に並ぶ商品です。
type Product struct {
	ID             string        `json:"id" koanf:"id"`
	EtalaseNo      string        `json:"etalase_no" koanf:"etalase_no"`
	Name           string        `json:"name" koanf:"name"`
	Category       string        `json:"category" koanf:"category"`
	Price          string        `json:"price" koanf:"price"`
	Stock          int           `json:"stock" koanf:"stock"`
	Description    string        `json:"description" koanf:"description"`
	Specifications []ProductSpec `json:"specifications" koanf:"specifications"`
}
