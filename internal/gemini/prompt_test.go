package gemini

import (
	"strings"
	"testing"

	"livehost-go/internal/types"
)

func TestUserPrompt(t *testing.T) {
	products := []types.Product{{
		ID: "p1", EtalaseNo: "3", Name: "Kaos Polos", Category: "Fashion", Price: "Rp 89.000", Stock: 12,
		Description:    "Cotton combed 30s",
		Specifications: []types.ProductSpec{{Label: "Size", Value: "M-XL"}},
	}}
	batch := []types.ChatMessage{{Author: "Budi", Body: "Harga berapa kak?"}, {Author: "Sari", Body: "@tokoku ready?"}}

	seller := types.DefaultHostProfile()
	seller.Username = "tokoku"

	persona := types.DefaultHostProfile()
	persona.SellerMode = false
	persona.RoleDescription = "Penjaga warung kopi yang sinis"

	tests := []struct {
		name    string
		req     AnswerRequest
		want    []string
		notWant []string
	}{
		{
			name: "seller reactive",
			req:  AnswerRequest{Batch: batch, Products: products, Profile: seller, Mode: types.ModeReactive},
			want: []string{
				"ITEM #3: Kaos Polos [DB_ID: p1] [Category: Fashion] - Price: Rp 89.000, Stock: 12. Details: Size: M-XL.",
				`"Budi: Harga berapa kak?" | "Sari: @tokoku ready?"`,
				`SCAN for "@tokoku"`,
				"STRICT_SYNC_RULE",
			},
			notWant: []string{"Visual Scan"},
		},
		{
			name: "seller proactive with empty catalog",
			req:  AnswerRequest{Profile: seller, Mode: types.ModeProactive},
			want: []string{"INVENTORY_DATABASE: [EMPTY]", "Mention the Etalase Number"},
		},
		{
			name: "persona proactive with gifts",
			req: AnswerRequest{Profile: func() types.HostProfile {
				p := persona
				p.GiftDetection = true
				return p
			}(), Mode: types.ModeProactive},
			want:    []string{"Penjaga warung kopi yang sinis", "vibe of the room", "SCAN FOR GIFTS", "ROLE_ADHERENCE"},
			notWant: []string{"ITEM #"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserPrompt(tt.req)
			for _, s := range tt.want {
				if !strings.Contains(got, s) {
					t.Errorf("prompt missing %q:\n%s", s, got)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(got, s) {
					t.Errorf("prompt unexpectedly contains %q", s)
				}
			}
		})
	}
}

func TestSystemInstruction(t *testing.T) {
	p := types.DefaultHostProfile()
	p.Personality = types.PersonalityExpert
	p.Username = "tokoku"

	got := SystemInstruction(p, "Harganya 89 ribu.")
	for _, s := range []string{
		"MODE: SELLER",
		types.PersonalityProfiles[types.PersonalityExpert].Instruction,
		"@tokoku",
		`PREVIOUS RESPONSE WAS: "Harganya 89 ribu."`,
		"YOUR NAME: tokoku",
		`"intent": "chat_response"`,
	} {
		if !strings.Contains(got, s) {
			t.Errorf("system instruction missing %q", s)
		}
	}
	if strings.Contains(got, "GIFT DETECTION") {
		t.Error("gift detection block present while disabled")
	}
}

func TestVoiceAndStyle(t *testing.T) {
	if got := VoiceName(types.GenderMale); got != "Fenrir" {
		t.Errorf("VoiceName(male) = %q", got)
	}
	if got := VoiceName(types.GenderFemale); got != "Kore" {
		t.Errorf("VoiceName(female) = %q", got)
	}
	if got := StyledText("halo", types.PersonalityExpressive); !strings.HasPrefix(got, toneWrappers[types.PersonalityEnthusiast]) {
		t.Errorf("StyledText() fallback = %q", got)
	}
	if got := StyledText("halo", types.PersonalityCompanion); !strings.HasSuffix(got, "] halo") {
		t.Errorf("StyledText() = %q", got)
	}
}
