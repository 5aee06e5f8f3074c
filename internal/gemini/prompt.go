package gemini

import (
	"fmt"
	"strings"

	"livehost-go/internal/types"
)

const defaultRoleDescription = "You are a friendly, engaging host chatting with viewers."

// AnswerRequest は1回の応答サイクルで推論に渡す文脈です。
type AnswerRequest struct {
	// JPEG エンコード済みの映像スナップショット (任意)
	Snapshot []byte
	// 古い順のコメントのバッチ。空なら proactive サイクル
	Batch      []types.ChatMessage
	Products   []types.Product
	Profile    types.HostProfile
	Mode       types.Mode
	LastAnswer string
}

// SystemInstruction はホストの人格と応答形式を定めるシステム指示を組み立てます。
func SystemInstruction(p types.HostProfile, lastAnswer string) string {
	mode := "MODE: PERSONA (Fokus roleplay karakter unik, santai, deep conversation)."
	if p.SellerMode {
		mode = "MODE: SELLER (Fokus jualan produk, energetic, persuasif)."
	}
	role := p.RoleDescription
	if role == "" {
		role = "Host santai"
	}
	mention := p.Username
	if mention == "" {
		mention = "unknown_host"
	}
	tag := p.Username
	if tag == "" {
		tag = "username"
	}

	var b strings.Builder
	b.WriteString(`ROLE UTAMA:
You are "LiveIn", a REAL HUMAN LIVE STREAMER.
You are NOT an AI. You are NOT reading a script.
You are chatting directly with friends (viewers).

CONTEXT:
`)
	b.WriteString(mode)
	b.WriteString("\n")
	if profile, ok := types.PersonalityProfiles[p.Personality]; ok {
		b.WriteString(profile.Instruction)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `
STRICT VOICE RULES (NON-NEGOTIABLE):
1. NO ROBOTIC FILLERS (DILARANG KERAS):
   - JANGAN MEMULAI KALIMAT DENGAN: "Wah", "Halo", "Hai", "Oke", "Jadi", "Baik", "Tentu".
   - HINDARI KATA SAMBUTAN BASA-BASI.
   - Langsung bereaksi terhadap isi pesan user seolah-olah kamu sudah ngobrol lama.
2. GAYA BICARA:
   - Gunakan bahasa lisan sehari-hari (Gaul/Casual/Slang Indonesia).
   - Kalimat pendek, punchy, flow mengalir.
   - Jangan seperti Customer Service. Jadilah teman atau karakter yang dimainkan.
3. ROLEPLAY (KHUSUS MODE PERSONA):
   - JIWA KAMU ADALAH: %s.
   - Bertingkahlah 100%% sesuai deskripsi itu. Jangan pernah keluar karakter.
`, role)

	if p.GiftDetection {
		b.WriteString(`
PRIORITY 0: GIFT DETECTION
LOOK AT THE IMAGE FIRST. If you see gift notifications ("Sent a Rose", "Mengirim Mawar"),
gift icons or text saying "Sent...", STOP answering normal chats and thank the user
immediately with high energy. Intent must be "gift_thanks".
`)
	}

	fmt.Fprintf(&b, `
PRIORITY 1: DIRECT MENTIONS (@%s)
IF a chat message starts with or contains "@%s", answer that user FIRST.

PRIORITY 2: STANDARD CHAT HANDLING
- ANSWER ONLY THE CHATS IN THE INPUT. DO NOT hallucinate questions from the image background.
- If multiple people ask the same thing, GROUP THEM: "Buat Kak A dan Kak B yang tanya harga..."
- CHECK FOR DIRECT TAGS FIRST (@%s), then prioritize new questions.
- PREVIOUS RESPONSE WAS: %q. DO NOT repeat this information.
- Ensure your response resolves the query and doesn't invite an endless loop.
`, mention, mention, tag, lastAnswer)

	if p.Username != "" {
		fmt.Fprintf(&b, "\nYOUR NAME: %s\n", p.Username)
	}

	b.WriteString(`
RESPONSE FORMAT (STRICT JSON):
{
  "intent": "chat_response" | "visual_spill" | "gift_thanks" | "checkout_thanks" | "ignore",
  "text_answer": "Respon manusiawi, pendek, mengalir, tanpa jeda...",
  "detected_product_id": "DB_ID",
  "confidence": "high" | "medium" | "low"
}
`)
	return b.String()
}

// InventoryContext は販売モードでは商品一覧を、ペルソナモードでは役割の説明を返します。
func InventoryContext(p types.HostProfile, products []types.Product) string {
	if !p.SellerMode {
		role := p.RoleDescription
		if role == "" {
			role = defaultRoleDescription
		}
		return fmt.Sprintf("CUSTOM_HOST_ROLE_DESCRIPTION (JIWA KARAKTER KAMU):\n%q\n\n"+
			"STRICT MODE RULE: You are acting as a SPECIFIC CHARACTER based on the description above. "+
			"You are NOT selling items unless asked. You are here to entertain and chat.", role)
	}
	if len(products) == 0 {
		return "INVENTORY_DATABASE: [EMPTY]"
	}

	lines := make([]string, 0, len(products))
	for _, prod := range products {
		specs := make([]string, 0, len(prod.Specifications))
		for _, s := range prod.Specifications {
			specs = append(specs, s.Label+": "+s.Value)
		}
		lines = append(lines, fmt.Sprintf("ITEM #%s: %s [DB_ID: %s] [Category: %s] - Price: %s, Stock: %d. Details: %s. Description: %s",
			prod.EtalaseNo, prod.Name, prod.ID, prod.Category, prod.Price, prod.Stock, strings.Join(specs, ", "), prod.Description))
	}
	return strings.Join(lines, "\n")
}

// UserPrompt はサイクルごとの指示 (文脈・モード・コメント) を組み立てます。
func UserPrompt(req AnswerRequest) string {
	p := req.Profile
	tag := p.Username
	if tag == "" {
		tag = "username"
	}

	var action string
	if req.Mode == types.ModeProactive {
		if p.SellerMode {
			action = "ACTION: Visual Scan. See the product on screen. Describe it spontaneously (color, shape, material) to fill the silence. Mention the Etalase Number."
		} else {
			action = "ACTION: Visual Scan. Comment on the vibe of the room or the host's appearance briefly. Keep it engaging according to your Persona. Do not repeat previous observations."
		}
		if p.GiftDetection {
			action += " CRITICAL: SCAN FOR GIFTS. If found, thank the user immediately."
		}
	} else {
		action = fmt.Sprintf("ACTION: Chat Response.\nINPUT CHATS: [%s].\n\nEXECUTION ORDER:\n"+
			"1. SCAN for \"@%s\". If found, answer that FIRST.\n"+
			"2. Then answer other questions in the batch.\n"+
			"3. Group similar users.", chatQueries(req.Batch), tag)
		if p.GiftDetection {
			action += " (Also glance at image for Gifts, but prioritize answering questions unless a BIG gift appears)."
		}
	}

	rule := "ROLE_ADHERENCE: Strictly follow the Custom Host Role Description."
	if p.SellerMode {
		rule = "STRICT_SYNC_RULE: Identify products by 'Etalase Number' (ITEM #X) and return 'DB_ID'."
	}

	return fmt.Sprintf("CONTEXT_DATABASE:\n%s\n\n%s\n\n%s\n", InventoryContext(p, req.Products), rule, action)
}

func chatQueries(batch []types.ChatMessage) string {
	if len(batch) == 0 {
		return "No active questions."
	}
	qs := make([]string, len(batch))
	for i, m := range batch {
		qs[i] = fmt.Sprintf("%q", m.Author+": "+m.Body)
	}
	return strings.Join(qs, " | ")
}
