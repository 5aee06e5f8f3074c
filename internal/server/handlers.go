package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"livehost-go/internal/pipeline"
	"livehost-go/internal/types"
)

// リクエストボディの上限
const maxBodyBytes = 1 << 20

// Event は /api/events で送るメッセージです。
type Event struct {
	Type   string                   `json:"type"` // "log" または "status"
	Entry  *types.LogEntry          `json:"entry,omitempty"`
	Status *pipeline.StatusSnapshot `json:"status,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// chatInput は手動で投入するコメントです。
type chatInput struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました。", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	chats := s.session.History()
	if chats == nil {
		chats = []types.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, chats)
}

// handleQueue は回答待ちのコメントを受付順に返します。
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	pending := s.session.Pending()
	if pending == nil {
		pending = []types.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var in []chatInput
	if !decodeJSON(w, r, &in) {
		return
	}
	now := time.Now()
	msgs := make([]types.ChatMessage, 0, len(in))
	for _, c := range in {
		body := strings.TrimSpace(c.Body)
		if body == "" {
			continue
		}
		author := strings.TrimSpace(c.Author)
		if author == "" {
			author = types.UnknownAuthor
		}
		msgs = append(msgs, types.ChatMessage{
			ID:         "api_" + uuid.NewString(),
			Author:     author,
			Body:       body,
			ObservedAt: now,
		})
	}
	if len(msgs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no comments with a body"))
		return
	}
	s.session.Ingest(msgs...)
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(msgs)})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.session.Journal().Entries()
	if entries == nil {
		entries = []types.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	var region types.Region
	if !decodeJSON(w, r, &region) {
		return
	}
	kind := pipeline.RegionKind(chi.URLParam(r, "kind"))
	if err := s.session.SetRegion(kind, region); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, region)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var profile types.HostProfile
	if !decodeJSON(w, r, &profile) {
		return
	}
	if err := s.session.SetProfile(profile); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	var products []types.Product
	if !decodeJSON(w, r, &products) {
		return
	}
	s.session.SetProducts(products)
	writeJSON(w, http.StatusOK, map[string]int{"products": len(products)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(s.base); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.session.Stop()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Pause(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Resume(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleEvents は回答の再生開始と定期的な状態を WebSocket でプッシュします。
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket のアップグレードに失敗しました。", "error", err)
		return
	}
	defer conn.Close()

	entries, unsubscribe := s.session.Journal().Subscribe(16)
	defer unsubscribe()

	// クライアントからの読み取りは切断の検知にだけ使う
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	send := func(ev Event) bool {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			slog.Debug("WebSocket への送信に失敗しました。", "error", err)
			return false
		}
		return true
	}

	status := s.session.Snapshot()
	if !send(Event{Type: "status", Status: &status}) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-closed:
			return
		case e := <-entries:
			if !send(Event{Type: "log", Entry: &e}) {
				return
			}
		case <-ticker.C:
			status := s.session.Snapshot()
			if !send(Event{Type: "status", Status: &status}) {
				return
			}
		}
	}
}
