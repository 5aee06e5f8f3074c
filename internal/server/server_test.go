package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livehost-go/internal/audio"
	"livehost-go/internal/gemini"
	"livehost-go/internal/pipeline"
	"livehost-go/internal/types"
)

type stubAnswerer struct{}

func (stubAnswerer) Answer(_ context.Context, req gemini.AnswerRequest) (types.AIAnswer, error) {
	if len(req.Batch) == 0 {
		return types.IgnoreAnswer(), nil
	}
	return types.AIAnswer{
		Intent:     types.IntentChatResponse,
		TextAnswer: "Kak " + req.Batch[0].Author + ", 89 ribu aja!",
		Confidence: types.ConfidenceHigh,
	}, nil
}

type stubSynth struct{}

func (stubSynth) Synthesize(context.Context, string, types.HostProfile) ([]byte, error) {
	return make([]byte, 96), nil
}

type instantSink struct{}

func (instantSink) Play(context.Context, *audio.Clip) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Session) {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Brain.Interval = 5 * time.Millisecond
	cfg.Brain.FollowUp = time.Millisecond
	cfg.Brain.ProactiveAfter = time.Hour

	session := pipeline.NewSession(cfg, pipeline.Components{
		Answerer: stubAnswerer{},
		Synth:    stubSynth{},
		Sink:     instantSink{},
	}, types.DefaultHostProfile(), nil)
	t.Cleanup(session.Stop)

	srv := httptest.NewServer(New("", session).Router)
	t.Cleanup(srv.Close)
	return srv, session
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestControlEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"status", http.MethodGet, "/api/status", "", http.StatusOK},
		{"ingest", http.MethodPost, "/api/chats", `[{"author":"Budi","body":"harga?"},{"author":"","body":"ready?"}]`, http.StatusAccepted},
		{"ingest without body", http.MethodPost, "/api/chats", `[{"author":"Budi","body":"  "}]`, http.StatusBadRequest},
		{"chat region", http.MethodPut, "/api/regions/chat", `{"x":10,"y":20,"width":300,"height":400}`, http.StatusOK},
		{"unknown region", http.MethodPut, "/api/regions/overlay", `{"x":0,"y":0,"width":1,"height":1}`, http.StatusBadRequest},
		{"negative region", http.MethodPut, "/api/regions/vision", `{"x":-1,"y":0,"width":1,"height":1}`, http.StatusBadRequest},
		{"malformed json", http.MethodPut, "/api/regions/chat", `{"x":`, http.StatusBadRequest},
		{"unknown field", http.MethodPut, "/api/regions/chat", `{"left":1}`, http.StatusBadRequest},
		{"profile", http.MethodPut, "/api/profile", `{"gender":"male","personality":"expert","seller_mode":true}`, http.StatusOK},
		{"invalid profile", http.MethodPut, "/api/profile", `{"gender":"male","personality":"robot"}`, http.StatusBadRequest},
		{"products", http.MethodPut, "/api/products", `[{"id":"1","name":"Kaos","price":"89000","stock":3}]`, http.StatusOK},
		{"logs", http.MethodGet, "/api/logs", "", http.StatusOK},
		{"queue", http.MethodGet, "/api/queue", "", http.StatusOK},
		{"pause before start", http.MethodPost, "/api/session/pause", "", http.StatusConflict},
		{"resume before start", http.MethodPost, "/api/session/resume", "", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
		})
	}

	_, body := do(t, http.MethodGet, srv.URL+"/api/status", "")
	var snap pipeline.StatusSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snap.Waitlist != 2 || snap.ChatRegion.Width != 300 || snap.Profile.Personality != types.PersonalityExpert {
		t.Errorf("snapshot = %+v", snap)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/chats", "")
	var chats []types.ChatMessage
	if err := json.Unmarshal(body, &chats); err != nil {
		t.Fatalf("decode chats: %v", err)
	}
	if len(chats) != 2 || chats[0].Author != types.UnknownAuthor {
		t.Errorf("chats = %+v", chats)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/queue", "")
	var queue []types.ChatMessage
	if err := json.Unmarshal(body, &queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(queue) != 2 || queue[0].Author != "Budi" {
		t.Errorf("queue = %+v", queue)
	}
}

func TestPauseKeepsCapturing(t *testing.T) {
	srv, session := newTestServer(t)

	if resp, body := do(t, http.MethodPost, srv.URL+"/api/session/start", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("start = %d %s", resp.StatusCode, body)
	}
	resp, body := do(t, http.MethodPost, srv.URL+"/api/session/pause", "")
	var snap pipeline.StatusSnapshot
	json.Unmarshal(body, &snap)
	if resp.StatusCode != http.StatusOK || snap.Status != types.StatusCapturing {
		t.Fatalf("pause = %d %+v", resp.StatusCode, snap)
	}

	do(t, http.MethodPost, srv.URL+"/api/chats", `[{"author":"Budi","body":"harga berapa?"}]`)
	time.Sleep(50 * time.Millisecond)

	_, body = do(t, http.MethodGet, srv.URL+"/api/queue", "")
	var queue []types.ChatMessage
	json.Unmarshal(body, &queue)
	if len(queue) != 1 {
		t.Errorf("queue while paused = %+v", queue)
	}
	if snap := session.Snapshot(); snap.Status != types.StatusCapturing || snap.Answered != 0 {
		t.Errorf("snapshot while paused = %+v", snap)
	}

	if resp, body := do(t, http.MethodPost, srv.URL+"/api/session/resume", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("resume = %d %s", resp.StatusCode, body)
	}
	deadline := time.After(3 * time.Second)
	for session.Snapshot().Answered == 0 {
		select {
		case <-deadline:
			t.Fatal("no answer after resume")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEventsStreamAnswers(t *testing.T) {
	srv, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial event: %v", err)
	}
	if first.Type != "status" || first.Status == nil || first.Status.Status != types.StatusIdle {
		t.Fatalf("initial event = %+v", first)
	}

	do(t, http.MethodPost, srv.URL+"/api/chats", `[{"author":"Budi","body":"harga berapa?"}]`)
	if resp, body := do(t, http.MethodPost, srv.URL+"/api/session/start", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("start = %d %s", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/api/session/start", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("second start = %d, want 409", resp.StatusCode)
	}

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("no log event: %v", err)
		}
		if ev.Type != "log" {
			continue
		}
		if ev.Entry == nil || ev.Entry.User != "Budi" || ev.Entry.Answer != "Kak Budi, 89 ribu aja!" {
			t.Errorf("log event = %+v", ev.Entry)
		}
		break
	}

	resp, body := do(t, http.MethodPost, srv.URL+"/api/session/stop", "")
	var snap pipeline.StatusSnapshot
	json.Unmarshal(body, &snap)
	if resp.StatusCode != http.StatusOK || snap.Status != types.StatusIdle || snap.Answered != 1 {
		t.Errorf("stop = %d %+v", resp.StatusCode, snap)
	}
}
