package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
)

// fakeAPI は YouTube Data API のうちライブチャットに使う部分だけを模倣します。
type fakeAPI struct {
	mu       sync.Mutex
	live     bool
	ended    bool
	messages string
	posted   []string
	searches int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, "/search"):
		f.searches++
		if !f.live {
			fmt.Fprint(w, `{"items":[]}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":{"kind":"youtube#video","videoId":"v1"}}]}`)
	case strings.HasSuffix(r.URL.Path, "/videos"):
		fmt.Fprint(w, `{"items":[{"id":"v1","liveStreamingDetails":{"activeLiveChatId":"chat-1"}}]}`)
	case strings.HasSuffix(r.URL.Path, "/liveChat/messages") && r.Method == http.MethodGet:
		if f.ended {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"code":403,"message":"ended","errors":[{"reason":"liveChatEnded"}]}}`)
			return
		}
		fmt.Fprint(w, f.messages)
	case strings.HasSuffix(r.URL.Path, "/liveChat/messages") && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var msg struct {
			Snippet struct {
				LiveChatID         string `json:"liveChatId"`
				TextMessageDetails struct {
					MessageText string `json:"messageText"`
				} `json:"textMessageDetails"`
			} `json:"snippet"`
		}
		json.Unmarshal(body, &msg)
		f.posted = append(f.posted, msg.Snippet.LiveChatID+":"+msg.Snippet.TextMessageDetails.MessageText)
		fmt.Fprint(w, `{}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "channel-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func messagesJSON(published time.Time) string {
	return fmt.Sprintf(`{"pollingIntervalMillis":3000,"items":[
		{"id":"old","snippet":{"publishedAt":%q,"displayMessage":"lama"},"authorDetails":{"displayName":"Lama"}},
		{"id":"m1","snippet":{"publishedAt":%q,"displayMessage":"harga berapa?"},"authorDetails":{"displayName":"Budi"}},
		{"id":"m2","snippet":{"publishedAt":%q,"displayMessage":"makasih"},"authorDetails":{"displayName":"Toko","isChatOwner":true}}
	]}`,
		published.Add(-time.Hour).Format(time.RFC3339),
		published.Format(time.RFC3339),
		published.Add(time.Second).Format(time.RFC3339))
}

func TestFetchLiveChatMessages(t *testing.T) {
	api := &fakeAPI{live: true, messages: messagesJSON(time.Now().Add(time.Minute))}
	c := newTestClient(t, api)
	ctx := context.Background()

	got, err := c.FetchLiveChatMessages(ctx)
	if err != nil {
		t.Fatalf("FetchLiveChatMessages() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d comments, want 2 (backlog skipped): %+v", len(got), got)
	}
	if got[0].Author != "Budi" || got[0].Message != "harga berapa?" || got[0].Owner {
		t.Errorf("first = %+v", got[0])
	}
	if !got[1].Owner {
		t.Errorf("owner flag lost: %+v", got[1])
	}
	if c.LiveChatID() != "chat-1" || c.PollInterval() != 3*time.Second {
		t.Errorf("LiveChatID() = %q, PollInterval() = %s", c.LiveChatID(), c.PollInterval())
	}

	// 同じ応答を再度受け取っても新しいコメントはない
	again, err := c.FetchLiveChatMessages(ctx)
	if err != nil || len(again) != 0 {
		t.Errorf("second fetch = %+v, %v", again, err)
	}

	if err := c.PostComment(ctx, "89 ribu kak"); err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.posted) != 1 || api.posted[0] != "chat-1:89 ribu kak" {
		t.Errorf("posted = %v", api.posted)
	}
}

func TestFetchWithoutLiveBroadcast(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	_, err := c.FetchLiveChatMessages(context.Background())
	if !errors.Is(err, ErrNoLiveChat) {
		t.Errorf("error = %v, want ErrNoLiveChat", err)
	}
}

func TestChatEndedResetsLiveChatID(t *testing.T) {
	api := &fakeAPI{live: true, ended: true}
	c := newTestClient(t, api)

	if _, err := c.FetchLiveChatMessages(context.Background()); err == nil {
		t.Fatal("expected an error for an ended chat")
	}
	if c.LiveChatID() != "" {
		t.Errorf("LiveChatID() = %q after chat ended", c.LiveChatID())
	}

	api.mu.Lock()
	api.ended = false
	api.messages = `{"items":[]}`
	api.mu.Unlock()
	if _, err := c.FetchLiveChatMessages(context.Background()); err != nil {
		t.Fatalf("refetch error = %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.searches != 2 {
		t.Errorf("searches = %d, want a fresh lookup", api.searches)
	}
}
