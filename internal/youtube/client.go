package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ErrNoLiveChat はチャンネルにアクティブなライブ配信がないことを示します。
var ErrNoLiveChat = errors.New("no active live chat")

// Comment はライブチャットのコメントデータを保持します。
type Comment struct {
	ID      string
	Author  string
	Message string
	Time    time.Time
	// 配信者自身の投稿
	Owner bool
}

// Client は YouTube Data API でライブチャットを読み書きします。
type Client struct {
	service   *youtube.Service
	channelID string

	mu              sync.Mutex
	liveChatID      string
	lastCommentTime time.Time
	pollInterval    time.Duration
}

// NewClient は新しい Client を作成します。
// 認証済みの HTTP クライアントは option.WithHTTPClient で渡します。
// 起動前のコメントは処理しません。
func NewClient(ctx context.Context, channelID string, opts ...option.ClientOption) (*Client, error) {
	if channelID == "" {
		return nil, errors.New("youtube channel ID is empty")
	}
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("YouTubeサービスAPIの初期化に失敗: %w", err)
	}
	return &Client{
		service:         service,
		channelID:       channelID,
		lastCommentTime: time.Now(),
	}, nil
}

// LiveChatID は現在のライブチャットIDを返します。未取得なら空です。
func (c *Client) LiveChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveChatID
}

// PollInterval は API が推奨する次のポーリングまでの間隔です。
func (c *Client) PollInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollInterval
}

// findLiveChatID はチャンネルのライブ配信からアクティブなライブチャットIDを見つけます。
func (c *Client) findLiveChatID(ctx context.Context) (string, error) {
	slog.Debug("アクティブなライブチャットIDを検索中", "channel_id", c.channelID)

	// 1. ライブ配信中の動画を検索
	searchResponse, err := c.service.Search.List([]string{"id"}).
		Context(ctx).
		ChannelId(c.channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Do()
	if err != nil {
		return "", fmt.Errorf("ライブ動画の検索に失敗: %w", err)
	}
	if len(searchResponse.Items) == 0 || searchResponse.Items[0].Id == nil {
		return "", fmt.Errorf("チャンネル %s: %w", c.channelID, ErrNoLiveChat)
	}
	videoID := searchResponse.Items[0].Id.VideoId

	// 2. 動画IDからライブチャットIDを取得
	videoResponse, err := c.service.Videos.List([]string{"liveStreamingDetails"}).
		Context(ctx).
		Id(videoID).
		Do()
	if err != nil {
		return "", fmt.Errorf("動画の詳細取得に失敗: %w", err)
	}
	if len(videoResponse.Items) == 0 || videoResponse.Items[0].LiveStreamingDetails == nil || videoResponse.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return "", fmt.Errorf("動画 %s: %w", videoID, ErrNoLiveChat)
	}

	liveChatID := videoResponse.Items[0].LiveStreamingDetails.ActiveLiveChatId
	slog.Info("ライブチャットIDを取得しました。", "live_chat_id", liveChatID, "video_id", videoID)
	return liveChatID, nil
}

func (c *Client) ensureLiveChat(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.liveChatID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	id, err := c.findLiveChatID(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.liveChatID = id
	c.mu.Unlock()
	return id, nil
}

// FetchLiveChatMessages は前回より新しいコメントを古い順に返します。
func (c *Client) FetchLiveChatMessages(ctx context.Context) ([]Comment, error) {
	liveChatID, err := c.ensureLiveChat(ctx)
	if err != nil {
		return nil, fmt.Errorf("ライブチャットIDの取得に失敗: %w", err)
	}

	response, err := c.service.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).
		Context(ctx).
		MaxResults(200).
		Do()
	if err != nil {
		if isChatEnded(err) {
			// 次のポーリングで再検索する
			slog.Warn("ライブチャットが終了しました。liveChatIDをリセットします。")
			c.mu.Lock()
			c.liveChatID = ""
			c.mu.Unlock()
		}
		return nil, fmt.Errorf("ライブチャットメッセージの取得に失敗: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollInterval = time.Duration(response.PollingIntervalMillis) * time.Millisecond

	var comments []Comment
	latest := c.lastCommentTime
	for _, item := range response.Items {
		if item.Snippet == nil {
			continue
		}
		published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			slog.Warn("コメント時間のパースに失敗", "error", err, "time_string", item.Snippet.PublishedAt)
			continue
		}
		if !published.After(c.lastCommentTime) {
			continue
		}
		comment := Comment{
			ID:      item.Id,
			Message: item.Snippet.DisplayMessage,
			Time:    published,
		}
		if item.AuthorDetails != nil {
			comment.Author = item.AuthorDetails.DisplayName
			comment.Owner = item.AuthorDetails.IsChatOwner
		}
		comments = append(comments, comment)
		if published.After(latest) {
			latest = published
		}
	}
	c.lastCommentTime = latest
	return comments, nil
}

// PostComment はライブチャットにコメントを投稿します。
func (c *Client) PostComment(ctx context.Context, message string) error {
	liveChatID, err := c.ensureLiveChat(ctx)
	if err != nil {
		return fmt.Errorf("ライブチャットIDの取得に失敗: %w", err)
	}

	comment := &youtube.LiveChatMessage{
		Snippet: &youtube.LiveChatMessageSnippet{
			LiveChatId: liveChatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &youtube.LiveChatTextMessageDetails{
				MessageText: message,
			},
		},
	}
	if _, err := c.service.LiveChatMessages.Insert([]string{"snippet"}, comment).Context(ctx).Do(); err != nil {
		return fmt.Errorf("コメントの投稿に失敗: %w", err)
	}
	slog.Debug("コメントを投稿しました。", "live_chat_id", liveChatID, "message_len", len(message))
	return nil
}

func isChatEnded(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			if item.Reason == "liveChatEnded" || item.Reason == "liveChatNotFound" {
				return true
			}
		}
	}
	return strings.Contains(err.Error(), "liveChatEnded")
}
