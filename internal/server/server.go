package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"livehost-go/internal/pipeline"
	"livehost-go/internal/types"
)

// Controller はダッシュボードから操作するライブセッションです。
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Pause() error
	Resume() error
	Ingest(msgs ...types.ChatMessage)
	SetRegion(kind pipeline.RegionKind, r types.Region) error
	SetProfile(p types.HostProfile) error
	SetProducts(products []types.Product)
	Snapshot() pipeline.StatusSnapshot
	History() []types.ChatMessage
	Pending() []types.ChatMessage
	Journal() *pipeline.Journal
}

// Server はセッションの状態と操作を HTTP と WebSocket で公開します。
type Server struct {
	Router  *chi.Mux
	addr    string
	session Controller

	// 状態をプッシュする間隔
	statusInterval time.Duration
	upgrader       websocket.Upgrader
	// Start で受け取ったコンテキスト。セッションの開始に使う
	base context.Context
}

// New は新しい Server を作成します。
func New(addr string, session Controller) *Server {
	s := &Server{
		addr:           addr,
		session:        session,
		statusInterval: time.Second,
		upgrader: websocket.Upgrader{
			// ローカルのダッシュボードからの接続のみを想定
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		base: context.Background(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "livehost-api")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/chats", s.handleChats)
		r.Post("/chats", s.handleIngest)
		r.Get("/queue", s.handleQueue)
		r.Get("/logs", s.handleLogs)
		r.Put("/regions/{kind}", s.handleRegion)
		r.Put("/profile", s.handleProfile)
		r.Put("/products", s.handleProducts)
		r.Post("/session/start", s.handleStart)
		r.Post("/session/stop", s.handleStop)
		r.Post("/session/pause", s.handlePause)
		r.Post("/session/resume", s.handleResume)
		r.Get("/events", s.handleEvents)
	})

	s.Router = r
	return s
}

// Start はサーバーを起動し、ctx が終了するまでリクエストを処理します。
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("APIサーバーの起動に失敗: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ln でリクエストを処理します。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.base = ctx
	srv := &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("APIサーバーを起動しました。", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("APIサーバーの停止に失敗: %w", err)
		}
		return nil
	}
}

// requestLogger はリクエストを構造化ログに記録します。
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
