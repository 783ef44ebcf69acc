package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
)

const defaultAddr = ":8000"

type Config struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogSource interface {
	GetLastLogs(n int) []string
}

type ArchiveReader interface {
	ListExecutions(ctx context.Context, limit int) ([]agent.ExecutionRecord, error)
}

type Options struct {
	Languages       []string
	DefaultLanguage string
	// Logs backs GET /api/logs when set.
	Logs LogSource
	// Archive backs GET /api/history?source=archive when set.
	Archive ArchiveReader
}

// Server exposes an Executor over JSON HTTP and a WebSocket frame protocol.
type Server struct {
	executor *agent.Executor
	opts     Options
	upgrader websocket.Upgrader
	http     *http.Server
}

func New(cfg Config, executor *agent.Executor, opts Options) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"en", "ja"}
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = opts.Languages[0]
	}

	s := &Server{
		executor: executor,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/execute-task", s.handleExecuteTask)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return logRequests(mux)
}

// ListenAndServe blocks until the server stops. A Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.http.Addr).Msg("🌐 HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("🛑 HTTP server shutting down")
	return s.http.Shutdown(ctx)
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
