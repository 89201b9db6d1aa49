// Package server exposes the conversation controller over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/jewelbot/internal/controller"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultMaxRequestBodySize bounds /chat bodies; images arrive inline as data URLs.
const defaultMaxRequestBodySize = 8 << 20

// Options configures a Server.
type Options struct {
	RateLimit      int           // turns per window per thread; 0 disables limiting
	RateWindow     time.Duration // default one minute
	MaxRequestBody int64
	Logger         *zap.Logger
}

// Server serves the chat API.
type Server struct {
	turns      Turner
	dispatcher *Dispatcher
	limiter    *RateLimiter
	maxBody    int64
	logger     *zap.Logger
	router     chi.Router
}

// New builds a Server around turns. Call Close to release the rate limiter.
func New(turns Turner, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := opts.MaxRequestBody
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBodySize
	}
	limiter := NewRateLimiter(opts.RateLimit, opts.RateWindow)

	s := &Server{
		turns:      turns,
		dispatcher: NewDispatcher(turns, limiter, logger),
		limiter:    limiter,
		maxBody:    maxBody,
		logger:     logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/reset", s.handleReset)
	r.Get("/sessions/{threadID}", s.handleSession)
	r.Get("/ws", s.handleWebSocket)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Dispatcher returns the command dispatcher shared with other transports.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Close stops background work.
func (s *Server) Close() { s.limiter.Stop() }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🚀 listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query    string `json:"query"`
	Image    string `json:"image,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response string   `json:"response"`
	Images   []string `json:"images"`
	ThreadID string   `json:"thread_id"`
}

type resetRequest struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		req.ThreadID = uuid.NewString()
	}
	if !s.limiter.Allow(req.ThreadID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	in := controller.Input{Text: req.Query}
	if req.Image != "" {
		in.Images = []string{req.Image}
	}

	reply, err := s.turns.RunTurn(r.Context(), req.ThreadID, in)
	if err != nil {
		status := statusFor(err)
		s.logTurnError(r, req.ThreadID, status, err)
		if status == http.StatusBadRequest {
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, status, ChatResponse{Response: ClientMessage(err), Images: []string{}, ThreadID: req.ThreadID})
		return
	}

	images := reply.Images
	if images == nil {
		images = []string{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: reply.Text, Images: images, ThreadID: req.ThreadID})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.turns.Reset(r.Context(), req.ThreadID); err != nil {
		status := statusFor(err)
		s.logTurnError(r, req.ThreadID, status, err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "threadID")
	sess, err := s.turns.Session(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case err != nil:
		s.logTurnError(r, id, http.StatusInternalServerError, err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) logTurnError(r *http.Request, threadID string, status int, err error) {
	fields := []zap.Field{
		zap.String("thread_id", threadID),
		zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	var violation *engine.InvariantViolation
	if errors.As(err, &violation) {
		s.logger.Error("invariant violation", append(fields, zap.ByteString("stack", violation.Stack))...)
		return
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("turn failed", fields...)
	}
}

// statusFor maps a controller error to an HTTP status.
func statusFor(err error) int {
	switch {
	case isBadInput(err):
		return http.StatusBadRequest
	case engine.IsInvariantViolation(err):
		return http.StatusInternalServerError
	case engine.IsExternal(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
					zap.String("remote", r.RemoteAddr),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
