// Package server exposes the chat service and the messenger over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leofalp/chatflow/internal/chat"
	"github.com/leofalp/chatflow/patterns/graph"
	"github.com/leofalp/chatflow/providers/observability"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ChatService is the part of chat.Service the handlers use.
type ChatService interface {
	Reply(ctx context.Context, threadID, text string) (*chat.Reply, error)
	Handle(ctx context.Context, chatID, text string) (*chat.Reply, error)
	Stream(ctx context.Context, threadID, text string, listener func(graph.Snapshot)) (*chat.Reply, error)
	GraphFor(ctx context.Context, agentID string) (*graph.Graph, error)
}

// Messenger delivers messages to the chat gateway.
type Messenger interface {
	SendText(ctx context.Context, chatID, body string) error
	SendImage(ctx context.Context, chatID, url string) error
}

// Config wires the handler. Chat is required; routes whose dependency is
// nil answer 503.
type Config struct {
	Chat      ChatService
	Messenger Messenger
	Metrics   http.Handler
	Observer  observability.Provider
}

type server struct {
	config Config
}

// NewHandler builds the router.
func NewHandler(config Config) http.Handler {
	s := &server{config: config}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Connected"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.chat)
		r.Post("/chat/stream", s.chatStream)
		r.Post("/send-message", s.sendMessage)
		r.Post("/send-image", s.sendImage)
		r.Get("/graph/{agentID}", s.graphNodes)
	})
	if config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", config.Metrics)
	}
	return r
}

// observe attaches the observer to the request context so graph runs and
// outbound calls report through it.
func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.Observer == nil {
			next.ServeHTTP(w, r)
			return
		}
		started := time.Now()
		ctx := observability.ContextWithObserver(r.Context(), s.config.Observer)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.config.Observer.Debug(ctx, "http request",
			observability.String(observability.AttrHTTPMethod, r.Method),
			observability.String("http.path", r.URL.Path),
			observability.Int(observability.AttrHTTPStatusCode, ww.Status()),
			observability.Duration("http.duration", time.Since(started)),
		)
	})
}

type chatRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
	// Send delivers the reply through the messenger as well.
	Send bool `json:"send"`
}

type chatResponse struct {
	ThreadID    string `json:"threadId"`
	Reply       string `json:"reply"`
	Termination string `json:"termination"`
	Iterations  int    `json:"iterations"`
}

func newChatResponse(reply *chat.Reply) chatResponse {
	return chatResponse{
		ThreadID:    reply.ThreadID,
		Reply:       reply.Text,
		Termination: string(reply.Result.Termination),
		Iterations:  reply.Result.Iterations,
	}
}

func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	handle := s.config.Chat.Reply
	if body.Send {
		handle = s.config.Chat.Handle
	}
	reply, err := handle(r.Context(), body.ChatID, body.Message)
	if err != nil {
		s.fail(w, r, "chat failed", err)
		return
	}
	writeJSON(w, http.StatusOK, newChatResponse(reply))
}

// chatStream answers with server-sent events: one "state.graph.updated"
// event per state change, then a "done" event carrying the reply.
func (s *server) chatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	var body chatRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	reply, err := s.config.Chat.Stream(r.Context(), body.ChatID, body.Message, func(snapshot graph.Snapshot) {
		event, err := graph.FormatSSE(snapshot)
		if err != nil {
			return
		}
		_, _ = fmt.Fprint(w, event)
		flusher.Flush()
	})
	if err != nil {
		s.logError(r.Context(), "chat stream failed", err)
		data, _ := json.Marshal(map[string]string{"error": err.Error()})
		_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		flusher.Flush()
		return
	}

	data, _ := json.Marshal(newChatResponse(reply))
	_, _ = fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	flusher.Flush()
}

type sendMessageRequest struct {
	Body   string `json:"body"`
	ChatID string `json:"chatId"`
}

type sendImageRequest struct {
	URL    string `json:"url"`
	ChatID string `json:"chatId"`
}

func (s *server) sendMessage(w http.ResponseWriter, r *http.Request) {
	if s.config.Messenger == nil {
		writeError(w, http.StatusServiceUnavailable, "messenger is not configured")
		return
	}
	var body sendMessageRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ChatID == "" || body.Body == "" {
		writeError(w, http.StatusBadRequest, "chatId and body are required")
		return
	}
	if err := s.config.Messenger.SendText(r.Context(), body.ChatID, body.Body); err != nil {
		s.fail(w, r, "send message failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "Completed"})
}

func (s *server) sendImage(w http.ResponseWriter, r *http.Request) {
	if s.config.Messenger == nil {
		writeError(w, http.StatusServiceUnavailable, "messenger is not configured")
		return
	}
	var body sendImageRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ChatID == "" || body.URL == "" {
		writeError(w, http.StatusBadRequest, "chatId and url are required")
		return
	}
	if err := s.config.Messenger.SendImage(r.Context(), body.ChatID, body.URL); err != nil {
		s.fail(w, r, "send image failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "Completed"})
}

func (s *server) graphNodes(w http.ResponseWriter, r *http.Request) {
	g, err := s.config.Chat.GraphFor(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.fail(w, r, "load graph failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": g.Nodes()})
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logError(r.Context(), msg, err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *server) logError(ctx context.Context, msg string, err error) {
	if s.config.Observer != nil {
		s.config.Observer.Error(ctx, msg, observability.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
