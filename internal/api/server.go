// Package api exposes the daemon's HTTP surface: send and chat operations,
// read access to conversations, the send audit log, and a WebSocket event
// stream mirroring the internal bus.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pvieira/imsgd/internal/action"
	"github.com/pvieira/imsgd/internal/bus"
	"github.com/pvieira/imsgd/internal/outgoing"
	"github.com/pvieira/imsgd/internal/status"
	"github.com/pvieira/imsgd/internal/store"
)

// Actions is the slice of the orchestrator the handlers call.
type Actions interface {
	SendText(ctx context.Context, chatGUID, text, subject, token string) (*action.SendResult, error)
	SendAttachment(ctx context.Context, chatGUID, path, token string) (*action.SendResult, error)
	RenameChat(ctx context.Context, chatGUID, newName string) error
	AddParticipant(ctx context.Context, chatGUID, address string) error
	RemoveParticipant(ctx context.Context, chatGUID, address string) error
	SendTapback(ctx context.Context, chatGUID string, reaction int) error
	OpenChat(ctx context.Context, chatGUID string) error
	CheckTyping(ctx context.Context, chatGUID string) (bool, error)
}

// Server is the daemon's HTTP server.
type Server struct {
	addr    string
	session string
	actions Actions
	chats   *store.ChatDB
	app     *store.AppDB
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	httpSrv  *http.Server
	listener net.Listener
}

// New creates a server bound to addr once started.
func New(addr, session string, actions Actions, chats *store.ChatDB, app *store.AppDB, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		session: session,
		actions: actions,
		chats:   chats,
		app:     app,
		bus:     b,
		machine: machine,
		logger:  logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/ping", s.handlePing)
	mux.HandleFunc("GET /api/v1/server/info", s.handleServerInfo)

	mux.HandleFunc("GET /api/v1/chat", s.handleListChats)
	mux.HandleFunc("GET /api/v1/chat/{guid}", s.handleGetChat)
	mux.HandleFunc("GET /api/v1/chat/{guid}/message", s.handleListMessages)
	mux.HandleFunc("PUT /api/v1/chat/{guid}/name", s.handleRenameChat)
	mux.HandleFunc("POST /api/v1/chat/{guid}/participant/add", s.handleAddParticipant)
	mux.HandleFunc("POST /api/v1/chat/{guid}/participant/remove", s.handleRemoveParticipant)
	mux.HandleFunc("POST /api/v1/chat/{guid}/tapback", s.handleTapback)
	mux.HandleFunc("POST /api/v1/chat/{guid}/read", s.handleOpenChat)
	mux.HandleFunc("GET /api/v1/chat/{guid}/typing", s.handleTyping)

	mux.HandleFunc("POST /api/v1/message/text", s.handleSendText)
	mux.HandleFunc("POST /api/v1/message/attachment", s.handleSendAttachment)
	mux.HandleFunc("GET /api/v1/message/sendlog", s.handleSendLog)
	mux.HandleFunc("GET /api/v1/message/{guid}", s.handleGetMessage)

	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	return s.logRequests(mux)
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http api listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Addr returns the bound address, useful when addr was ":0".
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses: a send that never
// matched is a timeout, a repeated token a conflict, and automation
// failures a bad gateway (the daemon is fine, the Messages app is not).
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var derr *action.DispatchError
	switch {
	case errors.Is(err, outgoing.ErrMatchTimeout):
		s.writeJSON(w, http.StatusRequestTimeout, errorBody{Error: err.Error()})
	case errors.Is(err, outgoing.ErrDuplicateToken):
		s.writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.As(err, &derr), errors.Is(err, action.ErrNoCandidateSucceeded):
		s.writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	default:
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}
