package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bountyexchange/core"
	"bountyexchange/observability"
	"bountyexchange/rpc/middleware"
	"bountyexchange/storage/eventlog"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	shutdownTimeout = 10 * time.Second
)

// ServerConfig tunes the JSON-RPC server.
type ServerConfig struct {
	RequireSignatures bool
	SignatureSkew     time.Duration
	ServiceName       string
	MetricsEnabled    bool
	LogRequests       bool
	Auth              middleware.AuthConfig
	RateLimit         middleware.RateLimit
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// call is one decoded request handed to a method handler.
type call struct {
	method string
	caller [20]byte
	params json.RawMessage
}

func (c *call) decode(out interface{}) error {
	if len(c.params) == 0 {
		return newParamError("params object required")
	}
	if err := json.Unmarshal(c.params, out); err != nil {
		return newParamError(err.Error())
	}
	return nil
}

type handlerFunc func(ctx context.Context, c *call) (interface{}, error)

type method struct {
	signed bool
	fn     handlerFunc
}

// Server exposes the exchange over JSON-RPC, plus health, metrics and the
// event stream.
type Server struct {
	node     *core.Node
	events   *eventlog.Log
	hub      *Hub
	cfg      ServerConfig
	logger   *slog.Logger
	replay   *replayCache
	methods  map[string]method
	clockNow func() time.Time
}

// NewServer wires the server to node and, when non-nil, to the event log that
// backs bounty_listEvents and the websocket backlog.
func NewServer(node *core.Node, events *eventlog.Log, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SignatureSkew <= 0 {
		cfg.SignatureSkew = 5 * time.Minute
	}
	s := &Server{
		node:     node,
		events:   events,
		hub:      NewHub(),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "rpc")),
		replay:   newReplayCache(2 * cfg.SignatureSkew),
		clockNow: time.Now,
	}
	if events != nil {
		events.OnAppend(s.hub.Publish)
	}
	s.methods = s.registerMethods()
	return s
}

// Hub returns the fan-out used by websocket subscribers.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	var registerer prometheus.Registerer
	if s.cfg.MetricsEnabled {
		registerer = prometheus.DefaultRegisterer
	}
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: s.cfg.ServiceName,
		LogRequests: s.cfg.LogRequests,
		Registerer:  registerer,
	}, s.logger)
	limiter := middleware.NewRateLimiter(s.cfg.RateLimit)
	limiter.OnThrottle = func(string) {
		observability.ModuleMetrics().RecordThrottle("http", "rate_limit")
	}
	auth := middleware.NewAuthenticator(s.cfg.Auth, s.logger)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.With(obs.Middleware("rpc"), limiter.Middleware, auth.Middleware).Post("/", s.handle)
	r.With(obs.Middleware("ws"), auth.Middleware).Get("/ws/events", s.handleEventsWS)
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle decodes one JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	module, name := splitMethod(req.Method)
	start := s.clockNow()
	status := s.dispatch(w, r, req)
	observability.ModuleMetrics().Observe(module, name, status, s.clockNow().Sub(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return http.StatusNotFound
	}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "at most one parameter object expected")
		return http.StatusBadRequest
	}
	c := &call{method: req.Method}
	if len(req.Params) == 1 {
		c.params = req.Params[0]
	}
	if m.signed {
		caller, err := s.authenticateCall(req.Method, c.params)
		if err != nil {
			if errors.Is(err, errReplayedCall) {
				observability.ModuleMetrics().RecordThrottle("rpc", "replay")
			}
			return s.writeCallError(w, r, req, err)
		}
		c.caller = caller
	}
	result, err := m.fn(r.Context(), c)
	if err != nil {
		return s.writeCallError(w, r, req, err)
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}

func (s *Server) writeCallError(w http.ResponseWriter, r *http.Request, req *RPCRequest, err error) int {
	status, code, message := classify(err)
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "rpc call rejected",
		slog.String("method", req.Method),
		slog.String("requestId", middleware.RequestID(r.Context())),
		slog.Int("status", status),
		slog.Any("error", err))
	writeError(w, status, req.ID, code, message, err.Error())
	return status
}

func splitMethod(m string) (string, string) {
	if idx := strings.Index(m, "_"); idx > 0 {
		return m[:idx], m[idx+1:]
	}
	return "unknown", m
}
