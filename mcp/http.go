package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ashishvijaywargiya/ofbiz-mcp/jsonrpc"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// DefaultEndpointPath is where JSON-RPC requests are posted and the event
// stream is opened.
const DefaultEndpointPath = "/mcp"

const sessionIDHeader = "Mcp-Session-Id"

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// HTTPHandler binds a JSON-RPC handler to HTTP. POST carries requests and
// responses; GET opens the server-sent event stream that announces the
// POST endpoint.
type HTTPHandler struct {
	handler   jsonrpc.Handler
	path      string
	keepAlive time.Duration
	logger    *slog.Logger
}

var _ http.Handler = (*HTTPHandler)(nil)

// HTTPOption configures an HTTPHandler
type HTTPOption func(*HTTPHandler)

// WithEndpointPath sets the path served by the handler
func WithEndpointPath(path string) HTTPOption {
	return func(h *HTTPHandler) { h.path = path }
}

// WithKeepAlive sets the interval between keep-alive comments on the event
// stream. Zero disables them.
func WithKeepAlive(d time.Duration) HTTPOption {
	return func(h *HTTPHandler) { h.keepAlive = d }
}

// WithHTTPLogger sets the logger used for transport events
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPHandler) { h.logger = logger }
}

// NewHTTPHandler creates an HTTP transport for handler
func NewHTTPHandler(handler jsonrpc.Handler, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		handler:   handler,
		path:      DefaultEndpointPath,
		keepAlive: 30 * time.Second,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Path returns the endpoint path served by the handler
func (h *HTTPHandler) Path() string {
	return h.path
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != h.path {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleEvents(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		h.logger.WarnContext(ctx, "unsupported content type", "content_type", r.Header.Get("Content-Type"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.NewError(jsonrpc.ErrParse, err.Error())))
		return
	}
	if len(body) > MaxRequestBodySize {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.NewError(jsonrpc.ErrInvalidRequest, "request body too large")))
		return
	}

	request, rpcErr := jsonrpc.DecodeRequest(body)
	if rpcErr != nil {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(jsonrpc.ID{}, rpcErr))
		return
	}

	if token := bearerToken(r); token != "" {
		ctx = WithCredential(ctx, token)
	}

	response := h.handler.Handle(ctx, request)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.writeResponse(w, r, response)
}

// writeResponse always answers 200; JSON-RPC failures travel in the body.
func (h *HTTPHandler) writeResponse(w http.ResponseWriter, r *http.Request, response *jsonrpc.Response) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.ErrorContext(r.Context(), "error encoding response", "error", err)
	}
}

func (h *HTTPHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		http.Error(w, "client must accept text/event-stream", http.StatusNotAcceptable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		h.logger.ErrorContext(ctx, "response writer does not support flushing")
		return
	}

	sessionID := uuid.NewString()
	logger := h.logger.With("session_id", sessionID)

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(sessionIDHeader, sessionID)
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "endpoint", h.path); err != nil {
		logger.WarnContext(ctx, "error writing endpoint event", "error", err)
		return
	}
	flusher.Flush()
	logger.InfoContext(ctx, "event stream opened")

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "event stream closed")
			return
		case <-tick:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				logger.InfoContext(ctx, "event stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one server-sent event frame. Multi-line data is split
// across data fields.
func writeEvent(w io.Writer, event, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("failed to write SSE event name: %w", err)
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return fmt.Errorf("failed to write SSE data: %w", err)
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	return nil
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < len("Bearer ") || !strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[len("Bearer "):])
}
