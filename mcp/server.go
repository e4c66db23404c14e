package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ashishvijaywargiya/ofbiz-mcp/jsonrpc"
)

// Server dispatches JSON-RPC requests to the built-in MCP methods and to
// the tools held in its registry.
type Server struct {
	registry     *Registry
	info         ServerInfo
	instructions string
	logger       *slog.Logger
}

var _ jsonrpc.Handler = (*Server)(nil)

// ServerOption configures a Server
type ServerOption func(*Server) error

// WithRegistry sets the tool registry. The registry must not be modified
// afterwards.
func WithRegistry(registry *Registry) ServerOption {
	return func(s *Server) error {
		if registry == nil {
			return errors.New("registry is nil")
		}
		s.registry = registry
		return nil
	}
}

// WithLogger sets the logger used for request logging
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithServerInfo sets the name and version reported by initialize
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) error {
		s.info = ServerInfo{Name: name, Version: version}
		return nil
	}
}

// WithInstructions sets the optional instructions returned by initialize
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) error {
		s.instructions = instructions
		return nil
	}
}

// NewServer creates a new MCP server instance
func NewServer(opts ...ServerOption) (*Server, error) {
	s := &Server{
		info:   ServerInfo{Name: "ofbiz-mcp", Version: "dev"},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.registry == nil {
		return nil, errors.New("registry is required")
	}

	return s, nil
}

// Handle processes a single JSON-RPC request. It returns nil for
// notifications, which are never answered.
func (s *Server) Handle(ctx context.Context, request jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()

	if request.IsNotification() {
		s.handleNotification(ctx, request)
		return nil
	}

	var response *jsonrpc.Response
	switch request.Method {
	case MethodInitialize:
		response = s.handleInitialize(request)
	case MethodPing:
		response = jsonrpc.NewResultResponse(request.ID, PingResponse{})
	case MethodToolsList:
		response = s.handleToolsList(request)
	case MethodToolsCall:
		response = s.handleToolsCall(ctx, request)
	default:
		response = jsonrpc.NewErrorResponse(request.ID, jsonrpc.NewError(jsonrpc.ErrMethodNotFound, nil))
	}

	attrs := []any{
		"method", request.Method,
		"id", request.ID.String(),
		"duration", time.Since(start),
	}
	if response.Error != nil {
		attrs = append(attrs, "code", int(response.Error.Code), "error", response.Error.Message)
		s.logger.WarnContext(ctx, "request failed", attrs...)
	} else {
		s.logger.DebugContext(ctx, "request handled", attrs...)
	}

	return response
}

func (s *Server) handleNotification(ctx context.Context, request jsonrpc.Request) {
	switch request.Method {
	case MethodInitialized:
		s.logger.DebugContext(ctx, "client initialized")
	default:
		s.logger.DebugContext(ctx, "notification ignored", "method", request.Method)
	}
}

func (s *Server) handleInitialize(request jsonrpc.Request) *jsonrpc.Response {
	return jsonrpc.NewResultResponse(request.ID, InitializeResponse{
		ProtocolVersion: Version,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	})
}

func (s *Server) handleToolsList(request jsonrpc.Request) *jsonrpc.Response {
	return jsonrpc.NewResultResponse(request.ID, ToolsListResponse{Tools: s.registry.List()})
}

func (s *Server) handleToolsCall(ctx context.Context, request jsonrpc.Request) *jsonrpc.Response {
	params, err := decodeToolCall(request.Params)
	if err != nil {
		return jsonrpc.NewErrorResponse(request.ID, jsonrpc.NewError(jsonrpc.ErrInvalidParams, err.Error()))
	}

	tool, ok := s.registry.Resolve(params.Name)
	if !ok {
		return jsonrpc.NewErrorResponse(request.ID, jsonrpc.NewError(jsonrpc.ErrMethodNotFound, nil))
	}

	args, err := decodeArguments(params.Arguments)
	if err == nil {
		args, err = s.registry.prepareArguments(params.Name, args)
	}
	if err != nil {
		return jsonrpc.NewErrorResponse(request.ID,
			jsonrpc.NewErrorWithMessage(jsonrpc.ErrToolExecution, fmt.Sprintf("invalid arguments: %v", err)))
	}

	result, err := s.execute(ctx, tool, args)
	if err != nil {
		s.logger.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
		return jsonrpc.NewErrorResponse(request.ID, jsonrpc.NewErrorWithMessage(jsonrpc.ErrToolExecution, err.Error()))
	}

	return jsonrpc.NewResultResponse(request.ID, result)
}

// decodeToolCall splits tools/call params into a name and raw arguments.
// Only params that are not a JSON object are rejected here; a name of the
// wrong type simply resolves to no tool.
func decodeToolCall(raw json.RawMessage) (ToolCallRequest, error) {
	var params ToolCallRequest
	if len(bytes.TrimSpace(raw)) == 0 {
		return params, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return params, fmt.Errorf("params must be an object: %w", err)
	}
	if name, ok := fields["name"]; ok {
		_ = json.Unmarshal(name, &params.Name)
	}
	params.Arguments = fields["arguments"]
	return params, nil
}

// decodeArguments decodes tool arguments, which must be a JSON object when
// present.
func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal(trimmed, &args); err != nil || args == nil {
		return nil, errors.New("arguments must be an object")
	}
	return args, nil
}

// execute runs tool inside a failure boundary: panics are recovered and
// reported as errors, and a nil outcome becomes an empty one.
func (s *Server) execute(ctx context.Context, tool ToolHandler, args map[string]interface{}) (result *ToolCallResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "tool panicked", "tool", tool.Name(), "panic", r)
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.Name(), r)
		}
	}()

	result, err = tool.Execute(ctx, args, CredentialFrom(ctx))
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &ToolCallResponse{Content: []Content{}}
	}
	return result, nil
}
