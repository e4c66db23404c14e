package jsonrpc

import (
	"fmt"
)

// ErrorCode represents a JSON-RPC error code
type ErrorCode int

// JSON-RPC 2.0 error codes as defined in https://www.jsonrpc.org/specification
const (
	// Parse error (-32700)
	// Invalid JSON was received by the server.
	ErrParse ErrorCode = -32700

	// Invalid Request (-32600)
	// The JSON sent is not a valid Request object.
	ErrInvalidRequest ErrorCode = -32600

	// Method not found (-32601)
	// The method does not exist / is not available. Also used for tools/call
	// naming a tool that is not registered.
	ErrMethodNotFound ErrorCode = -32601

	// Invalid params (-32602)
	ErrInvalidParams ErrorCode = -32602

	// Internal error (-32603)
	ErrInternal ErrorCode = -32603

	// Tool execution failed (-32000)
	// The tool exists and was attempted but faulted. The message carries the
	// fault detail.
	ErrToolExecution ErrorCode = -32000
)

// errorDetails maps error codes to their standard messages
var errorDetails = map[ErrorCode]string{
	ErrParse:          "Parse error",
	ErrInvalidRequest: "Invalid Request",
	ErrMethodNotFound: "Method not found",
	ErrInvalidParams:  "Invalid params",
	ErrInternal:       "Internal error",
	ErrToolExecution:  "Internal tool error",
}

// Error represents a JSON-RPC error object
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

var _ error = &Error{}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewError creates a new JSON-RPC error with the given code and optional data
func NewError(code ErrorCode, data interface{}) *Error {
	msg, ok := errorDetails[code]
	if !ok {
		if code >= -32099 && code <= -32000 {
			msg = "Server error"
		} else {
			msg = "Unknown error"
		}
	}

	return &Error{
		Code:    code,
		Message: msg,
		Data:    data,
	}
}

// NewErrorWithMessage creates a JSON-RPC error whose message replaces the
// standard text for code. An empty message falls back to the standard text.
func NewErrorWithMessage(code ErrorCode, message string) *Error {
	e := NewError(code, nil)
	if message != "" {
		e.Message = message
	}
	return e
}
