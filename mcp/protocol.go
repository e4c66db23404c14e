package mcp

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Version is the Model Context Protocol version
const Version = "2024-11-05"

// Method names understood by the dispatcher.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// Role represents the sender or recipient of messages and data in a conversation
type Role string

const (
	// RoleUser represents the user
	RoleUser Role = "user"

	// RoleAssistant represents the assistant
	RoleAssistant Role = "assistant"
)

// Content types
type (
	// Annotations represents optional annotations for objects
	Annotations struct {
		// Describes who the intended customer of this object or data is
		Audience []Role `json:"audience,omitempty"`
		// Describes how important this data is for operating the server (0-1)
		Priority *float64 `json:"priority,omitempty"`
	}

	// Content is one typed block of a tool outcome. Only "text" is produced
	// today; the remaining fields leave room for image and resource blocks.
	Content struct {
		Type        string       `json:"type"`
		Text        string       `json:"text,omitempty"`
		Data        string       `json:"data,omitempty"`
		MimeType    string       `json:"mimeType,omitempty"`
		Annotations *Annotations `json:"annotations,omitempty"`
	}
)

// NewTextContent creates a text content block
func NewTextContent(text string) Content {
	return Content{
		Type: "text",
		Text: text,
	}
}

// Initialize
type (
	// ToolsCapability advertises tool support
	ToolsCapability struct {
		ListChanged bool `json:"listChanged"`
	}

	// ServerCapabilities represents the server's supported capabilities
	ServerCapabilities struct {
		Experimental map[string]interface{} `json:"experimental,omitempty"`
		Tools        *ToolsCapability       `json:"tools,omitempty"`
	}

	// ServerInfo represents information about an MCP implementation
	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}

	// InitializeResponse represents the server's response to an initialize request
	InitializeResponse struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    ServerCapabilities `json:"capabilities"`
		ServerInfo      ServerInfo         `json:"serverInfo"`
		Instructions    string             `json:"instructions,omitempty"`
	}
)

// Tools
type (
	// Tool is the immutable definition of a tool as advertised by tools/list
	Tool struct {
		Name        string             `json:"name"`
		Description string             `json:"description,omitempty"`
		InputSchema *jsonschema.Schema `json:"inputSchema"`
	}

	// ToolsListResponse represents the response for the tools/list method
	ToolsListResponse struct {
		Tools []Tool `json:"tools"`
	}

	// ToolCallRequest represents the params of tools/call. Arguments stay
	// raw until the tool is resolved.
	ToolCallRequest struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}

	// ToolCallResponse is the outcome of a successful tool execution
	ToolCallResponse struct {
		Content []Content `json:"content"`
		IsError bool      `json:"isError,omitempty"`
	}
)

// NewTextResponse wraps text in a single-block tool outcome.
func NewTextResponse(text string) *ToolCallResponse {
	return &ToolCallResponse{Content: []Content{NewTextContent(text)}}
}

// Ping
type (
	// PingResponse is the empty result of ping
	PingResponse struct{}
)
