package mcp

import "context"

// ToolHandler is the capability every tool implements.
//
// Execute receives arguments that have already been validated against the
// tool's input schema, with schema defaults filled in. credential is the
// caller's bearer token, or empty when the caller supplied none. A non-nil
// error is reported to the client as a tool execution failure carrying the
// error's message.
type ToolHandler interface {
	Name() string
	Definition() Tool
	Execute(ctx context.Context, args map[string]interface{}, credential string) (*ToolCallResponse, error)
}

type credentialKey struct{}

// WithCredential returns a context carrying the caller's bearer token.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey{}, token)
}

// CredentialFrom returns the caller's bearer token, or "" if none.
func CredentialFrom(ctx context.Context) string {
	token, _ := ctx.Value(credentialKey{}).(string)
	return token
}
