// Package tools implements the MCP tools that front the OFBiz backend.
package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/ashishvijaywargiya/ofbiz-mcp/internal/ofbiz"
	"github.com/ashishvijaywargiya/ofbiz-mcp/mcp"
)

// Backend is the subset of the OFBiz client the tools depend on.
type Backend interface {
	CreateExample(ctx context.Context, credential string, input ofbiz.ExampleInput) (string, error)
	ListExamples(ctx context.Context, credential string) ([]ofbiz.Example, error)
	UpdateExample(ctx context.Context, credential, id, description string) error
	DeleteExample(ctx context.Context, credential, id string) error
	GetProduct(ctx context.Context, credential, id string) ([]byte, error)
	Fetch(ctx context.Context, path string) ([]byte, error)
}

var _ Backend = (*ofbiz.Client)(nil)

// Options tunes the tool set.
type Options struct {
	// Concurrency caps in-flight backend calls per batch tool.
	Concurrency int
	// MaxBatchSize caps how many items one batch call may touch.
	MaxBatchSize int
	// Now stamps update descriptions. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// All returns every tool in registration order.
func All(backend Backend, opts Options) []mcp.ToolHandler {
	opts = opts.withDefaults()
	return []mcp.ToolHandler{
		NewFindProductByID(backend),
		NewListEndpoints(backend, opts),
		NewCreateExamples(backend, opts),
		NewCreateBatchExamples(backend, opts),
		NewUpdateExamples(backend, opts),
		NewDeleteExamples(backend, opts),
	}
}

// Argument accessors. Arguments have already been validated against the
// tool's schema, so JSON numbers arrive as float64.

func intArg(args map[string]interface{}, name string) (int, error) {
	v, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("required parameter %q missing", name)
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("parameter %q must be an integer in range, got %v", name, n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", name, v)
	}
}

// countArg reads a batch size, which must lie in [0, max].
func countArg(args map[string]interface{}, name string, max int) (int, error) {
	n, err := intArg(args, name)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("parameter %q must not be negative", name)
	}
	if n > max {
		return 0, fmt.Errorf("parameter %q must not exceed %d, got %d", name, max, n)
	}
	return n, nil
}

func stringArg(args map[string]interface{}, name, fallback string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", name, v)
	}
	return s, nil
}

func stringSliceArg(args map[string]interface{}, name string) ([]string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch items := v.(type) {
	case []string:
		return items, nil
	case []interface{}:
		out := make([]string, 0, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q item %d must be a string, got %T", name, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parameter %q must be an array, got %T", name, v)
	}
}
