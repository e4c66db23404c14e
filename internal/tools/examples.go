package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ashishvijaywargiya/ofbiz-mcp/internal/ofbiz"
	"github.com/ashishvijaywargiya/ofbiz-mcp/mcp"
)

const (
	defaultExampleCount       = 5
	defaultExamplePrefix      = "Example"
	defaultExampleDescription = "Created via MCP"
	defaultUpdateDescription  = "Updated at"
)

var minZero = 0.0

// CreateExamples creates a batch of example records.
type CreateExamples struct {
	backend     Backend
	opts        Options
	name        string
	description string
}

// NewCreateExamples creates examples concurrently, up to the configured
// concurrency.
func NewCreateExamples(backend Backend, opts Options) *CreateExamples {
	return &CreateExamples{
		backend:     backend,
		opts:        opts.withDefaults(),
		name:        "createExamples",
		description: "Creates a batch of example records in OFBiz.",
	}
}

// NewCreateBatchExamples creates examples one at a time, in order.
func NewCreateBatchExamples(backend Backend, opts Options) *CreateExamples {
	opts = opts.withDefaults()
	opts.Concurrency = 1
	return &CreateExamples{
		backend:     backend,
		opts:        opts,
		name:        "createBatchExamples",
		description: "Creates examples in OFBiz.",
	}
}

func (t *CreateExamples) Name() string { return t.name }

func (t *CreateExamples) defaultCount() int {
	return min(defaultExampleCount, t.opts.MaxBatchSize)
}

func (t *CreateExamples) Definition() mcp.Tool {
	maximum := float64(t.opts.MaxBatchSize)
	return mcp.Tool{
		Name:        t.Name(),
		Description: t.description,
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"count": {
					Type:        "integer",
					Description: "Number of examples to create",
					Minimum:     &minZero,
					Maximum:     &maximum,
					Default:     json.RawMessage(strconv.Itoa(t.defaultCount())),
				},
				"prefix": {
					Type:        "string",
					Description: "Name prefix; examples are named \"<prefix> <n>\"",
					Default:     mustMarshal(defaultExamplePrefix),
				},
				"description": {
					Type:        "string",
					Description: "Description stored on every example",
					Default:     mustMarshal(defaultExampleDescription),
				},
			},
		},
	}
}

func (t *CreateExamples) Execute(ctx context.Context, args map[string]interface{}, credential string) (*mcp.ToolCallResponse, error) {
	count := t.defaultCount()
	if _, ok := args["count"]; ok {
		n, err := countArg(args, "count", t.opts.MaxBatchSize)
		if err != nil {
			return nil, err
		}
		count = n
	}
	prefix, err := stringArg(args, "prefix", defaultExamplePrefix)
	if err != nil {
		return nil, err
	}
	description, err := stringArg(args, "description", defaultExampleDescription)
	if err != nil {
		return nil, err
	}

	result := fanout(ctx, count, t.opts.Concurrency, func(ctx context.Context, i int) (string, error) {
		id, err := t.backend.CreateExample(ctx, credential, ofbiz.ExampleInput{
			ExampleName:   fmt.Sprintf("%s %d", prefix, i+1),
			ExampleTypeID: ofbiz.ExampleTypeContrived,
			StatusID:      ofbiz.ExampleStatusDesign,
			Description:   description,
		})
		if err != nil {
			return "", fmt.Errorf("error creating example %d: %w", i+1, err)
		}
		return id, nil
	})

	ids := result.succeeded()
	t.opts.Logger.InfoContext(ctx, "examples created", "requested", count, "created", len(ids))
	return mcp.NewTextResponse(withErrors(
		fmt.Sprintf("Created %d examples. IDs: %s", len(ids), formatList(ids)),
		result.failures(),
	)), nil
}

// UpdateExamples rewrites the description of the given examples.
type UpdateExamples struct {
	backend Backend
	opts    Options
}

func NewUpdateExamples(backend Backend, opts Options) *UpdateExamples {
	return &UpdateExamples{backend: backend, opts: opts.withDefaults()}
}

func (t *UpdateExamples) Name() string { return "updateExamples" }

func (t *UpdateExamples) Definition() mcp.Tool {
	maxItems := t.opts.MaxBatchSize
	return mcp.Tool{
		Name:        t.Name(),
		Description: "Updates a batch of example records in OFBiz.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"ids"},
			Properties: map[string]*jsonschema.Schema{
				"ids": {
					Type:        "array",
					Description: "IDs of the examples to update",
					Items:       &jsonschema.Schema{Type: "string"},
					MaxItems:    &maxItems,
				},
				"description": {
					Type:        "string",
					Description: "New description; a timestamp is appended",
					Default:     mustMarshal(defaultUpdateDescription),
				},
			},
		},
	}
}

func (t *UpdateExamples) Execute(ctx context.Context, args map[string]interface{}, credential string) (*mcp.ToolCallResponse, error) {
	ids, err := stringSliceArg(args, "ids")
	if err != nil {
		return nil, err
	}
	if len(ids) > t.opts.MaxBatchSize {
		return nil, fmt.Errorf("parameter %q must not hold more than %d items, got %d", "ids", t.opts.MaxBatchSize, len(ids))
	}
	description, err := stringArg(args, "description", defaultUpdateDescription)
	if err != nil {
		return nil, err
	}

	result := fanout(ctx, len(ids), t.opts.Concurrency, func(ctx context.Context, i int) (string, error) {
		id := ids[i]
		stamped := description + " " + t.opts.Now().UTC().Format(time.RFC3339)
		if err := t.backend.UpdateExample(ctx, credential, id, stamped); err != nil {
			return "", fmt.Errorf("error updating example %s: %w", id, err)
		}
		return id, nil
	})

	updated := result.succeeded()
	t.opts.Logger.InfoContext(ctx, "examples updated", "requested", len(ids), "updated", len(updated))
	return mcp.NewTextResponse(withErrors(
		fmt.Sprintf("Updated %d examples. IDs: %s", len(updated), formatList(updated)),
		result.failures(),
	)), nil
}

// DeleteExamples deletes the examples with the highest ids.
type DeleteExamples struct {
	backend Backend
	opts    Options
}

func NewDeleteExamples(backend Backend, opts Options) *DeleteExamples {
	return &DeleteExamples{backend: backend, opts: opts.withDefaults()}
}

func (t *DeleteExamples) Name() string { return "deleteExamples" }

func (t *DeleteExamples) Definition() mcp.Tool {
	maximum := float64(t.opts.MaxBatchSize)
	return mcp.Tool{
		Name:        t.Name(),
		Description: "Deletes the last N examples (highest ID).",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"count"},
			Properties: map[string]*jsonschema.Schema{
				"count": {
					Type:        "integer",
					Description: "Number of examples to delete",
					Minimum:     &minZero,
					Maximum:     &maximum,
				},
			},
		},
	}
}

func (t *DeleteExamples) Execute(ctx context.Context, args map[string]interface{}, credential string) (*mcp.ToolCallResponse, error) {
	count, err := countArg(args, "count", t.opts.MaxBatchSize)
	if err != nil {
		return nil, err
	}

	examples, err := t.backend.ListExamples(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("error listing examples: %w", err)
	}

	ids := newestFirst(examples)
	if count < len(ids) {
		ids = ids[:count]
	}

	result := fanout(ctx, len(ids), t.opts.Concurrency, func(ctx context.Context, i int) (string, error) {
		id := ids[i]
		if err := t.backend.DeleteExample(ctx, credential, id); err != nil {
			return "", fmt.Errorf("error deleting example %s: %w", id, err)
		}
		return id, nil
	})

	deleted := result.succeeded()
	t.opts.Logger.InfoContext(ctx, "examples deleted", "requested", count, "deleted", len(deleted))
	return mcp.NewTextResponse(withErrors(
		fmt.Sprintf("Deleted %d examples: %s", len(deleted), formatList(deleted)),
		result.failures(),
	)), nil
}

// newestFirst returns example ids sorted numerically, highest first.
// Non-numeric ids sort after numeric ones, in reverse lexical order.
func newestFirst(examples []ofbiz.Example) []string {
	ids := make([]string, 0, len(examples))
	for _, e := range examples {
		if e.ExampleID != "" {
			ids = append(ids, e.ExampleID)
		}
	}

	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a > b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] > ids[j]
		}
	})
	return ids
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
