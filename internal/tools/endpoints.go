package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/pb33f/libopenapi"

	"github.com/ashishvijaywargiya/ofbiz-mcp/internal/ofbiz"
	"github.com/ashishvijaywargiya/ofbiz-mcp/mcp"
)

// DiscoveryPaths are the locations probed for an API definition.
var DiscoveryPaths = []string{
	"/rest/openapi.json",
	"/rest/api.json",
	"/openapi.json",
	"/rest/v1/openapi.json",
}

// ListEndpoints reports which well-known API definition documents the
// backend publishes, and the operations each one declares.
type ListEndpoints struct {
	backend Backend
	paths   []string
	opts    Options
}

func NewListEndpoints(backend Backend, opts Options) *ListEndpoints {
	return &ListEndpoints{backend: backend, paths: DiscoveryPaths, opts: opts.withDefaults()}
}

func (t *ListEndpoints) Name() string { return "listEndpoints" }

func (t *ListEndpoints) Definition() mcp.Tool {
	return mcp.Tool{
		Name:        t.Name(),
		Description: "Lists publicly available REST API endpoints from OFBiz by checking common OpenAPI paths.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}
}

// probe is the outcome of fetching one discovery path. A nil probe means
// the path does not exist.
type probe struct {
	path       string
	operations []string
}

func (t *ListEndpoints) Execute(ctx context.Context, _ map[string]interface{}, _ string) (*mcp.ToolCallResponse, error) {
	result := fanout(ctx, len(t.paths), len(t.paths), func(ctx context.Context, i int) (*probe, error) {
		path := t.paths[i]
		body, err := t.backend.Fetch(ctx, path)
		if err != nil {
			if ofbiz.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			return nil, nil
		}

		operations, err := listOperations(body)
		if err != nil {
			t.opts.Logger.DebugContext(ctx, "api definition not parsed", "path", path, "error", err)
		}
		return &probe{path: path, operations: operations}, nil
	})

	var lines []string
	for _, p := range result.succeeded() {
		if p == nil {
			continue
		}
		lines = append(lines, "Found API definition at: "+p.path)
		for _, op := range p.operations {
			lines = append(lines, "  "+op)
		}
	}

	failures := []string{}
	for i, err := range result.Errors {
		if err != nil {
			failures = append(failures, fmt.Sprintf("Error checking %s: %v", t.paths[i], err))
		}
	}
	if len(lines) == 0 {
		t.opts.Logger.InfoContext(ctx, "no api definitions found", "errors", len(failures))
		return mcp.NewTextResponse(fmt.Sprintf("No API definitions found at common paths: %s. Errors: %s",
			formatList(t.paths), formatList(failures))), nil
	}

	return mcp.NewTextResponse(strings.Join(lines, "\n")), nil
}

// listOperations parses an OpenAPI 3 document and returns its operations
// as "METHOD /path" in document order.
func listOperations(data []byte) ([]string, error) {
	doc, err := libopenapi.NewDocument(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing API definition: %w", err)
	}

	model, errs := doc.BuildV3Model()
	if model == nil {
		return nil, fmt.Errorf("error building OpenAPI model: %v", errs)
	}
	if model.Model.Paths == nil || model.Model.Paths.PathItems == nil {
		return nil, nil
	}

	var operations []string
	for pair := model.Model.Paths.PathItems.First(); pair != nil; pair = pair.Next() {
		path := pair.Key()
		pathItem := pair.Value()
		if pathItem.Get != nil {
			operations = append(operations, "GET "+path)
		}
		if pathItem.Post != nil {
			operations = append(operations, "POST "+path)
		}
		if pathItem.Put != nil {
			operations = append(operations, "PUT "+path)
		}
		if pathItem.Delete != nil {
			operations = append(operations, "DELETE "+path)
		}
		if pathItem.Patch != nil {
			operations = append(operations, "PATCH "+path)
		}
	}
	return operations, nil
}
