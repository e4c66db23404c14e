package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ashishvijaywargiya/ofbiz-mcp/mcp"
)

// FindProductByID looks up a single product.
type FindProductByID struct {
	backend Backend
}

func NewFindProductByID(backend Backend) *FindProductByID {
	return &FindProductByID{backend: backend}
}

func (t *FindProductByID) Name() string { return "findProductById" }

func (t *FindProductByID) Definition() mcp.Tool {
	return mcp.Tool{
		Name:        t.Name(),
		Description: "Find a product by using its ID.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"id"},
			Properties: map[string]*jsonschema.Schema{
				"id": {Type: "string", Description: "ID of the product"},
			},
		},
	}
}

func (t *FindProductByID) Execute(ctx context.Context, args map[string]interface{}, credential string) (*mcp.ToolCallResponse, error) {
	id, err := stringArg(args, "id", "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("required parameter %q missing", "id")
	}
	if id == "." || id == ".." {
		return nil, fmt.Errorf("invalid product id %q", id)
	}

	body, err := t.backend.GetProduct(ctx, credential, id)
	if err != nil {
		return nil, fmt.Errorf("error calling OFBiz: %w", err)
	}
	return mcp.NewTextResponse("Result: " + string(body)), nil
}
