package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashishvijaywargiya/ofbiz-mcp/jsonrpc"
	"github.com/ashishvijaywargiya/ofbiz-mcp/mcp"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC) }

func newToolServer(t *testing.T, backend Backend) *mcp.Server {
	t.Helper()

	server, err := mcp.NewServer(mcp.WithRegistry(
		mcp.NewRegistry().MustRegister(All(backend, Options{Concurrency: 3, Now: fixedNow})...),
	))
	require.NoError(t, err)
	return server
}

// call sends tools/call through the dispatcher and returns the outcome text
// or the JSON-RPC error.
func call(t *testing.T, server *mcp.Server, credential, name, arguments string) (string, *jsonrpc.Error) {
	t.Helper()

	params := fmt.Sprintf(`{"name": %q, "arguments": %s}`, name, arguments)
	ctx := context.Background()
	if credential != "" {
		ctx = mcp.WithCredential(ctx, credential)
	}

	response := server.Handle(ctx, jsonrpc.NewRequest("tools/call", json.RawMessage(params), 1))
	require.NotNil(t, response)
	if response.Error != nil {
		return "", response.Error
	}

	data, err := json.Marshal(response.Result)
	require.NoError(t, err)
	var result mcp.ToolCallResponse
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	return result.Content[0].Text, nil
}

func TestAll_ToolsAreListedInOrder(t *testing.T) {
	server := newToolServer(t, newBackend(t, newFakeOFBiz()))

	response := server.Handle(context.Background(), jsonrpc.NewRequest("tools/list", nil, 1))
	require.NotNil(t, response)
	require.Nil(t, response.Error)

	result, ok := response.Result.(mcp.ToolsListResponse)
	require.True(t, ok)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
		require.NotNil(t, tool.InputSchema)
		assert.Equal(t, "object", tool.InputSchema.Type)
	}
	assert.Equal(t, []string{"findProductById", "listEndpoints", "createExamples", "createBatchExamples", "updateExamples", "deleteExamples"}, names)
}

func TestFindProductByID(t *testing.T) {
	fake := newFakeOFBiz()
	fake.products["WG-1111"] = `{"productId":"WG-1111","productName":"Micro Chrome Widget"}`
	server := newToolServer(t, newBackend(t, fake))

	text, rpcErr := call(t, server, "", "findProductById", `{"id": "WG-1111"}`)
	require.Nil(t, rpcErr)
	assert.Equal(t, `Result: {"productId":"WG-1111","productName":"Micro Chrome Widget"}`, text)

	_, rpcErr = call(t, server, "", "findProductById", `{"id": "missing"}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "404")

	_, rpcErr = call(t, server, "", "findProductById", `{}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code)

	_, rpcErr = call(t, server, "", "findProductById", `{"id": 42}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code)

	fake.authHeaders = nil
	for _, id := range []string{".", ".."} {
		_, rpcErr = call(t, server, "", "findProductById", fmt.Sprintf(`{"id": %q}`, id))
		require.NotNil(t, rpcErr, id)
		assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code)
		assert.Contains(t, rpcErr.Message, "invalid product id")
	}
	assert.Empty(t, fake.authHeaders, "dot segments never reach the backend")
}

func TestCreateExamples(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		fake := newFakeOFBiz()
		server := newToolServer(t, newBackend(t, fake))

		text, rpcErr := call(t, server, "", "createExamples", `{}`)
		require.Nil(t, rpcErr)
		assert.Equal(t, "Created 5 examples. IDs: [10000, 10001, 10002, 10003, 10004]", sortedIDsText(text, "Created 5 examples. IDs: "))

		names := map[string]bool{}
		for _, e := range fake.examples {
			names[e["exampleName"].(string)] = true
			assert.Equal(t, "CONTRIVED", e["exampleTypeId"])
			assert.Equal(t, "EXST_IN_DESIGN", e["statusId"])
			assert.Equal(t, "Created via MCP", e["description"])
		}
		assert.Equal(t, map[string]bool{"Example 1": true, "Example 2": true, "Example 3": true, "Example 4": true, "Example 5": true}, names)
		assert.LessOrEqual(t, fake.maxInFlight, 3)
	})

	t.Run("zero count", func(t *testing.T) {
		fake := newFakeOFBiz()
		server := newToolServer(t, newBackend(t, fake))

		text, rpcErr := call(t, server, "", "createExamples", `{"count": 0}`)
		require.Nil(t, rpcErr)
		assert.Equal(t, "Created 0 examples. IDs: []", text)
		assert.Empty(t, fake.authHeaders, "no backend calls for an empty batch")
	})

	t.Run("partial failure", func(t *testing.T) {
		fake := newFakeOFBiz()
		fake.failName = "Batch 2"
		server := newToolServer(t, newBackend(t, fake))

		text, rpcErr := call(t, server, "", "createExamples", `{"count": 3, "prefix": "Batch", "description": "d"}`)
		require.Nil(t, rpcErr)

		lines := strings.Split(text, "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "Created 2 examples. IDs: ["), lines[0])
		assert.True(t, strings.HasPrefix(lines[1], "Errors: [error creating example 2: "), lines[1])
		assert.Contains(t, lines[1], "create rejected")
		assert.Len(t, fake.ids(), 2)
	})

	t.Run("caller credential is used", func(t *testing.T) {
		fake := newFakeOFBiz()
		server := newToolServer(t, newBackend(t, fake))

		_, rpcErr := call(t, server, "caller", "createExamples", `{"count": 2}`)
		require.Nil(t, rpcErr)
		assert.Equal(t, []string{"Bearer caller", "Bearer caller"}, fake.authHeaders)
	})

	t.Run("invalid count", func(t *testing.T) {
		server := newToolServer(t, newBackend(t, newFakeOFBiz()))

		for _, args := range []string{`{"count": -1}`, `{"count": "five"}`, `{"count": 1.5}`} {
			_, rpcErr := call(t, server, "", "createExamples", args)
			require.NotNil(t, rpcErr, args)
			assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code, args)
		}
	})
}

func TestCreateBatchExamples(t *testing.T) {
	fake := newFakeOFBiz()
	server := newToolServer(t, newBackend(t, fake))

	text, rpcErr := call(t, server, "", "createBatchExamples", `{"count": 3, "prefix": "Seq"}`)
	require.Nil(t, rpcErr)
	assert.Equal(t, "Created 3 examples. IDs: [10000, 10001, 10002]", text)
	assert.Equal(t, 1, fake.maxInFlight, "examples are created one at a time")

	assert.Equal(t, "Seq 1", fake.examples["10000"]["exampleName"])
	assert.Equal(t, "Seq 2", fake.examples["10001"]["exampleName"])
	assert.Equal(t, "Seq 3", fake.examples["10002"]["exampleName"])
	assert.Equal(t, "Created via MCP", fake.examples["10002"]["description"])
}

func TestBatchSizeIsBounded(t *testing.T) {
	fake := newFakeOFBiz()
	fake.seed("1", "2")
	server, err := mcp.NewServer(mcp.WithRegistry(
		mcp.NewRegistry().MustRegister(All(newBackend(t, fake), Options{MaxBatchSize: 2, Now: fixedNow})...),
	))
	require.NoError(t, err)

	tests := []struct {
		tool string
		args string
	}{
		{tool: "createExamples", args: `{"count": 3}`},
		{tool: "createExamples", args: `{"count": 1099511627776}`},
		{tool: "createExamples", args: `{"count": 1e30}`},
		{tool: "createBatchExamples", args: `{"count": 1099511627776}`},
		{tool: "deleteExamples", args: `{"count": 1099511627776}`},
		{tool: "updateExamples", args: `{"ids": ["1", "2", "3"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.tool+" "+tt.args, func(t *testing.T) {
			_, rpcErr := call(t, server, "", tt.tool, tt.args)
			require.NotNil(t, rpcErr)
			assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code)
			assert.Contains(t, rpcErr.Message, "invalid arguments")
		})
	}
	assert.Empty(t, fake.authHeaders, "oversized batches never reach the backend")

	text, rpcErr := call(t, server, "", "deleteExamples", `{"count": 2}`)
	require.Nil(t, rpcErr)
	assert.Equal(t, "Deleted 2 examples: [2, 1]", text)
}

func TestBatchSizeIsBounded_Execute(t *testing.T) {
	backend := &stubBackend{}
	ctx := context.Background()

	_, err := NewCreateExamples(backend, Options{}).Execute(ctx, map[string]interface{}{"count": float64(1 << 40)}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an integer in range")

	_, err = NewCreateExamples(backend, Options{}).Execute(ctx, map[string]interface{}{"count": float64(DefaultMaxBatchSize + 1)}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not exceed 1000")

	_, err = NewDeleteExamples(backend, Options{}).Execute(ctx, map[string]interface{}{"count": float64(1 << 40)}, "")
	require.Error(t, err)

	ids := make([]interface{}, 3)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
	}
	_, err = NewUpdateExamples(backend, Options{MaxBatchSize: 2}).Execute(ctx, map[string]interface{}{"ids": ids}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not hold more than 2 items")
}

func TestUpdateExamples(t *testing.T) {
	fake := newFakeOFBiz()
	fake.seed("10000", "10001", "10002")
	fake.failIDs["10001"] = true
	server := newToolServer(t, newBackend(t, fake))

	text, rpcErr := call(t, server, "", "updateExamples", `{"ids": ["10000", "10001", "10002"], "description": "Renamed"}`)
	require.Nil(t, rpcErr)

	lines := strings.Split(text, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Updated 2 examples. IDs: [10000, 10002]", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Errors: [error updating example 10001: "), lines[1])

	assert.Equal(t, "Renamed 2025-03-14T15:09:26Z", fake.examples["10000"]["description"])
	assert.Equal(t, "Renamed 2025-03-14T15:09:26Z", fake.examples["10002"]["description"])
	assert.Nil(t, fake.examples["10001"]["description"])

	text, rpcErr = call(t, server, "", "updateExamples", `{"ids": ["10002"]}`)
	require.Nil(t, rpcErr)
	assert.Equal(t, "Updated 1 examples. IDs: [10002]", text)
	assert.Equal(t, "Updated at 2025-03-14T15:09:26Z", fake.examples["10002"]["description"])

	text, rpcErr = call(t, server, "", "updateExamples", `{"ids": []}`)
	require.Nil(t, rpcErr)
	assert.Equal(t, "Updated 0 examples. IDs: []", text)

	_, rpcErr = call(t, server, "", "updateExamples", `{}`)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code)
}

func TestDeleteExamples(t *testing.T) {
	t.Run("deletes highest ids", func(t *testing.T) {
		fake := newFakeOFBiz()
		fake.seed("9", "10", "100", "11", "2")
		server := newToolServer(t, newBackend(t, fake))

		text, rpcErr := call(t, server, "", "deleteExamples", `{"count": 3}`)
		require.Nil(t, rpcErr)
		assert.Equal(t, "Deleted 3 examples: [100, 11, 10]", text)
		assert.Equal(t, []string{"2", "9"}, fake.ids())
	})

	t.Run("count above available", func(t *testing.T) {
		fake := newFakeOFBiz()
		fake.seed("1", "2")
		server := newToolServer(t, newBackend(t, fake))

		text, rpcErr := call(t, server, "", "deleteExamples", `{"count": 10}`)
		require.Nil(t, rpcErr)
		assert.Equal(t, "Deleted 2 examples: [2, 1]", text)
		assert.Empty(t, fake.ids())
	})

	t.Run("zero count", func(t *testing.T) {
		fake := newFakeOFBiz()
		fake.seed("1")
		server := newToolServer(t, newBackend(t, fake))

		text, rpcErr := call(t, server, "", "deleteExamples", `{"count": 0}`)
		require.Nil(t, rpcErr)
		assert.Equal(t, "Deleted 0 examples: []", text)
		assert.Equal(t, []string{"1"}, fake.ids())
	})

	t.Run("partial failure", func(t *testing.T) {
		fake := newFakeOFBiz()
		fake.seed("1", "2", "3")
		fake.failIDs["2"] = true
		server := newToolServer(t, newBackend(t, fake))

		text, rpcErr := call(t, server, "", "deleteExamples", `{"count": 3}`)
		require.Nil(t, rpcErr)
		lines := strings.Split(text, "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "Deleted 2 examples: [3, 1]", lines[0])
		assert.Contains(t, lines[1], "error deleting example 2")
		assert.Equal(t, []string{"2"}, fake.ids())
	})

	t.Run("listing failure is a fault", func(t *testing.T) {
		fake := newFakeOFBiz()
		fake.failList = true
		server := newToolServer(t, newBackend(t, fake))

		_, rpcErr := call(t, server, "", "deleteExamples", `{"count": 1}`)
		require.NotNil(t, rpcErr)
		assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code)
		assert.Contains(t, rpcErr.Message, "error listing examples")
	})

	t.Run("count is required", func(t *testing.T) {
		server := newToolServer(t, newBackend(t, newFakeOFBiz()))

		_, rpcErr := call(t, server, "", "deleteExamples", `{}`)
		require.NotNil(t, rpcErr)
		assert.Equal(t, jsonrpc.ErrToolExecution, rpcErr.Code)
	})
}

const petstoreDocument = `{
  "openapi": "3.0.0",
  "info": {"title": "OFBiz", "version": "1.0.0"},
  "paths": {
    "/products/{id}": {
      "get": {"operationId": "getProduct", "responses": {"200": {"description": "ok"}}}
    },
    "/examples": {
      "post": {"operationId": "createExample", "responses": {"200": {"description": "ok"}}},
      "delete": {"operationId": "deleteExample", "responses": {"200": {"description": "ok"}}}
    }
  }
}`

func TestListEndpoints(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		fake := newFakeOFBiz()
		fake.docs["/rest/api.json"] = petstoreDocument
		fake.docs["/openapi.json"] = `not an api definition`
		server := newToolServer(t, newBackend(t, fake))

		text, rpcErr := call(t, server, "", "listEndpoints", `{}`)
		require.Nil(t, rpcErr)
		assert.Equal(t, strings.Join([]string{
			"Found API definition at: /rest/api.json",
			"  GET /products/{id}",
			"  POST /examples",
			"  DELETE /examples",
			"Found API definition at: /openapi.json",
		}, "\n"), text)

		for _, auth := range fake.authHeaders {
			assert.Empty(t, auth, "discovery is unauthenticated")
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		server := newToolServer(t, newBackend(t, newFakeOFBiz()))

		text, rpcErr := call(t, server, "", "listEndpoints", `{}`)
		require.Nil(t, rpcErr)
		assert.Equal(t, "No API definitions found at common paths: [/rest/openapi.json, /rest/api.json, /openapi.json, /rest/v1/openapi.json]. Errors: []", text)
	})
}

func TestListEndpoints_CollectsErrors(t *testing.T) {
	backend := &stubBackend{
		fetch: func(path string) ([]byte, error) {
			if path == "/rest/api.json" {
				return nil, fmt.Errorf("connection refused")
			}
			return nil, notFound(path)
		},
	}

	result, err := NewListEndpoints(backend, Options{}).Execute(context.Background(), nil, "")
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t,
		"No API definitions found at common paths: [/rest/openapi.json, /rest/api.json, /openapi.json, /rest/v1/openapi.json]. Errors: [Error checking /rest/api.json: connection refused]",
		result.Content[0].Text)
}

// sortedIDsText reorders the ids after prefix so that concurrent creation
// order does not matter.
func sortedIDsText(text, prefix string) string {
	if !strings.HasPrefix(text, prefix) {
		return text
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, prefix+"["), "]")
	ids := strings.Split(inner, ", ")
	sort.Strings(ids)
	return prefix + formatList(ids)
}
