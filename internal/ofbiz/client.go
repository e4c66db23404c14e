// Package ofbiz is a small client for the Apache OFBiz REST endpoints used
// by the MCP tools.
package ofbiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const examplePath = "/rest/example-rest/example"

// Example status and type assigned to every created example.
const (
	ExampleTypeContrived = "CONTRIVED"
	ExampleStatusDesign  = "EXST_IN_DESIGN"
)

// maxResponseSize caps how much of a backend response is read.
const maxResponseSize = 10 << 20

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: backend returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// ExampleInput is the payload for creating an example record.
type ExampleInput struct {
	ExampleName   string `json:"exampleName"`
	ExampleTypeID string `json:"exampleTypeId"`
	StatusID      string `json:"statusId"`
	Description   string `json:"description,omitempty"`
}

// Example is an example record as listed by the backend.
type Example struct {
	ExampleID   string `json:"exampleId"`
	ExampleName string `json:"exampleName,omitempty"`
	Description string `json:"description,omitempty"`
}

// Client talks to one OFBiz backend.
type Client struct {
	baseURL     *url.URL
	staticToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a client for the backend rooted at baseURL. staticToken
// is used whenever a call carries no caller credential. A nil httpClient
// means http.DefaultClient; a nil logger discards output.
func NewClient(baseURL, staticToken string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: missing host", baseURL)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:     u,
		staticToken: staticToken,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CreateExample creates one example and returns its id.
func (c *Client) CreateExample(ctx context.Context, credential string, input ExampleInput) (string, error) {
	body, err := c.do(ctx, http.MethodPost, examplePath, nil, credential, input)
	if err != nil {
		return "", err
	}

	var envelope struct {
		Data struct {
			ExampleID json.RawMessage `json:"exampleId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("error parsing create response: %w", err)
	}

	id := rawString(envelope.Data.ExampleID)
	if id == "" {
		return "", errors.New("create response did not include an exampleId")
	}
	return id, nil
}

// ListExamples returns all example records.
func (c *Client) ListExamples(ctx context.Context, credential string) ([]Example, error) {
	body, err := c.do(ctx, http.MethodGet, examplePath, nil, credential, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			ExampleList []struct {
				ExampleID   json.RawMessage `json:"exampleId"`
				ExampleName string          `json:"exampleName"`
				Description string          `json:"description"`
			} `json:"exampleList"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("error parsing example list: %w", err)
	}

	examples := make([]Example, 0, len(envelope.Data.ExampleList))
	for _, item := range envelope.Data.ExampleList {
		examples = append(examples, Example{
			ExampleID:   rawString(item.ExampleID),
			ExampleName: item.ExampleName,
			Description: item.Description,
		})
	}
	return examples, nil
}

// UpdateExample replaces the description of an example.
func (c *Client) UpdateExample(ctx context.Context, credential, id, description string) error {
	payload := map[string]string{
		"exampleId":   id,
		"description": description,
	}
	_, err := c.do(ctx, http.MethodPut, examplePath, nil, credential, payload)
	return err
}

// DeleteExample removes an example by id.
func (c *Client) DeleteExample(ctx context.Context, credential, id string) error {
	_, err := c.do(ctx, http.MethodDelete, examplePath, url.Values{"exampleId": {id}}, credential, nil)
	return err
}

// GetProduct returns the raw product document for id.
func (c *Client) GetProduct(ctx context.Context, credential, id string) ([]byte, error) {
	// Dot segments survive PathEscape and would be cleaned out of the path.
	if id == "" || id == "." || id == ".." {
		return nil, fmt.Errorf("invalid product id %q", id)
	}
	return c.do(ctx, http.MethodGet, "/rest/products/"+url.PathEscape(id), nil, credential, nil)
}

// Fetch performs an unauthenticated GET of path and returns the body.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	return c.request(ctx, http.MethodGet, path, nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, credential string, payload interface{}) ([]byte, error) {
	token := credential
	if token == "" {
		token = c.staticToken
	}
	return c.request(ctx, method, path, query, token, payload)
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, token string, payload interface{}) ([]byte, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.DebugContext(ctx, "backend request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.DebugContext(ctx, "backend error", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	return data, nil
}

// rawString renders a JSON string or number as plain text.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
