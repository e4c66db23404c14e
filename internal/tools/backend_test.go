package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashishvijaywargiya/ofbiz-mcp/internal/ofbiz"
)

// fakeOFBiz is an in-memory stand-in for the OFBiz example and product
// REST endpoints.
type fakeOFBiz struct {
	mu       sync.Mutex
	nextID   int
	examples map[string]map[string]interface{}
	products map[string]string
	docs     map[string]string

	// failName makes creation of the example with this name fail.
	failName string
	// failIDs makes updates and deletes of these ids fail.
	failIDs map[string]bool
	// failList makes listing examples fail.
	failList bool

	authHeaders []string
	inFlight    int
	maxInFlight int
}

func newFakeOFBiz() *fakeOFBiz {
	return &fakeOFBiz{
		nextID:   10000,
		examples: map[string]map[string]interface{}{},
		products: map[string]string{},
		docs:     map[string]string{},
		failIDs:  map[string]bool{},
	}
}

func (f *fakeOFBiz) seed(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.examples[id] = map[string]interface{}{"exampleId": id}
	}
}

func (f *fakeOFBiz) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.examples))
	for id := range f.examples {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeOFBiz) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if doc, ok := f.docs[r.URL.Path]; ok {
		fmt.Fprint(w, doc)
		return
	}

	switch {
	case r.URL.Path == "/rest/example-rest/example":
		f.serveExamples(w, r)
	case strings.HasPrefix(r.URL.Path, "/rest/products/"):
		product, ok := f.products[strings.TrimPrefix(r.URL.Path, "/rest/products/")]
		if !ok {
			http.Error(w, `{"errorMessage": "product not found"}`, http.StatusNotFound)
			return
		}
		fmt.Fprint(w, product)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOFBiz) serveExamples(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body["exampleName"] == f.failName {
			http.Error(w, "create rejected", http.StatusInternalServerError)
			return
		}
		id := strconv.Itoa(f.nextID)
		f.nextID++
		body["exampleId"] = id
		f.examples[id] = body
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"exampleId": id}})
	case http.MethodGet:
		if f.failList {
			http.Error(w, "list unavailable", http.StatusServiceUnavailable)
			return
		}
		list := make([]map[string]interface{}, 0, len(f.examples))
		for _, e := range f.examples {
			list = append(list, e)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"exampleList": list}})
	case http.MethodPut:
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, _ := body["exampleId"].(string)
		if f.failIDs[id] {
			http.Error(w, "update rejected", http.StatusInternalServerError)
			return
		}
		example, ok := f.examples[id]
		if !ok {
			http.Error(w, "no such example", http.StatusNotFound)
			return
		}
		example["description"] = body["description"]
		fmt.Fprint(w, `{"statusCode": 200}`)
	case http.MethodDelete:
		id := r.URL.Query().Get("exampleId")
		if f.failIDs[id] {
			http.Error(w, "delete rejected", http.StatusInternalServerError)
			return
		}
		if _, ok := f.examples[id]; !ok {
			http.Error(w, "no such example", http.StatusNotFound)
			return
		}
		delete(f.examples, id)
		fmt.Fprint(w, `{"statusCode": 200}`)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func newBackend(t *testing.T, fake *fakeOFBiz) *ofbiz.Client {
	t.Helper()

	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	client, err := ofbiz.NewClient(ts.URL, "static-token", ts.Client(), nil)
	require.NoError(t, err)
	return client
}

// stubBackend answers discovery fetches from a function and fails
// everything else.
type stubBackend struct {
	fetch func(path string) ([]byte, error)
}

var errUnexpectedCall = errors.New("unexpected backend call")

func (s *stubBackend) CreateExample(context.Context, string, ofbiz.ExampleInput) (string, error) {
	return "", errUnexpectedCall
}

func (s *stubBackend) ListExamples(context.Context, string) ([]ofbiz.Example, error) {
	return nil, errUnexpectedCall
}

func (s *stubBackend) UpdateExample(context.Context, string, string, string) error {
	return errUnexpectedCall
}

func (s *stubBackend) DeleteExample(context.Context, string, string) error {
	return errUnexpectedCall
}

func (s *stubBackend) GetProduct(context.Context, string, string) ([]byte, error) {
	return nil, errUnexpectedCall
}

func (s *stubBackend) Fetch(_ context.Context, path string) ([]byte, error) {
	return s.fetch(path)
}

func notFound(path string) error {
	return &ofbiz.StatusError{Method: http.MethodGet, Path: path, StatusCode: http.StatusNotFound}
}
