package jsonrpc

import "encoding/json"

// Version is the JSON-RPC protocol version carried in every envelope.
const Version = "2.0"

// Request represents a JSON-RPC request object. A request whose ID is nil
// is a notification and must not be answered.
type Request struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id,omitzero"`
}

// NewRequest creates a new Request object. Pass a nil id to build a
// notification.
func NewRequest(method string, params json.RawMessage, id interface{}) Request {
	reqID, _ := NewID(id)

	return Request{
		Version: Version,
		Method:  method,
		Params:  params,
		ID:      reqID,
	}
}

// IsNotification reports whether the request carries no correlation id.
func (r Request) IsNotification() bool {
	return r.ID.IsNil()
}

// DecodeRequest parses a single request envelope. Input that is not JSON
// yields a parse error; JSON that is not a valid request object (wrong
// member types, a non-object, a bad id) yields an invalid request error.
func DecodeRequest(data []byte) (Request, *Error) {
	if !json.Valid(data) {
		return Request{}, NewError(ErrParse, nil)
	}

	var request Request
	if err := json.Unmarshal(data, &request); err != nil {
		return Request{}, NewError(ErrInvalidRequest, err.Error())
	}
	return request, nil
}
