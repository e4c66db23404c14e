package jsonrpc

// Result is an arbitrary JSON-serializable success value
type Result interface{}

// Response represents a JSON-RPC response object. Exactly one of Result and
// Error is set.
type Response struct {
	Version string `json:"jsonrpc"`
	Result  Result `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      ID     `json:"id"`
}

// NewResponse creates a new Response object. When err is non-nil the result
// is dropped.
func NewResponse(id interface{}, result Result, err *Error) Response {
	respID, _ := NewID(id)

	if err != nil {
		result = nil
	}

	return Response{
		Version: Version,
		ID:      respID,
		Result:  result,
		Error:   err,
	}
}

// NewResultResponse builds a successful response.
func NewResultResponse(id ID, result Result) *Response {
	resp := NewResponse(id, result, nil)
	return &resp
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id ID, err *Error) *Response {
	resp := NewResponse(id, nil, err)
	return &resp
}
