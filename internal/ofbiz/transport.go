package ofbiz

import "net/http"

// HeaderTransport is a RoundTripper that adds default headers to outbound
// backend requests. Headers already present on a request are left alone.
type HeaderTransport struct {
	Base    http.RoundTripper
	Headers http.Header
}

// NewHeaderTransport wraps base so that every request carries the backend
// user agent and a JSON Accept header.
func NewHeaderTransport(base http.RoundTripper, userAgent string) *HeaderTransport {
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if userAgent != "" {
		headers.Set("User-Agent", userAgent)
	}
	return &HeaderTransport{Base: base, Headers: headers}
}

func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	for key, values := range t.Headers {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
