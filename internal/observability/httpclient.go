package observability

import "net/http"

// NewHTTPClient returns base unmodified if non-nil, or a plain *http.Client
// otherwise. No OTel transport is wired: this engine propagates trace
// context through ctxlogger.LoggerWithTrace alone and does not export spans
// (see the ambient-stack notes), so there is nothing for a client-side OTel
// transport to report to.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	return base
}

// WithHeaders wraps base so every outgoing request carries headers, without
// overwriting any the request already set explicitly.
func WithHeaders(base *http.Client, headers map[string]string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	client := *base
	client.Transport = &headerTransport{base: rt, headers: headers}
	return &client
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
