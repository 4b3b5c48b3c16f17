package client

import "net/http"

// BearerTransport adds an Authorization: Bearer header to every request
type BearerTransport struct {
	Token string
	Base  http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Token == "" {
		return base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.Token)
	return base.RoundTrip(r)
}

// NewHTTPClient returns an HTTP client authenticating with token
func NewHTTPClient(token string, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &BearerTransport{Token: token, Base: base}}
}
