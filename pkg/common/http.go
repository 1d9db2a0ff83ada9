package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
	extra     http.Header
}

// RoundTrip implements http.RoundTripper.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	for k, vs := range t.extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return t.transport.RoundTrip(req)
}

// HTTPClient returns a default http client with a default user-agent set
func HTTPClient(timeout time.Duration) *http.Client {
	v := strings.TrimSpace(version)
	userAgent := "ReserveTender/" + v

	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: userAgent,
		},
		Timeout: timeout,
	}
}

// HTTPClientWithHeaders returns a client like HTTPClient but with userAgent in
// place of the default one and extra headers set on every request. Some vendor
// APIs refuse requests without an expected app user-agent.
func HTTPClientWithHeaders(timeout time.Duration, userAgent string, extra http.Header) *http.Client {
	if userAgent == "" {
		userAgent = "ReserveTender/" + strings.TrimSpace(version)
	}
	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: userAgent,
			extra:     extra,
		},
		Timeout: timeout,
	}
}
