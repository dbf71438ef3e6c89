package guard

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Transport is the request guard: an http.RoundTripper that turns
// authorization signals on responses into navigation redirects. Credential
// transport itself is cookie-based and carried by the http.Client's jar;
// this wrapper only reacts to what comes back:
//
//	401 outside the auth endpoints redirects to login; 401 on an auth
//	endpoint is left alone so the session probe cannot cause a redirect
//	loop. 403 always redirects to the unauthorized page.
//
// The response and any transport error pass through unchanged.
type Transport struct {
	// Base performs the request. http.DefaultTransport when nil.
	Base http.RoundTripper

	// Nav receives the redirects.
	Nav Navigator

	// AuthPrefix is the URL path prefix of the authentication endpoints
	// exempt from the 401 redirect. Defaults to "/api/auth".
	AuthPrefix string

	Log *zap.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if !strings.HasPrefix(req.URL.Path, t.authPrefix()) {
			t.logger().Debug("unauthenticated response, redirecting to login",
				zap.String("path", req.URL.Path))
			t.Nav.NavigateTo(LoginPath)
		}
	case http.StatusForbidden:
		t.logger().Debug("forbidden response, redirecting to unauthorized page",
			zap.String("path", req.URL.Path))
		t.Nav.NavigateTo(UnauthorizedPath)
	}
	return resp, nil
}

func (t *Transport) authPrefix() string {
	if t.AuthPrefix != "" {
		return t.AuthPrefix
	}
	return "/api/auth"
}

func (t *Transport) logger() *zap.Logger {
	if t.Log != nil {
		return t.Log
	}
	return zap.NewNop()
}
