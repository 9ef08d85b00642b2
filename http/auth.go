package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	HeaderClientID = "X-Laguz-Client-Id"

	ErrTypeUnauthorized = "unauthorized"
)

// GetTokenFromHTTPRequest returns the bearer token of the given request.
func GetTokenFromHTTPRequest(r *http.Request) string {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return token
}

func verifyToken(expected string, r *http.Request) error {
	if expected == "" {
		return nil
	}

	token := GetTokenFromHTTPRequest(r)
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return errors.New("invalid auth token").
			WithTag("remote_addr", r.RemoteAddr).
			WithType(ErrTypeUnauthorized)
	}
	return nil
}

// VerifyAuthToken returns a websocket handshake that rejects the connections
// without the given token. An empty token accepts every connection.
func VerifyAuthToken(ctx context.Context, token string) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if err := verifyToken(token, r); err != nil {
			logs.WithTag(logs.ClientIDTag, r.Header.Get(HeaderClientID)).Error(err)
			return err
		}

		return nil
	}
}

// VerifyAuthTokenHandler rejects the requests without the given token with
// HTTP 401. An empty token accepts every request.
func VerifyAuthTokenHandler(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := verifyToken(token, r); err != nil {
			logs.WithTag(logs.ClientIDTag, r.Header.Get(HeaderClientID)).Error(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
