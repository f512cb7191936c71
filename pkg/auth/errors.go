package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrCredentialsMissing   = errors.New("credentials missing")
)

const expiredTokenPrefix = "invalid bearer jwt: token is expired by"

// IsTokenExpired reports whether a response means the bearer token has
// expired: HTTP 401 with a JSON message starting with
// "invalid bearer jwt: token is expired by". Other 401s (and 403s) are not
// recoverable by refreshing.
func IsTokenExpired(status int, body []byte) bool {
	if status != http.StatusUnauthorized {
		return false
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false
	}
	return strings.HasPrefix(resp.Message, expiredTokenPrefix)
}

// isRejection reports whether err carries a 4xx status, i.e. the server
// refused the signed request.
func isRejection(err error) bool {
	var se interface{ HTTPStatus() int }
	if !errors.As(err, &se) {
		return false
	}
	code := se.HTTPStatus()
	return code >= 400 && code < 500
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
