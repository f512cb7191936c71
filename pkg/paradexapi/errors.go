package paradexapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

var (
	ErrRequestTimeout = errors.New("request timeout")
	ErrOrderCancelled = errors.New("order cancelled")

	ErrPositionNotOpen = errors.New("position is not open")
)

// APIError is a non-2xx response. Body is kept verbatim.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, string(e.Body))
}

// HTTPStatus lets packages that cannot import paradexapi tell rejections
// apart from transport failures.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Message returns the "message" field of a JSON error body, if any.
func (e *APIError) Message() string {
	var resp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Body, &resp); err != nil {
		return ""
	}
	if resp.Message != "" {
		return resp.Message
	}
	return resp.Error
}

func wrapTimeout(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrRequestTimeout, err)
	}
	return err
}
