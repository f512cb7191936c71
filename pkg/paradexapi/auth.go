package paradexapi

import (
	"context"
	"net/http"

	"github.com/qlandys/paradex-auth/pkg/auth"
)

type authResponse struct {
	JwtToken string `json:"jwt_token"`
}

// RequestToken exchanges signed auth headers for a JWT. It implements
// auth.TokenRequester; a response without a token yields "" and is treated
// as a rejection by auth.Manager.
func (c *RestClient) RequestToken(ctx context.Context, headers auth.AuthHeaders) (string, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, "auth", nil, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	headers.Apply(req.Header)

	resp, err := c.SendRequest(req)
	if err != nil {
		return "", err
	}
	var out authResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return "", err
	}
	return out.JwtToken, nil
}
