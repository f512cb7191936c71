package paradexapi

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/qlandys/paradex-auth/pkg/types"
)

// GetSystemConfig fetches /system/config, retrying transport failures and
// 5xx responses.
func (c *RestClient) GetSystemConfig(ctx context.Context) (types.SystemConfig, error) {
	var cfg types.SystemConfig
	op := func() error {
		req, err := c.NewRequest(ctx, http.MethodGet, "system/config", nil, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.SendRequest(req)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			log.WithError(err).Warn("system config request failed, retrying")
			return err
		}
		return resp.DecodeJSON(&cfg)
	}

	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return types.SystemConfig{}, errors.Wrap(err, "config")
	}
	return cfg, nil
}
