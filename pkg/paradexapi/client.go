package paradexapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c9s/requestgen"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/qlandys/paradex-auth/pkg/auth"
)

const (
	ProdBaseURL    = "https://api.prod.paradex.trade/v1"
	TestnetBaseURL = "https://api.testnet.paradex.trade/v1"

	defaultHTTPTimeout = 15 * time.Second
)

var log = logrus.WithField("component", "paradexapi")

var timeNow = time.Now

type RestClient struct {
	BaseURL *url.URL
	Client  *http.Client

	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	tokens     *auth.Manager
}

type Option func(c *RestClient)

func WithHTTPClient(client *http.Client) Option {
	return func(c *RestClient) {
		c.Client = client
	}
}

func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *RestClient) {
		c.limiter = limiter
	}
}

// WithBackOff sets the retry policy of idempotent public requests.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *RestClient) {
		c.newBackOff = newBackOff
	}
}

func NewClient(baseURL string, options ...Option) (*RestClient, error) {
	if baseURL == "" {
		baseURL = ProdBaseURL
	}
	// keep the version prefix when resolving relative paths
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}

	c := &RestClient{
		BaseURL: u,
		Client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 5),
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
		},
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Auth attaches the token manager used by authenticated requests.
func (c *RestClient) Auth(tokens *auth.Manager) {
	c.tokens = tokens
}

func (c *RestClient) TokenManager() *auth.Manager {
	return c.tokens
}

func (c *RestClient) NewRequest(ctx context.Context, method, refURL string, params url.Values, payload interface{}) (*http.Request, error) {
	rel, err := url.Parse(refURL)
	if err != nil {
		return nil, err
	}
	if params != nil {
		rel.RawQuery = params.Encode()
	}
	pathURL := c.BaseURL.ResolveReference(rel)

	body, err := castPayload(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, pathURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// SendRequest sends req and returns the buffered response. Non-2xx responses
// are returned as *APIError, deadline expiry as ErrRequestTimeout.
func (c *RestClient) SendRequest(req *http.Request) (*requestgen.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, wrapTimeout(err)
		}
	}

	start := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		recordRequest(req, 0, start)
		return nil, wrapTimeout(err)
	}
	defer resp.Body.Close()
	recordRequest(req, resp.StatusCode, start)

	response, err := requestgen.NewResponse(resp)
	if err != nil {
		return response, wrapTimeout(err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return response, &APIError{StatusCode: response.StatusCode, Body: response.Body}
	}
	return response, nil
}

// DoAuthenticated sends a bearer-authenticated request. An expired token is
// replaced and the request retried exactly once.
func (c *RestClient) DoAuthenticated(ctx context.Context, method, refURL string, params url.Values, payload interface{}) (*requestgen.Response, error) {
	if c.tokens == nil {
		return nil, auth.ErrCredentialsMissing
	}
	token, err := c.tokens.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.sendWithToken(ctx, token, method, refURL, params, payload)
	var apiErr *APIError
	if err == nil || !errors.As(err, &apiErr) {
		return resp, err
	}

	retry, rerr := c.tokens.OnUnauthorizedToken(ctx, token, apiErr.StatusCode, apiErr.Body)
	if rerr != nil {
		return nil, rerr
	}
	if !retry {
		return resp, err
	}
	log.WithField("path", refURL).Debug("retrying request with a new bearer token")
	return c.sendWithToken(ctx, c.tokens.Token(), method, refURL, params, payload)
}

func (c *RestClient) sendWithToken(ctx context.Context, token, method, refURL string, params url.Values, payload interface{}) (*requestgen.Response, error) {
	req, err := c.NewRequest(ctx, method, refURL, params, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.SendRequest(req)
}

func castPayload(payload interface{}) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}

	switch v := payload.(type) {
	case string:
		return []byte(v), nil

	case []byte:
		return v, nil

	}
	return json.Marshal(payload)
}
