package paradexapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/qlandys/paradex-auth/pkg/auth"
	"github.com/qlandys/paradex-auth/pkg/order"
	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
	"github.com/qlandys/paradex-auth/pkg/types"
)

const (
	testAccount = "0x129f3dc1b8962d8a87abc692424c78fda963ade0e1cd17bf3d1c26f8d41ee7a"
	testChain   = "PRIVATE_SN_POTC_SEPOLIA"
	expiredBody = `{"error":"INVALID_TOKEN","message":"invalid bearer jwt: token is expired by 5s"}`
)

func testKeyPair(t *testing.T) signer.KeyPair {
	kp, err := signer.KeyPairFromHex("0x534093db41f35a196b4ec9bae0cd537d9c0c521bff9ba9e97b69b0293693ccb")
	require.NoError(t, err)
	return kp
}

func newTestClient(t *testing.T, handler http.Handler) *RestClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL+"/v1",
		WithRateLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
		}),
	)
	require.NoError(t, err)
	return client
}

func withTokenManager(t *testing.T, client *RestClient) {
	m, err := auth.NewManager(typeddata.ChainIDFromString(testChain), &auth.Credentials{
		Account: testAccount,
		KeyPair: testKeyPair(t),
	}, client, auth.DefaultConfig())
	require.NoError(t, err)
	client.Auth(m)
}

func TestGetSystemConfig(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/system/config", r.URL.Path)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{
			"starknet_chain_id": "PRIVATE_SN_POTC_SEPOLIA",
			"l1_chain_id": "11155111",
			"paraclear_account_proxy_hash": "0x3530cc4759d78042f1b543bf797f5f3d647cde0388c33734cf91b7f7b9314a9",
			"paraclear_account_hash": "0x41cb0280ebadaa75f996d8d92c6f265f6d040bb3ba442e5f86a554f1765244e",
			"paraclear_decimals": 8,
			"bridged_tokens": [{"name": "USDC", "symbol": "USDC", "decimals": 6}]
		}`)
	}))

	cfg, err := client.GetSystemConfig(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, testChain, cfg.ChainId)
	assert.NoError(t, cfg.Validate())
	l1, err := cfg.L1ChainID()
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), l1)
	require.Len(t, cfg.BridgedTokens, 1)
	assert.Equal(t, 6, cfg.BridgedTokens[0].Decimals)
}

func TestGetSystemConfigClientError(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"not found"}`)
	}))

	_, err := client.GetSystemConfig(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not found", apiErr.Message())
	assert.EqualValues(t, 1, hits.Load())
}

func TestRequestToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/auth", r.URL.Path)
		assert.Equal(t, testAccount, r.Header.Get("PARADEX-STARKNET-ACCOUNT"))
		assert.Equal(t, `["1","2"]`, r.Header.Get("PARADEX-STARKNET-SIGNATURE"))
		assert.Equal(t, "100", r.Header.Get("PARADEX-TIMESTAMP"))
		assert.Equal(t, "200", r.Header.Get("PARADEX-SIGNATURE-EXPIRATION"))
		_, _ = io.WriteString(w, `{"jwt_token":"jwt-abc"}`)
	}))

	tok, err := client.RequestToken(context.Background(), auth.AuthHeaders{
		Account:    testAccount,
		Signature:  `["1","2"]`,
		Timestamp:  "100",
		Expiration: "200",
	})
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", tok)
}

func TestRequestTokenRejected(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"INVALID_STARKNET_SIGNATURE","message":"invalid signature"}`)
	}))
	withTokenManager(t, client)

	_, err := client.TokenManager().EnsureFresh(context.Background())
	assert.ErrorIs(t, err, auth.ErrAuthenticationFailed)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestRequestTimeout(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.RequestToken(ctx, auth.AuthHeaders{})
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestOnboard(t *testing.T) {
	kp := testKeyPair(t)
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"created", http.StatusOK, `{}`, false},
		{"conflict", http.StatusConflict, `{}`, false},
		{"already onboarded", http.StatusBadRequest, `{"error":"already_onboarded"}`, false},
		{"rejected", http.StatusBadRequest, `{"error":"INVALID_REQUEST"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/onboarding", r.URL.Path)
				assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", r.Header.Get("PARADEX-ETHEREUM-ACCOUNT"))
				assert.Equal(t, testAccount, r.Header.Get("PARADEX-STARKNET-ACCOUNT"))
				_, _, err := signer.ParseFlatSignature(r.Header.Get("PARADEX-STARKNET-SIGNATURE"))
				assert.NoError(t, err)

				var body map[string]string
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, kp.PublicKeyHex(), body["public_key"])
				assert.Equal(t, "ref1", body["referral_code"])

				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))

			err := client.Onboard(context.Background(), typeddata.ChainIDFromString(testChain),
				"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", testAccount, kp, "ref1")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// exchange is a minimal fake of the authenticated order endpoints.
type exchange struct {
	authCalls   atomic.Int32
	orderCalls  atomic.Int32
	expireFirst bool
	cancelled   string
}

func (e *exchange) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/auth":
		n := e.authCalls.Add(1)
		_, _ = io.WriteString(w, `{"jwt_token":"jwt-`+strconv.Itoa(int(n))+`"}`)
		return
	case !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer jwt-"):
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"missing bearer"}`)
		return
	}

	e.orderCalls.Add(1)
	if e.expireFirst && r.Header.Get("Authorization") == "Bearer jwt-1" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, expiredBody)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/orders":
		var payload order.SignedPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"id":"order-1","account":"`+testAccount+`","market":"`+payload.Market+`","status":"NEW","size":"`+payload.Size+`"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/orders/order-1":
		_, _ = io.WriteString(w, `{"id":"order-1","status":"OPEN","cancel_reason":"`+e.cancelled+`","price":"50000.25","size":1.5}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/v1/orders/order-1":
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/orders":
		_, _ = io.WriteString(w, `{"results":[{"id":"order-1","market":"BTC-USD-PERP","remaining_size":"0.5"}]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestDoAuthenticatedRetriesOnExpiry(t *testing.T) {
	ex := &exchange{expireFirst: true}
	client := newTestClient(t, ex)
	withTokenManager(t, client)

	o, err := client.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "OPEN", o.Status)
	assert.True(t, o.Price.Equal(decimal.RequireFromString("50000.25")))
	assert.True(t, o.Size.Equal(decimal.RequireFromString("1.5")))

	assert.EqualValues(t, 2, ex.authCalls.Load())
	assert.EqualValues(t, 2, ex.orderCalls.Load())
	assert.Equal(t, "jwt-2", client.TokenManager().Token())
}

func TestDoAuthenticatedNoRetryOnOtherErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/auth" {
			_, _ = io.WriteString(w, `{"jwt_token":"jwt"}`)
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, expiredBody)
	}))
	withTokenManager(t, client)

	_, err := client.GetOrder(context.Background(), "order-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDoAuthenticatedWithoutCredentials(t *testing.T) {
	client := newTestClient(t, &exchange{})
	_, err := client.GetOpenOrders(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrCredentialsMissing)
}

func newTestPipeline(t *testing.T) *order.Pipeline {
	p, err := order.NewPipeline(typeddata.ChainIDFromString(testChain), testAccount, testKeyPair(t))
	require.NoError(t, err)
	return p
}

func TestPlaceOrder(t *testing.T) {
	client := newTestClient(t, &exchange{})
	withTokenManager(t, client)

	o := order.NewLimit("BTC-USD-PERP", types.OrderSideBuy, decimal.RequireFromString("1.5"), decimal.RequireFromString("50000.25"))
	id, err := client.PlaceOrder(context.Background(), newTestPipeline(t), o)
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	assert.Equal(t, types.OrderStatusOpen, o.Status)
	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, testAccount, o.Account)
	assert.Equal(t, types.OrderActionSend, o.LastAction)
	assert.NotEmpty(t, o.Signature)
}

func TestPlaceLimitOrderCancelled(t *testing.T) {
	client := newTestClient(t, &exchange{cancelled: "POST_ONLY_WOULD_CROSS"})
	withTokenManager(t, client)

	id, err := client.PlaceLimitOrder(context.Background(), newTestPipeline(t), "BTC-USD-PERP", types.OrderSideSell,
		decimal.RequireFromString("1"), decimal.RequireFromString("1"), "client-1", false)
	assert.Equal(t, "order-1", id)
	assert.ErrorIs(t, err, ErrOrderCancelled)
	assert.Contains(t, err.Error(), "POST_ONLY_WOULD_CROSS")
}

func TestCancelAndListOrders(t *testing.T) {
	client := newTestClient(t, &exchange{})
	withTokenManager(t, client)
	ctx := context.Background()

	require.NoError(t, client.CancelOrder(ctx, "order-1"))

	orders, err := client.GetOpenOrders(ctx, "BTC-USD-PERP")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].RemainingSize.Equal(decimal.RequireFromString("0.5")))

	assert.NoError(t, client.CancelAllOpenOrders(ctx))
}

func TestRoute(t *testing.T) {
	assert.Equal(t, "/v1/orders/{id}", route("/v1/orders/abc"))
	assert.Equal(t, "/v1/orders", route("/v1/orders"))
	assert.Equal(t, "/v1/auth", route("/v1/auth"))
}
