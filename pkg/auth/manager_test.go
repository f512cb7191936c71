package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
)

const testAccount = "0x129f3dc1b8962d8a87abc692424c78fda963ade0e1cd17bf3d1c26f8d41ee7a"

var (
	testChainID = typeddata.ChainIDFromString("PRIVATE_SN_PARACLEAR_MAINNET")
	expiredBody = []byte(`{"error":"INVALID_TOKEN","message":"invalid bearer jwt: token is expired by 1m2s"}`)
)

type fakeRequester struct {
	calls   atomic.Int32
	release chan struct{}
	err     error

	mu      sync.Mutex
	headers []AuthHeaders
}

func (f *fakeRequester) RequestToken(ctx context.Context, headers AuthHeaders) (string, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.headers = append(f.headers, headers)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "jwt-" + strconv.Itoa(int(n)), nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testCredentials(t *testing.T) *Credentials {
	kp, err := signer.KeyPairFromHex("0x534093db41f35a196b4ec9bae0cd537d9c0c521bff9ba9e97b69b0293693ccb")
	require.NoError(t, err)
	return &Credentials{Account: testAccount, KeyPair: kp}
}

func newTestManager(t *testing.T, requester TokenRequester) (*Manager, *clock) {
	m, err := NewManager(testChainID, testCredentials(t), requester, DefaultConfig())
	require.NoError(t, err)
	c := &clock{now: time.Unix(1700000000, 0)}
	m.now = c.Now
	return m, c
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.SoftTTL = cfg.SignatureTTL
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SoftTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RefreshTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ExpiryGrace = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ExpiryGrace = cfg.SoftTTL
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ExpiryGrace = 0
	assert.NoError(t, cfg.Validate())

	_, err := NewManager(testChainID, nil, &fakeRequester{}, Config{SoftTTL: time.Hour, SignatureTTL: time.Minute, RefreshTimeout: time.Second})
	assert.Error(t, err)
}

func TestIsTokenExpired(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     []byte
		expected bool
	}{
		{"expired", http.StatusUnauthorized, expiredBody, true},
		{"forbidden with expiry message", http.StatusForbidden, expiredBody, false},
		{"other unauthorized", http.StatusUnauthorized, []byte(`{"message":"invalid bearer jwt: signature is invalid"}`), false},
		{"not json", http.StatusUnauthorized, []byte(`token is expired`), false},
		{"empty", http.StatusUnauthorized, nil, false},
		{"ok", http.StatusOK, expiredBody, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTokenExpired(tt.status, tt.body))
		})
	}
}

func TestEnsureFreshSoftTTL(t *testing.T) {
	requester := &fakeRequester{}
	m, c := newTestManager(t, requester)
	ctx := context.Background()

	assert.Equal(t, "", m.Token())
	tok, err := m.EnsureFresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", tok)
	assert.EqualValues(t, 1, requester.calls.Load())

	c.Advance(10 * time.Second)
	tok, err = m.EnsureFresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", tok)
	assert.EqualValues(t, 1, requester.calls.Load())

	c.Advance(190 * time.Second)
	tok, err = m.EnsureFresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jwt-2", tok)
	assert.EqualValues(t, 2, requester.calls.Load())
	assert.Equal(t, "jwt-2", m.Token())
}

func TestAuthHeaders(t *testing.T) {
	requester := &fakeRequester{}
	m, _ := newTestManager(t, requester)

	_, err := m.EnsureFresh(context.Background())
	require.NoError(t, err)

	require.Len(t, requester.headers, 1)
	h := requester.headers[0]
	assert.Equal(t, testAccount, h.Account)
	assert.Equal(t, "1700000000", h.Timestamp)
	assert.Equal(t, "1700086400", h.Expiration)

	r, s, err := signer.ParseFlatSignature(h.Signature)
	require.NoError(t, err)
	hash, err := typeddata.Hash(typeddata.NewAuthMessage(testChainID, 1700000000, 1700086400), m.account)
	require.NoError(t, err)
	ok, err := signer.Verify(hash, r, s, m.creds.KeyPair.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)

	header := http.Header{}
	h.Apply(header)
	assert.Equal(t, testAccount, header.Get("PARADEX-STARKNET-ACCOUNT"))
	assert.Equal(t, h.Signature, header.Get("PARADEX-STARKNET-SIGNATURE"))
	assert.Equal(t, "1700000000", header.Get("PARADEX-TIMESTAMP"))
	assert.Equal(t, "1700086400", header.Get("PARADEX-SIGNATURE-EXPIRATION"))

	tok, ok := m.BearerToken()
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700086400, 0), tok.ExpiresAt)
}

func TestEnsureFreshSingleFlight(t *testing.T) {
	requester := &fakeRequester{release: make(chan struct{})}
	m, _ := newTestManager(t, requester)

	const callers = 32
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.EnsureFresh(context.Background())
		}(i)
	}

	assert.Eventually(t, func() bool { return requester.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(requester.release)
	wg.Wait()

	assert.EqualValues(t, 1, requester.calls.Load())
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "jwt-1", tokens[i])
	}
}

func TestOnUnauthorizedSingleFlight(t *testing.T) {
	requester := &fakeRequester{}
	m, _ := newTestManager(t, requester)
	ctx := context.Background()

	used, err := m.EnsureFresh(ctx)
	require.NoError(t, err)

	requester.release = make(chan struct{})
	const callers = 16
	var wg sync.WaitGroup
	retry := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			retry[i], _ = m.OnUnauthorizedToken(ctx, used, http.StatusUnauthorized, expiredBody)
		}(i)
	}
	assert.Eventually(t, func() bool { return requester.calls.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(requester.release)
	wg.Wait()

	assert.EqualValues(t, 2, requester.calls.Load())
	for i := 0; i < callers; i++ {
		assert.True(t, retry[i])
	}
	assert.Equal(t, "jwt-2", m.Token())

	// a late 401 for the old token does not trigger another refresh
	retried, err := m.OnUnauthorizedToken(ctx, used, http.StatusUnauthorized, expiredBody)
	require.NoError(t, err)
	assert.True(t, retried)
	assert.EqualValues(t, 2, requester.calls.Load())
}

func TestOnUnauthorized(t *testing.T) {
	requester := &fakeRequester{}
	m, c := newTestManager(t, requester)
	ctx := context.Background()

	retried, err := m.OnUnauthorized(ctx, http.StatusForbidden, expiredBody)
	require.NoError(t, err)
	assert.False(t, retried)
	assert.EqualValues(t, 0, requester.calls.Load())

	retried, err = m.OnUnauthorized(ctx, http.StatusUnauthorized, []byte(`{"message":"nope"}`))
	require.NoError(t, err)
	assert.False(t, retried)

	// expiry forces a reacquisition even if the token is within the soft TTL
	_, err = m.EnsureFresh(ctx)
	require.NoError(t, err)
	c.Advance(30 * time.Second)
	retried, err = m.OnUnauthorized(ctx, http.StatusUnauthorized, expiredBody)
	require.NoError(t, err)
	assert.True(t, retried)
	assert.EqualValues(t, 2, requester.calls.Load())
	assert.Equal(t, "jwt-2", m.Token())
}

func TestOnUnauthorizedStaggered(t *testing.T) {
	requester := &fakeRequester{}
	m, c := newTestManager(t, requester)
	ctx := context.Background()

	_, err := m.EnsureFresh(ctx)
	require.NoError(t, err)
	c.Advance(time.Minute)

	// two waves that do not overlap: the second one arrives after the
	// refresh triggered by the first has completed
	const callers = 32
	for wave := 0; wave < 2; wave++ {
		var wg sync.WaitGroup
		retry := make([]bool, callers)
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				retry[i], errs[i] = m.OnUnauthorized(ctx, http.StatusUnauthorized, expiredBody)
			}(i)
		}
		wg.Wait()
		for i := 0; i < callers; i++ {
			assert.NoError(t, errs[i])
			assert.True(t, retry[i])
		}
	}
	assert.EqualValues(t, 2, requester.calls.Load())
	assert.Equal(t, "jwt-2", m.Token())

	// once the grace period has passed a new expiry report is honored
	c.Advance(DefaultConfig().ExpiryGrace)
	retried, err := m.OnUnauthorized(ctx, http.StatusUnauthorized, expiredBody)
	require.NoError(t, err)
	assert.True(t, retried)
	assert.EqualValues(t, 3, requester.calls.Load())
	assert.Equal(t, "jwt-3", m.Token())
}

func TestSetToken(t *testing.T) {
	requester := &fakeRequester{}
	m, c := newTestManager(t, requester)
	ctx := context.Background()

	m.SetToken("cached", c.Now().Add(-time.Minute))
	tok, err := m.EnsureFresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cached", tok)
	assert.EqualValues(t, 0, requester.calls.Load())

	bt, ok := m.BearerToken()
	require.True(t, ok)
	assert.Equal(t, c.Now().Add(-time.Minute).Add(24*time.Hour), bt.ExpiresAt)

	// an expiry report for the installed token is not covered by the grace
	// period because the token was issued a minute ago
	retried, err := m.OnUnauthorized(ctx, http.StatusUnauthorized, expiredBody)
	require.NoError(t, err)
	assert.True(t, retried)
	assert.Equal(t, "jwt-1", m.Token())

	m.SetToken("cached", c.Now().Add(-200*time.Second))
	tok, err = m.EnsureFresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jwt-2", tok)
}

func TestCredentialsMissing(t *testing.T) {
	requester := &fakeRequester{}
	m, err := NewManager(testChainID, nil, requester, DefaultConfig())
	require.NoError(t, err)

	_, err = m.EnsureFresh(context.Background())
	assert.ErrorIs(t, err, ErrCredentialsMissing)

	retried, err := m.OnUnauthorized(context.Background(), http.StatusUnauthorized, expiredBody)
	assert.False(t, retried)
	assert.ErrorIs(t, err, ErrCredentialsMissing)
	assert.EqualValues(t, 0, requester.calls.Load())

	m, err = NewManager(testChainID, &Credentials{Account: testAccount}, requester, DefaultConfig())
	require.NoError(t, err)
	_, err = m.EnsureFresh(context.Background())
	assert.ErrorIs(t, err, ErrCredentialsMissing)
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("http %d", e.code) }
func (e *statusError) HTTPStatus() int { return e.code }

func TestAuthenticationFailed(t *testing.T) {
	cause := &statusError{code: http.StatusBadRequest}
	requester := &fakeRequester{err: cause}
	m, _ := newTestManager(t, requester)

	_, err := m.EnsureFresh(context.Background())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	var se *statusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "", m.Token())

	retried, err := m.OnUnauthorized(context.Background(), http.StatusUnauthorized, expiredBody)
	assert.False(t, retried)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestTransportErrorPropagates(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), false},
		{"server error", &statusError{code: http.StatusBadGateway}, false},
		{"unauthorized", &statusError{code: http.StatusUnauthorized}, true},
		{"bad request", &statusError{code: http.StatusBadRequest}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, &fakeRequester{err: tt.err})
			_, err := m.EnsureFresh(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			if tt.rejected {
				assert.ErrorIs(t, err, ErrAuthenticationFailed)
			} else {
				assert.NotErrorIs(t, err, ErrAuthenticationFailed)
				assert.Equal(t, tt.err, err)
			}
		})
	}
}

func TestRefreshTimeoutPropagates(t *testing.T) {
	requester := &fakeRequester{err: fmt.Errorf("request timeout: %w", context.DeadlineExceeded)}
	m, _ := newTestManager(t, requester)

	_, err := m.EnsureFresh(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)
}

func TestEnsureFreshCallerCancel(t *testing.T) {
	requester := &fakeRequester{release: make(chan struct{})}
	m, _ := newTestManager(t, requester)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.EnsureFresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// the shared refresh is not cancelled by the caller
	close(requester.release)
	assert.Eventually(t, func() bool { return m.Token() == "jwt-1" }, time.Second, time.Millisecond)
}
