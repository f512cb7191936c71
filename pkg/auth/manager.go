package auth

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
)

var log = logrus.WithField("component", "auth")

const (
	HeaderStarknetAccount     = "PARADEX-STARKNET-ACCOUNT"
	HeaderStarknetSignature   = "PARADEX-STARKNET-SIGNATURE"
	HeaderTimestamp           = "PARADEX-TIMESTAMP"
	HeaderSignatureExpiration = "PARADEX-SIGNATURE-EXPIRATION"
	HeaderEthereumAccount     = "PARADEX-ETHEREUM-ACCOUNT"
)

// AuthHeaders are the signed headers of POST /auth.
type AuthHeaders struct {
	Account    string
	Signature  string
	Timestamp  string
	Expiration string
}

func (h AuthHeaders) Apply(header http.Header) {
	header.Set(HeaderStarknetAccount, h.Account)
	header.Set(HeaderStarknetSignature, h.Signature)
	header.Set(HeaderTimestamp, h.Timestamp)
	header.Set(HeaderSignatureExpiration, h.Expiration)
}

// TokenRequester exchanges signed auth headers for a JWT.
type TokenRequester interface {
	RequestToken(ctx context.Context, headers AuthHeaders) (string, error)
}

type Credentials struct {
	Account string
	KeyPair signer.KeyPair
}

func (c *Credentials) valid() bool {
	return c != nil && strings.TrimSpace(c.Account) != "" && c.KeyPair.PrivateKey != nil
}

type BearerToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// when the token was installed
	acquiredAt time.Time
}

type Config struct {
	// SoftTTL is the age after which a token is proactively replaced.
	SoftTTL time.Duration
	// SignatureTTL is the validity requested for the auth signature and
	// therefore the token.
	SignatureTTL   time.Duration
	RefreshTimeout time.Duration
	// ExpiryGrace is how long after a token was installed an expiry report
	// without a token is still attributed to the token it replaced.
	ExpiryGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		SoftTTL:        180 * time.Second,
		SignatureTTL:   time.Duration(typeddata.DefaultSignatureTTL) * time.Second,
		RefreshTimeout: 15 * time.Second,
		ExpiryGrace:    5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.SoftTTL <= 0 {
		return fmt.Errorf("soft ttl must be positive")
	}
	if c.SignatureTTL < time.Second {
		return fmt.Errorf("signature ttl must be at least 1s")
	}
	if c.SoftTTL >= c.SignatureTTL {
		return fmt.Errorf("soft ttl %s must be shorter than signature ttl %s", c.SoftTTL, c.SignatureTTL)
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive")
	}
	if c.ExpiryGrace < 0 || c.ExpiryGrace >= c.SoftTTL {
		return fmt.Errorf("expiry grace %s must be in [0, %s)", c.ExpiryGrace, c.SoftTTL)
	}
	return nil
}

// Manager owns the bearer token of one account. Reads are wait-free and at
// most one reacquisition is in flight at a time; concurrent callers that need
// a new token share its result.
type Manager struct {
	cfg       Config
	chainID   *big.Int
	creds     *Credentials
	account   *big.Int
	requester TokenRequester

	token atomic.Pointer[BearerToken]
	group singleflight.Group

	now func() time.Time
}

// NewManager returns a manager for creds. creds may be nil, in which case
// every reacquisition fails with ErrCredentialsMissing.
func NewManager(chainID *big.Int, creds *Credentials, requester TokenRequester, cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if chainID == nil {
		return nil, fmt.Errorf("chain id is nil")
	}
	if requester == nil {
		return nil, fmt.Errorf("token requester is nil")
	}
	m := &Manager{
		cfg:       cfg,
		chainID:   new(big.Int).Set(chainID),
		requester: requester,
		now:       time.Now,
	}
	if creds.valid() {
		digits := strings.TrimPrefix(strings.TrimSpace(creds.Account), "0x")
		account, ok := new(big.Int).SetString(digits, 16)
		if !ok {
			return nil, fmt.Errorf("invalid account address %q", creds.Account)
		}
		m.creds = creds
		m.account = account
	}
	return m, nil
}

// Token returns the current token value, or "" when none has been acquired.
func (m *Manager) Token() string {
	if tok := m.token.Load(); tok != nil {
		return tok.Value
	}
	return ""
}

func (m *Manager) BearerToken() (BearerToken, bool) {
	if tok := m.token.Load(); tok != nil {
		return *tok, true
	}
	return BearerToken{}, false
}

// SetToken installs an externally obtained token, e.g. one printed by a
// previous run. It is replaced once it is older than the soft TTL.
func (m *Manager) SetToken(value string, issuedAt time.Time) {
	m.token.Store(&BearerToken{
		Value:      value,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(m.cfg.SignatureTTL),
		acquiredAt: issuedAt,
	})
}

func (m *Manager) stale() (bool, string) {
	tok := m.token.Load()
	if tok == nil {
		return true, triggerInitial
	}
	now := m.now()
	if now.Sub(tok.IssuedAt) > m.cfg.SoftTTL || !now.Before(tok.ExpiresAt) {
		return true, triggerSoftTTL
	}
	return false, ""
}

// EnsureFresh returns a token younger than the soft TTL, reacquiring it
// first when needed.
func (m *Manager) EnsureFresh(ctx context.Context) (string, error) {
	if stale, _ := m.stale(); !stale {
		return m.Token(), nil
	}
	return m.refresh(ctx, false, "")
}

// OnUnauthorized inspects a failed response. When it reports an expired
// token, a new token is acquired and true is returned so the caller can
// retry once. A token installed less than ExpiryGrace ago is taken to be the
// replacement of the expired one and is not reacquired again.
func (m *Manager) OnUnauthorized(ctx context.Context, status int, body []byte) (bool, error) {
	return m.OnUnauthorizedToken(ctx, "", status, body)
}

// OnUnauthorizedToken is OnUnauthorized for a response to a request made
// with usedToken. If the token has been replaced since, no new reacquisition
// is started.
func (m *Manager) OnUnauthorizedToken(ctx context.Context, usedToken string, status int, body []byte) (bool, error) {
	if !IsTokenExpired(status, body) {
		return false, nil
	}
	if m.superseded(usedToken) {
		recordRefresh(triggerExpired, resultSuperseded)
		return true, nil
	}
	return m.onExpired(ctx, usedToken)
}

func (m *Manager) onExpired(ctx context.Context, usedToken string) (bool, error) {
	log.Warn("bearer token expired, reacquiring")
	if _, err := m.refresh(ctx, true, usedToken); err != nil {
		return false, err
	}
	return true, nil
}

// superseded reports whether an expiry seen with usedToken has already been
// handled by a later reacquisition.
func (m *Manager) superseded(usedToken string) bool {
	tok := m.token.Load()
	if tok == nil {
		return false
	}
	if usedToken != "" {
		return tok.Value != usedToken
	}
	return m.now().Sub(tok.acquiredAt) < m.cfg.ExpiryGrace
}

// refresh joins or starts the single reacquisition. Forced refreshes skip the
// soft TTL check but still return early when usedToken has been replaced in
// the meantime.
func (m *Manager) refresh(ctx context.Context, force bool, usedToken string) (string, error) {
	ch := m.group.DoChan("token", func() (interface{}, error) {
		trigger := triggerExpired
		if force {
			if m.superseded(usedToken) {
				return m.token.Load(), nil
			}
		} else {
			var stale bool
			if stale, trigger = m.stale(); !stale {
				return m.token.Load(), nil
			}
		}
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
		defer cancel()
		return m.reacquire(refreshCtx, trigger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*BearerToken).Value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) reacquire(ctx context.Context, trigger string) (*BearerToken, error) {
	if m.creds == nil {
		recordRefresh(trigger, resultNoCreds)
		return nil, ErrCredentialsMissing
	}

	now := m.now()
	msg := typeddata.NewAuthMessageAt(m.chainID, now.Unix(), int64(m.cfg.SignatureTTL/time.Second))
	sig, err := signer.SignMessage(msg, m.account, m.creds.KeyPair)
	if err != nil {
		recordRefresh(trigger, resultError)
		return nil, fmt.Errorf("failed to sign auth request: %w", err)
	}

	logger := log.WithFields(logrus.Fields{"account": m.creds.Account, "trigger": trigger})
	logger.Debug("requesting bearer token")

	value, err := m.requester.RequestToken(ctx, AuthHeaders{
		Account:    m.creds.Account,
		Signature:  sig,
		Timestamp:  msg.TimestampString(),
		Expiration: msg.ExpirationString(),
	})
	if err != nil {
		if isTimeout(err) {
			recordRefresh(trigger, resultTimeout)
			logger.WithError(err).Warn("bearer token request timed out")
			return nil, err
		}
		if !isRejection(err) {
			recordRefresh(trigger, resultError)
			logger.WithError(err).Warn("bearer token request failed")
			return nil, err
		}
		recordRefresh(trigger, resultRejected)
		logger.WithError(err).Error("bearer token request rejected")
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if value == "" {
		recordRefresh(trigger, resultRejected)
		return nil, fmt.Errorf("%w: empty jwt token", ErrAuthenticationFailed)
	}

	tok := &BearerToken{
		Value:      value,
		IssuedAt:   now,
		ExpiresAt:  time.Unix(msg.Expiration, 0),
		acquiredAt: m.now(),
	}
	m.token.Store(tok)
	recordRefresh(trigger, resultSuccess)
	logger.Info("bearer token refreshed")
	return tok, nil
}
