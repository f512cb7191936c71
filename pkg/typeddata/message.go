package typeddata

import (
	"math/big"
	"strconv"

	"github.com/dontpanicdao/caigo/types"
)

const (
	DomainName    = "Paradex"
	DomainVersion = "1"

	// DefaultSignatureTTL is the lifetime in seconds requested for auth signatures.
	DefaultSignatureTTL int64 = 24 * 60 * 60

	AuthMethod = "POST"
	AuthPath   = "/v1/auth"
)

// Kind tags the four canonical message shapes.
type Kind int

const (
	KindStarkKey Kind = iota
	KindOnboarding
	KindAuth
	KindOrder
)

func (k Kind) String() string {
	switch k {
	case KindStarkKey:
		return "StarkKey"
	case KindOnboarding:
		return "Onboarding"
	case KindAuth:
		return "Auth"
	case KindOrder:
		return "Order"
	}
	return "Unknown"
}

// Field is one entry of a type schema. The order of fields is part of the
// signed payload.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Domain is the StarkNetDomain of the felt-encoded messages.
type Domain struct {
	Name    string
	Version string
	ChainID *big.Int
}

func NewDomain(chainID *big.Int) Domain {
	return Domain{
		Name:    DomainName,
		Version: DomainVersion,
		ChainID: new(big.Int).Set(chainID),
	}
}

// ChainIDHex renders the chain id the way it appears in the JSON domain.
func (d Domain) ChainIDHex() string {
	return types.BigToHex(d.ChainID)
}

func (d Domain) FmtDefinitionEncoding(field string) (fmtEnc []*big.Int) {
	switch field {
	case "name":
		fmtEnc = appendFelt(fmtEnc, d.Name)
	case "chainId":
		fmtEnc = append(fmtEnc, new(big.Int).Set(d.ChainID))
	case "version":
		fmtEnc = appendFelt(fmtEnc, d.Version)
	}
	return fmtEnc
}

var domainDefinition = []Field{
	{Name: "name", Type: "felt"},
	{Name: "chainId", Type: "felt"},
	{Name: "version", Type: "felt"},
}

// Message is a felt-encoded typed message signed with the STARK key. The set
// of implementations is closed: OnboardingMessage, AuthMessage and
// OrderMessage.
type Message interface {
	Kind() Kind
	PrimaryType() string
	Definition() []Field
	Domain() Domain
	FmtDefinitionEncoding(field string) []*big.Int

	sealed()
}

// ChainIDFromString converts a Starknet chain id such as
// "PRIVATE_SN_PARACLEAR_MAINNET" into its felt value (big-endian integer of
// the UTF-8 bytes). Hex and decimal strings are parsed as numbers.
func ChainIDFromString(chainID string) *big.Int {
	if n, ok := new(big.Int).SetString(chainID, 0); ok {
		return n
	}
	return types.UTF8StrToBig(chainID)
}

type OnboardingMessage struct {
	domain Domain
	Action string
}

func NewOnboardingMessage(chainID *big.Int) *OnboardingMessage {
	return &OnboardingMessage{domain: NewDomain(chainID), Action: "Onboarding"}
}

func (m *OnboardingMessage) Kind() Kind          { return KindOnboarding }
func (m *OnboardingMessage) PrimaryType() string { return "Constant" }
func (m *OnboardingMessage) Domain() Domain      { return m.domain }
func (m *OnboardingMessage) sealed()             {}

func (m *OnboardingMessage) Definition() []Field {
	return []Field{
		{Name: "action", Type: "felt"},
	}
}

func (m *OnboardingMessage) FmtDefinitionEncoding(field string) (fmtEnc []*big.Int) {
	if field == "action" {
		fmtEnc = appendFelt(fmtEnc, m.Action)
	}
	return fmtEnc
}

// AuthMessage is the Request message signed to obtain a JWT.
type AuthMessage struct {
	domain     Domain
	Method     string
	Path       string
	Body       string
	Timestamp  int64
	Expiration int64
}

func NewAuthMessage(chainID *big.Int, timestamp, expiration int64) *AuthMessage {
	return &AuthMessage{
		domain:     NewDomain(chainID),
		Method:     AuthMethod,
		Path:       AuthPath,
		Body:       "",
		Timestamp:  timestamp,
		Expiration: expiration,
	}
}

// NewAuthMessageAt builds an auth message valid for ttl seconds from now (unix seconds).
func NewAuthMessageAt(chainID *big.Int, now, ttl int64) *AuthMessage {
	return NewAuthMessage(chainID, now, now+ttl)
}

func (m *AuthMessage) Kind() Kind          { return KindAuth }
func (m *AuthMessage) PrimaryType() string { return "Request" }
func (m *AuthMessage) Domain() Domain      { return m.domain }
func (m *AuthMessage) sealed()             {}

func (m *AuthMessage) Definition() []Field {
	return []Field{
		{Name: "method", Type: "felt"},
		{Name: "path", Type: "felt"},
		{Name: "body", Type: "felt"},
		{Name: "timestamp", Type: "felt"},
		{Name: "expiration", Type: "felt"},
	}
}

func (m *AuthMessage) TimestampString() string  { return strconv.FormatInt(m.Timestamp, 10) }
func (m *AuthMessage) ExpirationString() string { return strconv.FormatInt(m.Expiration, 10) }

func (m *AuthMessage) FmtDefinitionEncoding(field string) (fmtEnc []*big.Int) {
	switch field {
	case "method":
		fmtEnc = appendFelt(fmtEnc, m.Method)
	case "path":
		fmtEnc = appendFelt(fmtEnc, m.Path)
	case "body":
		fmtEnc = appendFelt(fmtEnc, m.Body)
	case "timestamp":
		fmtEnc = append(fmtEnc, big.NewInt(m.Timestamp))
	case "expiration":
		fmtEnc = append(fmtEnc, big.NewInt(m.Expiration))
	}
	return fmtEnc
}

// OrderFields are the already chain-encoded values of an order message.
// Size and Price are integer strings scaled by 10^8, Side is "1" or "2".
type OrderFields struct {
	Timestamp int64
	Market    string
	Side      string
	OrderType string
	Size      string
	Price     string
}

type OrderMessage struct {
	domain Domain
	Fields OrderFields
}

func NewOrderMessage(chainID *big.Int, fields OrderFields) *OrderMessage {
	return &OrderMessage{domain: NewDomain(chainID), Fields: fields}
}

func (m *OrderMessage) Kind() Kind          { return KindOrder }
func (m *OrderMessage) PrimaryType() string { return "Order" }
func (m *OrderMessage) Domain() Domain      { return m.domain }
func (m *OrderMessage) sealed()             {}

func (m *OrderMessage) Definition() []Field {
	return []Field{
		{Name: "timestamp", Type: "felt"},
		{Name: "market", Type: "felt"},
		{Name: "side", Type: "felt"},
		{Name: "orderType", Type: "felt"},
		{Name: "size", Type: "felt"},
		{Name: "price", Type: "felt"},
	}
}

func (m *OrderMessage) FmtDefinitionEncoding(field string) (fmtEnc []*big.Int) {
	switch field {
	case "timestamp":
		fmtEnc = append(fmtEnc, big.NewInt(m.Fields.Timestamp))
	case "market":
		fmtEnc = appendFelt(fmtEnc, m.Fields.Market)
	case "side":
		fmtEnc = appendFelt(fmtEnc, m.Fields.Side)
	case "orderType":
		fmtEnc = appendFelt(fmtEnc, m.Fields.OrderType)
	case "size":
		fmtEnc = appendFelt(fmtEnc, m.Fields.Size)
	case "price":
		fmtEnc = appendFelt(fmtEnc, m.Fields.Price)
	}
	return fmtEnc
}

// appendFelt appends the felt value of s. Numeric strings are parsed as
// numbers, other ASCII strings as short strings. types.StrToFelt("") returns
// nil, so the empty string is encoded as 0 explicitly. Values that cannot be
// encoded are skipped and reported by the hasher.
func appendFelt(fmtEnc []*big.Int, s string) []*big.Int {
	if s == "" {
		return append(fmtEnc, big.NewInt(0))
	}
	f := types.StrToFelt(s)
	if f == nil {
		return fmtEnc
	}
	return append(fmtEnc, f.Big())
}
