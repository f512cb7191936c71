package order

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/sirupsen/logrus"

	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
	"github.com/qlandys/paradex-auth/pkg/types"
)

var log = logrus.WithField("component", "order")

var (
	ErrUnsupportedOrderType = errors.New("unsupported order type")
	ErrInvalidSize          = errors.New("invalid order size")
	ErrInvalidPrice         = errors.New("invalid order price")
)

var feltModulus = fp.Modulus()

// Pipeline signs orders for one account on one chain.
type Pipeline struct {
	chainID *big.Int
	account *big.Int
	keyPair signer.KeyPair

	now func() time.Time
}

func NewPipeline(chainID *big.Int, account string, kp signer.KeyPair) (*Pipeline, error) {
	if chainID == nil {
		return nil, fmt.Errorf("chain id is nil")
	}
	digits := strings.TrimPrefix(strings.TrimSpace(account), "0x")
	accountBN, ok := new(big.Int).SetString(digits, 16)
	if !ok || digits == "" {
		return nil, fmt.Errorf("invalid account address %q", account)
	}
	return &Pipeline{
		chainID: new(big.Int).Set(chainID),
		account: accountBN,
		keyPair: kp,
		now:     time.Now,
	}, nil
}

// PrepareAndSign validates o, signs it and returns the submission payload.
// o is only modified after signing succeeds: Signature is set,
// SignatureTimestamp is stamped when it was zero and Side and Type are
// rewritten in their canonical upper-case form, so the submitted payload
// always matches what was signed.
func (p *Pipeline) PrepareAndSign(o *Order) (SignedPayload, error) {
	fields, side, typ, err := p.messageFields(o)
	if err != nil {
		return SignedPayload{}, err
	}

	msg := typeddata.NewOrderMessage(p.chainID, fields)
	sig, err := signer.SignMessage(msg, p.account, p.keyPair)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("failed to sign order: %w", err)
	}

	o.Side = side
	o.Type = typ
	o.Signature = sig
	o.SignatureTimestamp = fields.Timestamp

	log.WithFields(logrus.Fields{
		"market":    o.Market,
		"side":      o.Side,
		"type":      o.Type,
		"client_id": o.ClientID,
	}).Debug("signed order")
	return o.Payload(), nil
}

// messageFields builds the signed fields from the parsed side and type of o.
func (p *Pipeline) messageFields(o *Order) (typeddata.OrderFields, types.OrderSide, types.OrderType, error) {
	var fields typeddata.OrderFields
	if o == nil {
		return fields, "", "", fmt.Errorf("order is nil")
	}
	if o.Market == "" {
		return fields, "", "", fmt.Errorf("order market is empty")
	}
	typ, err := types.ParseOrderType(string(o.Type))
	if err != nil {
		return fields, "", "", fmt.Errorf("%w: %v", ErrUnsupportedOrderType, err)
	}
	side, err := types.ParseOrderSide(string(o.Side))
	if err != nil {
		return fields, "", "", fmt.Errorf("%w: %v", ErrUnsupportedOrderType, err)
	}

	size := o.ChainSize()
	if err := checkFelt(size); err != nil {
		return fields, "", "", fmt.Errorf("%w: %s: %v", ErrInvalidSize, o.Size, err)
	}

	price := "0"
	if !typ.IsMarket() {
		if o.LimitPrice == nil {
			return fields, "", "", fmt.Errorf("%w: %s order on %s has no limit price", ErrUnsupportedOrderType, typ, o.Market)
		}
		price = ScaleToX8(*o.LimitPrice)
		if err := checkFelt(price); err != nil {
			return fields, "", "", fmt.Errorf("%w: %s: %v", ErrInvalidPrice, o.LimitPrice, err)
		}
	}

	ts := o.SignatureTimestamp
	if ts <= 0 {
		ts = p.now().UnixMilli()
	}
	fields = typeddata.OrderFields{
		Timestamp: ts,
		Market:    o.Market,
		Side:      side.ChainSide(),
		OrderType: string(typ),
		Size:      size,
		Price:     price,
	}
	return fields, side, typ, nil
}

// checkFelt requires a scaled value in (0, P).
func checkFelt(scaled string) error {
	n, ok := new(big.Int).SetString(scaled, 10)
	if !ok {
		return fmt.Errorf("not an integer")
	}
	if n.Sign() <= 0 {
		return fmt.Errorf("must be positive at 8 decimals")
	}
	if n.Cmp(feltModulus) >= 0 {
		return fmt.Errorf("exceeds the field size")
	}
	return nil
}
