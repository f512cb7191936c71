package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qlandys/paradex-auth/pkg/types"
)

type Order struct {
	ID             string
	Account        string
	Status         types.OrderStatus
	Market         string
	Type           types.OrderType
	Side           types.OrderSide
	Size           decimal.Decimal
	Remaining      decimal.Decimal
	LimitPrice     *decimal.Decimal
	ClientID       string
	CreatedAt      int64 // ms
	CancelReason   string
	LastAction     types.OrderAction
	LastActionTime int64
	CancelAttempts int

	Signature          string
	SignatureTimestamp int64 // ms, stamped at signing time when zero
	Instruction        string
	Flags              []string
}

func New(market string, typ types.OrderType, side types.OrderSide, size decimal.Decimal) *Order {
	return &Order{
		Status:      types.OrderStatusNew,
		Market:      market,
		Type:        typ,
		Side:        side,
		Size:        size,
		Remaining:   size,
		CreatedAt:   time.Now().UnixMilli(),
		LastAction:  types.OrderActionNone,
		Instruction: types.InstructionGTC,
	}
}

func NewLimit(market string, side types.OrderSide, size, price decimal.Decimal) *Order {
	o := New(market, types.OrderTypeLimit, side, size)
	o.LimitPrice = &price
	return o
}

func NewMarket(market string, side types.OrderSide, size decimal.Decimal) *Order {
	return New(market, types.OrderTypeMarket, side, size)
}

// ChainSize is the size as signed: trunc(size * 10^8).
func (o *Order) ChainSize() string {
	return ScaleToX8(o.Size)
}

// ChainPrice is the price as signed. Market-executed orders always sign "0".
func (o *Order) ChainPrice() (string, error) {
	if o.Type.IsMarket() {
		return "0", nil
	}
	if o.LimitPrice == nil {
		return "", fmt.Errorf("%w: %s order on %s has no limit price", ErrUnsupportedOrderType, o.Type, o.Market)
	}
	return ScaleToX8(*o.LimitPrice), nil
}

func (o *Order) MarkOpen(id string) {
	o.ID = id
	o.Status = types.OrderStatusOpen
}

func (o *Order) Close(reason string) {
	o.Status = types.OrderStatusClosed
	o.CancelReason = reason
	o.Remaining = decimal.Zero
}

// RecordAction notes the last action sent for the order; cancels are counted.
func (o *Order) RecordAction(action types.OrderAction, at time.Time) {
	o.LastAction = action
	o.LastActionTime = at.UnixMilli()
	if action == types.OrderActionSendCancel {
		o.CancelAttempts++
	}
}

func (o *Order) String() string {
	var sb strings.Builder
	status := string(o.Status)
	if o.Status == types.OrderStatusClosed {
		status += "(" + o.CancelReason + ")"
	}
	fmt.Fprintf(&sb, "%s %s %s %s %s/%s", o.Market, status, o.Type, o.Side, o.Remaining, o.Size)
	if o.Type == types.OrderTypeLimit && o.LimitPrice != nil {
		fmt.Fprintf(&sb, "@%s", o.LimitPrice)
	}
	fmt.Fprintf(&sb, ";%s", o.Instruction)
	if o.ID != "" {
		fmt.Fprintf(&sb, ";id=%s", o.ID)
	}
	if o.ClientID != "" {
		fmt.Fprintf(&sb, ";client_id=%s", o.ClientID)
	}
	if o.LastAction != "" && o.LastAction != types.OrderActionNone {
		fmt.Fprintf(&sb, ";last_action:%s", o.LastAction)
	}
	fmt.Fprintf(&sb, ";signed with:%s@%d", o.Signature, o.SignatureTimestamp)
	if len(o.Flags) > 0 {
		fmt.Fprintf(&sb, ";flags=%v", o.Flags)
	}
	return sb.String()
}

// SignedPayload is the body of POST /orders.
type SignedPayload struct {
	Market             string   `json:"market"`
	Side               string   `json:"side"`
	Size               string   `json:"size"`
	Type               string   `json:"type"`
	ClientID           string   `json:"client_id"`
	Signature          string   `json:"signature"`
	SignatureTimestamp int64    `json:"signature_timestamp"`
	Instruction        string   `json:"instruction"`
	Price              string   `json:"price,omitempty"`
	Flags              []string `json:"flags,omitempty"`
}

func (o *Order) Payload() SignedPayload {
	p := SignedPayload{
		Market:             o.Market,
		Side:               string(o.Side),
		Size:               plainString(o.Size),
		Type:               string(o.Type),
		ClientID:           o.ClientID,
		Signature:          o.Signature,
		SignatureTimestamp: o.SignatureTimestamp,
		Instruction:        o.Instruction,
		Flags:              o.Flags,
	}
	if o.Type == types.OrderTypeLimit && o.LimitPrice != nil {
		p.Price = plainString(*o.LimitPrice)
	}
	return p
}

// plainString renders d with the digits it was built with, so "1.50" stays
// "1.50" instead of decimal.String's "1.5".
func plainString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
