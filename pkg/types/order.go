package types

import (
	"fmt"
	"strings"
)

type OrderSide string
type OrderType string
type OrderStatus string
type OrderAction string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	// Stop/trigger orders (execute as market when trigger fires).
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeStopLossMarket   OrderType = "STOP_LOSS_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

const (
	OrderStatusNew    OrderStatus = "NEW"
	OrderStatusOpen   OrderStatus = "OPEN"
	OrderStatusClosed OrderStatus = "CLOSED"
)

const (
	OrderActionNone       OrderAction = "NAN"
	OrderActionSend       OrderAction = "SEND"
	OrderActionSendCancel OrderAction = "SEND_CANCEL"
)

const (
	InstructionGTC      = "GTC"
	InstructionIOC      = "IOC"
	InstructionPostOnly = "POST_ONLY"

	FlagReduceOnly = "REDUCE_ONLY"
)

func ParseOrderSide(s string) (OrderSide, error) {
	switch side := OrderSide(strings.ToUpper(strings.TrimSpace(s))); side {
	case OrderSideBuy, OrderSideSell:
		return side, nil
	}
	return "", fmt.Errorf("invalid order side %q (BUY or SELL)", s)
}

// ChainSide is the felt encoding of the side inside signed order messages.
func (s OrderSide) ChainSide() string {
	if s == OrderSideBuy {
		return "1"
	}
	return "2"
}

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() int {
	if s == OrderSideBuy {
		return 1
	}
	return -1
}

func ParseOrderType(s string) (OrderType, error) {
	switch typ := OrderType(strings.ToUpper(strings.TrimSpace(s))); typ {
	case OrderTypeLimit,
		OrderTypeMarket,
		OrderTypeStopMarket,
		OrderTypeStopLossMarket,
		OrderTypeTakeProfitMarket:
		return typ, nil
	}
	return "", fmt.Errorf("invalid order type %q", s)
}

// IsMarket reports whether the order executes at market, in which case the
// signed price is always "0".
func (t OrderType) IsMarket() bool {
	return strings.Contains(string(t), "MARKET")
}
