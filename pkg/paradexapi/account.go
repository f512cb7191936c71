package paradexapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/qlandys/paradex-auth/pkg/order"
	"github.com/qlandys/paradex-auth/pkg/types"
)

const (
	PositionSideLong  = "LONG"
	PositionSideShort = "SHORT"

	PositionStatusOpen   = "OPEN"
	PositionStatusClosed = "CLOSED"
)

// AccountInfo is the margin summary served by GET /account.
type AccountInfo struct {
	Account                      string          `json:"account"`
	AccountValue                 decimal.Decimal `json:"account_value"`
	FreeCollateral               decimal.Decimal `json:"free_collateral"`
	InitialMarginRequirement     decimal.Decimal `json:"initial_margin_requirement"`
	MaintenanceMarginRequirement decimal.Decimal `json:"maintenance_margin_requirement"`
	MarginCushion                decimal.Decimal `json:"margin_cushion"`
	SettlementAsset              string          `json:"settlement_asset"`
	Status                       string          `json:"status"`
	TotalCollateral              decimal.Decimal `json:"total_collateral"`
	UpdatedAt                    int64           `json:"updated_at"`
}

type Balance struct {
	Token         string          `json:"token"`
	Size          decimal.Decimal `json:"size"`
	LastUpdatedAt int64           `json:"last_updated_at"`
}

// Position is a perpetual position. Liquidation price and leverage are
// empty strings while the position is flat, so they stay unparsed.
type Position struct {
	ID                   string          `json:"id"`
	Account              string          `json:"account"`
	Market               string          `json:"market"`
	Side                 string          `json:"side"`
	Status               string          `json:"status"`
	Size                 decimal.Decimal `json:"size"`
	AverageEntryPriceUSD decimal.Decimal `json:"average_entry_price_usd"`
	UnrealizedPnl        decimal.Decimal `json:"unrealized_pnl"`
	CostUSD              decimal.Decimal `json:"cost_usd"`
	Leverage             string          `json:"leverage"`
	LiquidationPrice     string          `json:"liquidation_price"`
	LastUpdatedAt        int64           `json:"last_updated_at"`
}

// OrderSide is the side of the order that opened the position.
func (p Position) OrderSide() types.OrderSide {
	if p.Side == PositionSideLong {
		return types.OrderSideBuy
	}
	return types.OrderSideSell
}

// SignedSize is the position size, negative for shorts.
func (p Position) SignedSize() decimal.Decimal {
	return p.Size.Abs().Mul(decimal.NewFromInt(int64(p.OrderSide().Sign())))
}

type MarginConfig struct {
	Market     string          `json:"market"`
	Leverage   decimal.Decimal `json:"leverage"`
	MarginType string          `json:"margin_type"`
}

type MarginConfiguration struct {
	Account string         `json:"account"`
	Configs []MarginConfig `json:"configs"`
}

type marginRequest struct {
	Leverage   decimal.Decimal `json:"leverage"`
	MarginType string          `json:"marginType"`
}

type maxSlippageRequest struct {
	MaxSlippage decimal.Decimal `json:"max_slippage"`
}

func (c *RestClient) GetAccountInfo(ctx context.Context) (AccountInfo, error) {
	resp, err := c.DoAuthenticated(ctx, http.MethodGet, "account", nil, nil)
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "get account")
	}
	var out AccountInfo
	if err := resp.DecodeJSON(&out); err != nil {
		return AccountInfo{}, err
	}
	return out, nil
}

func (c *RestClient) GetBalance(ctx context.Context) ([]Balance, error) {
	resp, err := c.DoAuthenticated(ctx, http.MethodGet, "balance", nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "get balance")
	}
	var out struct {
		Results []Balance `json:"results"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetPositions lists every position of the account, including closed ones.
func (c *RestClient) GetPositions(ctx context.Context) ([]Position, error) {
	resp, err := c.DoAuthenticated(ctx, http.MethodGet, "positions", nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "get positions")
	}
	var out struct {
		Results []Position `json:"results"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *RestClient) GetOpenPositions(ctx context.Context) ([]Position, error) {
	all, err := c.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]Position, 0, len(all))
	for _, p := range all {
		if p.Status == PositionStatusOpen {
			open = append(open, p)
		}
	}
	return open, nil
}

// ClosePositionLimit places a reduce-only limit order on the opposite side
// for the full position size.
func (c *RestClient) ClosePositionLimit(ctx context.Context, pipeline *order.Pipeline, pos Position, price decimal.Decimal, clientID string) (string, error) {
	if pos.Status != PositionStatusOpen || pos.Size.IsZero() {
		return "", errors.Wrapf(ErrPositionNotOpen, "position %s on %s is %s", pos.ID, pos.Market, pos.Status)
	}
	side := pos.OrderSide().Opposite()
	log.WithFields(logrus.Fields{
		"market": pos.Market,
		"side":   side,
		"size":   pos.Size.Abs().String(),
	}).Info("closing position")
	return c.PlaceLimitOrder(ctx, pipeline, pos.Market, side, pos.Size.Abs(), price, clientID, true)
}

func (c *RestClient) GetMarginConfiguration(ctx context.Context, market string) (MarginConfiguration, error) {
	resp, err := c.DoAuthenticated(ctx, http.MethodGet, "account/margin", url.Values{"market": []string{market}}, nil)
	if err != nil {
		return MarginConfiguration{}, errors.Wrapf(err, "get margin configuration %s", market)
	}
	var out MarginConfiguration
	if err := resp.DecodeJSON(&out); err != nil {
		return MarginConfiguration{}, err
	}
	return out, nil
}

// SetMarginConfiguration sets leverage and margin type (CROSS or ISOLATED)
// for market.
func (c *RestClient) SetMarginConfiguration(ctx context.Context, market string, leverage decimal.Decimal, marginType string) error {
	_, err := c.DoAuthenticated(ctx, http.MethodPost, "account/margin/"+url.PathEscape(market), nil,
		marginRequest{Leverage: leverage, MarginType: marginType})
	if err != nil {
		return errors.Wrapf(err, "set margin configuration %s", market)
	}
	return nil
}

// UpdateMaxSlippage sets the account-wide slippage cap for market orders,
// as a fraction (0.01 is 1%).
func (c *RestClient) UpdateMaxSlippage(ctx context.Context, maxSlippage decimal.Decimal) error {
	_, err := c.DoAuthenticated(ctx, http.MethodPost, "account/profile/max_slippage", nil,
		maxSlippageRequest{MaxSlippage: maxSlippage})
	if err != nil {
		return errors.Wrap(err, "update max slippage")
	}
	return nil
}
