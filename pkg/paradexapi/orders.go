package paradexapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/qlandys/paradex-auth/pkg/order"
	"github.com/qlandys/paradex-auth/pkg/types"
)

// Order is an order as reported by the exchange.
type Order struct {
	ID            string          `json:"id"`
	Account       string          `json:"account"`
	Market        string          `json:"market"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Size          decimal.Decimal `json:"size"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	Price         decimal.Decimal `json:"price"`
	Status        string          `json:"status"`
	CreatedAt     int64           `json:"created_at"`
	LastUpdatedAt int64           `json:"last_updated_at"`
	Timestamp     int64           `json:"timestamp"`
	CancelReason  string          `json:"cancel_reason"`
	ClientID      string          `json:"client_id"`
	SeqNo         *int64          `json:"seq_no,omitempty"`
	Instruction   string          `json:"instruction"`
	AvgFillPrice  string          `json:"avg_fill_price"`
	Stp           string          `json:"stp"`
}

func (c *RestClient) SubmitOrder(ctx context.Context, payload order.SignedPayload) (Order, error) {
	resp, err := c.DoAuthenticated(ctx, http.MethodPost, "orders", nil, payload)
	if err != nil {
		return Order{}, errors.Wrap(err, "submit order")
	}
	var out Order
	if err := resp.DecodeJSON(&out); err != nil {
		return Order{}, err
	}
	return out, nil
}

func (c *RestClient) GetOrder(ctx context.Context, orderID string) (Order, error) {
	resp, err := c.DoAuthenticated(ctx, http.MethodGet, "orders/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		return Order{}, errors.Wrapf(err, "get order %s", orderID)
	}
	var out Order
	if err := resp.DecodeJSON(&out); err != nil {
		return Order{}, err
	}
	return out, nil
}

func (c *RestClient) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := c.DoAuthenticated(ctx, http.MethodDelete, "orders/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		return errors.Wrapf(err, "cancel order %s", orderID)
	}
	if resp.StatusCode != http.StatusNoContent {
		log.WithField("order_id", orderID).Debugf("cancel returned http %d", resp.StatusCode)
	}
	return nil
}

type ordersResponse struct {
	Results []Order `json:"results"`
}

// GetOpenOrders lists open orders, optionally filtered by market.
func (c *RestClient) GetOpenOrders(ctx context.Context, market string) ([]Order, error) {
	var params url.Values
	if market != "" {
		params = url.Values{"market": []string{market}}
	}
	resp, err := c.DoAuthenticated(ctx, http.MethodGet, "orders", params, nil)
	if err != nil {
		return nil, errors.Wrap(err, "get open orders")
	}
	var out ordersResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// CancelAllOpenOrders cancels every open order; failures are logged and the
// first one is returned after all cancels were attempted.
func (c *RestClient) CancelAllOpenOrders(ctx context.Context) error {
	orders, err := c.GetOpenOrders(ctx, "")
	if err != nil {
		return err
	}
	var firstErr error
	for _, o := range orders {
		logger := log.WithFields(logrus.Fields{"order_id": o.ID, "market": o.Market})
		if err := c.CancelOrder(ctx, o.ID); err != nil {
			logger.WithError(err).Error("failed to cancel order")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Info("cancelled order")
	}
	return firstErr
}

// PlaceOrder signs o, submits it and checks that it was not cancelled on
// arrival. The order id is returned and o is marked open; a cancelled order
// is closed with its cancel reason and ErrOrderCancelled is returned.
func (c *RestClient) PlaceOrder(ctx context.Context, pipeline *order.Pipeline, o *order.Order) (string, error) {
	payload, err := pipeline.PrepareAndSign(o)
	if err != nil {
		return "", err
	}
	o.RecordAction(types.OrderActionSend, timeNow())

	placed, err := c.SubmitOrder(ctx, payload)
	if err != nil {
		return "", err
	}
	o.Account = placed.Account

	created, err := c.GetOrder(ctx, placed.ID)
	if err != nil {
		return placed.ID, err
	}
	if reason := strings.TrimSpace(created.CancelReason); reason != "" {
		o.ID = placed.ID
		o.Close(reason)
		return placed.ID, errors.Wrapf(ErrOrderCancelled, "order %s: %s", placed.ID, reason)
	}
	o.MarkOpen(placed.ID)
	return placed.ID, nil
}

// PlaceLimitOrder places a GTC limit order with the given client id. A
// reduce-only order can only shrink an existing position.
func (c *RestClient) PlaceLimitOrder(ctx context.Context, pipeline *order.Pipeline, market string, side types.OrderSide, size, price decimal.Decimal, clientID string, reduceOnly bool) (string, error) {
	o := order.NewLimit(market, side, size, price)
	o.ClientID = clientID
	if reduceOnly {
		o.Flags = []string{types.FlagReduceOnly}
	}
	return c.PlaceOrder(ctx, pipeline, o)
}

func trimHex(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
}
