package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qlandys/paradex-auth/pkg/paradexapi"
)

type closeOutput struct {
	OrderID  string `json:"orderId"`
	ClientID string `json:"clientId"`
	Market   string `json:"market"`
	Side     string `json:"side"`
	Size     string `json:"size"`
}

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "list open positions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := readL2PrivateKey(bufio.NewReader(os.Stdin))
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(time.Minute)
		defer cancel()

		sess, err := newSession(ctx, kp)
		if err != nil {
			return err
		}
		positions, err := sess.client.GetOpenPositions(ctx)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, positions)
	},
}

var closePositionCmd = &cobra.Command{
	Use:   "close-position",
	Short: "close an open position with a reduce-only limit order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		market := strings.TrimSpace(viper.GetString("market"))
		if market == "" {
			return fmt.Errorf("market is required")
		}
		price, err := decimal.NewFromString(strings.TrimSpace(viper.GetString("price")))
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", viper.GetString("price"), err)
		}

		kp, err := readL2PrivateKey(bufio.NewReader(os.Stdin))
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(time.Minute)
		defer cancel()

		sess, err := newSession(ctx, kp)
		if err != nil {
			return err
		}
		positions, err := sess.client.GetOpenPositions(ctx)
		if err != nil {
			return err
		}
		pos, ok := findPosition(positions, market)
		if !ok {
			return fmt.Errorf("%w: no open position on %s", paradexapi.ErrPositionNotOpen, market)
		}

		clientID := viper.GetString("client-id")
		if clientID == "" {
			clientID = uuid.NewString()
		}
		orderID, err := sess.client.ClosePositionLimit(ctx, sess.pipeline, pos, price, clientID)
		if err != nil {
			return fmt.Errorf("close position: %w", err)
		}

		log.WithField("market", market).Info("close order placed")
		return writeJSON(os.Stdout, closeOutput{
			OrderID:  orderID,
			ClientID: clientID,
			Market:   market,
			Side:     string(pos.OrderSide().Opposite()),
			Size:     pos.Size.Abs().String(),
		})
	},
}

func findPosition(positions []paradexapi.Position, market string) (paradexapi.Position, bool) {
	for _, p := range positions {
		if strings.EqualFold(p.Market, market) {
			return p, true
		}
	}
	return paradexapi.Position{}, false
}

func init() {
	for _, cmd := range []*cobra.Command{positionsCmd, closePositionCmd} {
		cmd.Flags().String("account", "", "Paradex Starknet account address (0x...)")
		addSessionFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	closePositionCmd.Flags().String("market", "", "Market symbol, e.g. ETH-USD-PERP")
	closePositionCmd.Flags().String("price", "", "limit price of the closing order")
	closePositionCmd.Flags().String("client-id", "", "client order id; a random UUID when empty")
}
