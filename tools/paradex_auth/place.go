package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qlandys/paradex-auth/pkg/account"
	"github.com/qlandys/paradex-auth/pkg/auth"
	"github.com/qlandys/paradex-auth/pkg/order"
	"github.com/qlandys/paradex-auth/pkg/paradexapi"
	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
)

type placeOutput struct {
	OrderID  string `json:"orderId"`
	ClientID string `json:"clientId"`
	Order    string `json:"order"`
}

var placeOrderCmd = &cobra.Command{
	Use:   "place-order",
	Short: "sign and submit an order",
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

		clientID := viper.GetString("client-id")
		if clientID == "" {
			clientID = uuid.NewString()
		}
		o, err := signReq{
			Market:    viper.GetString("market"),
			Side:      viper.GetString("side"),
			OrderType: viper.GetString("order-type"),
			Size:      viper.GetString("size"),
			Price:     viper.GetString("price"),
		}.toOrder()
		if err != nil {
			return err
		}
		o.ClientID = clientID
		if instruction := viper.GetString("instruction"); instruction != "" {
			o.Instruction = strings.ToUpper(instruction)
		}
		o.Flags = viper.GetStringSlice("flags")

		orderID, err := sess.client.PlaceOrder(ctx, sess.pipeline, o)
		if err != nil {
			return fmt.Errorf("place order: %w", err)
		}

		log.WithField("account", sess.address).Infof("placed %s", o)
		return writeJSON(os.Stdout, placeOutput{OrderID: orderID, ClientID: clientID, Order: o.String()})
	},
}

// session is an authenticated client plus the order pipeline of one account.
type session struct {
	address  string
	client   *paradexapi.RestClient
	pipeline *order.Pipeline
}

// newSession resolves the account of kp and attaches a token manager. A token
// passed with --jwt is used until it ages out.
func newSession(ctx context.Context, kp signer.KeyPair) (*session, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	cfg, err := fetchConfig(ctx, client)
	if err != nil {
		return nil, err
	}

	address := strings.TrimSpace(viper.GetString("account"))
	if address == "" {
		if address, err = account.ComputeAddress(cfg.ParaclearAccountProxyHash, cfg.ParaclearAccountHash, kp.PublicKeyHex()); err != nil {
			return nil, err
		}
	}

	chainID := typeddata.ChainIDFromString(cfg.ChainId)
	tokens, err := auth.NewManager(chainID, &auth.Credentials{Account: address, KeyPair: kp}, client, auth.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if jwt := strings.TrimSpace(viper.GetString("jwt")); jwt != "" {
		tokens.SetToken(jwt, time.Now())
	}
	client.Auth(tokens)

	pipeline, err := order.NewPipeline(chainID, address, kp)
	if err != nil {
		return nil, err
	}
	return &session{address: address, client: client, pipeline: pipeline}, nil
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("jwt", "", "bearer token from a previous auth run; refreshed automatically once stale or expired")
}

func init() {
	addOrderFlags(placeOrderCmd)
	addSessionFlags(placeOrderCmd)
	placeOrderCmd.Flags().String("client-id", "", "client order id; a random UUID when empty")
	placeOrderCmd.Flags().String("instruction", "GTC", "GTC | IOC | POST_ONLY")
	placeOrderCmd.Flags().StringSlice("flags", nil, "order flags, e.g. REDUCE_ONLY")
	rootCmd.AddCommand(placeOrderCmd)
}
