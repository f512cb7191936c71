package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qlandys/paradex-auth/pkg/order"
	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
	"github.com/qlandys/paradex-auth/pkg/types"
)

type orderSigOutput struct {
	Signature          string `json:"signature"`
	SignatureTimestamp int64  `json:"signatureTimestamp"`
}

type signReq struct {
	Id          int64  `json:"id"`
	Account     string `json:"account"`
	Market      string `json:"market"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Size        string `json:"size"`
	Price       string `json:"price"`
	TimestampMs int64  `json:"timestampMs"`
}

type signResp struct {
	Id                 int64  `json:"id"`
	Signature          string `json:"signature,omitempty"`
	SignatureTimestamp int64  `json:"signatureTimestamp,omitempty"`
	Error              string `json:"error,omitempty"`
}

// toOrder validates the request and builds the order to sign.
func (r signReq) toOrder() (*order.Order, error) {
	market := strings.TrimSpace(r.Market)
	size := strings.TrimSpace(r.Size)
	price := strings.TrimSpace(r.Price)
	if market == "" || r.Side == "" || r.OrderType == "" || size == "" {
		return nil, fmt.Errorf("missing params")
	}
	typ, err := types.ParseOrderType(r.OrderType)
	if err != nil {
		return nil, fmt.Errorf("invalid orderType")
	}
	side, err := types.ParseOrderSide(r.Side)
	if err != nil {
		return nil, fmt.Errorf("invalid side")
	}
	if typ.IsMarket() && price == "" {
		price = "0"
	}
	if price == "" {
		return nil, fmt.Errorf("missing price")
	}
	sizeDec, err := decimal.NewFromString(size)
	if err != nil {
		return nil, fmt.Errorf("size: %v", err)
	}
	priceDec, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("price: %v", err)
	}

	o := order.New(market, typ, side, sizeDec)
	if !typ.IsMarket() {
		o.LimitPrice = &priceDec
	}
	o.SignatureTimestamp = r.TimestampMs
	return o, nil
}

// orderSigner signs orders for any account controlled by one L2 key.
type orderSigner struct {
	chainID   *big.Int
	kp        signer.KeyPair
	pipelines map[string]*order.Pipeline
}

func newOrderSigner(chainID *big.Int, kp signer.KeyPair) *orderSigner {
	return &orderSigner{chainID: chainID, kp: kp, pipelines: map[string]*order.Pipeline{}}
}

func (s *orderSigner) sign(req signReq) (orderSigOutput, error) {
	account := strings.TrimSpace(req.Account)
	if account == "" {
		return orderSigOutput{}, fmt.Errorf("missing params")
	}
	o, err := req.toOrder()
	if err != nil {
		return orderSigOutput{}, err
	}

	p, ok := s.pipelines[account]
	if !ok {
		if p, err = order.NewPipeline(s.chainID, account, s.kp); err != nil {
			return orderSigOutput{}, err
		}
		s.pipelines[account] = p
	}
	payload, err := p.PrepareAndSign(o)
	if err != nil {
		return orderSigOutput{}, fmt.Errorf("sign: %v", err)
	}
	return orderSigOutput{Signature: payload.Signature, SignatureTimestamp: payload.SignatureTimestamp}, nil
}

// serveSign answers one JSON request per line until EOF or an "exit" line.
func serveSign(in io.Reader, out io.Writer, s *orderSigner) error {
	scanner := bufio.NewScanner(in)
	// allow long lines if needed
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		var req signReq
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if err := writeJSON(out, signResp{Id: 0, Error: fmt.Sprintf("bad json: %v", err)}); err != nil {
				return err
			}
			continue
		}

		resp := signResp{Id: req.Id}
		if sig, err := s.sign(req); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Signature = sig.Signature
			resp.SignatureTimestamp = sig.SignatureTimestamp
		}
		if err := writeJSON(out, resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin scan: %w", err)
	}
	return nil
}

func chainIDFromAPI() (*big.Int, error) {
	if chain := viper.GetString("chain-id"); chain != "" {
		return typeddata.ChainIDFromString(chain), nil
	}
	ctx, cancel := commandContext(time.Minute)
	defer cancel()

	client, err := newClient()
	if err != nil {
		return nil, err
	}
	cfg, err := fetchConfig(ctx, client)
	if err != nil {
		return nil, err
	}
	return typeddata.ChainIDFromString(cfg.ChainId), nil
}

var signOrderCmd = &cobra.Command{
	Use:   "sign-order",
	Short: "sign a single order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := readL2PrivateKey(bufio.NewReader(os.Stdin))
		if err != nil {
			return err
		}
		chainID, err := chainIDFromAPI()
		if err != nil {
			return err
		}
		if strings.TrimSpace(viper.GetString("account")) == "" {
			return fmt.Errorf("missing --account")
		}

		out, err := newOrderSigner(chainID, kp).sign(signReq{
			Account:     viper.GetString("account"),
			Market:      viper.GetString("market"),
			Side:        viper.GetString("side"),
			OrderType:   viper.GetString("order-type"),
			Size:        viper.GetString("size"),
			Price:       viper.GetString("price"),
			TimestampMs: viper.GetInt64("timestamp-ms"),
		})
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, out)
	},
}

var serveSignCmd = &cobra.Command{
	Use:   "serve-sign",
	Short: "sign orders received as JSON lines on stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stdin := bufio.NewReader(os.Stdin)
		kp, err := readL2PrivateKey(stdin)
		if err != nil {
			return err
		}
		chainID, err := chainIDFromAPI()
		if err != nil {
			return err
		}
		return serveSign(stdin, os.Stdout, newOrderSigner(chainID, kp))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{signOrderCmd, serveSignCmd} {
		cmd.Flags().String("chain-id", "", "Starknet chain id; fetched from /system/config when empty")
		rootCmd.AddCommand(cmd)
	}
	addOrderFlags(signOrderCmd)
	signOrderCmd.Flags().Int64("timestamp-ms", 0, "Signature timestamp (ms). 0 = now")
}

func addOrderFlags(cmd *cobra.Command) {
	cmd.Flags().String("account", "", "Paradex Starknet account address (0x...)")
	cmd.Flags().String("market", "", "Market symbol, e.g. ETH-USD-PERP")
	cmd.Flags().String("side", "", "BUY or SELL")
	cmd.Flags().String("order-type", "", "LIMIT | MARKET | STOP_MARKET | STOP_LOSS_MARKET | TAKE_PROFIT_MARKET")
	cmd.Flags().String("size", "", "Order size (base units, decimal)")
	cmd.Flags().String("price", "", "Order price (decimal); for MARKET use 0 or leave empty")
}
