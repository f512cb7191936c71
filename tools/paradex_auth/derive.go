package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qlandys/paradex-auth/pkg/account"
	"github.com/qlandys/paradex-auth/pkg/starkkey"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
)

type accountOutput struct {
	Account    string `json:"account"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	L1Address  string `json:"l1Address"`
}

func readEthPrivateKey(stdin io.Reader) (*starkkey.EthKeySigner, error) {
	key := strings.TrimSpace(viper.GetString("eth-private-key"))
	if key == "" && viper.GetBool("eth-private-key-stdin") {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		return nil, fmt.Errorf("missing ethereum private key (use --eth-private-key-stdin)")
	}
	return starkkey.NewEthKeySigner(key)
}

func deriveAccount(onboard bool) error {
	ethSigner, err := readEthPrivateKey(os.Stdin)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(time.Minute)
	defer cancel()

	client, err := newClient()
	if err != nil {
		return err
	}
	cfg, err := fetchConfig(ctx, client)
	if err != nil {
		return err
	}

	acc, err := account.DeriveAccountWith(ethSigner, cfg)
	if err != nil {
		return err
	}

	if onboard {
		kp, err := acc.KeyPair()
		if err != nil {
			return err
		}
		chainID := typeddata.ChainIDFromString(cfg.ChainId)
		if err := client.Onboard(ctx, chainID, ethSigner.Address().Hex(), acc.Address, kp, viper.GetString("referral-code")); err != nil {
			return fmt.Errorf("onboarding: %w", err)
		}
	}

	out := accountOutput{
		Account:   acc.Address,
		PublicKey: acc.PublicKey,
		L1Address: ethSigner.Address().Hex(),
	}
	if viper.GetBool("show-private-key") {
		out.PrivateKey = acc.PrivateKey
	}
	return writeJSON(os.Stdout, out)
}

var deriveAccountCmd = &cobra.Command{
	Use:   "derive-account",
	Short: "derive the Paradex L2 key and account address of an Ethereum key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return deriveAccount(false)
	},
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "derive the Paradex account of an Ethereum key and onboard it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return deriveAccount(true)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{deriveAccountCmd, onboardCmd} {
		cmd.Flags().String("eth-private-key", "", "Ethereum private key (0x...)")
		cmd.Flags().Bool("eth-private-key-stdin", false, "Read the Ethereum private key from stdin")
		cmd.Flags().Bool("show-private-key", false, "include the derived L2 private key in the output")
		rootCmd.AddCommand(cmd)
	}
	onboardCmd.Flags().String("referral-code", "", "referral code sent with onboarding")
}
