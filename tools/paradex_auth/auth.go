package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qlandys/paradex-auth/pkg/account"
	"github.com/qlandys/paradex-auth/pkg/auth"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
)

type authOutput struct {
	JWT       string `json:"jwt"`
	Account   string `json:"account"`
	PublicKey string `json:"publicKey"`
	ExpiresAt int64  `json:"expiresAt"`
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "compute the account of an L2 key and obtain a JWT",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		expirySeconds := viper.GetInt64("expiry-seconds")
		if expirySeconds < 10 {
			return fmt.Errorf("expiry-seconds too small")
		}

		kp, err := readL2PrivateKey(bufio.NewReader(os.Stdin))
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

		publicKey := kp.PublicKeyHex()
		address, err := account.ComputeAddress(cfg.ParaclearAccountProxyHash, cfg.ParaclearAccountHash, publicKey)
		if err != nil {
			return fmt.Errorf("account: %w", err)
		}
		chainID := typeddata.ChainIDFromString(cfg.ChainId)

		if l1Address := viper.GetString("l1-address"); viper.GetBool("onboard") && l1Address != "" {
			if err := client.Onboard(ctx, chainID, l1Address, address, kp, viper.GetString("referral-code")); err != nil {
				return fmt.Errorf("onboarding: %w", err)
			}
		}

		signatureTTL := time.Duration(expirySeconds) * time.Second
		authCfg := auth.DefaultConfig()
		authCfg.SignatureTTL = signatureTTL
		if authCfg.SoftTTL >= signatureTTL {
			authCfg.SoftTTL = signatureTTL / 2
		}
		tokens, err := auth.NewManager(chainID, &auth.Credentials{Account: address, KeyPair: kp}, client, authCfg)
		if err != nil {
			return err
		}
		jwt, err := tokens.EnsureFresh(ctx)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		tok, _ := tokens.BearerToken()

		// Provide a minimum guard to help callers avoid immediately-expired tokens.
		if !tok.ExpiresAt.After(time.Now()) {
			return fmt.Errorf("auth: token already expired")
		}

		log.WithField("account", address).Info("obtained jwt")
		return writeJSON(os.Stdout, authOutput{
			JWT:       jwt,
			Account:   address,
			PublicKey: publicKey,
			ExpiresAt: tok.ExpiresAt.Unix(),
		})
	},
}

func init() {
	authCmd.Flags().String("l1-address", "", "Ethereum account address (0x...) used for onboarding")
	authCmd.Flags().Int64("expiry-seconds", 300, "Auth signature expiration in seconds")
	authCmd.Flags().Bool("onboard", true, "Attempt onboarding before auth (ignored if l1-address is empty)")
	authCmd.Flags().String("referral-code", "", "referral code sent with onboarding")
	rootCmd.AddCommand(authCmd)
}
