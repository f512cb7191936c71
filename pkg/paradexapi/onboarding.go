package paradexapi

import (
	"bytes"
	"context"
	"math/big"
	"net/http"

	"github.com/pkg/errors"

	"github.com/qlandys/paradex-auth/pkg/auth"
	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
)

type onboardingRequest struct {
	PublicKey    string `json:"public_key"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// Onboard registers the STARK public key of account with the Ethereum
// address that owns it. An account that is already onboarded is not an error.
func (c *RestClient) Onboard(ctx context.Context, chainID *big.Int, ethAddress, account string, kp signer.KeyPair, referralCode string) error {
	accountBN, ok := new(big.Int).SetString(trimHex(account), 16)
	if !ok {
		return errors.Errorf("invalid account address %q", account)
	}
	sig, err := signer.SignMessage(typeddata.NewOnboardingMessage(chainID), accountBN, kp)
	if err != nil {
		return errors.Wrap(err, "sign onboarding")
	}

	req, err := c.NewRequest(ctx, http.MethodPost, "onboarding", nil, onboardingRequest{
		PublicKey:    kp.PublicKeyHex(),
		ReferralCode: referralCode,
	})
	if err != nil {
		return err
	}
	req.Header.Set(auth.HeaderEthereumAccount, ethAddress)
	req.Header.Set(auth.HeaderStarknetAccount, account)
	req.Header.Set(auth.HeaderStarknetSignature, sig)

	_, err = c.SendRequest(req)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusConflict || bytes.Contains(bytes.ToUpper(apiErr.Body), []byte("ALREADY_ONBOARDED")) {
			log.WithField("account", account).Info("account already onboarded")
			return nil
		}
	}
	return err
}
