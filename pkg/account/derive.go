package account

import (
	"fmt"

	"github.com/dontpanicdao/caigo/types"

	paradextypes "github.com/qlandys/paradex-auth/pkg/types"

	"github.com/qlandys/paradex-auth/pkg/signer"
	"github.com/qlandys/paradex-auth/pkg/starkkey"
)

// Account is the Paradex L2 account bound to an Ethereum key.
type Account struct {
	Address    string
	PrivateKey string
	PublicKey  string
}

func (a Account) KeyPair() (signer.KeyPair, error) {
	return signer.KeyPairFromHex(a.PrivateKey)
}

// DeriveAccount derives the STARK key pair and account address of an
// Ethereum private key on the chain described by cfg.
func DeriveAccount(ethPrivKeyHex string, cfg paradextypes.SystemConfig) (Account, error) {
	ethSigner, err := starkkey.NewEthKeySigner(ethPrivKeyHex)
	if err != nil {
		return Account{}, err
	}
	return DeriveAccountWith(ethSigner, cfg)
}

func DeriveAccountWith(ethSigner starkkey.EthSigner, cfg paradextypes.SystemConfig) (Account, error) {
	if err := cfg.Validate(); err != nil {
		return Account{}, fmt.Errorf("invalid system config: %w", err)
	}
	l1ChainID, err := cfg.L1ChainID()
	if err != nil {
		return Account{}, err
	}

	priv, err := starkkey.DeriveWith(ethSigner, l1ChainID)
	if err != nil {
		return Account{}, err
	}
	kp, err := signer.NewKeyPair(priv)
	if err != nil {
		return Account{}, err
	}
	address, err := ComputeAddress(cfg.ParaclearAccountProxyHash, cfg.ParaclearAccountHash, kp.PublicKeyHex())
	if err != nil {
		return Account{}, err
	}

	log.WithField("account", address).Debug("derived paradex account")
	return Account{
		Address:    address,
		PrivateKey: types.BigToHex(kp.PrivateKey),
		PublicKey:  kp.PublicKeyHex(),
	}, nil
}
