package starkkey

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/qlandys/paradex-auth/pkg/typeddata"
)

// EthSigner produces EIP-712 signatures with an Ethereum key. Wallet
// integrations implement it; EthKeySigner signs with a raw private key.
type EthSigner interface {
	SignTypedData(td apitypes.TypedData) (string, error)
}

type EthKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func NewEthKeySigner(privateKeyHex string) (*EthKeySigner, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid ethereum private key: %w", err)
	}
	return &EthKeySigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

func (s *EthKeySigner) Address() common.Address {
	return s.address
}

// SignTypedData returns the 0x-hex r||s||v signature of td with v in {27, 28}.
func (s *EthKeySigner) SignTypedData(td apitypes.TypedData) (string, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return "", fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

func SignStarkKeyMessage(ethPrivKeyHex string, msg typeddata.StarkKeyMessage) (string, error) {
	signer, err := NewEthKeySigner(ethPrivKeyHex)
	if err != nil {
		return "", err
	}
	return signer.SignTypedData(msg.ToAPITypes())
}

// DeriveFromEthKey derives the STARK private key bound to an Ethereum key on
// the given L1 chain.
func DeriveFromEthKey(ethPrivKeyHex string, l1ChainID int64) (*big.Int, error) {
	signer, err := NewEthKeySigner(ethPrivKeyHex)
	if err != nil {
		return nil, err
	}
	return DeriveWith(signer, l1ChainID)
}

func DeriveWith(signer EthSigner, l1ChainID int64) (*big.Int, error) {
	sig, err := signer.SignTypedData(typeddata.NewStarkKeyMessage(l1ChainID).ToAPITypes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign stark key message: %w", err)
	}
	return PrivateKeyFromEthSignature(sig)
}
