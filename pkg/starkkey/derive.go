package starkkey

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/dontpanicdao/caigo"
)

var ErrInvalidSignatureFormat = errors.New("invalid ethereum signature format")

// PrivateKeyFromEthSignature derives the STARK private key from a 0x-prefixed
// Ethereum signature. Only the r component (first 32 bytes) seeds the key.
func PrivateKeyFromEthSignature(sigHex string) (*big.Int, error) {
	s := strings.TrimSpace(sigHex)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("%w: missing 0x prefix", ErrInvalidSignatureFormat)
	}
	s = s[2:]
	if len(s) < 64 || len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: expected at least 64 hex chars, got %d", ErrInvalidSignatureFormat, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignatureFormat, err)
	}
	r := new(big.Int).SetBytes(raw[:32])
	return Grind(r, fieldModulus)
}

// PublicKey returns the x coordinate of priv*G on the STARK curve.
func PublicKey(priv *big.Int) (*big.Int, error) {
	if priv == nil || priv.Sign() <= 0 || priv.Cmp(fieldModulus) >= 0 {
		return nil, fmt.Errorf("private key out of range")
	}
	x, _, err := caigo.Curve.PrivateToPoint(priv)
	if err != nil {
		return nil, err
	}
	return x, nil
}
