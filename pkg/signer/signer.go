package signer

import (
	"encoding/json"
	"fmt"
	"math/big"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/ecdsa"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
	"github.com/dontpanicdao/caigo/types"

	"github.com/qlandys/paradex-auth/pkg/starkkey"
	"github.com/qlandys/paradex-auth/pkg/typeddata"
)

// KeyPair is a STARK key pair. PublicKey is the x coordinate of the public point.
type KeyPair struct {
	PrivateKey *big.Int
	PublicKey  *big.Int
}

func NewKeyPair(priv *big.Int) (KeyPair, error) {
	pub, err := starkkey.PublicKey(priv)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PrivateKey: new(big.Int).Set(priv), PublicKey: pub}, nil
}

// KeyPairFromHex parses a hex (0x-prefixed) or decimal private key.
func KeyPairFromHex(privKey string) (KeyPair, error) {
	f := types.StrToFelt(privKey)
	if f == nil {
		return KeyPair{}, fmt.Errorf("invalid private key")
	}
	return NewKeyPair(f.Big())
}

func (kp KeyPair) PublicKeyHex() string {
	return types.BigToHex(kp.PublicKey)
}

func (kp KeyPair) PrivateKeyHex() string {
	return types.BigToHex(kp.PrivateKey)
}

func (kp KeyPair) ecdsaPrivateKey() (*ecdsa.PrivateKey, error) {
	if kp.PrivateKey == nil {
		return nil, fmt.Errorf("invalid private key")
	}
	_, g := starkcurve.Generators()
	pub := new(ecdsa.PublicKey)
	pub.A.ScalarMultiplication(&g, kp.PrivateKey)

	ecdsaPrivateKey := new(ecdsa.PrivateKey)
	pkBytes := kp.PrivateKey.FillBytes(make([]byte, fr.Bytes))
	buf := append(pub.Bytes(), pkBytes...)
	if _, err := ecdsaPrivateKey.SetBytes(buf); err != nil {
		return nil, err
	}
	return ecdsaPrivateKey, nil
}

// Sign produces a STARK-curve ECDSA signature of hash.
func Sign(hash *big.Int, kp KeyPair) (r, s *big.Int, err error) {
	if hash == nil {
		return nil, nil, fmt.Errorf("message hash is nil")
	}
	ecdsaPrivateKey, err := kp.ecdsaPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	sigBin, err := ecdsaPrivateKey.Sign(hash.Bytes(), nil)
	if err != nil {
		return nil, nil, err
	}
	r = new(big.Int).SetBytes(sigBin[:fr.Bytes])
	s = new(big.Int).SetBytes(sigBin[fr.Bytes:])
	return r, s, nil
}

// SignMessage hashes msg for account and returns the flattened signature.
func SignMessage(msg typeddata.Message, account *big.Int, kp KeyPair) (string, error) {
	hash, err := typeddata.Hash(msg, account)
	if err != nil {
		return "", err
	}
	r, s, err := Sign(hash, kp)
	if err != nil {
		return "", err
	}
	return FlattenSignature(r, s), nil
}

// Verify checks (r, s) against the public key x coordinate. Both points
// sharing that x are tried, as the y parity is not part of the key.
func Verify(hash, r, s, publicKey *big.Int) (bool, error) {
	if hash == nil || r == nil || s == nil || publicKey == nil {
		return false, fmt.Errorf("nil signature component")
	}
	y, err := yCoordinate(publicKey)
	if err != nil {
		return false, err
	}
	sig := make([]byte, 2*fr.Bytes)
	r.FillBytes(sig[:fr.Bytes])
	s.FillBytes(sig[fr.Bytes:])

	pub := new(ecdsa.PublicKey)
	pub.A.X.SetBigInt(publicKey)
	pub.A.Y.Set(y)
	if ok, err := pub.Verify(sig, hash.Bytes(), nil); err != nil || ok {
		return ok, err
	}
	pub.A.Y.Neg(y)
	return pub.Verify(sig, hash.Bytes(), nil)
}

// curve: y^2 = x^3 + x + beta
var curveBeta, _ = new(big.Int).SetString("6f21413efbe40de150e596d72f7a8c5609ad26c15c915c1f4cdfcb99cee9e89", 16)

func yCoordinate(x *big.Int) (*fp.Element, error) {
	var fx, rhs, beta fp.Element
	fx.SetBigInt(x)
	beta.SetBigInt(curveBeta)
	rhs.Square(&fx).Mul(&rhs, &fx).Add(&rhs, &fx).Add(&rhs, &beta)
	y := new(fp.Element)
	if y.Sqrt(&rhs) == nil {
		return nil, fmt.Errorf("public key %s is not on the curve", types.BigToHex(x))
	}
	return y, nil
}

// FlattenSignature renders (r, s) as the JSON array of decimal strings sent
// in PARADEX-STARKNET-SIGNATURE and order payloads.
func FlattenSignature(r, s *big.Int) string {
	signature := []string{r.String(), s.String()}
	signatureByte, _ := json.Marshal(signature)
	return string(signatureByte)
}

func ParseFlatSignature(sig string) (r, s *big.Int, err error) {
	var parts []string
	if err := json.Unmarshal([]byte(sig), &parts); err != nil {
		return nil, nil, fmt.Errorf("invalid signature: %w", err)
	}
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid signature: expected 2 components, got %d", len(parts))
	}
	r, ok := new(big.Int).SetString(parts[0], 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid signature r %q", parts[0])
	}
	s, ok = new(big.Int).SetString(parts[1], 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid signature s %q", parts[1])
	}
	return r, s, nil
}
