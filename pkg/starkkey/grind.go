package starkkey

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
)

var ErrInvalidGrindInput = errors.New("invalid grind input")

// STARK curve order.
var fieldModulus = fr.Modulus()

var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// FieldModulus returns a copy of the STARK curve order.
func FieldModulus() *big.Int {
	return new(big.Int).Set(fieldModulus)
}

// Grind maps seed into [0, modulus) without modulo bias. Candidates are
// sha256(seed || index) for index = 0, 1, ... and the first one below the
// largest multiple of modulus that fits in 256 bits is reduced and returned.
func Grind(seed, modulus *big.Int) (*big.Int, error) {
	if seed == nil || seed.Sign() < 0 {
		return nil, fmt.Errorf("%w: seed must be a non-negative integer", ErrInvalidGrindInput)
	}
	if modulus == nil || modulus.Sign() <= 0 || modulus.Cmp(two256) > 0 {
		return nil, fmt.Errorf("%w: modulus must be in (0, 2^256]", ErrInvalidGrindInput)
	}

	ceiling := new(big.Int).Sub(two256, new(big.Int).Mod(two256, modulus))
	seedBytes := evenBytes(seed)

	for index := int64(0); ; index++ {
		h := sha256.New()
		h.Write(seedBytes)
		h.Write(evenBytes(big.NewInt(index)))
		candidate := new(big.Int).SetBytes(h.Sum(nil))
		if candidate.Cmp(ceiling) < 0 {
			return candidate.Mod(candidate, modulus), nil
		}
	}
}

// evenBytes is the byte string of n's even-length hex rendering; zero is a
// single 0x00 byte.
func evenBytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}
