package account

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/dontpanicdao/caigo"
	"github.com/dontpanicdao/caigo/types"
)

var ErrInvalidHexInput = errors.New("invalid hex input")

var contractAddressPrefix = types.StrToFelt("STARKNET_CONTRACT_ADDRESS").Big()

// ComputeAddress returns the counterfactual address of a paraclear account
// deployed behind proxyClassHash with the given public key as salt.
func ComputeAddress(proxyClassHash, accountClassHash, publicKey string) (string, error) {
	proxyHashBN, err := parseHex("paraclear_account_proxy_hash", proxyClassHash)
	if err != nil {
		return "", err
	}
	accountHashBN, err := parseHex("paraclear_account_hash", accountClassHash)
	if err != nil {
		return "", err
	}
	publicKeyBN, err := parseHex("public key", publicKey)
	if err != nil {
		return "", err
	}

	zero := big.NewInt(0)
	constructorCalldata := []*big.Int{
		accountHashBN,
		types.GetSelectorFromName("initialize"),
		big.NewInt(2),
		publicKeyBN,
		zero,
	}
	constructorCalldataHash, err := caigo.Curve.ComputeHashOnElements(constructorCalldata)
	if err != nil {
		return "", err
	}

	address := []*big.Int{
		contractAddressPrefix,
		zero,        // deployer address
		publicKeyBN, // salt
		proxyHashBN,
		constructorCalldataHash,
	}
	addressHash, err := caigo.Curve.ComputeHashOnElements(address)
	if err != nil {
		return "", err
	}
	return types.BigToHex(addressHash), nil
}

func parseHex(name, s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidHexInput, name)
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidHexInput, name, s)
	}
	return n, nil
}
