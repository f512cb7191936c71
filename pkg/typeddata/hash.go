package typeddata

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/dontpanicdao/caigo"
	"github.com/dontpanicdao/caigo/types"

	pedersenhash "github.com/consensys/gnark-crypto/ecc/stark-curve/pedersen-hash"
)

const domainType = "StarkNetDomain"

var snMessageBigInt = types.UTF8StrToBig("StarkNet Message")

var ErrUnencodableField = errors.New("field cannot be encoded as a felt")

// caigoTypes builds the caigo schema map for msg; caigo computes the type
// encodings (starknet keccak of the type string) from it.
func caigoTypes(msg Message) map[string]caigo.TypeDef {
	return map[string]caigo.TypeDef{
		domainType:        toTypeDef(domainDefinition),
		msg.PrimaryType(): toTypeDef(msg.Definition()),
	}
}

func toTypeDef(fields []Field) caigo.TypeDef {
	defs := make([]caigo.Definition, 0, len(fields))
	for _, f := range fields {
		defs = append(defs, caigo.Definition{Name: f.Name, Type: f.Type})
	}
	return caigo.TypeDef{Definitions: defs}
}

// NewTypedData returns the caigo typed data of msg.
func NewTypedData(msg Message) (*caigo.TypedData, error) {
	d := msg.Domain()
	typedData, err := caigo.NewTypedData(caigoTypes(msg), msg.PrimaryType(), caigo.Domain{
		Name:    d.Name,
		Version: d.Version,
		ChainId: d.ChainIDHex(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create typed data with caigo: %w", err)
	}
	return &typedData, nil
}

// Hash computes the Starknet typed-data hash of msg signed by account:
// pedersen("StarkNet Message", H(domain), account, H(message)).
func Hash(msg Message, account *big.Int) (*big.Int, error) {
	if account == nil {
		return nil, fmt.Errorf("account is nil")
	}
	td, err := NewTypedData(msg)
	if err != nil {
		return nil, err
	}
	domEnc, err := encodeStruct(td, domainType, msg.Domain())
	if err != nil {
		return nil, fmt.Errorf("could not hash domain: %w", err)
	}
	msgEnc, err := encodeStruct(td, msg.PrimaryType(), msg)
	if err != nil {
		return nil, fmt.Errorf("could not hash message: %w", err)
	}
	return PedersenArray([]*big.Int{snMessageBigInt, domEnc, account, msgEnc}), nil
}

func encodeStruct(td *caigo.TypedData, inType string, msg caigo.TypedMessage) (*big.Int, error) {
	prim, ok := td.Types[inType]
	if !ok {
		return nil, fmt.Errorf("unknown type: %s", inType)
	}
	elements := make([]*big.Int, 0, len(prim.Definitions)+1)
	elements = append(elements, prim.Encoding)

	for _, def := range prim.Definitions {
		if def.Type != "felt" {
			return nil, fmt.Errorf("unsupported field type: %s", def.Type)
		}
		enc := msg.FmtDefinitionEncoding(def.Name)
		if len(enc) != 1 {
			return nil, fmt.Errorf("%s.%s: %w", inType, def.Name, ErrUnencodableField)
		}
		elements = append(elements, enc...)
	}
	return PedersenArray(elements), nil
}

// PedersenArray hashes elems with the length appended, matching Starknet's
// compute_hash_on_elements.
func PedersenArray(elems []*big.Int) *big.Int {
	fpElements := make([]*fp.Element, len(elems))
	for i, elem := range elems {
		fpElements[i] = new(fp.Element).SetBigInt(elem)
	}
	hash := pedersenhash.PedersenArray(fpElements...)
	return hash.BigInt(new(big.Int))
}
