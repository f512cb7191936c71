package typeddata

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const StarkKeyAction = "STARK Key"

// StarkKeyMessage binds a STARK key to an Ethereum account. Unlike the other
// messages it is signed with the Ethereum key under EIP-712 rules, so its
// chain id is the decimal L1 chain id.
type StarkKeyMessage struct {
	Name    string
	Version string
	ChainID int64
	Action  string
}

func NewStarkKeyMessage(l1ChainID int64) StarkKeyMessage {
	return StarkKeyMessage{
		Name:    DomainName,
		Version: DomainVersion,
		ChainID: l1ChainID,
		Action:  StarkKeyAction,
	}
}

func (m StarkKeyMessage) Kind() Kind          { return KindStarkKey }
func (m StarkKeyMessage) PrimaryType() string { return "Constant" }

func (m StarkKeyMessage) Definition() []Field {
	return []Field{
		{Name: "action", Type: "string"},
	}
}

// ToAPITypes converts the message into the go-ethereum EIP-712 representation.
func (m StarkKeyMessage) ToAPITypes() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Constant": {
				{Name: "action", Type: "string"},
			},
		},
		PrimaryType: m.PrimaryType(),
		Domain: apitypes.TypedDataDomain{
			Name:    m.Name,
			Version: m.Version,
			ChainId: (*math.HexOrDecimal256)(big.NewInt(m.ChainID)),
		},
		Message: apitypes.TypedDataMessage{
			"action": m.Action,
		},
	}
}
