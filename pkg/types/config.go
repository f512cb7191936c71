package types

import (
	"fmt"
	"strconv"
	"strings"
)

type BridgedToken struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
	L1TokenAddress  string `json:"l1_token_address"`
	L1BridgeAddress string `json:"l1_bridge_address"`
	L2TokenAddress  string `json:"l2_token_address"`
	L2BridgeAddress string `json:"l2_bridge_address"`
}

// SystemConfig is the chain configuration served by GET /system/config.
// Only L1ChainId, ChainId and the two paraclear account hashes are needed to
// derive an account and sign requests.
type SystemConfig struct {
	GatewayUrl                string         `json:"starknet_gateway_url"`
	FullNodeRpcUrl            string         `json:"starknet_fullnode_rpc_url,omitempty"`
	ChainId                   string         `json:"starknet_chain_id"`
	BlockExplorerUrl          string         `json:"block_explorer_url"`
	ParaclearAddress          string         `json:"paraclear_address"`
	ParaclearDecimals         int            `json:"paraclear_decimals"`
	ParaclearAccountProxyHash string         `json:"paraclear_account_proxy_hash"`
	ParaclearAccountHash      string         `json:"paraclear_account_hash"`
	BridgedTokens             []BridgedToken `json:"bridged_tokens"`
	L1CoreContractAddress     string         `json:"l1_core_contract_address"`
	L1OperatorAddress         string         `json:"l1_operator_address"`
	L1ChainId                 string         `json:"l1_chain_id"`
}

// L1ChainID parses the Ethereum chain id, which the API serves as a decimal string.
func (c SystemConfig) L1ChainID() (int64, error) {
	s := strings.TrimSpace(c.L1ChainId)
	if s == "" {
		return 0, fmt.Errorf("l1_chain_id is empty")
	}
	id, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid l1_chain_id %q: %w", c.L1ChainId, err)
	}
	return id, nil
}

// Validate checks the fields required for account derivation and signing.
func (c SystemConfig) Validate() error {
	if c.ChainId == "" {
		return fmt.Errorf("starknet_chain_id is empty")
	}
	if c.ParaclearAccountProxyHash == "" {
		return fmt.Errorf("paraclear_account_proxy_hash is empty")
	}
	if c.ParaclearAccountHash == "" {
		return fmt.Errorf("paraclear_account_hash is empty")
	}
	if _, err := c.L1ChainID(); err != nil {
		return err
	}
	return nil
}
