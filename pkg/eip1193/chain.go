package eip1193

import (
	"fmt"
	"math/big"
	"strings"
)

// NativeCurrency 链原生代币描述
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddChainParameter wallet_addEthereumChain 的网络描述 (EIP-3085)
type AddChainParameter struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// Validate 检查描述是否可以提交给钱包
func (p AddChainParameter) Validate() error {
	if _, err := NormalizeChainID(p.ChainID); err != nil {
		return err
	}
	if p.ChainName == "" {
		return fmt.Errorf("eip1193: chain %s: chainName is required", p.ChainID)
	}
	if len(p.RPCURLs) == 0 {
		return fmt.Errorf("eip1193: chain %s: at least one rpc url is required", p.ChainID)
	}
	return nil
}

// NormalizeChainID 把链 ID 统一为小写、无前导零的 0x 十六进制形式。
// 支持 "0x7A69" 这类大写写法，以及不带 0x 的十进制 "31337"。
func NormalizeChainID(id string) (string, error) {
	n, err := ParseChainID(id)
	if err != nil {
		return "", err
	}
	return "0x" + n.Text(16), nil
}

// ParseChainID 解析链 ID (0x 十六进制或十进制)
func ParseChainID(id string) (*big.Int, error) {
	s := strings.TrimSpace(id)
	if s == "" {
		return nil, fmt.Errorf("eip1193: empty chain id")
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}

	n, ok := new(big.Int).SetString(s, base)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("eip1193: invalid chain id %q", id)
	}
	return n, nil
}

// SameChain 比较两个链 ID 是否指向同一条链
func SameChain(a, b string) bool {
	na, err := NormalizeChainID(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeChainID(b)
	if err != nil {
		return false
	}
	return na == nb
}
