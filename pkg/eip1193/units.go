package eip1193

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// ParseQuantity 解析 JSON-RPC 的 QUANTITY (例如 eth_getBalance 的结果)
func ParseQuantity(q string) (*big.Int, error) {
	v, err := hexutil.DecodeBig(q)
	if err != nil {
		return nil, fmt.Errorf("eip1193: invalid quantity %q: %w", q, err)
	}
	return v, nil
}

// FormatUnits 按精度把最小单位换算为可读数值，例如 wei -> ETH
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, int32(-decimals)).String()
}
