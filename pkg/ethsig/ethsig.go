// Package ethsig 实现 personal_sign (EIP-191) 的签名与验签。
package ethsig

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength r(32) + s(32) + v(1)
const SignatureLength = crypto.SignatureLength

var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrInvalidSignatureLen = errors.New("signature must be 65 bytes")
	ErrInvalidAddress      = errors.New("invalid ethereum address")
	ErrAddressMismatch     = errors.New("recovered address does not match")
)

// ChallengeMessage 登录挑战文本，前后端必须逐字一致
func ChallengeMessage(nonce string) string {
	return "Sign this message to verify your wallet ownership. Nonce: " + nonce
}

// TextHash keccak256("\x19Ethereum Signed Message:\n" + len(text) + text)
func TextHash(text []byte) []byte {
	return accounts.TextHash(text)
}

// SignText 使用私钥对文本做 personal_sign，v 为 27/28 (与浏览器钱包一致)
func SignText(key *ecdsa.PrivateKey, text []byte) ([]byte, error) {
	sig, err := crypto.Sign(TextHash(text), key)
	if err != nil {
		return nil, fmt.Errorf("ethsig: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverText 从 personal_sign 签名恢复签名者地址，v 接受 0/1 与 27/28
func RecoverText(text, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, ErrInvalidSignatureLen
	}

	// 复制一份，避免修改调用方的切片
	s := make([]byte, SignatureLength)
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	if s[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, ErrInvalidSignature
	}

	pub, err := crypto.SigToPub(TextHash(text), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyText 校验 0x 十六进制签名是否由 address 对 text 签出，地址比较不区分大小写
func VerifyText(address string, text []byte, signature string) error {
	if !common.IsHexAddress(address) {
		return ErrInvalidAddress
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	recovered, err := RecoverText(text, sig)
	if err != nil {
		return err
	}

	if !strings.EqualFold(recovered.Hex(), address) {
		return ErrAddressMismatch
	}
	return nil
}
