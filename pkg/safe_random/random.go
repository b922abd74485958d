package safe_random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NonceBytes 登录挑战 nonce 的随机字节数，Hex 编码后为 64 个字符
const NonceBytes = 32

// GenerateRandomBytes 生成指定长度的安全随机字节切片。
// 如果系统的安全随机数生成器失败，将返回错误。
func GenerateRandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("随机字节长度必须为正数: %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("生成随机字节失败: %w", err)
	}
	return b, nil
}

// GenerateRandomHexString 生成 n 个随机字节并以小写 Hex 返回，字符串长度为 2n。
func GenerateRandomHexString(n int) (string, error) {
	b, err := GenerateRandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateNonce 生成一次性登录挑战 nonce
func GenerateNonce() (string, error) {
	return GenerateRandomHexString(NonceBytes)
}
