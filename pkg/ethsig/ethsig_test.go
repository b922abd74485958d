package ethsig

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat 默认账户 #0 (公开的测试私钥)
const (
	hardhatKey  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestChallengeMessage(t *testing.T) {
	msg := ChallengeMessage("abc123")
	assert.Equal(t, "Sign this message to verify your wallet ownership. Nonce: abc123", msg)
}

func TestSignAndVerify(t *testing.T) {
	key, err := crypto.HexToECDSA(hardhatKey)
	require.NoError(t, err)
	assert.Equal(t, hardhatAddr, crypto.PubkeyToAddress(key.PublicKey).Hex())

	text := []byte(ChallengeMessage("deadbeef"))
	sig, err := SignText(key, text)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	v := sig[crypto.RecoveryIDOffset]
	assert.True(t, v == 27 || v == 28, "v 应为 27/28, 实际 %d", v)

	addr, err := RecoverText(text, sig)
	require.NoError(t, err)
	assert.Equal(t, hardhatAddr, addr.Hex())

	// 地址大小写不敏感
	assert.NoError(t, VerifyText(strings.ToLower(hardhatAddr), text, hexutil.Encode(sig)))
	assert.NoError(t, VerifyText(hardhatAddr, text, hexutil.Encode(sig)))

	// RecoverText 不修改入参
	assert.Equal(t, v, sig[crypto.RecoveryIDOffset])
}

func TestRecoverAcceptsZeroOneV(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	text := []byte("hello")
	sig, err := crypto.Sign(TextHash(text), key)
	require.NoError(t, err)

	addr, err := RecoverText(text, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)
}

func TestVerifyFailures(t *testing.T) {
	key, err := crypto.HexToECDSA(hardhatKey)
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	text := []byte(ChallengeMessage("n1"))
	sig, err := SignText(key, text)
	require.NoError(t, err)
	sigHex := hexutil.Encode(sig)

	// 签名者不匹配
	err = VerifyText(crypto.PubkeyToAddress(other.PublicKey).Hex(), text, sigHex)
	assert.True(t, errors.Is(err, ErrAddressMismatch))

	// 消息被篡改
	err = VerifyText(hardhatAddr, []byte(ChallengeMessage("n2")), sigHex)
	assert.True(t, errors.Is(err, ErrAddressMismatch))

	// 地址非法
	assert.True(t, errors.Is(VerifyText("0x1234", text, sigHex), ErrInvalidAddress))

	// 签名不是 hex
	assert.True(t, errors.Is(VerifyText(hardhatAddr, text, "not-hex"), ErrInvalidSignature))

	// 长度不对
	assert.True(t, errors.Is(VerifyText(hardhatAddr, text, hexutil.Encode(sig[:64])), ErrInvalidSignatureLen))

	// v 非法
	bad := append([]byte(nil), sig...)
	bad[crypto.RecoveryIDOffset] = 35
	_, err = RecoverText(text, bad)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}
