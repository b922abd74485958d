// Package hdwallet 从 BIP-39 助记词按 BIP-32/BIP-44 派生以太坊账户。
// Hardhat / Ganache 本地节点的默认账户就是这样派生出来的。
package hdwallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// EthereumPathPrefix BIP-44 以太坊路径前缀，最后一段为账户序号
const EthereumPathPrefix = "m/44'/60'/0'/0"

var (
	ErrInvalidMnemonic = errors.New("无效的助记词")
	ErrInvalidPath     = errors.New("无效的派生路径")
)

// Wallet 分层确定性钱包，只在内存中持有主私钥
type Wallet struct {
	master *hdkeychain.ExtendedKey
}

// GenerateMnemonic 生成一个新的随机助记词 (BIP-39)。
// bitSize: 熵的位数，128 (12个单词) 或 256 (24个单词)。
func GenerateMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("生成熵失败: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("生成助记词失败: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic 校验助记词的单词表与校验和
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(strings.Join(strings.Fields(mnemonic), " "))
}

// FromMnemonic 由助记词和可选 passphrase 创建钱包
func FromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")

	seed := bip39.NewSeed(mnemonic, passphrase)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}
	return &Wallet{master: master}, nil
}

// DerivePath 解析路径并派生私钥
// 支持格式: m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func (w *Wallet) DerivePath(path string) (*ecdsa.PrivateKey, error) {
	path = strings.TrimSpace(path)
	if path != "m" && !strings.HasPrefix(path, "m/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	key := w.master
	for _, segment := range strings.Split(strings.TrimPrefix(path, "m"), "/") {
		if segment == "" {
			continue
		}

		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil || val >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: 无效的路径段 '%s'", ErrInvalidPath, segment)
		}
		index := uint32(val)
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}

		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %w", err)
		}
	}

	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("获取私钥失败: %w", err)
	}
	return ecPriv.ToECDSA(), nil
}

// Account 派生 m/44'/60'/0'/0/index 的私钥与地址
func (w *Wallet) Account(index uint32) (*ecdsa.PrivateKey, common.Address, error) {
	key, err := w.DerivePath(fmt.Sprintf("%s/%d", EthereumPathPrefix, index))
	if err != nil {
		return nil, common.Address{}, err
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// Accounts 派生前 n 个账户的私钥
func (w *Wallet) Accounts(n int) ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		key, _, err := w.Account(uint32(i))
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
