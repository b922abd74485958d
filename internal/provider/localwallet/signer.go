package localwallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"wallet-session/pkg/ethsig"
	"wallet-session/pkg/hdwallet"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrUnknownAccount = errors.New("account not managed by signer")

// Signer 持有私钥并对 EIP-191 文本签名，返回的 v 为 27/28
type Signer interface {
	Accounts() []common.Address
	SignText(account common.Address, text []byte) ([]byte, error)
}

// KeystoreSigner 使用 go-ethereum 加密 keystore 目录
type KeystoreSigner struct {
	ks         *keystore.KeyStore
	passphrase string
}

// NewKeystoreSigner 每次签名都用 passphrase 临时解锁，不常驻明文私钥
func NewKeystoreSigner(ks *keystore.KeyStore, passphrase string) *KeystoreSigner {
	return &KeystoreSigner{ks: ks, passphrase: passphrase}
}

func (s *KeystoreSigner) Accounts() []common.Address {
	accs := s.ks.Accounts()
	out := make([]common.Address, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.Address)
	}
	return out
}

func (s *KeystoreSigner) SignText(account common.Address, text []byte) ([]byte, error) {
	if !s.ks.HasAddress(account) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	sig, err := s.ks.SignHashWithPassphrase(accounts.Account{Address: account}, s.passphrase, accounts.TextHash(text))
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// KeySigner 内存中的私钥，通常由助记词派生
type KeySigner struct {
	addrs []common.Address
	keys  map[common.Address]*ecdsa.PrivateKey
}

func NewKeySigner(keys ...*ecdsa.PrivateKey) *KeySigner {
	s := &KeySigner{keys: make(map[common.Address]*ecdsa.PrivateKey, len(keys))}
	for _, k := range keys {
		addr := crypto.PubkeyToAddress(k.PublicKey)
		if _, dup := s.keys[addr]; dup {
			continue
		}
		s.addrs = append(s.addrs, addr)
		s.keys[addr] = k
	}
	return s
}

// NewMnemonicSigner 派生 m/44'/60'/0'/0/0 .. n-1
func NewMnemonicSigner(mnemonic, passphrase string, n int) (*KeySigner, error) {
	if n <= 0 {
		n = 1
	}
	w, err := hdwallet.FromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	keys, err := w.Accounts(n)
	if err != nil {
		return nil, err
	}
	return NewKeySigner(keys...), nil
}

func (s *KeySigner) Accounts() []common.Address {
	return append([]common.Address(nil), s.addrs...)
}

func (s *KeySigner) SignText(account common.Address, text []byte) ([]byte, error) {
	key, ok := s.keys[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	return ethsig.SignText(key, text)
}
