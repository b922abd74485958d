// Package vault 把 CLI 的助记词用口令加密后保存在本地文件中。
//
// 文件结构沿用 Ethereum Keystore V3 的字段布局，但保存的是整个助记词，
// 对称加密使用 AES-256-GCM，密钥由 scrypt 派生。
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

const (
	Version    = 3
	CipherName = "aes-256-gcm"
	KDFName    = "scrypt"

	// StandardScryptN 与 go-ethereum keystore 的标准强度一致
	StandardScryptN = 1 << 18
	// LightScryptN 用于测试与低配设备
	LightScryptN = 1 << 12

	scryptR     = 8
	scryptP     = 1
	scryptDKLen = 32
)

var (
	ErrWrongPassword = errors.New("vault: 口令错误或文件已损坏")
	ErrUnsupported   = errors.New("vault: 不支持的加密参数")
)

// File 加密后的助记词文件
type File struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Crypto  Crypto `json:"crypto"`
}

type Crypto struct {
	Cipher       string       `json:"cipher"`
	CipherText   string       `json:"ciphertext"`
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

type CipherParams struct {
	IV string `json:"iv"`
}

type KDFParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"`
}

// Seal 用口令加密助记词。scryptN 为 0 时使用 StandardScryptN。
func Seal(mnemonic, password string, scryptN int) (*File, error) {
	if scryptN <= 0 {
		scryptN = StandardScryptN
	}

	// 1. 随机 salt 派生密钥
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}

	// 2. AES-256-GCM 加密
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, iv, []byte(mnemonic), nil)

	// 3. MAC 用于在解密前区分口令错误
	return &File{
		ID:      uuid.NewString(),
		Version: Version,
		Crypto: Crypto{
			Cipher:       CipherName,
			CipherText:   hex.EncodeToString(ciphertext),
			CipherParams: CipherParams{IV: hex.EncodeToString(iv)},
			KDF:          KDFName,
			KDFParams: KDFParams{
				DKLen: scryptDKLen,
				N:     scryptN,
				R:     scryptR,
				P:     scryptP,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac(key, ciphertext)),
		},
	}, nil
}

// Open 解密得到助记词
func (f *File) Open(password string) (string, error) {
	if f.Crypto.Cipher != CipherName || f.Crypto.KDF != KDFName {
		return "", ErrUnsupported
	}

	// 1. 解析 hex 字段
	salt, err := hex.DecodeString(f.Crypto.KDFParams.Salt)
	if err != nil {
		return "", fmt.Errorf("vault: salt 格式错误: %w", err)
	}
	iv, err := hex.DecodeString(f.Crypto.CipherParams.IV)
	if err != nil {
		return "", fmt.Errorf("vault: iv 格式错误: %w", err)
	}
	ciphertext, err := hex.DecodeString(f.Crypto.CipherText)
	if err != nil {
		return "", fmt.Errorf("vault: ciphertext 格式错误: %w", err)
	}
	want, err := hex.DecodeString(f.Crypto.MAC)
	if err != nil {
		return "", fmt.Errorf("vault: mac 格式错误: %w", err)
	}

	// 2. 重新派生并校验 MAC
	p := f.Crypto.KDFParams
	key, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if subtle.ConstantTimeCompare(want, mac(key, ciphertext)) != 1 {
		return "", ErrWrongPassword
	}

	// 3. 解密
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(iv) != gcm.NonceSize() {
		return "", fmt.Errorf("vault: iv 长度错误")
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	return string(plaintext), nil
}

// Save 以 0600 权限写入文件，已存在时返回 os.ErrExist
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("vault: 解析 %s 失败: %w", path, err)
	}
	return &f, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func mac(key, ciphertext []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(ciphertext)
	return h.Sum(nil)
}
