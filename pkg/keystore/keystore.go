package keystore

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/crypto/sha3"

	"chainless-core/pkg/crypto_util"
)

// EncryptedKeyJSON 沿用 Ethereum Keystore V3 的结构
// 保存的是设备助记词，Pubkey 明文记录以便不解密就能识别设备
type EncryptedKeyJSON struct {
	Pubkey  string     `json:"pubkey"`
	Crypto  CryptoJSON `json:"crypto"`
	Id      string     `json:"id"`
	Version int        `json:"version"` // 3
}

type CryptoJSON struct {
	Cipher     string    `json:"cipher"`     // "aes-256-gcm"
	CipherText string    `json:"ciphertext"` // hex(nonce || 密文)
	KDF        string    `json:"kdf"`        // "scrypt"
	KDFParams  KDFParams `json:"kdfparams"`
	MAC        string    `json:"mac"`
}

type KDFParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"`
}

// 派生 64 字节：前 32 字节做 AES-256 密钥，后 32 字节参与 MAC
var (
	scryptN = 1 << 18
	scryptR = 8
	scryptP = 1
)

const scryptDKLen = 64

var ErrInvalidPassword = errors.New("invalid password or corrupted data (MAC mismatch)")

// EncryptSecret 用密码加密设备助记词
func EncryptSecret(pubkey, mnemonic, password string) (*EncryptedKeyJSON, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}

	ciphertext, err := crypto_util.EncryptAESGCM(derivedKey[:32], []byte(mnemonic))
	if err != nil {
		return nil, err
	}

	return &EncryptedKeyJSON{
		Pubkey:  pubkey,
		Version: 3,
		Id:      uuid.NewString(),
		Crypto: CryptoJSON{
			Cipher:     "aes-256-gcm",
			CipherText: hex.EncodeToString(ciphertext),
			KDF:        "scrypt",
			KDFParams: KDFParams{
				DKLen: scryptDKLen,
				N:     scryptN,
				R:     scryptR,
				P:     scryptP,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac(derivedKey, ciphertext)),
		},
	}, nil
}

// DecryptSecret 解密 Keystore 获取助记词
func DecryptSecret(keyJSON *EncryptedKeyJSON, password string) (string, error) {
	p := keyJSON.Crypto.KDFParams
	if p.DKLen != scryptDKLen {
		return "", fmt.Errorf("unsupported dklen %d", p.DKLen)
	}
	salt, err := hex.DecodeString(p.Salt)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}
	ciphertext, err := hex.DecodeString(keyJSON.Crypto.CipherText)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext: %w", err)
	}
	wantMAC, err := hex.DecodeString(keyJSON.Crypto.MAC)
	if err != nil {
		return "", fmt.Errorf("invalid mac: %w", err)
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return "", err
	}

	if !hmac.Equal(wantMAC, mac(derivedKey, ciphertext)) {
		return "", ErrInvalidPassword
	}

	plaintext, err := crypto_util.DecryptAESGCM(derivedKey[:32], ciphertext)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// MAC = keccak256(derivedKey[32:64] || ciphertext)
func mac(derivedKey, ciphertext []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(derivedKey[32:64])
	h.Write(ciphertext)
	return h.Sum(nil)
}

// SaveToFile 保存到文件
func (k *EncryptedKeyJSON) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}

// LoadFromFile 从文件加载
func LoadFromFile(filename string) (*EncryptedKeyJSON, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var k EncryptedKeyJSON
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, err
	}
	return &k, nil
}
