package crypto_util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

// EncryptAESGCM 使用给定的密钥对明文进行 AES-GCM 加密。
// 密钥必须是 16、24 或 32 字节长，分别对应 AES-128、AES-192 或 AES-256。
// 返回 nonce + 密文。
func EncryptAESGCM(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptAESGCM 使用给定的密钥对 AES-GCM 密文（nonce + 加密数据）进行解密。
func DecryptAESGCM(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("密文太短")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// 口令加密的 scrypt 参数，托管密文在客户端生成，服务端不解密
const (
	passphraseSaltLen = 16
	passphraseN       = 1 << 15
	passphraseR       = 8
	passphraseP       = 1
)

// EncryptWithPassphrase 用口令派生 AES-256 密钥加密，返回 hex(salt || nonce || 密文)
// 用于生成按密码和按安全问题答案两份托管密文
func EncryptWithPassphrase(passphrase string, plaintext []byte) (string, error) {
	salt := make([]byte, passphraseSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, passphraseN, passphraseR, passphraseP, 32)
	if err != nil {
		return "", err
	}
	sealed, err := EncryptAESGCM(key, plaintext)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(append(salt, sealed...)), nil
}

// DecryptWithPassphrase EncryptWithPassphrase 的逆操作
func DecryptWithPassphrase(passphrase, encoded string) ([]byte, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) < passphraseSaltLen {
		return nil, errors.New("密文太短")
	}
	key, err := scrypt.Key([]byte(passphrase), raw[:passphraseSaltLen], passphraseN, passphraseR, passphraseP, 32)
	if err != nil {
		return nil, err
	}
	return DecryptAESGCM(key, raw[passphraseSaltLen:])
}
