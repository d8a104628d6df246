package crypto_util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESGCM(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef") // 32 字节用于 AES-256
	plaintext := []byte("这是一条用于 AES-GCM 测试的秘密消息")

	ciphertext, err := EncryptAESGCM(key, plaintext)
	require.NoError(t, err)

	decrypted, err := DecryptAESGCM(key, ciphertext)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plaintext, decrypted), "解密后的消息与明文不匹配")

	// 每次加密使用新的 nonce
	again, err := EncryptAESGCM(key, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, again)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = DecryptAESGCM(key, ciphertext)
	assert.Error(t, err, "篡改后的密文应解密失败")
}

func TestAESGCM_InvalidKey(t *testing.T) {
	_, err := EncryptAESGCM([]byte("short"), []byte("data"))
	assert.Error(t, err)

	_, err = DecryptAESGCM([]byte("0123456789abcdef"), []byte("x"))
	assert.Error(t, err)
}

func TestPassphrase(t *testing.T) {
	secret := []byte("device secret seed")

	enc, err := EncryptWithPassphrase("pass-1", secret)
	require.NoError(t, err)

	got, err := DecryptWithPassphrase("pass-1", enc)
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	_, err = DecryptWithPassphrase("pass-2", enc)
	assert.Error(t, err, "错误口令应解密失败")

	_, err = DecryptWithPassphrase("pass-1", "zz")
	assert.Error(t, err)
}
