package crypto_util

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// 设备公钥 32 字节，签名 64 字节，上传格式为 hex(pubkey) || hex(sig)
const (
	PubkeyHexLen    = ed25519.PublicKeySize * 2
	SignatureHexLen = PubkeyHexLen + ed25519.SignatureSize*2
)

// DeviceKeyFromSeed 由 BIP-39 种子的前 32 字节确定性地派生设备密钥
func DeviceKeyFromSeed(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) < ed25519.SeedSize {
		return nil, errors.New("种子长度不足 32 字节")
	}
	return ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize]), nil
}

// PubkeyHex 设备公钥的 hex 表示，也是账户 id 的格式
func PubkeyHex(priv ed25519.PrivateKey) string {
	return hex.EncodeToString(priv.Public().(ed25519.PublicKey))
}

// SignHex 对消息签名并返回 pubkey || sig 的 hex 串
func SignHex(priv ed25519.PrivateKey, message []byte) string {
	return PubkeyHex(priv) + hex.EncodeToString(ed25519.Sign(priv, message))
}

// VerifyHex 校验 pubkey || sig 格式的签名，返回签名中的公钥
func VerifyHex(signature string, message []byte) (string, bool) {
	if len(signature) != SignatureHexLen {
		return "", false
	}
	pub, err := hex.DecodeString(signature[:PubkeyHexLen])
	if err != nil {
		return "", false
	}
	sig, err := hex.DecodeString(signature[PubkeyHexLen:])
	if err != nil {
		return "", false
	}
	return signature[:PubkeyHexLen], ed25519.Verify(pub, message, sig)
}

// ExportPrivateKey 以 "ed25519:<base58>" 导出 64 字节私钥
func ExportPrivateKey(priv ed25519.PrivateKey) string {
	return "ed25519:" + base58.Encode(priv)
}

// ImportPrivateKey ExportPrivateKey 的逆操作
func ImportPrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, ok := strings.CutPrefix(s, "ed25519:")
	if !ok {
		return nil, errors.New("缺少 ed25519: 前缀")
	}
	b := base58.Decode(raw)
	if len(b) != ed25519.PrivateKeySize {
		return nil, errors.New("私钥长度错误")
	}
	return ed25519.PrivateKey(b), nil
}
