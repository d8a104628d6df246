package testutil

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"chainless-core/internal/model"
	"chainless-core/pkg/crypto_util"
)

// Pubkey 生成可读的 32 字节 hex 测试公钥
func Pubkey(n int) string {
	return fmt.Sprintf("%064x", n)
}

// Signature 生成 pubkey||sig 格式的测试签名
func Signature(pubkey string, n int) string {
	return pubkey + fmt.Sprintf("%0128x", n)
}

// DeviceKey 按序号确定性生成 ed25519 设备私钥
func DeviceKey(n int) ed25519.PrivateKey {
	seed := make([]byte, ed25519.SeedSize)
	binary.BigEndian.PutUint64(seed[ed25519.SeedSize-8:], uint64(n))
	return ed25519.NewKeyFromSeed(seed)
}

// DevicePubkey DeviceKey(n) 的公钥 hex
func DevicePubkey(n int) string {
	return crypto_util.PubkeyHex(DeviceKey(n))
}

// Sign 用 DeviceKey(n) 对 coin_tx_raw 签名
func Sign(n int, raw string) string {
	return crypto_util.SignHex(DeviceKey(n), []byte(raw))
}

// SeedUser 插入一个用户
func SeedUser(t *testing.T, db *gorm.DB, contact string) *model.User {
	t.Helper()
	u := &model.User{Contact: contact, ContactType: model.ContactEmail, PasswordHash: "hash"}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("插入用户失败: %v", err)
	}
	return u
}

// SeedDevice 插入一个设备，holdPubkey 为空表示未持有密钥
func SeedDevice(t *testing.T, db *gorm.DB, userID uint64, deviceID, holdPubkey string) *model.Device {
	t.Helper()
	dev := &model.Device{DeviceID: deviceID, UserID: userID, Brand: "test", State: model.DeviceActive}
	if holdPubkey != "" {
		dev.HoldPubkey = &holdPubkey
	}
	if err := db.Create(dev).Error; err != nil {
		t.Fatalf("插入设备失败: %v", err)
	}
	return dev
}

// SeedStrategy 为用户建立主账户和策略，账户 id 即主设备公钥
func SeedStrategy(t *testing.T, db *gorm.DB, userID uint64, master string, servants ...string) *model.Strategy {
	t.Helper()
	s := &model.Strategy{
		AccountID:      master,
		UserID:         userID,
		MasterPubkey:   master,
		ServantPubkeys: append([]string{}, servants...),
		MultiSigRanks:  []model.MultiSigRank{{Min: decimal.Zero, MaxEq: model.MaxAmount, SigNum: 0}},
		Subaccounts:    map[string]model.SubaccountConfig{},
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("插入策略失败: %v", err)
	}
	if err := db.Model(&model.User{}).Where("id = ?", userID).Update("main_account", master).Error; err != nil {
		t.Fatalf("更新主账户失败: %v", err)
	}
	return s
}

// SeedSecret 插入一条 Sitting 托管记录
func SeedSecret(t *testing.T, db *gorm.DB, userID uint64, pubkey string) *model.SecretRecord {
	t.Helper()
	rec := &model.SecretRecord{
		Pubkey:              pubkey,
		UserID:              userID,
		State:               model.SecretSitting,
		EncryptedByPassword: "pwd:" + pubkey[len(pubkey)-4:],
		EncryptedByAnswer:   "ans:" + pubkey[len(pubkey)-4:],
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("插入托管记录失败: %v", err)
	}
	return rec
}

// Ranks 用 "min-max:sig" 形式快速构造档位，max 写 "max" 表示金额上限
func Ranks(specs ...string) []model.MultiSigRank {
	ranks := make([]model.MultiSigRank, 0, len(specs))
	for _, spec := range specs {
		var bounds string
		var sig uint8
		if _, err := fmt.Sscanf(strings.Replace(spec, ":", " ", 1), "%s %d", &bounds, &sig); err != nil {
			panic(err)
		}
		parts := strings.SplitN(bounds, "-", 2)
		maxEq := model.MaxAmount
		if parts[1] != "max" {
			maxEq = decimal.RequireFromString(parts[1])
		}
		ranks = append(ranks, model.MultiSigRank{Min: decimal.RequireFromString(parts[0]), MaxEq: maxEq, SigNum: sig})
	}
	return ranks
}
