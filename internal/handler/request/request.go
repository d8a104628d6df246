package request

import (
	"chainless-core/internal/model"
	"chainless-core/pkg/validator"
)

func init() {
	validator.RegisterEnum("coin", func(s string) bool {
		_, err := model.ParseCoinType(s)
		return err == nil
	})
	validator.RegisterEnum("usage", func(s string) bool {
		_, err := model.ParseUsage(s)
		return err == nil
	})
	validator.RegisterEnum("tx_type", func(s string) bool {
		_, err := model.ParseTxType(s)
		return err == nil
	})
	validator.RegisterEnum("secret_kind", func(s string) bool {
		_, err := model.ParseSecretKind(s)
		return err == nil
	})
}

// DeviceHeader 登录类接口从请求头读取设备信息
type DeviceHeader struct {
	DeviceID    string `header:"Device-Id" binding:"required,max=128"`
	DeviceBrand string `header:"Device-Brand" binding:"max=128"`
}

// KeyMaterial 一把设备密钥的两份托管密文
type KeyMaterial struct {
	Pubkey              string `json:"pubkey" binding:"required,pubkey"`
	EncryptedByPassword string `json:"encrypted_prikey_by_password" binding:"required"`
	EncryptedByAnswer   string `json:"encrypted_prikey_by_answer" binding:"required"`
}
