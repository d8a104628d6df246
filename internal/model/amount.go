package model

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"chainless-core/pkg/errno"
)

// MaxAmount 金额上限 2^128-1
var MaxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)), 0)

// ParseAmount 解析最小单位表示的非负整数金额
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalidParam("amount", s)
	}
	if err := CheckAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckAmount 校验金额为 [0, 2^128-1] 内的整数
func CheckAmount(d decimal.Decimal) error {
	if d.IsNegative() || !d.Equal(d.Truncate(0)) || d.GreaterThan(MaxAmount) {
		return invalidParam("amount", d.String())
	}
	return nil
}

const (
	pubkeyHexLen    = 64
	signatureHexLen = 128
)

// IsPubkeyHex 设备公钥为 32 字节 hex
func IsPubkeyHex(s string) bool {
	if len(s) != pubkeyHexLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ParsePubkeySignInfo 拆分 pubkey(32B hex) + signature(64B hex) 拼接的签名串
func ParsePubkeySignInfo(s string) (pubkey, signature string, err error) {
	if len(s) != pubkeyHexLen+signatureHexLen {
		return "", "", errno.ErrRequestParamInvalid.WithMessage(fmt.Sprintf("invalid signature length %d", len(s)))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", "", errno.ErrRequestParamInvalid.WithMessage("signature is not hex")
	}
	return s[:pubkeyHexLen], s[pubkeyHexLen:], nil
}
