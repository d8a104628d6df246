package validator

import (
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Pubkey string `binding:"required,pubkey"`
	Amount string `binding:"required,amount"`
	Color  string `binding:"required,color"`
}

func TestCustomTags(t *testing.T) {
	RegisterEnum("color", func(s string) bool { return s == "red" || s == "blue" })
	Init()

	good := sample{Pubkey: strings.Repeat("ab", 32), Amount: "100", Color: "red"}
	assert.NoError(t, binding.Validator.ValidateStruct(&good))

	tests := []struct {
		name   string
		mutate func(*sample)
		want   string
	}{
		{"pubkey 大写", func(s *sample) { s.Pubkey = strings.Repeat("AB", 32) }, "Pubkey 必须是 64 位小写 hex 公钥"},
		{"负数金额", func(s *sample) { s.Amount = "-1" }, "Amount 必须是不超过 2^128-1 的非负整数"},
		{"小数金额", func(s *sample) { s.Amount = "1.5" }, "Amount 必须是不超过 2^128-1 的非负整数"},
		{"超出 u128", func(s *sample) { s.Amount = "340282366920938463463374607431768211456" }, "Amount 必须是不超过 2^128-1 的非负整数"},
		{"未知枚举", func(s *sample) { s.Color = "green" }, "Color 取值不支持"},
		{"缺少字段", func(s *sample) { s.Color = "" }, "Color 不能为空"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			tt.mutate(&s)
			err := binding.Validator.ValidateStruct(&s)
			assert.Error(t, err)
			assert.Equal(t, tt.want, GetErrorMsg(err))
		})
	}
}

func TestIsAmount(t *testing.T) {
	assert.True(t, IsAmount("0"))
	assert.True(t, IsAmount("340282366920938463463374607431768211455"))
	assert.False(t, IsAmount("abc"))
}
