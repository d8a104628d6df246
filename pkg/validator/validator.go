package validator

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate *validator.Validate
	once     sync.Once

	pubkeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	maxU128       = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)), 0)

	enums = map[string]func(string) bool{}
)

// RegisterEnum 注册一个按字符串取值范围校验的 tag，需在 Init 之前调用
func RegisterEnum(tag string, valid func(string) bool) {
	enums[tag] = valid
}

// Init 在 gin 的 binding 校验器上注册自定义 tag
func Init() {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		validate = v
		_ = v.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
			return IsPubkey(fl.Field().String())
		})
		_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
			return IsAmount(fl.Field().String())
		})
		for tag, fn := range enums {
			valid := fn
			_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return valid(fl.Field().String())
			})
		}
	})
}

// IsPubkey 32 字节小写 hex
func IsPubkey(s string) bool {
	return pubkeyPattern.MatchString(s)
}

// IsAmount 最小单位表示的 u128 非负整数
func IsAmount(s string) bool {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.Equal(d.Truncate(0)) && d.LessThanOrEqual(maxU128)
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errMsgs []string
		for _, e := range validationErrors {
			field := e.Field()
			tag := e.Tag()
			param := e.Param()

			switch tag {
			case "required":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
			case "email":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 格式不正确", field))
			case "min":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度至少为 %s", field, param))
			case "max":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度不能超过 %s", field, param))
			case "oneof":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 [%s] 之一", field, param))
			case "pubkey":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 64 位小写 hex 公钥", field))
			case "amount":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是不超过 2^128-1 的非负整数", field))
			default:
				if _, ok := enums[tag]; ok {
					errMsgs = append(errMsgs, fmt.Sprintf("%s 取值不支持", field))
					continue
				}
				errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, tag))
			}
		}
		return strings.Join(errMsgs, "; ")
	}
	return "请求参数错误"
}
