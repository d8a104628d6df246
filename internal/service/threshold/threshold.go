package threshold

import (
	"fmt"

	"github.com/shopspring/decimal"

	"chainless-core/internal/model"
	"chainless-core/pkg/errno"
)

// DefaultRanks 新账户的默认档位：任意金额都不需要从设备签名
func DefaultRanks() []model.MultiSigRank {
	return []model.MultiSigRank{{Min: decimal.Zero, MaxEq: model.MaxAmount, SigNum: 0}}
}

// RanksFor 返回某币种生效的档位表，没有单独配置时使用默认表
func RanksFor(s *model.Strategy, coin model.CoinType) []model.MultiSigRank {
	if ranks, ok := s.CoinRanks[coin]; ok && len(ranks) > 0 {
		return ranks
	}
	return s.MultiSigRanks
}

// RequiredSignatures 计算转账需要的从设备签名数
// 取第一个包含该金额的区间；都不包含时取最后一个区间的签名数
func RequiredSignatures(s *model.Strategy, coin model.CoinType, amount decimal.Decimal) uint8 {
	if s == nil {
		return 0
	}
	ranks := RanksFor(s, coin)
	if len(ranks) == 0 {
		return 0
	}
	for _, r := range ranks {
		if amount.GreaterThanOrEqual(r.Min) && amount.LessThanOrEqual(r.MaxEq) {
			return r.SigNum
		}
	}
	return ranks[len(ranks)-1].SigNum
}

// ValidateRanks 档位必须从 0 开始、首尾相接、覆盖到金额上限
func ValidateRanks(ranks []model.MultiSigRank) error {
	if len(ranks) == 0 {
		return errno.ErrInvalidRanks.WithMessage("ranks is empty")
	}
	if !ranks[0].Min.IsZero() {
		return errno.ErrInvalidRanks.WithMessage("first rank must start at 0")
	}
	for i, r := range ranks {
		if model.CheckAmount(r.Min) != nil || model.CheckAmount(r.MaxEq) != nil {
			return errno.ErrInvalidRanks.WithMessage(fmt.Sprintf("rank %d bound out of range", i))
		}
		if r.Min.GreaterThan(r.MaxEq) {
			return errno.ErrInvalidRanks.WithMessage(fmt.Sprintf("rank %d min greater than max_eq", i))
		}
		if i > 0 {
			prev := ranks[i-1]
			if !r.Min.Equal(prev.MaxEq.Add(decimal.NewFromInt(1))) {
				return errno.ErrInvalidRanks.WithMessage(
					fmt.Sprintf("rank %d must start right after rank %d", i, i-1))
			}
		}
	}
	if !ranks[len(ranks)-1].MaxEq.Equal(model.MaxAmount) {
		return errno.ErrInvalidRanks.WithMessage("last rank must cover max amount")
	}
	return nil
}
