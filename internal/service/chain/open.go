package chain

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chainless-core/pkg/cache"
	"chainless-core/pkg/config"
	"chainless-core/pkg/logger"
)

// Open 按配置选择链驱动，返回的 Submitter 已带调用超时
// submitted 只在 eth 驱动下用于 nonce 幂等
func Open(ctx context.Context, cfg config.ChainConfig, submitted cache.Cache) (Submitter, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		logger.Warn("使用内存链驱动，链上状态不会持久化")
		return WithTimeout(NewMemoryChain(), cfg.CallTimeout), func() {}, nil
	case "eth":
		relayer, err := NewEthRelayer(ctx, cfg, submitted)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("已连接多签合约",
			zap.String("contract", cfg.ContractAddress),
			zap.Int64("chain_id", cfg.ChainID),
		)
		return WithTimeout(relayer, cfg.CallTimeout), relayer.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown chain driver %q", cfg.Driver)
	}
}
