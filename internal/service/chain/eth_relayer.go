package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"chainless-core/internal/model"
	"chainless-core/pkg/cache"
	"chainless-core/pkg/config"
	"chainless-core/pkg/crypto_util"
	"chainless-core/pkg/logger"
)

// 多签注册合约只暴露一个入口，method 和参数由合约内部分发
const registryABI = `[{"type":"function","name":"execute","stateMutability":"nonpayable",
"inputs":[{"name":"account","type":"string"},{"name":"method","type":"string"},{"name":"args","type":"bytes"}],
"outputs":[]}]`

const submittedTTL = 7 * 24 * time.Hour

// EthRelayer 用中继账户签名并发送合约调用
type EthRelayer struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	// 已提交调用的 tx hash，重复提交时直接返回
	submitted cache.Cache
	mu        sync.Mutex
}

func NewEthRelayer(ctx context.Context, cfg config.ChainConfig, submitted cache.Cache) (*EthRelayer, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("解析合约 ABI 失败: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.RelayerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析中继私钥失败: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("连接 RPC 失败: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cid, err := client.ChainID(ctx); err == nil {
		chainID = cid
	} else {
		logger.Warn("获取 chain id 失败，使用配置值", zap.Int64("chain_id", cfg.ChainID), zap.Error(err))
	}

	return &EthRelayer{
		client:    client,
		contract:  common.HexToAddress(cfg.ContractAddress),
		abi:       parsed,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:   chainID,
		submitted: submitted,
	}, nil
}

// packCall 编码合约调用数据
func packCall(contractABI abi.ABI, account string, step model.ChainStep) ([]byte, error) {
	args, err := json.Marshal(step.Args)
	if err != nil {
		return nil, err
	}
	return contractABI.Pack("execute", account, step.Method, args)
}

func (r *EthRelayer) Submit(ctx context.Context, account string, step model.ChainStep) (string, error) {
	idemKey := "chain:submitted:" + crypto_util.CalculateKeccak256([]byte(canonical(account, step)))
	var existing string
	if err := r.submitted.Get(ctx, idemKey, &existing); err == nil && existing != "" {
		return existing, nil
	}

	data, err := packCall(r.abi, account, step)
	if err != nil {
		return "", err
	}

	// 同一中继账户的 nonce 需要串行分配
	r.mu.Lock()
	defer r.mu.Unlock()

	nonce, err := r.client.PendingNonceAt(ctx, r.from)
	if err != nil {
		return "", fmt.Errorf("获取 nonce 失败: %w", err)
	}
	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("获取 gas price 失败: %w", err)
	}
	gas, err := r.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     r.from,
		To:       &r.contract,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return "", fmt.Errorf("估算 gas 失败: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &r.contract,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(r.chainID), r.key)
	if err != nil {
		return "", fmt.Errorf("签名失败: %w", err)
	}
	if err := r.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("发送交易失败: %w", err)
	}

	txID := signed.Hash().Hex()
	if err := r.submitted.Set(ctx, idemKey, txID, submittedTTL); err != nil {
		logger.Error("记录已提交交易失败", zap.String("tx_id", txID), zap.Error(err))
	}
	logger.Info("合约调用已发送",
		zap.String("account", account),
		zap.String("method", step.Method),
		zap.String("tx_id", txID),
	)
	return txID, nil
}

func (r *EthRelayer) PollStatus(ctx context.Context, txID string) (model.ChainStatus, error) {
	receipt, err := r.client.TransactionReceipt(ctx, common.HexToHash(txID))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return model.ChainPending, nil
		}
		return "", err
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return model.ChainConfirmed, nil
	}
	return model.ChainFailed, nil
}

func (r *EthRelayer) Close() {
	r.client.Close()
}
