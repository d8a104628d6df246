package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainless-core/internal/model"
	"chainless-core/pkg/errno"
)

// 合约方法名
const (
	MethodInitStrategy        = "init_strategy"
	MethodAddServant          = "add_servant"
	MethodRemoveServant       = "remove_servant"
	MethodAddSubaccount       = "add_subaccount"
	MethodRemoveSubaccount    = "remove_subaccount"
	MethodUpdateHoldLimit     = "update_subaccount_hold_limit"
	MethodUpdateRanks         = "update_rank"
	MethodRevokeMaster        = "revoke_master"
	MethodInstallMaster       = "install_master"
	MethodCleanupMasterSwitch = "cleanup_master_switch"
	MethodReplaceServant      = "update_servant"
	MethodTransfer            = "transfer"
	ArgNonce                  = "nonce"
)

// Submitter 把一次调用提交到链上多签合约
// 同一 nonce 重复提交必须返回同一个 tx id
type Submitter interface {
	Submit(ctx context.Context, account string, step model.ChainStep) (string, error)
	PollStatus(ctx context.Context, txID string) (model.ChainStatus, error)
}

// timeoutSubmitter 给每次外部调用加超时，超时统一转换为 ErrExternalCallTimedOut
type timeoutSubmitter struct {
	inner   Submitter
	timeout time.Duration
}

func WithTimeout(inner Submitter, timeout time.Duration) Submitter {
	if timeout <= 0 {
		return inner
	}
	return &timeoutSubmitter{inner: inner, timeout: timeout}
}

func (s *timeoutSubmitter) Submit(ctx context.Context, account string, step model.ChainStep) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	txID, err := s.inner.Submit(ctx, account, step)
	return txID, mapError(ctx, err)
}

func (s *timeoutSubmitter) PollStatus(ctx context.Context, txID string) (model.ChainStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	status, err := s.inner.PollStatus(ctx, txID)
	return status, mapError(ctx, err)
}

func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var e errno.Errno
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errno.ErrExternalCallTimedOut, err)
	}
	return fmt.Errorf("%w: %v", errno.ErrExternalCall, err)
}
