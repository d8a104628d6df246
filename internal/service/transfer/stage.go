package transfer

import (
	"time"

	"chainless-core/internal/model"
	"chainless-core/pkg/errno"
)

// 阶段推进只修改内存中的转账，持久化由 Service 负责

// checkOpen 转账仍可被用户操作
func checkOpen(tx *model.CoinTransaction, now time.Time) error {
	switch {
	case tx.Stage == model.StageSenderReconfirmed:
		return errno.ErrTxAlreadyConfirmed
	case tx.Stage.IsClosed():
		return errno.ErrTxStageIllegal
	case now.After(tx.ExpireAt):
		return errno.ErrTxExpired
	}
	return nil
}

// initialStage 不需要从设备签名时直接进入 SenderSigCompleted
func initialStage(required uint8) model.TxStage {
	if required == 0 {
		return model.StageSenderSigCompleted
	}
	return model.StageCreated
}

// AddSignature 记录一个从设备签名，返回是否有变化
// 同一签名重复上传不做处理，同一公钥的不同签名返回 ErrDuplicateSigner
func AddSignature(tx *model.CoinTransaction, pubkey, signature string, now time.Time) (bool, error) {
	if err := checkOpen(tx, now); err != nil {
		return false, err
	}
	for _, existing := range tx.Signatures {
		if existing == signature {
			return false, nil
		}
		if len(existing) >= 64 && existing[:64] == pubkey {
			return false, errno.ErrDuplicateSigner
		}
	}
	if tx.Stage != model.StageCreated {
		return false, errno.ErrTxStageIllegal
	}

	tx.Signatures = append(tx.Signatures, signature)
	if len(tx.Signatures) >= int(tx.RequiredSignatures) {
		tx.Stage = model.StageSenderSigCompleted
	}
	return true, nil
}

// React 收款方确认或拒绝，拒绝后不可恢复
func React(tx *model.CoinTransaction, agree bool, now time.Time) error {
	if err := checkOpen(tx, now); err != nil {
		return err
	}
	if !tx.TxType.NeedsReceiverApproval() || tx.Stage != model.StageSenderSigCompleted {
		return errno.ErrTxStageIllegal
	}
	if agree {
		tx.Stage = model.StageReceiverApproved
	} else {
		tx.Stage = model.StageReceiverRejected
	}
	return nil
}

// Cancel 发送方取消
func Cancel(tx *model.CoinTransaction, now time.Time) error {
	if err := checkOpen(tx, now); err != nil {
		return err
	}
	tx.Stage = model.StageSenderCanceled
	return nil
}

// Reconfirm 发送方最终确认，finalSignature 为 nil 表示放弃
func Reconfirm(tx *model.CoinTransaction, finalSignature *string, now time.Time) error {
	if err := checkOpen(tx, now); err != nil {
		return err
	}
	ready := model.StageSenderSigCompleted
	if tx.TxType.NeedsReceiverApproval() {
		ready = model.StageReceiverApproved
	}
	if tx.Stage != ready {
		return errno.ErrTxStageIllegal
	}

	if finalSignature == nil {
		tx.Stage = model.StageSenderCanceled
		return nil
	}
	if *finalSignature == "" {
		return errno.ErrRequestParamInvalid.WithMessage("final signature is empty")
	}
	tx.FinalSignature = *finalSignature
	tx.Stage = model.StageSenderReconfirmed
	tx.ChainStatus = model.ChainNotLaunch
	return nil
}

// Expire 超过有效期的未结束转账标记为过期
func Expire(tx *model.CoinTransaction, now time.Time) bool {
	if tx.Stage.IsClosed() || !now.After(tx.ExpireAt) {
		return false
	}
	tx.Stage = model.StageMultiSigExpired
	return true
}
