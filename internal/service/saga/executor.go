package saga

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chainless-core/internal/model"
	"chainless-core/internal/service/chain"
	"chainless-core/internal/service/role"
	"chainless-core/pkg/errno"
	"chainless-core/pkg/logger"
	"chainless-core/pkg/monitor"
)

// Executor 推进钱包管理记录的链上步骤
// 每一步: NotLaunch -> 提交 -> Pending -> 查询 -> Confirmed 后进入下一步
type Executor struct {
	db          *gorm.DB
	chain       chain.Submitter
	maxAttempts int
}

func NewExecutor(db *gorm.DB, submitter chain.Submitter, maxAttempts int) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return &Executor{db: db, chain: submitter, maxAttempts: maxAttempts}
}

// Begin 在调用方事务中写入新的管理记录，本地策略改动和记录一起提交
func Begin(tx *gorm.DB, rec *model.WalletManageRecord) error {
	if len(rec.Steps) == 0 {
		return fmt.Errorf("manage record without steps")
	}
	rec.RecordID = uuid.NewString()
	rec.Status = model.ChainNotLaunch
	rec.CurrentStep = 0
	rec.TxIDs = []string{}
	if err := tx.Create(rec).Error; err != nil {
		return err
	}
	return publish(tx, rec)
}

// Advance 尽量把记录往前推进，遇到仍在 Pending 的交易时返回
// 提交超时返回 ErrExternalCallTimedOut，记录保持 NotLaunch 等待对账重试
func (e *Executor) Advance(ctx context.Context, recordID string) error {
	for {
		rec, err := e.load(ctx, recordID)
		if err != nil {
			return err
		}

		switch rec.Status {
		case model.ChainNotLaunch:
			if err := e.submit(ctx, rec); err != nil {
				return err
			}
		case model.ChainPending:
			done, err := e.poll(ctx, rec)
			if err != nil || done {
				return err
			}
		default:
			return nil
		}
	}
}

// Reconcile 对账一批未完成的记录，返回处理条数
func (e *Executor) Reconcile(ctx context.Context, batch int) (int, error) {
	var recs []model.WalletManageRecord
	if err := e.db.WithContext(ctx).
		Where("status IN ?", []model.ChainStatus{model.ChainNotLaunch, model.ChainPending}).
		Order("id").
		Limit(batch).
		Find(&recs).Error; err != nil {
		return 0, err
	}

	for _, rec := range recs {
		if err := e.Advance(ctx, rec.RecordID); err != nil {
			logger.Warn("推进管理记录失败",
				zap.String("record_id", rec.RecordID),
				zap.Int("step", rec.CurrentStep),
				zap.Error(err),
			)
		}
	}
	return len(recs), nil
}

func (e *Executor) load(ctx context.Context, recordID string) (*model.WalletManageRecord, error) {
	var rec model.WalletManageRecord
	if err := e.db.WithContext(ctx).Where("record_id = ?", recordID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrRequestParamInvalid.WithMessage("manage record not found")
		}
		return nil, err
	}
	return &rec, nil
}

// submit 不持有任何锁调用链，结果再用行锁写回
func (e *Executor) submit(ctx context.Context, rec *model.WalletManageRecord) error {
	step := stepWithNonce(rec)
	txID, callErr := e.chain.Submit(ctx, rec.AccountID, step)
	if callErr != nil {
		monitor.Business.ChainCallErrors.WithLabelValues(step.Method).Inc()
		if err := e.recordFailure(ctx, rec.RecordID, rec.CurrentStep, model.ChainNotLaunch, callErr); err != nil {
			return err
		}
		return callErr
	}

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockRecord(tx, rec.RecordID)
		if err != nil {
			return err
		}
		if cur.Status != model.ChainNotLaunch || cur.CurrentStep != rec.CurrentStep {
			return nil
		}
		cur.TxIDs = append(cur.TxIDs, txID)
		cur.Status = model.ChainPending
		cur.LastError = ""
		if err := tx.Save(cur).Error; err != nil {
			return err
		}
		logger.Info("管理记录步骤已提交",
			zap.String("record_id", cur.RecordID),
			zap.String("method", step.Method),
			zap.String("tx_id", txID),
		)
		return publish(tx, cur)
	})
}

// poll 查询当前步骤的交易，返回 true 表示暂时无法继续
func (e *Executor) poll(ctx context.Context, rec *model.WalletManageRecord) (bool, error) {
	if len(rec.TxIDs) == 0 {
		return true, fmt.Errorf("record %s pending without tx id", rec.RecordID)
	}
	txID := rec.TxIDs[len(rec.TxIDs)-1]
	status, callErr := e.chain.PollStatus(ctx, txID)
	if callErr != nil {
		monitor.Business.ChainCallErrors.WithLabelValues("poll").Inc()
		if err := e.recordFailure(ctx, rec.RecordID, rec.CurrentStep, model.ChainPending, callErr); err != nil {
			return true, err
		}
		return true, callErr
	}

	switch status {
	case model.ChainPending:
		return true, nil
	case model.ChainFailed:
		return true, e.compensate(ctx, rec.RecordID, fmt.Sprintf("step %d tx %s failed on chain", rec.CurrentStep, txID))
	}

	return false, e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockRecord(tx, rec.RecordID)
		if err != nil {
			return err
		}
		if cur.Status != model.ChainPending || cur.CurrentStep != rec.CurrentStep {
			return nil
		}
		cur.Attempts = 0
		if cur.CurrentStep+1 < len(cur.Steps) {
			cur.CurrentStep++
			cur.Status = model.ChainNotLaunch
		} else {
			cur.Status = model.ChainConfirmed
			monitor.Business.ManageRecords.WithLabelValues(string(cur.OperationType), string(cur.Status)).Inc()
			logger.Info("管理记录已完成",
				zap.String("record_id", cur.RecordID),
				zap.String("operation", string(cur.OperationType)),
			)
		}
		if err := tx.Save(cur).Error; err != nil {
			return err
		}
		return publish(tx, cur)
	})
}

// recordFailure 记录一次外部调用失败，次数耗尽后补偿
func (e *Executor) recordFailure(ctx context.Context, recordID string, stepIndex int, status model.ChainStatus, cause error) error {
	exhausted := false
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockRecord(tx, recordID)
		if err != nil {
			return err
		}
		if cur.Status != status || cur.CurrentStep != stepIndex {
			return nil
		}
		cur.Attempts++
		cur.LastError = cause.Error()
		exhausted = cur.Attempts >= e.maxAttempts
		return tx.Save(cur).Error
	})
	if err != nil {
		return err
	}
	if exhausted {
		return e.compensate(ctx, recordID, "attempts exhausted: "+cause.Error())
	}
	return nil
}

// compensate 链上步骤失败，如果策略没有被后续操作改过则恢复到操作前
func (e *Executor) compensate(ctx context.Context, recordID, reason string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockRecord(tx, recordID)
		if err != nil {
			return err
		}
		if cur.Status.IsFinal() {
			return nil
		}

		s, err := role.LockStrategy(tx, cur.AccountID, role.LockUpdate)
		switch {
		case errors.Is(err, errno.ErrStrategyNotFound):
		case err != nil:
			return err
		case cur.After != nil && s.Version == cur.After.Version:
			if err := restore(tx, cur, s); err != nil {
				return err
			}
		default:
			logger.Warn("策略已被后续操作修改，跳过回滚",
				zap.String("record_id", cur.RecordID),
				zap.Uint64("version", s.Version),
			)
		}

		cur.Status = model.ChainFailed
		cur.LastError = reason
		if err := tx.Save(cur).Error; err != nil {
			return err
		}
		monitor.Business.ManageRecords.WithLabelValues(string(cur.OperationType), string(cur.Status)).Inc()
		logger.Warn("管理记录失败",
			zap.String("record_id", cur.RecordID),
			zap.String("operation", string(cur.OperationType)),
			zap.String("reason", reason),
		)
		return publish(tx, cur)
	})
}

// restore 恢复策略以及操作对设备、托管记录的改动
func restore(tx *gorm.DB, rec *model.WalletManageRecord, s *model.Strategy) error {
	if err := restoreCustody(tx, rec.Custody); err != nil {
		return err
	}
	if rec.Before != nil {
		s.Restore(rec.Before)
		return tx.Save(s).Error
	}

	// 创建主账户失败: 撤销策略，允许用户重新创建
	if err := tx.Delete(s).Error; err != nil {
		return err
	}
	return tx.Model(&model.User{}).Where("id = ?", rec.UserID).
		Update("main_account", nil).Error
}

func lockRecord(tx *gorm.DB, recordID string) (*model.WalletManageRecord, error) {
	var rec model.WalletManageRecord
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("record_id = ?", recordID).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// stepWithNonce 每一步的 nonce 固定，重放时链上得到同一笔交易
func stepWithNonce(rec *model.WalletManageRecord) model.ChainStep {
	step := rec.Steps[rec.CurrentStep]
	args := make(map[string]string, len(step.Args)+1)
	for k, v := range step.Args {
		args[k] = v
	}
	args[chain.ArgNonce] = rec.RecordID + ":" + strconv.Itoa(rec.CurrentStep)
	return model.ChainStep{Method: step.Method, Args: args}
}

func publish(tx *gorm.DB, rec *model.WalletManageRecord) error {
	return model.CreateOutboxMessage(tx, model.TopicManageEvents, rec.AccountID, model.ManageEvent{
		RecordID:      rec.RecordID,
		AccountID:     rec.AccountID,
		OperationType: rec.OperationType,
		Status:        rec.Status,
		TxIDs:         rec.TxIDs,
	})
}
