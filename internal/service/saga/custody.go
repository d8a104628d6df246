package saga

import (
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"chainless-core/internal/model"
	"chainless-core/pkg/logger"
)

// Custody 某一时刻用户的设备持有关系和托管记录状态
type Custody struct {
	userID  uint64
	devices map[uint64]model.DeviceCustody
	secrets map[uint64]model.SecretCustody
}

// CaptureCustody 在调用方事务中读取用户的设备和托管记录
func CaptureCustody(tx *gorm.DB, userID uint64) (*Custody, error) {
	var devices []model.Device
	if err := tx.Select("id", "hold_pubkey", "holder_confirm_saved").
		Where("user_id = ?", userID).
		Find(&devices).Error; err != nil {
		return nil, err
	}
	var secrets []model.SecretRecord
	if err := tx.Select("id", "pubkey", "state").
		Where("user_id = ?", userID).
		Find(&secrets).Error; err != nil {
		return nil, err
	}

	c := &Custody{
		userID:  userID,
		devices: make(map[uint64]model.DeviceCustody, len(devices)),
		secrets: make(map[uint64]model.SecretCustody, len(secrets)),
	}
	for _, d := range devices {
		c.devices[d.ID] = model.DeviceCustody{ID: d.ID, HoldPubkey: d.HoldPubkey, HolderConfirmSaved: d.HolderConfirmSaved}
	}
	for _, s := range secrets {
		c.secrets[s.ID] = model.SecretCustody{ID: s.ID, Pubkey: s.Pubkey, State: s.State}
	}
	return c, nil
}

// Changes 重新读取当前状态，返回相对 c 被改动的记录及其原值
func (c *Custody) Changes(tx *gorm.DB) (*model.CustodyChange, error) {
	after, err := CaptureCustody(tx, c.userID)
	if err != nil {
		return nil, err
	}

	change := &model.CustodyChange{}
	for id, d := range after.devices {
		if prev, ok := c.devices[id]; ok && !sameDevice(prev, d) {
			change.Devices = append(change.Devices, prev)
		}
	}
	for id, s := range after.secrets {
		prev, ok := c.secrets[id]
		switch {
		case !ok:
			change.Created = append(change.Created, id)
		case prev.State != s.State:
			change.Secrets = append(change.Secrets, prev)
		}
	}
	sort.Slice(change.Devices, func(i, j int) bool { return change.Devices[i].ID < change.Devices[j].ID })
	sort.Slice(change.Secrets, func(i, j int) bool { return change.Secrets[i].ID < change.Secrets[j].ID })
	sort.Slice(change.Created, func(i, j int) bool { return change.Created[i] < change.Created[j] })
	return change, nil
}

func sameDevice(a, b model.DeviceCustody) bool {
	if a.HolderConfirmSaved != b.HolderConfirmSaved {
		return false
	}
	if a.HoldPubkey == nil || b.HoldPubkey == nil {
		return a.HoldPubkey == nil && b.HoldPubkey == nil
	}
	return *a.HoldPubkey == *b.HoldPubkey
}

// restoreCustody 撤销管理操作对设备和托管记录的改动
// 先废弃操作新增的记录再恢复原状态，同一公钥已有其他 Sitting 记录时保持现状
func restoreCustody(tx *gorm.DB, change *model.CustodyChange) error {
	if change == nil {
		return nil
	}

	if len(change.Created) > 0 {
		if err := tx.Model(&model.SecretRecord{}).
			Where("id IN ? AND state = ?", change.Created, model.SecretSitting).
			Update("state", model.SecretDeprecated).Error; err != nil {
			return err
		}
	}

	for _, s := range change.Secrets {
		if s.State == model.SecretSitting {
			var n int64
			if err := tx.Model(&model.SecretRecord{}).
				Where("pubkey = ? AND state = ? AND id <> ?", s.Pubkey, model.SecretSitting, s.ID).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				logger.Warn("公钥已有新的托管记录，跳过恢复", zap.Uint64("secret_id", s.ID))
				continue
			}
		}
		if err := tx.Model(&model.SecretRecord{}).Where("id = ?", s.ID).
			Update("state", s.State).Error; err != nil {
			return err
		}
	}

	for _, d := range change.Devices {
		if err := tx.Model(&model.Device{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
			"hold_pubkey":          d.HoldPubkey,
			"holder_confirm_saved": d.HolderConfirmSaved,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}
