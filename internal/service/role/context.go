package role

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chainless-core/internal/model"
	"chainless-core/pkg/errno"
)

// Actor 发起请求的用户和设备，由鉴权中间件解析出来
type Actor struct {
	UserID      uint64
	DeviceID    string
	DeviceBrand string
}

// LockMode 读取策略行时使用的行锁
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// Context 一次特权操作所需的上下文，角色在读取策略的同一事务里计算
type Context struct {
	User     *model.User
	Device   *model.Device
	Strategy *model.Strategy
	Role     model.Role
}

// HoldPubkey 当前设备持有的公钥，没有时返回空串
func (c *Context) HoldPubkey() string {
	if c.Device.HoldPubkey == nil {
		return ""
	}
	return *c.Device.HoldPubkey
}

// Require 校验当前设备角色
func (c *Context) Require(required model.Role) error {
	return CheckRole(c.Role, required)
}

// RequireStrategy 需要已创建主账户
func (c *Context) RequireStrategy() error {
	if c.Strategy == nil {
		return errno.ErrMainAccountNotCreated
	}
	return nil
}

// Load 在事务 tx 内加载用户、设备和策略
func Load(tx *gorm.DB, actor Actor, mode LockMode) (*Context, error) {
	var user model.User
	if err := tx.First(&user, actor.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrUserNotFound
		}
		return nil, err
	}

	var device model.Device
	if err := tx.Where("device_id = ? AND user_id = ?", actor.DeviceID, actor.UserID).
		First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrDeviceNotFound
		}
		return nil, err
	}

	ctx := &Context{User: &user, Device: &device, Role: model.RoleUndefined}
	if user.MainAccount == nil {
		return ctx, nil
	}

	s, err := LockStrategy(tx, *user.MainAccount, mode)
	if err != nil {
		return nil, err
	}
	ctx.Strategy = s
	ctx.Role = ResolveRole(s, device.HoldPubkey)
	return ctx, nil
}

// LockStrategy 按锁模式读取策略行
func LockStrategy(tx *gorm.DB, accountID string, mode LockMode) (*model.Strategy, error) {
	q := tx
	switch mode {
	case LockShare:
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	case LockUpdate:
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var s model.Strategy
	if err := q.First(&s, "account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrStrategyNotFound
		}
		return nil, err
	}
	return &s, nil
}
