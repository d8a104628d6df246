package user

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chainless-core/internal/model"
	"chainless-core/internal/service/guard"
	"chainless-core/internal/service/role"
	"chainless-core/internal/worker/tasks"
	"chainless-core/pkg/errno"
	"chainless-core/pkg/logger"
	"chainless-core/pkg/monitor"
)

// Enqueuer 异步任务队列，worker.Client 实现
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Service struct {
	db       *gorm.DB
	codes    *guard.CodeStore
	logins   *guard.LoginGuard
	sessions *guard.SessionStore
	queue    Enqueuer
}

func NewService(db *gorm.DB, codes *guard.CodeStore, logins *guard.LoginGuard, sessions *guard.SessionStore, queue Enqueuer) *Service {
	return &Service{db: db, codes: codes, logins: logins, sessions: sessions, queue: queue}
}

// Device 登录设备
type Device struct {
	ID    string
	Brand string
}

// LoginResult 登录或注册成功后返回
type LoginResult struct {
	Token  string `json:"token"`
	UserID uint64 `json:"user_id"`
}

func (s *Service) findByContact(ctx context.Context, contact string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("contact = ?", contact).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// RequestCode 生成验证码并投递发送任务
// 注册要求联系方式未被使用，其他用途要求已注册
func (s *Service) RequestCode(ctx context.Context, contact string, usage model.Usage) error {
	contactType, err := model.ParseContact(contact)
	if err != nil {
		return err
	}
	used, err := s.ContactIsUsed(ctx, contact)
	if err != nil {
		return err
	}
	if usage == model.UsageRegister && used {
		return errno.ErrUserAlreadyExist
	}
	if usage != model.UsageRegister && !used {
		return errno.ErrUserNotFound
	}

	code, err := s.codes.Request(ctx, contact, usage)
	if err != nil {
		return err
	}
	task, err := tasks.NewVerificationDeliveryTask(tasks.VerificationDeliveryPayload{
		Contact:     contact,
		ContactType: contactType,
		Usage:       usage,
		Code:        code,
	})
	if err != nil {
		return err
	}
	// 投递失败只记录，验证码仍然有效
	if _, err := s.queue.Enqueue(task, asynq.Queue("critical")); err != nil {
		logger.Error("验证码发送任务投递失败", zap.String("usage", string(usage)), zap.Error(err))
	}
	return nil
}

// RequestCodeForUser 已登录用户为敏感操作获取验证码
func (s *Service) RequestCodeForUser(ctx context.Context, userID uint64, usage model.Usage) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.RequestCode(ctx, u.Contact, usage)
}

// VerifyUserCode 校验并消耗已登录用户的验证码
func (s *Service) VerifyUserCode(ctx context.Context, userID uint64, usage model.Usage, code string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.codes.CheckAndDelete(ctx, u.Contact, usage, code)
}

// Register 用验证码注册
func (s *Service) Register(ctx context.Context, contact, code, password string, dev Device) (*LoginResult, error) {
	contactType, err := model.ParseContact(contact)
	if err != nil {
		return nil, err
	}
	if err := s.codes.Check(ctx, contact, model.UsageRegister, code); err != nil {
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := model.User{
		Contact:      contact,
		ContactType:  contactType,
		PasswordHash: string(hashedPwd),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errno.ErrUserAlreadyExist
			}
			return err
		}
		return upsertDevice(tx, user.ID, dev)
	})
	if err != nil {
		return nil, err
	}
	if err := s.codes.CheckAndDelete(ctx, contact, model.UsageRegister, code); err != nil {
		logger.Warn("删除注册验证码失败", zap.Uint64("user_id", user.ID), zap.Error(err))
	}

	monitor.Business.UserRegisteredTotal.Inc()
	logger.Info("用户注册成功", zap.Uint64("user_id", user.ID), zap.String("contact_type", string(contactType)))
	return s.issue(ctx, &user, dev)
}

// Login 密码登录，连续错误达到上限后锁定一段时间
func (s *Service) Login(ctx context.Context, contact, password string, dev Device) (*LoginResult, error) {
	user, err := s.findByContact(ctx, contact)
	if err != nil {
		return nil, err
	}

	locked, err := s.logins.IsLocked(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		monitor.Business.AccountLockedTotal.Inc()
		return nil, errno.ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		monitor.Business.LoginTotal.WithLabelValues("password", "failed").Inc()
		if err := s.logins.RecordFailure(ctx, user.ID); err != nil {
			logger.Error("记录登录失败出错", zap.Uint64("user_id", user.ID), zap.Error(err))
		}
		return nil, errno.ErrPasswordIncorrect
	}
	if err := s.logins.Reset(ctx, user.ID); err != nil {
		logger.Warn("清除登录失败记录出错", zap.Uint64("user_id", user.ID), zap.Error(err))
	}

	if err := upsertDevice(s.db.WithContext(ctx), user.ID, dev); err != nil {
		return nil, err
	}
	monitor.Business.LoginTotal.WithLabelValues("password", "ok").Inc()
	return s.issue(ctx, user, dev)
}

// LoginByCode 验证码登录
func (s *Service) LoginByCode(ctx context.Context, contact, code string, dev Device) (*LoginResult, error) {
	user, err := s.findByContact(ctx, contact)
	if err != nil {
		return nil, err
	}
	if err := s.codes.CheckAndDelete(ctx, contact, model.UsageLogin, code); err != nil {
		monitor.Business.LoginTotal.WithLabelValues("code", "failed").Inc()
		return nil, err
	}
	if err := upsertDevice(s.db.WithContext(ctx), user.ID, dev); err != nil {
		return nil, err
	}
	monitor.Business.LoginTotal.WithLabelValues("code", "ok").Inc()
	return s.issue(ctx, user, dev)
}

// ResetPassword 用验证码重置密码，同时解除登录锁定
func (s *Service) ResetPassword(ctx context.Context, contact, code, newPassword string) error {
	user, err := s.findByContact(ctx, contact)
	if err != nil {
		return err
	}
	if err := s.codes.Check(ctx, contact, model.UsageResetPassword, code); err != nil {
		return err
	}
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", string(hashedPwd)).Error; err != nil {
		return err
	}
	if err := s.codes.CheckAndDelete(ctx, contact, model.UsageResetPassword, code); err != nil {
		logger.Warn("删除重置验证码失败", zap.Uint64("user_id", user.ID), zap.Error(err))
	}
	if err := s.logins.Reset(ctx, user.ID); err != nil {
		logger.Warn("清除登录失败记录出错", zap.Uint64("user_id", user.ID), zap.Error(err))
	}
	logger.Info("密码已重置", zap.Uint64("user_id", user.ID))
	return nil
}

// ContactIsUsed 联系方式是否已注册
func (s *Service) ContactIsUsed(ctx context.Context, contact string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("contact = ?", contact).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUser 按 id 查询用户
func (s *Service) GetUser(ctx context.Context, userID uint64) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserInfo 用户信息及当前设备角色
type UserInfo struct {
	*model.User
	DeviceID string     `json:"device_id"`
	Role     model.Role `json:"role"`
}

// GetUserInfo 获取用户信息
func (s *Service) GetUserInfo(ctx context.Context, actor role.Actor) (*UserInfo, error) {
	rc, err := role.Load(s.db.WithContext(ctx), actor, role.LockNone)
	if err != nil {
		return nil, err
	}
	return &UserInfo{User: rc.User, DeviceID: rc.Device.DeviceID, Role: rc.Role}, nil
}

// Logout 注销当前 token
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

func (s *Service) issue(ctx context.Context, user *model.User, dev Device) (*LoginResult, error) {
	token, err := s.sessions.Issue(ctx, guard.Session{UserID: user.ID, DeviceID: dev.ID, DeviceBrand: dev.Brand})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, UserID: user.ID}, nil
}

// upsertDevice 首次登录的设备记为 Undefined，已有设备只更新品牌
func upsertDevice(tx *gorm.DB, userID uint64, dev Device) error {
	if dev.ID == "" {
		return errno.ErrRequestParamInvalid.WithMessage("device id is empty")
	}
	d := model.Device{DeviceID: dev.ID, UserID: userID, Brand: dev.Brand, State: model.DeviceActive}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"brand", "state", "updated_at"}),
	}).Create(&d).Error
}
