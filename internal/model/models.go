package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User 用户表，main_account 即主账户 id (与初始主设备公钥相同)
type User struct {
	ID            uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Contact       string      `gorm:"type:varchar(255);not null;unique" json:"contact"`
	ContactType   ContactType `gorm:"type:varchar(16);not null" json:"contact_type"`
	PasswordHash  string      `gorm:"type:varchar(255);not null" json:"-"` // 不返回密码
	AnswerIndexes string      `gorm:"type:varchar(255);not null;default:''" json:"answer_indexes"`
	MainAccount   *string     `gorm:"type:varchar(128);uniqueIndex" json:"main_account"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Device 用户设备，(device_id, user_id) 唯一
type Device struct {
	ID                 uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID           string      `gorm:"type:varchar(128);not null;uniqueIndex:idx_device_user" json:"device_id"`
	UserID             uint64      `gorm:"not null;uniqueIndex:idx_device_user" json:"user_id"`
	Brand              string      `gorm:"type:varchar(128);not null;default:''" json:"brand"`
	State              DeviceState `gorm:"type:varchar(16);not null" json:"state"`
	HoldPubkey         *string     `gorm:"type:varchar(128);index" json:"hold_pubkey"`
	HolderConfirmSaved bool        `gorm:"not null;default:false" json:"holder_confirm_saved"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// MultiSigRank 金额区间 [Min, MaxEq] 对应的从设备签名数
type MultiSigRank struct {
	Min    decimal.Decimal `json:"min"`
	MaxEq  decimal.Decimal `json:"max_eq"`
	SigNum uint8           `json:"sig_num"`
}

// SubaccountConfig 子账户配置
type SubaccountConfig struct {
	Pubkey         string          `json:"pubkey"`
	HoldValueLimit decimal.Decimal `json:"hold_value_limit"`
}

// ServantBackup 账户级的从设备私钥备份
type ServantBackup struct {
	Pubkey          string `json:"pubkey"`
	EncryptedPrikey string `json:"encrypted_prikey"`
}

// Strategy 账户多签策略，本地镜像链上合约的状态
type Strategy struct {
	AccountID      string                      `gorm:"primaryKey;type:varchar(128)" json:"account_id"`
	UserID         uint64                      `gorm:"not null;uniqueIndex" json:"user_id"`
	MasterPubkey   string                      `gorm:"type:varchar(128);not null" json:"master_pubkey"`
	ServantPubkeys []string                    `gorm:"serializer:json;type:text" json:"servant_pubkeys"`
	ServantBackups []ServantBackup             `gorm:"serializer:json;type:text" json:"-"`
	MultiSigRanks  []MultiSigRank              `gorm:"serializer:json;type:text" json:"multi_sig_ranks"`
	CoinRanks      map[CoinType][]MultiSigRank `gorm:"serializer:json;type:text" json:"coin_ranks,omitempty"`
	Subaccounts    map[string]SubaccountConfig `gorm:"serializer:json;type:text" json:"subaccounts"`
	Version        uint64                      `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// StrategySnapshot 某一时刻策略可变部分的拷贝，用于链上失败时补偿
type StrategySnapshot struct {
	MasterPubkey   string                      `json:"master_pubkey"`
	ServantPubkeys []string                    `json:"servant_pubkeys"`
	ServantBackups []ServantBackup             `json:"servant_backups"`
	MultiSigRanks  []MultiSigRank              `json:"multi_sig_ranks"`
	CoinRanks      map[CoinType][]MultiSigRank `json:"coin_ranks"`
	Subaccounts    map[string]SubaccountConfig `json:"subaccounts"`
	Version        uint64                      `json:"version"`
}

// Snapshot 深拷贝策略当前状态
func (s *Strategy) Snapshot() *StrategySnapshot {
	snap := &StrategySnapshot{
		MasterPubkey:   s.MasterPubkey,
		ServantPubkeys: append([]string(nil), s.ServantPubkeys...),
		ServantBackups: append([]ServantBackup(nil), s.ServantBackups...),
		MultiSigRanks:  append([]MultiSigRank(nil), s.MultiSigRanks...),
		Subaccounts:    make(map[string]SubaccountConfig, len(s.Subaccounts)),
		Version:        s.Version,
	}
	for k, v := range s.Subaccounts {
		snap.Subaccounts[k] = v
	}
	if s.CoinRanks != nil {
		snap.CoinRanks = make(map[CoinType][]MultiSigRank, len(s.CoinRanks))
		for k, v := range s.CoinRanks {
			snap.CoinRanks[k] = append([]MultiSigRank(nil), v...)
		}
	}
	return snap
}

// Restore 用快照覆盖策略，版本号继续递增
func (s *Strategy) Restore(snap *StrategySnapshot) {
	s.MasterPubkey = snap.MasterPubkey
	s.ServantPubkeys = append([]string(nil), snap.ServantPubkeys...)
	s.ServantBackups = append([]ServantBackup(nil), snap.ServantBackups...)
	s.MultiSigRanks = append([]MultiSigRank(nil), snap.MultiSigRanks...)
	s.CoinRanks = snap.CoinRanks
	s.Subaccounts = make(map[string]SubaccountConfig, len(snap.Subaccounts))
	for k, v := range snap.Subaccounts {
		s.Subaccounts[k] = v
	}
	s.Version++
}

// DeviceCustody 设备持有密钥的状态
type DeviceCustody struct {
	ID                 uint64  `json:"id"`
	HoldPubkey         *string `json:"hold_pubkey"`
	HolderConfirmSaved bool    `json:"holder_confirm_saved"`
}

// SecretCustody 托管记录的状态
type SecretCustody struct {
	ID     uint64      `json:"id"`
	Pubkey string      `json:"pubkey"`
	State  SecretState `json:"state"`
}

// CustodyChange 一次管理操作改动过的设备和托管记录，保存改动前的值
// Created 为操作新增的托管记录
type CustodyChange struct {
	Devices []DeviceCustody `json:"devices"`
	Secrets []SecretCustody `json:"secrets"`
	Created []uint64        `json:"created"`
}

// HasServant 公钥是否已是从设备
func (s *Strategy) HasServant(pubkey string) bool {
	for _, p := range s.ServantPubkeys {
		if p == pubkey {
			return true
		}
	}
	return false
}

// SecretRecord 设备私钥的托管密文，同一公钥最多一条 Sitting 记录
type SecretRecord struct {
	ID                  uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Pubkey              string      `gorm:"type:varchar(128);not null;index:idx_secret_sitting,unique,where:state = 'Sitting'" json:"pubkey"`
	UserID              uint64      `gorm:"not null;index" json:"user_id"`
	State               SecretState `gorm:"type:varchar(16);not null;index" json:"state"`
	EncryptedByPassword string      `gorm:"type:text;not null" json:"encrypted_prikey_by_password"`
	EncryptedByAnswer   string      `gorm:"type:text;not null" json:"encrypted_prikey_by_answer"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// CoinTransaction 多签转账
type CoinTransaction struct {
	ID                 uint64          `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderID            string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_id"`
	TxID               *string         `gorm:"type:varchar(128);index" json:"tx_id"`
	CoinType           CoinType        `gorm:"type:varchar(16);not null" json:"coin_type"`
	Sender             string          `gorm:"type:varchar(128);not null;index" json:"sender"`
	Receiver           string          `gorm:"type:varchar(128);not null;index" json:"receiver"`
	Amount             decimal.Decimal `gorm:"type:numeric(39,0);not null" json:"amount"`
	ExpireAt           time.Time       `gorm:"not null;index" json:"expire_at"`
	Memo               string          `gorm:"type:varchar(255);not null;default:''" json:"memo"`
	Stage              TxStage         `gorm:"not null;index" json:"stage"`
	CoinTxRaw          string          `gorm:"type:text;not null" json:"coin_tx_raw"`
	ChainTxRaw         string          `gorm:"type:text;not null;default:''" json:"chain_tx_raw"`
	Signatures         []string        `gorm:"serializer:json;type:text" json:"signatures"`
	FinalSignature     string          `gorm:"type:text;not null;default:''" json:"-"`
	RequiredSignatures uint8           `gorm:"not null" json:"required_signatures"`
	TxType             TxType          `gorm:"type:varchar(16);not null" json:"tx_type"`
	ChainStatus        ChainStatus     `gorm:"type:varchar(16);not null;index" json:"chain_status"`
	SubmitAttempts     int             `gorm:"not null;default:0" json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ChainStep 一次链上调用
type ChainStep struct {
	Method string            `json:"method"`
	Args   map[string]string `json:"args"`
}

// WalletManageRecord 一次改动策略的钱包管理操作，记录链上多步调用的进度
type WalletManageRecord struct {
	ID                  uint64            `gorm:"primaryKey;autoIncrement" json:"-"`
	RecordID            string            `gorm:"type:varchar(64);not null;uniqueIndex" json:"record_id"`
	UserID              uint64            `gorm:"not null;index" json:"user_id"`
	AccountID           string            `gorm:"type:varchar(128);not null;index" json:"account_id"`
	OperationType       OperationType     `gorm:"type:varchar(32);not null" json:"operation_type"`
	OperatorPubkey      string            `gorm:"type:varchar(128);not null;default:''" json:"operator_pubkey"`
	OperatorDeviceID    string            `gorm:"type:varchar(128);not null" json:"operator_device_id"`
	OperatorDeviceBrand string            `gorm:"type:varchar(128);not null;default:''" json:"operator_device_brand"`
	Steps               []ChainStep       `gorm:"serializer:json;type:text" json:"steps"`
	CurrentStep         int               `gorm:"not null;default:0" json:"current_step"`
	TxIDs               []string          `gorm:"serializer:json;type:text" json:"tx_ids"`
	Status              ChainStatus       `gorm:"type:varchar(16);not null;index" json:"status"`
	Attempts            int               `gorm:"not null;default:0" json:"-"`
	LastError           string            `gorm:"type:text;not null;default:''" json:"-"`
	Before              *StrategySnapshot `gorm:"serializer:json;type:text" json:"-"`
	After               *StrategySnapshot `gorm:"serializer:json;type:text" json:"-"`
	Custody             *CustodyChange    `gorm:"serializer:json;type:text" json:"-"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// OutboxMessage 本地消息表 (Transactional Outbox)
type OutboxMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string    `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string    `gorm:"type:varchar(255);not null;default:''" json:"key"`
	Payload   []byte    `gorm:"type:text;not null" json:"payload"`
	Status    string    `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (Device) TableName() string {
	return "devices"
}

func (Strategy) TableName() string {
	return "strategies"
}

func (SecretRecord) TableName() string {
	return "secret_records"
}

func (CoinTransaction) TableName() string {
	return "coin_transactions"
}

func (WalletManageRecord) TableName() string {
	return "wallet_manage_records"
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
