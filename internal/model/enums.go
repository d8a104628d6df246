package model

import (
	"fmt"
	"regexp"

	"chainless-core/pkg/errno"
)

// Role 设备在某个账户下的角色
type Role string

const (
	RoleMaster    Role = "Master"
	RoleServant   Role = "Servant"
	RoleUndefined Role = "Undefined"
)

// CoinType 支持的币种
type CoinType string

const (
	CoinBTC  CoinType = "btc"
	CoinETH  CoinType = "eth"
	CoinUSDT CoinType = "usdt"
	CoinUSDC CoinType = "usdc"
	CoinCLY  CoinType = "cly"
	CoinDW20 CoinType = "dw20"
)

var coinTypes = []CoinType{CoinBTC, CoinETH, CoinUSDT, CoinUSDC, CoinCLY, CoinDW20}

func ParseCoinType(s string) (CoinType, error) {
	for _, c := range coinTypes {
		if string(c) == s {
			return c, nil
		}
	}
	return "", invalidParam("coin", s)
}

// TxStage 转账的多签阶段，数值顺序即推进顺序
type TxStage int

const (
	StageCreated TxStage = iota + 1
	StageSenderSigCompleted
	StageReceiverApproved
	StageReceiverRejected
	StageSenderCanceled
	StageSenderReconfirmed
	StageMultiSigExpired
)

var stageNames = map[TxStage]string{
	StageCreated:            "Created",
	StageSenderSigCompleted: "SenderSigCompleted",
	StageReceiverApproved:   "ReceiverApproved",
	StageReceiverRejected:   "ReceiverRejected",
	StageSenderCanceled:     "SenderCanceled",
	StageSenderReconfirmed:  "SenderReconfirmed",
	StageMultiSigExpired:    "MultiSigExpired",
}

func (s TxStage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TxStage(%d)", int(s))
}

func ParseTxStage(s string) (TxStage, error) {
	for stage, name := range stageNames {
		if name == s {
			return stage, nil
		}
	}
	return 0, invalidParam("stage", s)
}

// IsClosed 是否处于不会再被用户操作推进的阶段
func (s TxStage) IsClosed() bool {
	switch s {
	case StageReceiverRejected, StageSenderCanceled, StageMultiSigExpired, StageSenderReconfirmed:
		return true
	}
	return false
}

// OpenStages 仍在多签流程中的阶段
func OpenStages() []TxStage {
	return []TxStage{StageCreated, StageSenderSigCompleted, StageReceiverApproved}
}

// TxType 转账类型
type TxType string

const (
	TxNormal       TxType = "Normal"
	TxForced       TxType = "Forced"
	TxSubToMain    TxType = "SubToMain"
	TxMainToBridge TxType = "MainToBridge"
)

func ParseTxType(s string) (TxType, error) {
	switch TxType(s) {
	case TxNormal, TxForced, TxSubToMain, TxMainToBridge:
		return TxType(s), nil
	}
	return "", invalidParam("tx_type", s)
}

// NeedsReceiverApproval 只有普通转账需要收款方确认
func (t TxType) NeedsReceiverApproval() bool {
	return t == TxNormal
}

// ChainStatus 链上执行状态，转账和钱包管理记录共用
type ChainStatus string

const (
	ChainNotLaunch ChainStatus = "NotLaunch"
	ChainPending   ChainStatus = "Pending"
	ChainConfirmed ChainStatus = "Confirmed"
	ChainFailed    ChainStatus = "Failed"
)

// IsFinal 链上结果已确定
func (s ChainStatus) IsFinal() bool {
	return s == ChainConfirmed || s == ChainFailed
}

// SecretState 密钥托管记录状态
type SecretState string

const (
	SecretSitting    SecretState = "Sitting"
	SecretDeprecated SecretState = "Deprecated"
)

type DeviceState string

const (
	DeviceActive   DeviceState = "Active"
	DeviceInactive DeviceState = "Inactive"
)

// Usage 验证码用途
type Usage string

const (
	UsageRegister             Usage = "register"
	UsageLogin                Usage = "login"
	UsageResetPassword        Usage = "resetPassword"
	UsageSetSecurity          Usage = "setSecurity"
	UsageAddServant           Usage = "addServant"
	UsageServantReplaceMaster Usage = "servantReplaceMaster"
	UsageNewcomerBecomeMaster Usage = "newcomerBecomeMaster"
)

var usages = []Usage{
	UsageRegister, UsageLogin, UsageResetPassword, UsageSetSecurity,
	UsageAddServant, UsageServantReplaceMaster, UsageNewcomerBecomeMaster,
}

func ParseUsage(s string) (Usage, error) {
	for _, u := range usages {
		if string(u) == s {
			return u, nil
		}
	}
	return "", invalidParam("usage", s)
}

// ContactType 联系方式类型
type ContactType string

const (
	ContactEmail ContactType = "email"
	ContactPhone ContactType = "phone"
)

var (
	phonePattern = regexp.MustCompile(`^\+\d{1,3}\s\d{10,15}$`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
)

// ParseContact 识别联系方式是邮箱还是带国际区号的手机号
func ParseContact(contact string) (ContactType, error) {
	switch {
	case phonePattern.MatchString(contact):
		return ContactPhone, nil
	case emailPattern.MatchString(contact):
		return ContactEmail, nil
	}
	return "", invalidParam("contact", contact)
}

// OperationType 钱包管理操作类型
type OperationType string

const (
	OpCreateAccount             OperationType = "CreateAccount"
	OpAddServant                OperationType = "AddServant"
	OpRemoveServant             OperationType = "RemoveServant"
	OpAddSubaccount             OperationType = "AddSubaccount"
	OpRemoveSubaccount          OperationType = "RemoveSubaccount"
	OpUpdateStrategy            OperationType = "UpdateStrategy"
	OpUpdateSubaccountHoldLimit OperationType = "UpdateSubaccountHoldLimit"
	OpServantSwitchMaster       OperationType = "ServantSwitchMaster"
	OpNewcomerSwitchMaster      OperationType = "NewcomerSwitchMaster"
	OpReplaceServant            OperationType = "ReplaceServant"
)

// SecretKind 查询托管密钥的范围
type SecretKind string

const (
	SecretKindCurrentDevice SecretKind = "currentDevice"
	SecretKindMaster        SecretKind = "master"
	SecretKindAll           SecretKind = "all"
)

func ParseSecretKind(s string) (SecretKind, error) {
	switch SecretKind(s) {
	case SecretKindCurrentDevice, SecretKindMaster, SecretKindAll:
		return SecretKind(s), nil
	}
	return "", invalidParam("secret_kind", s)
}

func invalidParam(field, value string) error {
	return errno.ErrRequestParamInvalid.WithMessage(fmt.Sprintf("invalid %s: %q", field, value))
}

func (s TxStage) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *TxStage) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' {
		return fmt.Errorf("invalid tx stage: %s", data)
	}
	stage, err := ParseTxStage(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*s = stage
	return nil
}
