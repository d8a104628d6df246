package errno

import (
	"errors"
)

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回同一错误码、替换了提示信息的副本
func (e Errno) WithMessage(msg string) Errno {
	return Errno{Code: e.Code, Message: msg}
}

// Is 按错误码比较，WithMessage 派生出的错误依然匹配原始错误
func (e Errno) Is(target error) bool {
	switch t := target.(type) {
	case Errno:
		return e.Code == t.Code
	case *Errno:
		return t != nil && e.Code == t.Code
	}
	return false
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// IsAuthorization 判断是否为鉴权类错误 (token 失效 / 设备角色不符)
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrRoleIneligible)
}

// Common Errors
var (
	OK                      = Errno{Code: 0, Message: "Success"}
	InternalServerError     = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind                 = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrTokenInvalid         = Errno{Code: 10003, Message: "Token invalid"}
	ErrDatabase             = Errno{Code: 10004, Message: "Database error"}
	ErrRequestParamInvalid  = Errno{Code: 10005, Message: "Request param invalid"}
	ErrExternalCallTimedOut = Errno{Code: 10006, Message: "External call timed out"}
	ErrExternalCall         = Errno{Code: 10007, Message: "External call failed"}
)

// Account Errors (201xx)
var (
	ErrUserNotFound          = Errno{Code: 20101, Message: "User not found"}
	ErrPasswordIncorrect     = Errno{Code: 20102, Message: "Password incorrect"}
	ErrAccountLocked         = Errno{Code: 20103, Message: "Account locked"}
	ErrIncorrectCode         = Errno{Code: 20104, Message: "Verification code incorrect"}
	ErrCodeExpired           = Errno{Code: 20105, Message: "Verification code expired"}
	ErrCodeNotFound          = Errno{Code: 20106, Message: "Verification code not found"}
	ErrRequestTooFrequent    = Errno{Code: 20107, Message: "Request too frequent"}
	ErrUserAlreadyExist      = Errno{Code: 20108, Message: "Contact already registered"}
	ErrDeviceNotFound        = Errno{Code: 20109, Message: "Device not found"}
	ErrMainAccountNotCreated = Errno{Code: 20110, Message: "Main account not created"}
)

// Strategy Errors (301xx)
var (
	ErrRoleIneligible     = Errno{Code: 30101, Message: "Device role ineligible"}
	ErrStrategyNotFound   = Errno{Code: 30102, Message: "Strategy not found"}
	ErrStrategyLocked     = Errno{Code: 30103, Message: "Strategy locked by in-flight transaction"}
	ErrAlreadyServant     = Errno{Code: 30104, Message: "Pubkey is already a servant"}
	ErrMainAccountExist   = Errno{Code: 30105, Message: "Main account already exists"}
	ErrSubaccountNotFound = Errno{Code: 30106, Message: "Subaccount not found"}
	ErrInvalidRanks       = Errno{Code: 30107, Message: "Multi-sig ranks invalid"}
	ErrServantNotFound    = Errno{Code: 30108, Message: "Servant not found"}
	ErrPendingKeyNotFound = Errno{Code: 30109, Message: "Pending pubkey not found"}
)

// Secret Errors (302xx)
var (
	ErrSecretNotFound = Errno{Code: 30201, Message: "Secret not found"}
	ErrSecretConflict = Errno{Code: 30202, Message: "Secret already exists"}
)

// Transfer Errors (303xx)
var (
	ErrTxNotFound         = Errno{Code: 30301, Message: "Transaction not found"}
	ErrDuplicateSigner    = Errno{Code: 30302, Message: "Signer already uploaded a different signature"}
	ErrTxAlreadyConfirmed = Errno{Code: 30303, Message: "Transaction already confirmed"}
	ErrTxStageIllegal     = Errno{Code: 30304, Message: "Transaction stage illegal"}
	ErrTxExpired          = Errno{Code: 30305, Message: "Transaction expired"}
	ErrTransferToSelf     = Errno{Code: 30306, Message: "Cannot transfer to self"}
	ErrReceiverNotFound   = Errno{Code: 30307, Message: "Receiver not found"}
	ErrSignatureMismatch  = Errno{Code: 30308, Message: "Signature pubkey mismatch"}
)
