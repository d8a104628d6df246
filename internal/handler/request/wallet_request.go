package request

// CreateAccountRequest 创建主账户
type CreateAccountRequest struct {
	Master        KeyMaterial `json:"master" binding:"required"`
	Subaccount    KeyMaterial `json:"subaccount" binding:"required"`
	AnswerIndexes string      `json:"anwser_indexes" binding:"required,max=255"`
}

// NeedSigNumQuery 查询所需签名数
type NeedSigNumQuery struct {
	Coin   string `form:"coin" binding:"required,coin"`
	Amount string `form:"amount" binding:"required,amount"`
}

// AddServantRequest 添加从设备，密文为空时从待添加公钥中取
type AddServantRequest struct {
	Pubkey              string `json:"servant_pubkey" binding:"required,pubkey"`
	HolderDeviceID      string `json:"holder_device_id" binding:"omitempty,max=128"`
	EncryptedByPassword string `json:"servant_prikey_encryped_by_password"`
	EncryptedByAnswer   string `json:"servant_prikey_encryped_by_answer"`
	Captcha             string `json:"captcha" binding:"required,len=6,numeric"`
}

// ReplaceServantRequest 把从设备位置交给没有密钥的设备
type ReplaceServantRequest struct {
	NewKey         KeyMaterial `json:"new_servant" binding:"required"`
	HolderDeviceID string      `json:"holder_device_id" binding:"required,max=128"`
	Captcha        string      `json:"captcha" binding:"required,len=6,numeric"`
}

// PendingPubkeyRequest 新设备上报待添加的公钥
type PendingPubkeyRequest struct {
	Pubkey              string `json:"pubkey" binding:"required,pubkey"`
	EncryptedByPassword string `json:"encrypted_prikey_by_password" binding:"required"`
	EncryptedByAnswer   string `json:"encrypted_prikey_by_answer" binding:"required"`
}

// AddSubaccountRequest 添加子账户，limit 为空时使用默认限额
type AddSubaccountRequest struct {
	KeyMaterial
	HoldValueLimit *string `json:"hold_value_limit" binding:"omitempty,amount"`
}

// SubaccountLimitRequest 修改子账户限额
type SubaccountLimitRequest struct {
	HoldValueLimit string `json:"hold_value_limit" binding:"required,amount"`
}

// RankRequest 一个金额区间
type RankRequest struct {
	Min    string `json:"min" binding:"required,amount"`
	MaxEq  string `json:"max_eq" binding:"required,amount"`
	SigNum uint8  `json:"sig_num"`
}

// UpdateRanksRequest 更新档位表，coin 为空时更新默认档位
type UpdateRanksRequest struct {
	Coin  string        `json:"coin" binding:"omitempty,coin"`
	Ranks []RankRequest `json:"strategy" binding:"required,min=1,dive"`
}

// SwitchMasterRequest 更换主设备
// Newcomer 为空表示当前从设备升为主设备，否则为没有密钥的新设备
type SwitchMasterRequest struct {
	Newcomer *KeyMaterial `json:"newcomer"`
	Captcha  string       `json:"captcha" binding:"required,len=6,numeric"`
}

// SecretsQuery 查询托管密文
type SecretsQuery struct {
	Kind string `form:"kind" binding:"required,secret_kind"`
}

// UpdateSecurityRequest 修改安全问题，所有托管密文一并替换
type UpdateSecurityRequest struct {
	AnswerIndexes string        `json:"anwser_indexes" binding:"required,max=255"`
	Secrets       []KeyMaterial `json:"secrets" binding:"required,min=1,dive"`
	Captcha       string        `json:"captcha" binding:"required,len=6,numeric"`
}
