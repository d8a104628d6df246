package request

// CreateTransferRequest 发起转账，sender 为空时为主账户
type CreateTransferRequest struct {
	From   string `json:"from" binding:"omitempty,pubkey"`
	To     string `json:"to" binding:"required,max=255"`
	Coin   string `json:"coin" binding:"required,coin"`
	Amount string `json:"amount" binding:"required,amount"`
	Memo   string `json:"memo" binding:"max=255"`
	TxType string `json:"tx_type" binding:"omitempty,tx_type"`
}

// ListTransfersQuery 转账列表
type ListTransfersQuery struct {
	Role   string   `form:"role" binding:"omitempty,oneof=sender receiver"`
	Stages []string `form:"stage"`
	Limit  int      `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int      `form:"offset" binding:"omitempty,min=0"`
}

// SignatureRequest 从设备上传签名
type SignatureRequest struct {
	Signature string `json:"signature" binding:"required,len=192,hexadecimal"`
}

// ReactRequest 收款方确认或拒绝
type ReactRequest struct {
	IsAgreed *bool `json:"is_agreed" binding:"required"`
}

// ReconfirmRequest 发送方最终确认，confirmed=false 时取消
type ReconfirmRequest struct {
	Confirmed      *bool  `json:"confirmed" binding:"required"`
	FinalSignature string `json:"final_signature" binding:"omitempty,len=192,hexadecimal"`
}
