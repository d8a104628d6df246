package request

// GetCodeRequest 获取验证码
type GetCodeRequest struct {
	Contact string `json:"contact" binding:"required,max=255"`
	Usage   string `json:"kind" binding:"required,usage"`
}

// RegisterRequest 验证码注册
type RegisterRequest struct {
	Contact  string `json:"contact" binding:"required,max=255"`
	Captcha  string `json:"captcha" binding:"required,len=6,numeric"`
	Password string `json:"password" binding:"required,min=8,max=64"`
}

// LoginRequest 密码登录
type LoginRequest struct {
	Contact  string `json:"contact" binding:"required,max=255"`
	Password string `json:"password" binding:"required"`
}

// LoginByCodeRequest 验证码登录
type LoginByCodeRequest struct {
	Contact string `json:"contact" binding:"required,max=255"`
	Captcha string `json:"captcha" binding:"required,len=6,numeric"`
}

// ResetPasswordRequest 重置密码
type ResetPasswordRequest struct {
	Contact     string `json:"contact" binding:"required,max=255"`
	Captcha     string `json:"captcha" binding:"required,len=6,numeric"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=64"`
}

// ContactQuery 联系方式查询
type ContactQuery struct {
	Contact string `form:"contact" binding:"required,max=255"`
}

// UserCodeRequest 已登录用户获取敏感操作验证码
type UserCodeRequest struct {
	Usage string `json:"kind" binding:"required,usage"`
}
