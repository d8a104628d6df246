package handler

import (
	"github.com/gin-gonic/gin"

	"chainless-core/internal/handler/middleware"
	"chainless-core/internal/handler/request"
	"chainless-core/internal/handler/response"
	"chainless-core/internal/model"
	"chainless-core/internal/service/user"
)

type AccountHandler struct {
	users *user.Service
}

func NewAccountHandler(users *user.Service) *AccountHandler {
	return &AccountHandler{users: users}
}

func device(c *gin.Context) (user.Device, bool) {
	var h request.DeviceHeader
	if err := c.ShouldBindHeader(&h); err != nil {
		bindError(c, err)
		return user.Device{}, false
	}
	return user.Device{ID: h.DeviceID, Brand: h.DeviceBrand}, true
}

// GetCode 获取验证码
// @Summary 获取验证码
// @Description 注册码要求联系方式未注册，其他用途要求已注册
// @Tags Account
// @Accept json
// @Produce json
// @Param request body request.GetCodeRequest true "联系方式和用途"
// @Success 200 {object} response.Response
// @Router /api/v1/account/code [post]
func (h *AccountHandler) GetCode(c *gin.Context) {
	var req request.GetCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	usage, err := model.ParseUsage(req.Usage)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.users.RequestCode(c.Request.Context(), req.Contact, usage); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetUserCode 已登录用户获取敏感操作验证码
// @Summary 获取敏感操作验证码
// @Tags Account
// @Security Bearer
// @Param request body request.UserCodeRequest true "用途"
// @Success 200 {object} response.Response
// @Router /api/v1/account/user/code [post]
func (h *AccountHandler) GetUserCode(c *gin.Context) {
	var req request.UserCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	usage, err := model.ParseUsage(req.Usage)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.users.RequestCodeForUser(c.Request.Context(), middleware.Actor(c).UserID, usage); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Register 验证码注册
// @Summary 用户注册
// @Tags Account
// @Accept json
// @Produce json
// @Param Device-Id header string true "设备 id"
// @Param Device-Brand header string false "设备品牌"
// @Param request body request.RegisterRequest true "注册参数"
// @Success 200 {object} response.Response{data=user.LoginResult}
// @Router /api/v1/account/register [post]
func (h *AccountHandler) Register(c *gin.Context) {
	dev, ok := device(c)
	if !ok {
		return
	}
	var req request.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.users.Register(c.Request.Context(), req.Contact, req.Captcha, req.Password, dev)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Login 密码登录
// @Summary 密码登录
// @Tags Account
// @Param Device-Id header string true "设备 id"
// @Param request body request.LoginRequest true "登录参数"
// @Success 200 {object} response.Response{data=user.LoginResult}
// @Router /api/v1/account/login [post]
func (h *AccountHandler) Login(c *gin.Context) {
	dev, ok := device(c)
	if !ok {
		return
	}
	var req request.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.users.Login(c.Request.Context(), req.Contact, req.Password, dev)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// LoginByCode 验证码登录
// @Summary 验证码登录
// @Tags Account
// @Param Device-Id header string true "设备 id"
// @Param request body request.LoginByCodeRequest true "登录参数"
// @Success 200 {object} response.Response{data=user.LoginResult}
// @Router /api/v1/account/login/code [post]
func (h *AccountHandler) LoginByCode(c *gin.Context) {
	dev, ok := device(c)
	if !ok {
		return
	}
	var req request.LoginByCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.users.LoginByCode(c.Request.Context(), req.Contact, req.Captcha, dev)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ResetPassword 重置密码
// @Summary 重置密码
// @Tags Account
// @Param request body request.ResetPasswordRequest true "重置参数"
// @Success 200 {object} response.Response
// @Router /api/v1/account/password/reset [post]
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req request.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.users.ResetPassword(c.Request.Context(), req.Contact, req.Captcha, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ContactIsUsed 联系方式是否已注册
// @Summary 联系方式是否已注册
// @Tags Account
// @Param contact query string true "邮箱或手机号"
// @Success 200 {object} response.Response
// @Router /api/v1/account/contact/used [get]
func (h *AccountHandler) ContactIsUsed(c *gin.Context) {
	var q request.ContactQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	used, err := h.users.ContactIsUsed(c.Request.Context(), q.Contact)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"used": used})
}

// Info 当前用户信息
// @Summary 用户信息
// @Tags Account
// @Security Bearer
// @Success 200 {object} response.Response{data=user.UserInfo}
// @Router /api/v1/account/info [get]
func (h *AccountHandler) Info(c *gin.Context) {
	info, err := h.users.GetUserInfo(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, info)
}

// Logout 注销当前 token
// @Summary 注销
// @Tags Account
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /api/v1/account/logout [post]
func (h *AccountHandler) Logout(c *gin.Context) {
	if err := h.users.Logout(c.Request.Context(), middleware.Token(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
