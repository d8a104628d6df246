package routes

import (
	"github.com/gin-gonic/gin"

	"chainless-core/internal/handler"
)

// RegisterAccountRoutes 注册账户模块路由，auth 用于需要登录的接口
func RegisterAccountRoutes(rg *gin.RouterGroup, h *handler.AccountHandler, auth gin.HandlerFunc) {
	g := rg.Group("/account")
	{
		g.POST("/code", h.GetCode)
		g.POST("/register", h.Register)
		g.POST("/login", h.Login)
		g.POST("/login/code", h.LoginByCode)
		g.POST("/password/reset", h.ResetPassword)
		g.GET("/contact/used", h.ContactIsUsed)
	}

	authed := g.Group("", auth)
	{
		authed.GET("/info", h.Info)
		authed.POST("/user/code", h.GetUserCode)
		authed.POST("/logout", h.Logout)
	}
}
