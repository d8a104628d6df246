package routes

import (
	"github.com/gin-gonic/gin"

	"chainless-core/internal/handler"
)

func RegisterWalletRoutes(rg *gin.RouterGroup, h *handler.WalletHandler, auth gin.HandlerFunc) {
	g := rg.Group("/wallet", auth)
	{
		g.POST("/account", h.CreateAccount)
		g.GET("/strategy", h.GetStrategy)
		g.GET("/need-sig-num", h.NeedSigNum)

		g.POST("/servants", h.AddServant)
		g.DELETE("/servants/:pubkey", h.RemoveServant)
		g.PUT("/servants/:pubkey", h.ReplaceServant)
		g.PUT("/pending-pubkey", h.PutPendingPubkey)
		g.GET("/pending-pubkey", h.PendingPubkeys)

		g.POST("/subaccounts", h.AddSubaccount)
		g.DELETE("/subaccounts/:pubkey", h.RemoveSubaccount)
		g.PUT("/subaccounts/:pubkey/limit", h.UpdateSubaccountLimit)

		g.PUT("/ranks", h.UpdateRanks)
		g.POST("/master/switch", h.SwitchMaster)

		g.GET("/secrets", h.Secrets)
		g.PUT("/security", h.UpdateSecurity)
		g.POST("/secret/saved", h.SecretSaved)
		g.GET("/devices", h.Devices)
		g.GET("/messages", h.Messages)
	}
}
