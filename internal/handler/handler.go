package handler

import (
	"github.com/gin-gonic/gin"

	"chainless-core/internal/handler/response"
	"chainless-core/internal/model"
	"chainless-core/pkg/errno"
	"chainless-core/pkg/validator"
)

// bindError 把参数校验错误翻译成可读信息
func bindError(c *gin.Context, err error) {
	response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
}

// respondRecord 管理操作返回记录，链上调用超时时记录已落库，错误码和记录一起返回
func respondRecord(c *gin.Context, rec *model.WalletManageRecord, err error) {
	if err != nil {
		if rec != nil {
			response.ErrorWithData(c, err, rec)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}
