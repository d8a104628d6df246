package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chainless-core/pkg/errno"
	"chainless-core/pkg/logger"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response
func Error(c *gin.Context, err error) {
	ErrorWithData(c, err, gin.H{})
}

// ErrorWithData 错误响应同时带上数据，例如链上调用超时时仍返回已提交的管理记录
// token 失效返回 401，设备角色不符返回 403，其余业务错误返回 200 并带错误码
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	code, msg := errno.Decode(err)

	status := http.StatusOK
	switch {
	case errors.Is(err, errno.ErrTokenInvalid):
		status = http.StatusUnauthorized
	case errno.IsAuthorization(err):
		status = http.StatusForbidden
	case code == errno.InternalServerError.Code:
		// 非业务错误不把内部信息返回给客户端
		logger.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
		msg = errno.InternalServerError.Message
	}

	c.JSON(status, Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}

// Abort 用于中间件，写入错误后终止后续 handler
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
