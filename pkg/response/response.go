package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
)

// Response 是统一的API返回结构体
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// Fail 失败响应
func Fail(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailWithError 根据业务错误类型映射 HTTP 状态码后返回失败响应。
func FailWithError(c *gin.Context, err error) {
	Fail(c, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, constant.ErrNotFound),
		errors.Is(err, constant.ErrPoolNotFound),
		errors.Is(err, constant.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, constant.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, constant.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, constant.ErrPolicyViolation),
		errors.Is(err, constant.ErrIncompleteUpload),
		errors.Is(err, constant.ErrBadRequest),
		errors.Is(err, constant.ErrSignatureInvalid),
		errors.Is(err, constant.ErrInvalidPublicID):
		return http.StatusBadRequest
	case errors.Is(err, constant.ErrInsufficientQuota):
		return http.StatusPaymentRequired
	case errors.Is(err, constant.ErrLinkExpired):
		return http.StatusGone
	case errors.Is(err, constant.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
