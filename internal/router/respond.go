package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"griff_shop/internal/apperr"
	"griff_shop/internal/identity"
	"griff_shop/internal/middleware"
)

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"code": 0, "data": data})
}

// fail 把 apperr 映射为统一的错误响应：
// {"code": <http status>, "error": <code>, "msg": <message>, ...details}
func (h *handler) fail(c *gin.Context, err error) {
	e := apperr.As(err)
	status := statusOf(e)

	body := gin.H{}
	for k, v := range e.Details {
		body[k] = v
	}
	body["code"] = status
	body["error"] = e.Code
	body["msg"] = e.Message

	fields := []zap.Field{
		zap.String("request_id", middleware.RequestID(c)),
		zap.String("path", c.FullPath()),
		zap.String("error_code", string(e.Code)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
		// 内部错误不向调用方暴露细节
		if e.Kind() == apperr.KindInternal {
			body = gin.H{"code": status, "error": apperr.CodeInternal, "msg": "internal error"}
		}
	} else {
		h.logger.Debug("request rejected", fields...)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func statusOf(e *apperr.Error) int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind() {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindExternal:
		if e.Code == apperr.CodeGatewayMisconfigured {
			return http.StatusInternalServerError
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func invalid(msg string) error {
	return apperr.New(apperr.CodeInvalidInput, msg)
}

// pathID 解析路径中的数字 id。
func pathID(c *gin.Context, name string) (uint, error) {
	id, err := identity.Parse(c.Param(name))
	if err != nil {
		return 0, invalid(name + " must be a positive integer")
	}
	return id.Uint(), nil
}

// caller 由 RequireUser 设置，路由组保证一定存在。
func caller(c *gin.Context) uint {
	uid, _ := middleware.UserID(c)
	return uid
}
