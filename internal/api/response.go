package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"talentCorner/internal/api/middleware"
	"talentCorner/internal/errcode"
)

// respondError 按统一约定输出错误：4xxx 原样返回消息，5xxx 记录原因并脱敏。
func respondError(c *gin.Context, err error) {
	code := errcode.CodeOf(err)
	log := middleware.LoggerFromContext(c)
	middleware.SetErrorCode(c, code)
	if code >= errcode.SystemError {
		log.Error("request failed", slog.Int("code", code), slog.Any("error", err))
	} else {
		log.Info("request rejected", slog.Int("code", code), slog.String("reason", err.Error()))
	}
	c.AbortWithStatusJSON(errcode.HTTPStatus(code), gin.H{
		"success": false,
		"error":   errcode.MessageOf(err),
		"code":    code,
	})
}

// bindError turns a gin binding failure into a validation error with a readable message.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return errcode.NewValidation(verrs[0].Field() + " is required.")
	}
	return errcode.Wrap(errcode.Validation, "Invalid request body.", err)
}

// rejectOK answers 200 with success=false for outcomes that are not errors.
func rejectOK(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"success": false, "message": msg, "error": msg})
}

func ok(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func unauthorized(c *gin.Context) {
	respondError(c, errcode.New(errcode.Unauthorized, "unauthorized"))
}
