package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AppError 应用错误结构
type AppError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Code    int    `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// 错误类型定义
const (
	ErrorTypeValidation = "VALIDATION_ERROR"
	ErrorTypeNotFound   = "NOT_FOUND"
	ErrorTypeInternal   = "INTERNAL_ERROR"
	ErrorTypePipeline   = "PIPELINE_ERROR"
)

// NewValidationError 创建验证错误
func NewValidationError(message string, details string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: details,
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部错误
func NewInternalError(message string, details string) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: details,
		Code:    http.StatusInternalServerError,
	}
}

// NewPipelineError 创建流水线处理错误
func NewPipelineError(message string, details string) *AppError {
	return &AppError{
		Type:    ErrorTypePipeline,
		Message: message,
		Details: details,
		Code:    http.StatusInternalServerError,
	}
}

// ErrorMiddleware 错误处理中间件
// 捕获panic并统一处理请求期间产生的错误
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"error": r,
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": &AppError{
						Type:    ErrorTypeInternal,
						Message: "Internal server error",
					},
				})
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			var appErr *AppError
			if e, ok := err.(*AppError); ok {
				appErr = e
			} else {
				appErr = NewInternalError("Internal server error", err.Error())
			}

			traceID, _ := c.Get("TraceID")
			log.WithFields(logrus.Fields{
				"trace_id": traceID,
				"type":     appErr.Type,
				"message":  appErr.Message,
				"details":  appErr.Details,
			}).Error("Request failed")

			c.JSON(appErr.Code, gin.H{"error": appErr})
		}
	}
}

// HandleError 处理请求错误的辅助函数
func HandleError(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}
