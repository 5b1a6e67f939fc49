package llm

import "fmt"

// LLMError 大模型调用错误类型
type LLMError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeEmptyPrompt    = 1004 // 空提示词
	ErrCodeServerError    = 1005 // 服务端错误
	ErrCodeEmptyResponse  = 1006 // 模型返回空内容
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey = "invalid or missing API key"
	ErrMsgEmptyPrompt   = "prompt cannot be empty"
)

// NewLLMError 创建大模型错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{
		Code:    code,
		Message: message,
	}
}
