package model

import (
	"time"

	"github.com/fyerfyer/bookmd/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// EventResponse 存储事件处理响应
type EventResponse struct {
	RunID        string `json:"run_id"`                  // 处理记录ID
	Outcome      string `json:"outcome"`                 // 处理结果：skipped、empty、success
	OutputBucket string `json:"output_bucket,omitempty"` // 产物所在的桶
	OutputObject string `json:"output_object,omitempty"` // 产物对象路径
	PartCount    int    `json:"part_count"`              // 参与聚合的分片数量
	ChunkCount   int    `json:"chunk_count"`             // 页块总数
	FailedChunks int    `json:"failed_chunks"`           // 转换失败的页块数量
	Message      string `json:"message,omitempty"`       // 附加说明
}

// EventQueuedResponse 异步投递响应
type EventQueuedResponse struct {
	TaskID string `json:"task_id"` // 任务ID
	Status string `json:"status"`  // 任务状态
}

// RunInfo 处理记录信息
type RunInfo struct {
	ID            string     `json:"id"`                      // 处理记录ID
	TriggerBucket string     `json:"trigger_bucket"`          // 触发对象所在的桶
	TriggerObject string     `json:"trigger_object"`          // 触发对象路径
	Status        string     `json:"status"`                  // 处理状态
	OutputBucket  string     `json:"output_bucket,omitempty"` // 产物所在的桶
	OutputObject  string     `json:"output_object,omitempty"` // 产物对象路径
	PartCount     int        `json:"part_count"`              // 分片数量
	ChunkCount    int        `json:"chunk_count"`             // 页块数量
	FailedChunks  int        `json:"failed_chunks"`           // 失败页块数量
	OutputChars   int        `json:"output_chars"`            // 产物字符数
	Error         string     `json:"error,omitempty"`         // 错误信息（如果有）
	StartedAt     time.Time  `json:"started_at"`              // 开始时间
	CompletedAt   *time.Time `json:"completed_at,omitempty"`  // 完成时间
}

// RunListResponse 处理记录列表响应
type RunListResponse struct {
	Total    int       `json:"total"`     // 总数量
	Page     int       `json:"page"`      // 当前页码
	PageSize int       `json:"page_size"` // 每页大小
	Runs     []RunInfo `json:"runs"`      // 记录列表
}

// ConvertToRunInfo 将数据库记录转换为响应信息
func ConvertToRunInfo(run *models.PipelineRun) RunInfo {
	return RunInfo{
		ID:            run.ID,
		TriggerBucket: run.TriggerBucket,
		TriggerObject: run.TriggerObject,
		Status:        string(run.Status),
		OutputBucket:  run.OutputBucket,
		OutputObject:  run.OutputObject,
		PartCount:     run.PartCount,
		ChunkCount:    run.ChunkCount,
		FailedChunks:  run.FailedChunks,
		OutputChars:   run.OutputChars,
		Error:         run.Error,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
}
