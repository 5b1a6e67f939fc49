package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskGenerateMarkdown Markdown生成任务
	// 对应一个对象存储触发事件的完整流水线运行
	TaskGenerateMarkdown TaskType = "markdown:generate"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// 任务相关错误
var (
	// ErrTaskNotFound 任务不存在
	ErrTaskNotFound = errors.New("taskqueue: task not found")
	// ErrTaskTimeout 等待任务超时
	ErrTaskTimeout = errors.New("taskqueue: wait for task timed out")
)

// Task 任务基础结构
type Task struct {
	ID            string          `json:"id"`             // 任务唯一标识符
	Type          TaskType        `json:"type"`           // 任务类型
	TriggerObject string          `json:"trigger_object"` // 关联的触发对象名
	Status        TaskStatus      `json:"status"`         // 任务状态
	Payload       json.RawMessage `json:"payload"`        // 任务载荷数据
	Result        json.RawMessage `json:"result"`         // 任务结果数据
	Error         string          `json:"error"`          // 错误信息（如果处理失败）
	CreatedAt     time.Time       `json:"created_at"`     // 创建时间
	UpdatedAt     time.Time       `json:"updated_at"`     // 更新时间
	StartedAt     *time.Time      `json:"started_at"`     // 开始处理时间
	CompletedAt   *time.Time      `json:"completed_at"`   // 完成时间
	Attempts      int             `json:"attempts"`       // 尝试次数
	MaxRetries    int             `json:"max_retries"`    // 最大重试次数
}

// GenerateMarkdownPayload Markdown生成任务载荷
// 即对象存储的触发事件内容
type GenerateMarkdownPayload struct {
	Bucket      string `json:"bucket"`                 // 对象所在桶
	Name        string `json:"name"`                   // 对象名
	Generation  string `json:"generation,omitempty"`   // 对象generation（可选）
	ContentType string `json:"content_type,omitempty"` // 对象content type（可选）
}

// GenerateMarkdownResult Markdown生成任务结果
type GenerateMarkdownResult struct {
	RunID        string `json:"run_id"`                  // 流水线运行ID
	Outcome      string `json:"outcome"`                 // 运行结果: skipped, empty, success
	OutputBucket string `json:"output_bucket,omitempty"` // 输出桶
	OutputObject string `json:"output_object,omitempty"` // 输出对象名
	PartCount    int    `json:"part_count"`              // 读取的分片文件数
	ChunkCount   int    `json:"chunk_count"`             // 处理的分块总数
	FailedChunks int    `json:"failed_chunks"`           // 转换失败的分块数
}

// MarshalPayload 序列化任务载荷
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload 反序列化任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New("taskqueue: empty payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
