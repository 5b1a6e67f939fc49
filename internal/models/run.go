package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus 流水线运行状态类型
type RunStatus string

const (
	// RunStatusProcessing 运行处理中
	RunStatusProcessing RunStatus = "processing"
	// RunStatusSkipped 输入不符合条件，已跳过
	RunStatusSkipped RunStatus = "skipped"
	// RunStatusEmpty 输入有效但没有可提取的内容
	RunStatusEmpty RunStatus = "empty"
	// RunStatusCompleted 运行完成，产物已写出
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed 运行失败
	RunStatusFailed RunStatus = "failed"
)

// PipelineRun 流水线运行记录
// 每个触发事件对应一条记录，用于运维排查，不参与流水线决策
type PipelineRun struct {
	ID            string         `gorm:"primaryKey"`         // 运行ID，主键
	TriggerBucket string         `gorm:"not null"`           // 触发对象所在桶
	TriggerObject string         `gorm:"not null;index"`     // 触发对象名
	Status        RunStatus      `gorm:"not null;index"`     // 运行状态
	OutputBucket  string         `gorm:""`                   // 输出桶
	OutputObject  string         `gorm:""`                   // 输出对象名
	PartCount     int            `gorm:"not null;default:0"` // 读取的分片文件数
	ChunkCount    int            `gorm:"not null;default:0"` // 处理的分块总数
	FailedChunks  int            `gorm:"not null;default:0"` // 转换失败的分块数
	OutputChars   int            `gorm:"not null;default:0"` // 输出字符数
	Error         string         `gorm:"type:text"`          // 错误信息
	Metadata      datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
	StartedAt     time.Time      `gorm:"not null;index"`     // 开始时间
	CompletedAt   *time.Time     `gorm:"index"`              // 结束时间
	UpdatedAt     time.Time      `gorm:"not null"`           // 更新时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (r *PipelineRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (r *PipelineRun) BeforeUpdate(tx *gorm.DB) (err error) {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
