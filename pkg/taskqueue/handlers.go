package taskqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyerfyer/bookmd/internal/services"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// MarkdownTaskHandler Markdown生成任务处理器
// 把队列里的触发事件交给流水线服务执行，并回写任务结果
type MarkdownTaskHandler struct {
	pipeline *services.PipelineService // 流水线服务
	queue    Queue                     // 任务队列
	logger   *logrus.Logger            // 日志记录器
}

// NewMarkdownTaskHandler 创建Markdown生成任务处理器
func NewMarkdownTaskHandler(pipeline *services.PipelineService, queue Queue, logger *logrus.Logger) *MarkdownTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}

	return &MarkdownTaskHandler{
		pipeline: pipeline,
		queue:    queue,
		logger:   logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *MarkdownTaskHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskGenerateMarkdown}
}

// ProcessTask 处理Markdown生成任务
// 流水线的单次运行是完整工作单元，队列层面的重投递只对
// 内部故障有意义；载荷本身不合法时直接放弃重试
func (h *MarkdownTaskHandler) ProcessTask(ctx context.Context, task *Task) error {
	var payload GenerateMarkdownPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("invalid markdown task payload: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"bucket":  payload.Bucket,
		"object":  payload.Name,
	}).Info("Processing markdown generation task")

	result, err := h.pipeline.Process(ctx, services.TriggerEvent{
		Bucket:      payload.Bucket,
		Name:        payload.Name,
		Generation:  payload.Generation,
		ContentType: payload.ContentType,
	})
	if err != nil {
		var malformed *services.MalformedTriggerError
		if errors.As(err, &malformed) {
			// 载荷不合法，重投递不会成功
			return fmt.Errorf("%v: %w", malformed, asynq.SkipRetry)
		}
		return err
	}

	taskResult := &GenerateMarkdownResult{
		RunID:        result.RunID,
		Outcome:      string(result.Outcome),
		OutputBucket: result.OutputBucket,
		OutputObject: result.OutputObject,
		PartCount:    result.PartCount,
		ChunkCount:   result.ChunkCount,
		FailedChunks: result.FailedChunks,
	}

	if err := h.queue.UpdateTaskStatus(ctx, task.ID, StatusCompleted, taskResult, ""); err != nil {
		h.logger.WithError(err).Warn("Failed to record task result")
	}

	return nil
}
