package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// RedisWorker 基于asynq的任务工作者实现
type RedisWorker struct {
	server   *asynq.Server        // asynq服务端
	mux      *asynq.ServeMux      // 任务类型路由
	queue    Queue                // 任务队列，用于更新任务状态
	handlers map[TaskType]Handler // 注册的处理器
	logger   *logrus.Logger       // 日志记录器
}

// NewRedisWorker 创建Redis任务工作者
func NewRedisWorker(cfg *Config, queue Queue, logger *logrus.Logger) *RedisWorker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return cfg.RetryDelay
			},
		},
	)

	return &RedisWorker{
		server:   server,
		mux:      asynq.NewServeMux(),
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   logger,
	}
}

// RegisterHandler 注册任务处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
	w.mux.HandleFunc(string(taskType), w.processAsynqTask)
	w.logger.Infof("Registered handler for task type: %s", taskType)
}

// Start 启动工作者，开始处理任务
func (w *RedisWorker) Start() error {
	return w.server.Start(w.mux)
}

// Stop 停止工作者
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// processAsynqTask 从asynq载荷还原任务并分发给注册的处理器
func (w *RedisWorker) processAsynqTask(ctx context.Context, asynqTask *asynq.Task) error {
	taskID := string(asynqTask.Payload())

	task, err := w.queue.GetTask(ctx, taskID)
	if err != nil {
		// 任务数据已过期或被删除，重试也无法恢复
		w.logger.WithError(err).WithField("task_id", taskID).Error("Task data not found")
		return fmt.Errorf("task %s: %w", taskID, asynq.SkipRetry)
	}

	handler, ok := w.handlers[task.Type]
	if !ok {
		w.logger.WithField("task_type", task.Type).Error("No handler registered for task type")
		return fmt.Errorf("no handler for task type %s: %w", task.Type, asynq.SkipRetry)
	}

	if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""); err != nil {
		w.logger.WithError(err).Warn("Failed to mark task as processing")
	}

	if err := handler.ProcessTask(ctx, task); err != nil {
		if uerr := w.queue.UpdateTaskStatus(ctx, taskID, StatusFailed, nil, err.Error()); uerr != nil {
			w.logger.WithError(uerr).Warn("Failed to mark task as failed")
		}
		return err
	}

	return nil
}
