package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/bookmd/api/middleware"
	"github.com/fyerfyer/bookmd/api/model"
	"github.com/fyerfyer/bookmd/internal/services"
	"github.com/fyerfyer/bookmd/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// EventHandler 处理存储事件通知的API请求
type EventHandler struct {
	pipeline *services.PipelineService // 流水线服务
	queue    taskqueue.Queue           // 任务队列，可选
	logger   *logrus.Logger            // 日志记录器
}

// NewEventHandler 创建新的事件处理器
// queue为nil时只支持同步处理
func NewEventHandler(pipeline *services.PipelineService, queue taskqueue.Queue) *EventHandler {
	return &EventHandler{
		pipeline: pipeline,
		queue:    queue,
		logger:   middleware.GetLogger(),
	}
}

// HandleEvent 处理对象创建事件
// POST /api/events
func (h *EventHandler) HandleEvent(c *gin.Context) {
	var req model.StorageEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid storage event request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的事件请求: "+err.Error(),
		))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"bucket": req.Bucket,
		"name":   req.Name,
		"async":  req.Async,
	}).Info("Received storage event")

	if req.Async {
		h.enqueueEvent(c, &req)
		return
	}

	event := services.TriggerEvent{
		Bucket:      req.Bucket,
		Name:        req.Name,
		Generation:  req.Generation,
		ContentType: req.ContentType,
	}

	result, err := h.pipeline.Process(c.Request.Context(), event)
	if err != nil {
		var malformed *services.MalformedTriggerError
		if errors.As(err, &malformed) {
			c.JSON(http.StatusBadRequest, model.NewErrorResponse(
				http.StatusBadRequest,
				"事件格式错误: "+malformed.Reason,
			))
			return
		}

		h.logger.WithError(err).WithField("name", req.Name).Error("Pipeline run failed")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"处理事件失败: "+err.Error(),
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.EventResponse{
		RunID:        result.RunID,
		Outcome:      string(result.Outcome),
		OutputBucket: result.OutputBucket,
		OutputObject: result.OutputObject,
		PartCount:    result.PartCount,
		ChunkCount:   result.ChunkCount,
		FailedChunks: result.FailedChunks,
		Message:      result.Message,
	}))
}

// enqueueEvent 将事件投递到任务队列异步处理
func (h *EventHandler) enqueueEvent(c *gin.Context, req *model.StorageEventRequest) {
	if h.queue == nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"任务队列未启用，无法异步处理",
		))
		return
	}

	payload := &taskqueue.GenerateMarkdownPayload{
		Bucket:      req.Bucket,
		Name:        req.Name,
		Generation:  req.Generation,
		ContentType: req.ContentType,
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), taskqueue.TaskGenerateMarkdown, req.Name, payload)
	if err != nil {
		h.logger.WithError(err).WithField("name", req.Name).Error("Failed to enqueue event")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"任务入队失败: "+err.Error(),
		))
		return
	}

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(&model.EventQueuedResponse{
		TaskID: taskID,
		Status: string(taskqueue.StatusPending),
	}))
}

// GetTaskStatus 获取异步任务状态
// GET /api/tasks/:id
func (h *EventHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"任务ID不能为空",
		))
		return
	}

	if h.queue == nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"任务队列未启用",
		))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(
				http.StatusNotFound,
				"任务未找到",
			))
			return
		}

		h.logger.WithError(err).WithField("task_id", taskID).Error("Failed to get task")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取任务状态失败: "+err.Error(),
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(task))
}
