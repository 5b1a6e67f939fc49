package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/bookmd/api/middleware"
	"github.com/fyerfyer/bookmd/api/model"
	"github.com/fyerfyer/bookmd/internal/models"
	"github.com/fyerfyer/bookmd/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RunHandler 处理运行记录查询的API请求
type RunHandler struct {
	repo   repository.RunRepository // 运行记录仓储
	logger *logrus.Logger           // 日志记录器
}

// NewRunHandler 创建新的运行记录处理器
func NewRunHandler(repo repository.RunRepository) *RunHandler {
	return &RunHandler{
		repo:   repo,
		logger: middleware.GetLogger(),
	}
}

// GetRun 获取单条运行记录
// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	var req model.RunStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"运行记录ID不能为空",
		))
		return
	}

	run, err := h.repo.GetByID(req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(
				http.StatusNotFound,
				"运行记录未找到",
			))
			return
		}

		h.logger.WithError(err).WithField("run_id", req.ID).Error("Failed to get pipeline run")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取运行记录失败: "+err.Error(),
		))
		return
	}

	if run == nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"运行记录未找到",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToRunInfo(run)))
}

// ListRuns 列出运行记录
// GET /api/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	var req model.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的查询参数: "+err.Error(),
		))
		return
	}

	page := req.GetPage()
	pageSize := req.GetPageSize()
	offset := (page - 1) * pageSize

	runs, total, err := h.repo.List(offset, pageSize, models.RunStatus(req.Status))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list pipeline runs")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取运行记录列表失败: "+err.Error(),
		))
		return
	}

	infos := make([]model.RunInfo, 0, len(runs))
	for _, run := range runs {
		infos = append(infos, model.ConvertToRunInfo(run))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.RunListResponse{
		Total:    int(total),
		Page:     page,
		PageSize: pageSize,
		Runs:     infos,
	}))
}
