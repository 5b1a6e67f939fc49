package repository

import (
	"errors"

	"github.com/fyerfyer/bookmd/internal/models"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("pipeline run not found")

// RunRepository 流水线运行记录仓储接口
type RunRepository interface {
	// Create 创建运行记录
	Create(run *models.PipelineRun) error

	// Update 更新运行记录
	Update(run *models.PipelineRun) error

	// GetByID 根据ID获取运行记录
	GetByID(id string) (*models.PipelineRun, error)

	// List 列出运行记录，支持分页和状态筛选
	List(offset, limit int, status models.RunStatus) ([]*models.PipelineRun, int64, error)

	// GetByTriggerObject 获取某个触发对象最近的运行记录
	GetByTriggerObject(bucket, name string) (*models.PipelineRun, error)
}
