package repository

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/bookmd/internal/database"
	"github.com/fyerfyer/bookmd/internal/models"
	"gorm.io/gorm"
)

// runRepository 流水线运行记录仓储实现
type runRepository struct {
	db *gorm.DB // 数据库连接
}

// NewRunRepository 创建运行记录仓储实例
func NewRunRepository() RunRepository {
	return &runRepository{
		db: database.MustDB(),
	}
}

// NewRunRepositoryWithDB 使用指定的数据库连接创建运行记录仓储实例
func NewRunRepositoryWithDB(db *gorm.DB) RunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepository{
		db: db,
	}
}

// Create 创建运行记录
func (r *runRepository) Create(run *models.PipelineRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}

	return r.db.Create(run).Error
}

// Update 更新运行记录
func (r *runRepository) Update(run *models.PipelineRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}

	return r.db.Save(run).Error
}

// GetByID 根据ID获取运行记录
func (r *runRepository) GetByID(id string) (*models.PipelineRun, error) {
	var run models.PipelineRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 列出运行记录，按开始时间倒序，支持分页和状态筛选
func (r *runRepository) List(offset, limit int, status models.RunStatus) ([]*models.PipelineRun, int64, error) {
	var runs []*models.PipelineRun
	var total int64

	query := r.db.Model(&models.PipelineRun{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count pipeline runs: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("started_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pipeline runs: %w", err)
	}

	return runs, total, nil
}

// GetByTriggerObject 获取某个触发对象最近的运行记录
func (r *runRepository) GetByTriggerObject(bucket, name string) (*models.PipelineRun, error) {
	var run models.PipelineRun
	err := r.db.Where("trigger_bucket = ? AND trigger_object = ?", bucket, name).
		Order("started_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: object %s/%s", ErrRunNotFound, bucket, name)
		}
		return nil, err
	}
	return &run, nil
}
