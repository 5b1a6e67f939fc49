package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/bookmd/internal/database"
	"github.com/fyerfyer/bookmd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	// 运行迁移以创建所需的表
	err = db.AutoMigrate(&models.PipelineRun{})
	require.NoError(t, err, "Failed to run migrations")

	// 保存原始全局DB引用
	originalDB := database.DB

	// 替换全局DB为测试DB
	database.DB = db

	// 返回测试DB和清理函数
	cleanup := func() {
		database.DB = originalDB
	}

	return db, cleanup
}

// newRun 构造一条测试运行记录
func newRun(id string, status models.RunStatus) *models.PipelineRun {
	return &models.PipelineRun{
		ID:            id,
		TriggerBucket: "in",
		TriggerObject: "book_pdf/" + id + ".json",
		Status:        status,
		StartedAt:     time.Now(),
	}
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository()

	run := newRun("run-1", models.RunStatusProcessing)
	require.NoError(t, repo.Create(run))

	saved, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", saved.ID)
	assert.Equal(t, models.RunStatusProcessing, saved.Status)
	assert.Equal(t, "book_pdf/run-1.json", saved.TriggerObject)

	// 空ID被拒绝
	assert.Error(t, repo.Create(&models.PipelineRun{}))
}

func TestRunRepository_Update(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository()

	run := newRun("run-1", models.RunStatusProcessing)
	require.NoError(t, repo.Create(run))

	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.OutputBucket = "out"
	run.OutputObject = "book.md"
	run.PartCount = 2
	run.ChunkCount = 3
	run.CompletedAt = &now
	require.NoError(t, repo.Update(run))

	saved, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, saved.Status)
	assert.Equal(t, "book.md", saved.OutputObject)
	assert.Equal(t, 3, saved.ChunkCount)
	assert.NotNil(t, saved.CompletedAt)
}

func TestRunRepository_GetByIDNotFound(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository()

	_, err := repo.GetByID("no-such-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestRunRepository_List(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		run := newRun(fmt.Sprintf("run-%d", i), models.RunStatusCompleted)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(run))
	}
	failed := newRun("run-failed", models.RunStatusFailed)
	failed.StartedAt = base.Add(time.Hour)
	require.NoError(t, repo.Create(failed))

	t.Run("all statuses", func(t *testing.T) {
		runs, total, err := repo.List(0, 10, "")
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		assert.Len(t, runs, 6)

		// 按开始时间倒序
		assert.Equal(t, "run-failed", runs[0].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		runs, total, err := repo.List(0, 10, models.RunStatusFailed)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, runs, 1)
		assert.Equal(t, "run-failed", runs[0].ID)
	})

	t.Run("pagination", func(t *testing.T) {
		runs, total, err := repo.List(0, 2, models.RunStatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, runs, 2)

		next, _, err := repo.List(2, 2, models.RunStatusCompleted)
		require.NoError(t, err)
		assert.Len(t, next, 2)
		assert.NotEqual(t, runs[0].ID, next[0].ID)
	})
}

func TestRunRepository_GetByTriggerObject(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository()

	older := &models.PipelineRun{
		ID:            "run-old",
		TriggerBucket: "in",
		TriggerObject: "book_pdf/0.json",
		Status:        models.RunStatusFailed,
		StartedAt:     time.Now().Add(-time.Hour),
	}
	newer := &models.PipelineRun{
		ID:            "run-new",
		TriggerBucket: "in",
		TriggerObject: "book_pdf/0.json",
		Status:        models.RunStatusCompleted,
		StartedAt:     time.Now(),
	}
	require.NoError(t, repo.Create(older))
	require.NoError(t, repo.Create(newer))

	// 同一触发对象返回最近一次运行
	run, err := repo.GetByTriggerObject("in", "book_pdf/0.json")
	require.NoError(t, err)
	assert.Equal(t, "run-new", run.ID)

	_, err = repo.GetByTriggerObject("in", "no/such.json")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
