package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest 设置一个miniredis实例用于测试
// 返回Redis地址和一个清理函数
func setupRedisTest(t *testing.T) (string, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	return mr.Addr(), func() {
		mr.Close()
	}
}

// newTestQueue 创建连接miniredis的队列实例
func newTestQueue(t *testing.T, redisAddr string) *RedisQueue {
	t.Helper()

	cfg := &Config{
		RedisAddr:   redisAddr,
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	}

	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	return queue
}

// TestNewRedisQueue 测试创建Redis队列实例
func TestNewRedisQueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	assert.NotNil(t, queue)

	err := queue.Close()
	assert.NoError(t, err)
}

// TestRedisQueue_Enqueue 测试队列入队功能
func TestRedisQueue_Enqueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()
	payload := &GenerateMarkdownPayload{
		Bucket: "input-bucket",
		Name:   "book_pdf/book-0.json",
	}

	// 测试基本入队
	taskID, err := queue.Enqueue(ctx, TaskGenerateMarkdown, payload.Name, payload)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	// 验证任务已入队
	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskGenerateMarkdown, task.Type)
	assert.Equal(t, "book_pdf/book-0.json", task.TriggerObject)
	assert.Equal(t, StatusPending, task.Status)
	assert.NotNil(t, task.Payload)

	// 载荷可以解回触发事件
	var decoded GenerateMarkdownPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &decoded))
	assert.Equal(t, "input-bucket", decoded.Bucket)
}

// TestRedisQueue_GetTaskNotFound 测试查询不存在的任务
func TestRedisQueue_GetTaskNotFound(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	_, err := queue.GetTask(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

// TestRedisQueue_UpdateTaskStatus 测试任务状态更新
func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()
	payload := &GenerateMarkdownPayload{
		Bucket: "input-bucket",
		Name:   "book_pdf/book-0.json",
	}

	taskID, err := queue.Enqueue(ctx, TaskGenerateMarkdown, payload.Name, payload)
	require.NoError(t, err)

	t.Run("mark processing", func(t *testing.T) {
		err := queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, "")
		require.NoError(t, err)

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, task.Status)
		assert.NotNil(t, task.StartedAt)
	})

	t.Run("mark completed with result", func(t *testing.T) {
		result := &GenerateMarkdownResult{
			RunID:        "run-1",
			Outcome:      "success",
			OutputBucket: "out",
			OutputObject: "book.md",
			PartCount:    2,
			ChunkCount:   3,
		}

		err := queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, "")
		require.NoError(t, err)

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.NotNil(t, task.CompletedAt)

		var decoded GenerateMarkdownResult
		require.NoError(t, UnmarshalPayload(task.Result, &decoded))
		assert.Equal(t, "book.md", decoded.OutputObject)
		assert.Equal(t, 3, decoded.ChunkCount)
	})

	t.Run("mark failed with error", func(t *testing.T) {
		err := queue.UpdateTaskStatus(ctx, taskID, StatusFailed, nil, "storage unavailable")
		require.NoError(t, err)

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, task.Status)
		assert.Equal(t, "storage unavailable", task.Error)
	})

	t.Run("update missing task", func(t *testing.T) {
		err := queue.UpdateTaskStatus(ctx, "no-such-task", StatusCompleted, nil, "")
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

// TestMarshalPayload 测试载荷序列化
func TestMarshalPayload(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		payload := &GenerateMarkdownPayload{Bucket: "b", Name: "n.json"}

		data, err := MarshalPayload(payload)
		require.NoError(t, err)

		var decoded GenerateMarkdownPayload
		require.NoError(t, UnmarshalPayload(data, &decoded))
		assert.Equal(t, *payload, decoded)
	})

	t.Run("nil payload", func(t *testing.T) {
		data, err := MarshalPayload(nil)
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("empty payload rejected on unmarshal", func(t *testing.T) {
		var decoded GenerateMarkdownPayload
		assert.Error(t, UnmarshalPayload(nil, &decoded))
	})
}
