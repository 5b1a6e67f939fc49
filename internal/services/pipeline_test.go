package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/bookmd/internal/llm"
	"github.com/fyerfyer/bookmd/internal/models"
	"github.com/fyerfyer/bookmd/internal/repository"
	"github.com/fyerfyer/bookmd/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// echoClient 测试用的大模型客户端
// 把提示词中的OCR文本原样包进一个标记块返回，便于断言聚合顺序；
// OCR文本包含failOn时返回错误，用于验证失败收容
type echoClient struct {
	failOn string
	calls  int
}

func (c *echoClient) Generate(_ context.Context, prompt string, _ ...llm.GenerateOption) (*llm.Response, error) {
	c.calls++

	// 提示词以分隔行结尾处开始是OCR正文
	body := prompt
	if idx := strings.LastIndex(prompt, "---\n"); idx >= 0 {
		body = prompt[idx+4:]
	}

	if c.failOn != "" && strings.Contains(body, c.failOn) {
		return nil, errors.New("model unavailable")
	}
	return &llm.Response{Content: "MD[" + body + "]", Model: "echo"}, nil
}

func (c *echoClient) Name() string { return "echo" }
func (c *echoClient) Close() error { return nil }

// memoryRunRepo 测试用的运行记录仓储
type memoryRunRepo struct {
	mu   sync.Mutex
	runs map[string]*models.PipelineRun
}

func newMemoryRunRepo() *memoryRunRepo {
	return &memoryRunRepo{runs: make(map[string]*models.PipelineRun)}
}

func (r *memoryRunRepo) Create(run *models.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

func (r *memoryRunRepo) Update(run *models.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

func (r *memoryRunRepo) GetByID(id string) (*models.PipelineRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok {
		return run, nil
	}
	return nil, fmt.Errorf("pipeline run not found: %s", id)
}

func (r *memoryRunRepo) List(_, _ int, _ models.RunStatus) ([]*models.PipelineRun, int64, error) {
	return nil, 0, nil
}

func (r *memoryRunRepo) GetByTriggerObject(_, _ string) (*models.PipelineRun, error) {
	return nil, errors.New("not implemented")
}

// singlePageDoc 构造一个单页OCR结果JSON，全文即该页内容
func singlePageDoc(text string) string {
	return fmt.Sprintf(`{
		"text": %q,
		"pages": [
			{"layout": {"textAnchor": {"textSegments": [{"startIndex": 0, "endIndex": %d}]}}}
		]
	}`, text, len(text))
}

// newTestPipeline 构建使用本地存储和echo客户端的流水线
func newTestPipeline(t *testing.T, client llm.Client, opts ...PipelineOption) (*PipelineService, *storage.LocalStore) {
	t.Helper()

	store, err := storage.NewLocalStore(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	generator := llm.NewMarkdownGenerator(client)
	pipeline := NewPipelineService(store, generator, opts...)
	return pipeline, store
}

// TestProcessMalformedTrigger 测试缺失必需字段的触发事件
func TestProcessMalformedTrigger(t *testing.T) {
	client := &echoClient{}
	pipeline, _ := newTestPipeline(t, client)
	ctx := context.Background()

	t.Run("missing bucket", func(t *testing.T) {
		_, err := pipeline.Process(ctx, TriggerEvent{Name: "a.json"})
		require.Error(t, err)

		var malformed *MalformedTriggerError
		assert.True(t, errors.As(err, &malformed))
	})

	t.Run("missing object name", func(t *testing.T) {
		_, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in"})
		require.Error(t, err)

		var malformed *MalformedTriggerError
		assert.True(t, errors.As(err, &malformed))
	})
}

// TestProcessSkipsNonInput 测试非输入对象被跳过
func TestProcessSkipsNonInput(t *testing.T) {
	client := &echoClient{}
	pipeline, store := newTestPipeline(t, client)
	ctx := context.Background()

	result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/cover.png"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, 0, client.calls, "跳过的事件不应触发模型调用")

	// 没有任何产物写出
	names, err := store.ListNames(ctx, "bookmd-output", "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

// TestProcessAggregatesGroup 测试多分片文档组的聚合写出
func TestProcessAggregatesGroup(t *testing.T) {
	client := &echoClient{}
	pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"))
	ctx := context.Background()

	// 同组的三个分片乱序写入，外加一个应被忽略的非JSON对象
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/book-1.json", singlePageDoc("Page two."), ""))
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/book-0.json", singlePageDoc("Page one."), ""))
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/book-10.json", singlePageDoc("Page three."), ""))
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/manifest.txt", "not ocr", ""))

	result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/book-0.json"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "out", result.OutputBucket)
	assert.Equal(t, "book.md", result.OutputObject)
	assert.Equal(t, 3, result.PartCount)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, 0, result.FailedChunks)

	data, err := store.ReadBytes(ctx, "out", "book.md")
	require.NoError(t, err)

	// 分片按数字序号聚合，块之间以空行连接
	assert.Equal(t, "MD[Page one.]\n\nMD[Page two.]\n\nMD[Page three.]", string(data))
}

// TestProcessContainsChunkFailure 测试单分块失败被收容为占位块
func TestProcessContainsChunkFailure(t *testing.T) {
	client := &echoClient{failOn: "Page two."}
	pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"))
	ctx := context.Background()

	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/book-0.json", singlePageDoc("Page one."), ""))
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/book-1.json", singlePageDoc("Page two."), ""))
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/book-2.json", singlePageDoc("Page three."), ""))

	result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/book-0.json"})
	require.NoError(t, err)

	// 局部失败不降级整体结果
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, 1, result.FailedChunks)

	data, err := store.ReadBytes(ctx, "out", "book.md")
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "MD[Page one.]")
	assert.Contains(t, content, "> [Error processing chunk 1/1 of book_pdf/book-1.json: model unavailable]")
	assert.Contains(t, content, "MD[Page three.]")
}

// TestProcessEmptyGroup 测试无可提取内容的文档组
func TestProcessEmptyGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("zero pages", func(t *testing.T) {
		client := &echoClient{}
		pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"))

		require.NoError(t, store.WriteText(ctx, "in", "book_pdf/0.json", `{"text": "", "pages": []}`, ""))

		result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
		require.NoError(t, err)

		assert.Equal(t, OutcomeEmpty, result.Outcome)
		assert.Equal(t, 1, result.PartCount)
		assert.Equal(t, 0, client.calls)

		// Empty结果不写出产物
		_, err = store.ReadBytes(ctx, "out", "book.md")
		assert.True(t, errors.Is(err, storage.ErrObjectNotFound))
	})

	t.Run("whitespace only pages skip model calls", func(t *testing.T) {
		client := &echoClient{}
		pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"))

		require.NoError(t, store.WriteText(ctx, "in", "book_pdf/0.json", singlePageDoc("   \n\t "), ""))

		result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
		require.NoError(t, err)

		assert.Equal(t, OutcomeEmpty, result.Outcome)
		assert.Equal(t, 0, result.ChunkCount)
		assert.Equal(t, 0, client.calls, "空白分块不应触发模型调用")
	})
}

// TestProcessMissingTriggerObject 测试列表未见且读取失败的触发对象
func TestProcessMissingTriggerObject(t *testing.T) {
	client := &echoClient{}
	pipeline, _ := newTestPipeline(t, client)
	ctx := context.Background()

	// 触发对象始终被包含进组，读取失败是内部故障而不是跳过
	_, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound))

	var malformed *MalformedTriggerError
	assert.False(t, errors.As(err, &malformed), "内部故障不应归类为客户端错误")
}

// TestProcessCancelledRun 测试取消的运行不写出产物
func TestProcessCancelledRun(t *testing.T) {
	client := &echoClient{}
	pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"))

	require.NoError(t, store.WriteText(context.Background(), "in", "book_pdf/0.json", singlePageDoc("Page one."), ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
	require.Error(t, err)

	// 取消的运行没有对外可见的副作用
	_, err = store.ReadBytes(context.Background(), "out", "book.md")
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound))
}

// TestProcessChunkedDocument 测试多页文档的分块转换
func TestProcessChunkedDocument(t *testing.T) {
	client := &echoClient{}
	pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"), WithChunkSize(2))
	ctx := context.Background()

	// 5页文档，页i的内容为"Pi "
	text := "P0 P1 P2 P3 P4 "
	var pages []string
	for i := 0; i < 5; i++ {
		pages = append(pages, fmt.Sprintf(
			`{"layout": {"textAnchor": {"textSegments": [{"startIndex": %d, "endIndex": %d}]}}}`,
			i*3, (i+1)*3))
	}
	doc := fmt.Sprintf(`{"text": %q, "pages": [%s]}`, text, strings.Join(pages, ","))
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/0.json", doc, ""))

	result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
	require.NoError(t, err)

	// ceil(5/2) = 3个分块
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, 3, client.calls)

	data, err := store.ReadBytes(ctx, "out", "book.md")
	require.NoError(t, err)
	assert.Equal(t, "MD[P0 P1 ]\n\nMD[P2 P3 ]\n\nMD[P4 ]", string(data))
}

// TestProcessRecordsRun 测试运行记录持久化
func TestProcessRecordsRun(t *testing.T) {
	ctx := context.Background()

	t.Run("completed run", func(t *testing.T) {
		client := &echoClient{}
		repo := newMemoryRunRepo()
		pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"), WithRunRepository(repo))

		require.NoError(t, store.WriteText(ctx, "in", "book_pdf/0.json", singlePageDoc("Page one."), ""))

		result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
		require.NoError(t, err)

		run, err := repo.GetByID(result.RunID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, run.Status)
		assert.Equal(t, "book.md", run.OutputObject)
		assert.Equal(t, 1, run.PartCount)
		assert.NotNil(t, run.CompletedAt)
	})

	t.Run("skipped run", func(t *testing.T) {
		client := &echoClient{}
		repo := newMemoryRunRepo()
		pipeline, _ := newTestPipeline(t, client, WithRunRepository(repo))

		result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "cover.png"})
		require.NoError(t, err)

		run, err := repo.GetByID(result.RunID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSkipped, run.Status)
	})

	t.Run("failed run", func(t *testing.T) {
		client := &echoClient{}
		repo := newMemoryRunRepo()
		pipeline, _ := newTestPipeline(t, client, WithRunRepository(repo))

		_, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "missing/0.json"})
		require.Error(t, err)

		// 失败状态通过触发对象可查
		var failed *models.PipelineRun
		for _, run := range repo.runs {
			failed = run
		}
		require.NotNil(t, failed)
		assert.Equal(t, models.RunStatusFailed, failed.Status)
		assert.NotEmpty(t, failed.Error)
	})
}

// TestProcessReprocessOverwrites 测试同一事件重投递覆盖同一输出
func TestProcessReprocessOverwrites(t *testing.T) {
	client := &echoClient{}
	pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"))
	ctx := context.Background()

	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/0.json", singlePageDoc("First version."), ""))

	_, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
	require.NoError(t, err)

	// 输入更新后重投递，输出确定性地落在同一对象
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/0.json", singlePageDoc("Second version."), ""))

	result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
	require.NoError(t, err)
	assert.Equal(t, "book.md", result.OutputObject)

	data, err := store.ReadBytes(ctx, "out", "book.md")
	require.NoError(t, err)
	assert.Equal(t, "MD[Second version.]", string(data))
}

// newSQLiteRunRepo 构建使用内存sqlite的运行记录仓储
func newSQLiteRunRepo(t *testing.T) repository.RunRepository {
	t.Helper()

	dbName := fmt.Sprintf("file:memdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PipelineRun{}))

	return repository.NewRunRepositoryWithDB(db)
}

// TestProcessPreservesRunStartTime 测试最终落库不清零运行开始时间
// 最终更新是整行写入，必须带上预创建记录的开始时间
func TestProcessPreservesRunStartTime(t *testing.T) {
	client := &echoClient{}
	repo := newSQLiteRunRepo(t)
	pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"), WithRunRepository(repo))
	ctx := context.Background()

	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/0.json", singlePageDoc("Page one."), ""))

	result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/0.json"})
	require.NoError(t, err)

	run, err := repo.GetByID(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.False(t, run.StartedAt.IsZero())
	require.NotNil(t, run.CompletedAt)
	assert.False(t, run.CompletedAt.Before(run.StartedAt))
}

// TestProcessRecordsRunMetadata 测试运行记录携带分片清单和失败分块定位
func TestProcessRecordsRunMetadata(t *testing.T) {
	client := &echoClient{failOn: "Page two."}
	repo := newMemoryRunRepo()
	pipeline, store := newTestPipeline(t, client, WithOutputBucket("out"), WithRunRepository(repo))
	ctx := context.Background()

	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/book-0.json", singlePageDoc("Page one."), ""))
	require.NoError(t, store.WriteText(ctx, "in", "book_pdf/book-1.json", singlePageDoc("Page two."), ""))

	result, err := pipeline.Process(ctx, TriggerEvent{Bucket: "in", Name: "book_pdf/book-0.json"})
	require.NoError(t, err)

	run, err := repo.GetByID(result.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, run.Metadata)

	var meta struct {
		Parts        []string `json:"parts"`
		FailedChunks []string `json:"failed_chunks"`
	}
	require.NoError(t, json.Unmarshal(run.Metadata, &meta))
	assert.Equal(t, []string{"book_pdf/book-0.json", "book_pdf/book-1.json"}, meta.Parts)
	assert.Equal(t, []string{"book_pdf/book-1.json#1"}, meta.FailedChunks)
}
