package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/bookmd/internal/docai"
	"github.com/fyerfyer/bookmd/internal/llm"
	"github.com/fyerfyer/bookmd/internal/markdown"
	"github.com/fyerfyer/bookmd/internal/models"
	"github.com/fyerfyer/bookmd/internal/repository"
	"github.com/fyerfyer/bookmd/pkg/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// OutputContentType 输出Markdown对象的content type
// 明确charset，避免查看器按环境猜测编码
const OutputContentType = "text/markdown; charset=utf-8"

// TriggerEvent 触发流水线的对象存储事件
type TriggerEvent struct {
	Bucket      string // 对象所在桶
	Name        string // 对象名
	Generation  string // 对象generation（可选）
	ContentType string // 对象content type（可选）
}

// RunOutcome 一次流水线运行的最终结果类型
type RunOutcome string

const (
	// OutcomeSkipped 输入不符合条件，未产生任何副作用
	OutcomeSkipped RunOutcome = "skipped"
	// OutcomeEmpty 整组输入没有可提取的内容，未写出产物
	OutcomeEmpty RunOutcome = "empty"
	// OutcomeSuccess 产物已写出
	OutcomeSuccess RunOutcome = "success"
)

// RunResult 一次流水线运行的结果
type RunResult struct {
	RunID          string     // 运行ID
	Outcome        RunOutcome // 结果类型
	OutputBucket   string     // 输出桶（仅Success）
	OutputObject   string     // 输出对象名（仅Success）
	PartCount      int        // 读取的分片文件数
	ChunkCount     int        // 处理的分块总数
	FailedChunks   int        // 转换失败、以占位块收容的分块数
	Parts          []string   // 按处理顺序排列的分片文件名
	FailedChunkRef []string   // 失败分块的定位信息，形如 part#chunk
	Message        string     // 人类可读的结果说明
}

// MalformedTriggerError 触发事件缺少必需字段
// 属于客户端类错误，重投递同一事件不会成功
type MalformedTriggerError struct {
	Reason string
}

// Error 实现error接口
func (e *MalformedTriggerError) Error() string {
	return "malformed trigger event: " + e.Reason
}

// PipelineService 流水线编排服务
// 负责把一个触发事件编排为：解析文档组、按序分块提取、
// 逐块模型转换、聚合并一次性写出Markdown产物
type PipelineService struct {
	store        storage.ObjectStore      // 对象存储
	generator    *llm.MarkdownGenerator   // Markdown生成器
	repo         repository.RunRepository // 运行记录仓储（可选）
	inputExt     string                   // 合法输入对象的扩展名
	outputBucket string                   // 输出桶
	chunkSize    int                      // 每次模型调用处理的页数
	logger       *logrus.Logger           // 日志记录器
}

// PipelineOption 流水线服务配置选项
type PipelineOption func(*PipelineService)

// NewPipelineService 创建一个新的流水线服务
func NewPipelineService(store storage.ObjectStore, generator *llm.MarkdownGenerator, opts ...PipelineOption) *PipelineService {
	srv := &PipelineService{
		store:        store,
		generator:    generator,
		inputExt:     ".json",
		outputBucket: "bookmd-output",
		chunkSize:    markdown.DefaultChunkSize,
		logger:       logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithOutputBucket 设置输出桶
func WithOutputBucket(bucket string) PipelineOption {
	return func(s *PipelineService) {
		if bucket != "" {
			s.outputBucket = bucket
		}
	}
}

// WithChunkSize 设置每次模型调用处理的页数
func WithChunkSize(size int) PipelineOption {
	return func(s *PipelineService) {
		s.chunkSize = size
	}
}

// WithInputExtension 设置合法输入对象的扩展名
func WithInputExtension(ext string) PipelineOption {
	return func(s *PipelineService) {
		if ext != "" {
			s.inputExt = ext
		}
	}
}

// WithRunRepository 设置运行记录仓储
func WithRunRepository(repo repository.RunRepository) PipelineOption {
	return func(s *PipelineService) {
		s.repo = repo
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(logger *logrus.Logger) PipelineOption {
	return func(s *PipelineService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Process 处理一个触发事件，完成一次完整的流水线运行
//
// 单次调用就是完整的工作单元：内部不重试，出错即终止；
// 同一事件重投递会重新推导相同的输入并确定性地覆盖同一输出。
// 返回值约定：
//   - Skipped/Empty/Success 结果通过RunResult返回，error为nil
//   - 触发数据缺失返回*MalformedTriggerError（客户端类错误）
//   - 其余错误为内部故障（服务端类错误），未提交任何外部写入，可安全重投递
func (s *PipelineService) Process(ctx context.Context, event TriggerEvent) (*RunResult, error) {
	// 1. Resolve: 校验事件并判定输入是否合法
	if event.Bucket == "" {
		return nil, &MalformedTriggerError{Reason: "missing bucket"}
	}
	if event.Name == "" {
		return nil, &MalformedTriggerError{Reason: "missing object name"}
	}

	result := &RunResult{RunID: uuid.New().String()}
	log := s.logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"bucket": event.Bucket,
		"object": event.Name,
	})

	if !strings.HasSuffix(event.Name, s.inputExt) {
		log.Infof("Skipping object without %s extension", s.inputExt)
		result.Outcome = OutcomeSkipped
		result.Message = fmt.Sprintf("object %s is not a %s input", event.Name, s.inputExt)
		s.recordRun(event, result, nil)
		return result, nil
	}

	s.recordRunStart(event, result)
	log.Info("Starting markdown pipeline run")

	// 2. Group: 解析同组分片文件并排序
	parts, err := s.resolveGroup(ctx, event)
	if err != nil {
		s.recordRun(event, result, err)
		return nil, err
	}

	result.Parts = parts
	log.WithField("parts", len(parts)).Info("Resolved document group")

	// 3/4. 逐分片、逐分块提取并转换
	blocks, err := s.transformParts(ctx, parts, event.Bucket, result)
	if err != nil {
		s.recordRun(event, result, err)
		return nil, err
	}

	// 5. Aggregate: 空白结果不写出产物
	final := strings.TrimSpace(strings.Join(blocks, "\n\n"))
	if final == "" {
		log.Warn("No extractable content in document group")
		result.Outcome = OutcomeEmpty
		result.Message = "no content produced from document group"
		s.recordRun(event, result, nil)
		return result, nil
	}

	// 写出是唯一对外可见的副作用，取消的运行不允许部分写入
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("pipeline run cancelled before write: %w", err)
		s.recordRun(event, result, err)
		return nil, err
	}

	// 6. Name & Write: 组内所有分片折叠到同一个规范输出名
	outputName := markdown.DeriveOutputName(event.Name)
	if err := s.store.WriteText(ctx, s.outputBucket, outputName, final, OutputContentType); err != nil {
		err = fmt.Errorf("failed to write markdown artifact: %w", err)
		s.recordRun(event, result, err)
		return nil, err
	}

	result.Outcome = OutcomeSuccess
	result.OutputBucket = s.outputBucket
	result.OutputObject = outputName
	result.Message = fmt.Sprintf("markdown written to %s/%s", s.outputBucket, outputName)
	s.recordRunOutput(event, result, len(final))

	log.WithFields(logrus.Fields{
		"output":        outputName,
		"chunks":        result.ChunkCount,
		"failed_chunks": result.FailedChunks,
	}).Info("Markdown pipeline run completed")

	return result, nil
}

// resolveGroup 计算触发对象所属文档组并返回有序的分片文件名
// 存储列表相对触发事件可能滞后，触发对象始终被包含在组内
func (s *PipelineService) resolveGroup(ctx context.Context, event TriggerEvent) ([]string, error) {
	prefix := markdown.GroupPrefix(event.Name)

	names, err := s.store.ListNames(ctx, event.Bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list document group %s: %w", prefix, err)
	}

	group := make([]string, 0, len(names)+1)
	triggerSeen := false
	for _, name := range names {
		if !strings.HasSuffix(name, s.inputExt) {
			continue
		}
		if name == event.Name {
			triggerSeen = true
		}
		group = append(group, name)
	}
	if !triggerSeen {
		group = append(group, event.Name)
	}

	return markdown.OrderGroup(group), nil
}

// transformParts 按序处理每个分片文件，返回聚合前的Markdown块
// 单个分块的转换失败被收容为占位块，不会中断整组处理
func (s *PipelineService) transformParts(ctx context.Context, parts []string, bucket string, result *RunResult) ([]string, error) {
	var blocks []string

	for _, partName := range parts {
		data, err := s.store.ReadBytes(ctx, bucket, partName)
		if err != nil {
			return nil, fmt.Errorf("failed to read part file %s: %w", partName, err)
		}

		doc, err := docai.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode part file %s: %w", partName, err)
		}

		result.PartCount++

		totalPages := doc.PageCount()
		if totalPages == 0 {
			s.logger.WithField("part", partName).Warn("Part file has no pages, skipping")
			continue
		}

		chunks := markdown.PlanChunks(totalPages, s.chunkSize)
		for idx, chunk := range chunks {
			text := docai.ExtractPageRange(doc, chunk.StartPage, chunk.EndPage)
			// 空白分块不产生模型调用
			if strings.TrimSpace(text) == "" {
				continue
			}

			result.ChunkCount++
			s.logger.WithFields(logrus.Fields{
				"part":  partName,
				"chunk": fmt.Sprintf("%d/%d", idx+1, len(chunks)),
				"pages": fmt.Sprintf("%d-%d", chunk.StartPage+1, chunk.EndPage),
			}).Info("Transforming chunk")

			md, err := s.generator.ToMarkdown(ctx, text)
			if err != nil {
				// 取消的运行立即终止，不写占位块，也不继续计费
				if ctx.Err() != nil {
					return nil, fmt.Errorf("pipeline run cancelled: %w", ctx.Err())
				}

				s.logger.WithError(err).WithFields(logrus.Fields{
					"part":  partName,
					"chunk": idx + 1,
				}).Error("Chunk transformation failed")

				result.FailedChunks++
				result.FailedChunkRef = append(result.FailedChunkRef,
					fmt.Sprintf("%s#%d", partName, idx+1))
				blocks = append(blocks, fmt.Sprintf(
					"> [Error processing chunk %d/%d of %s: %v]",
					idx+1, len(chunks), partName, err))
				continue
			}

			if md != "" {
				blocks = append(blocks, md)
			}
		}
	}

	return blocks, nil
}

// recordRunStart 创建处理中的运行记录
// 记录失败只打日志，不影响流水线
func (s *PipelineService) recordRunStart(event TriggerEvent, result *RunResult) {
	if s.repo == nil {
		return
	}

	run := &models.PipelineRun{
		ID:            result.RunID,
		TriggerBucket: event.Bucket,
		TriggerObject: event.Name,
		Status:        models.RunStatusProcessing,
		StartedAt:     time.Now(),
	}
	if err := s.repo.Create(run); err != nil {
		s.logger.WithError(err).Warn("Failed to create pipeline run record")
	}
}

// recordRun 用最终状态更新运行记录
func (s *PipelineService) recordRun(event TriggerEvent, result *RunResult, runErr error) {
	s.persistRun(event, result, runErr, 0)
}

// recordRunOutput 成功写出产物后更新运行记录
func (s *PipelineService) recordRunOutput(event TriggerEvent, result *RunResult, outputChars int) {
	s.persistRun(event, result, nil, outputChars)
}

// runMetadata 持久化到运行记录Metadata列的内容
type runMetadata struct {
	Parts        []string `json:"parts,omitempty"`         // 按处理顺序排列的分片文件名
	FailedChunks []string `json:"failed_chunks,omitempty"` // 失败分块的定位信息
}

// persistRun 把运行结果写入仓储
func (s *PipelineService) persistRun(event TriggerEvent, result *RunResult, runErr error, outputChars int) {
	if s.repo == nil {
		return
	}

	now := time.Now()
	run := &models.PipelineRun{
		ID:            result.RunID,
		TriggerBucket: event.Bucket,
		TriggerObject: event.Name,
		OutputBucket:  result.OutputBucket,
		OutputObject:  result.OutputObject,
		PartCount:     result.PartCount,
		ChunkCount:    result.ChunkCount,
		FailedChunks:  result.FailedChunks,
		OutputChars:   outputChars,
		CompletedAt:   &now,
	}

	if len(result.Parts) > 0 || len(result.FailedChunkRef) > 0 {
		meta := runMetadata{
			Parts:        result.Parts,
			FailedChunks: result.FailedChunkRef,
		}
		if data, err := json.Marshal(meta); err == nil {
			run.Metadata = datatypes.JSON(data)
		}
	}

	switch {
	case runErr != nil:
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	case result.Outcome == OutcomeSkipped:
		run.Status = models.RunStatusSkipped
	case result.Outcome == OutcomeEmpty:
		run.Status = models.RunStatusEmpty
	default:
		run.Status = models.RunStatusCompleted
	}

	// 跳过的运行没有预创建记录，按存在与否选择写入方式
	// 更新走整行Save，必须带上已有记录的开始时间以免被清零
	var err error
	if existing, getErr := s.repo.GetByID(result.RunID); getErr != nil {
		run.StartedAt = now
		err = s.repo.Create(run)
	} else {
		run.StartedAt = existing.StartedAt
		err = s.repo.Update(run)
	}
	if err != nil {
		s.logger.WithError(err).Warn("Failed to persist pipeline run record")
	}
}
