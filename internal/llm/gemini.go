package llm

import (
	"context"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient Gemini大模型客户端实现
type GeminiClient struct {
	client      *genai.Client // genai底层客户端
	modelName   string        // 模型名称
	timeout     time.Duration // 单次请求超时时间
	maxTokens   int           // 最大生成Token数
	temperature float32       // 采样温度
	instruction string        // 固定的系统指令
}

// NewGeminiClient 创建新的Gemini客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, NewLLMError(ErrCodeNetworkError, "failed to create gemini client: "+err.Error())
	}

	return &GeminiClient{
		client:      client,
		modelName:   cfg.Model,
		timeout:     cfg.Timeout,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		instruction: cfg.SystemInstruction,
	}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return c.modelName
}

// Close 关闭底层genai连接
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Generate 根据提示词生成文本
func (c *GeminiClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	model := c.client.GenerativeModel(c.modelName)
	if c.instruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(c.instruction)},
		}
	}

	maxTokens := c.maxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	temperature := c.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	model.SetTemperature(temperature)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, NewLLMError(ErrCodeServerError, "gemini generation failed: "+err.Error())
	}

	if len(resp.Candidates) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, "gemini returned no candidates")
	}

	result := &Response{
		Model: c.modelName,
	}

	candidate := resp.Candidates[0]
	result.FinishReason = candidate.FinishReason.String()
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				result.Content += string(text)
			}
		}
	}

	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return result, nil
}

// 在包初始化时注册Gemini客户端
func init() {
	RegisterClient("gemini", NewGeminiClient)
}
