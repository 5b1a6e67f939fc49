package llm

// Response 大模型生成结果
type Response struct {
	Content      string // 生成的文本内容
	Model        string // 实际使用的模型名称
	FinishReason string // 结束原因（如果服务端提供）
	InputTokens  int    // 输入Token数（如果服务端提供）
	OutputTokens int    // 输出Token数（如果服务端提供）
}
