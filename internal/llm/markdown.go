package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/fyerfyer/bookmd/internal/cache"
)

// MarkdownSystemInstruction Markdown整形的固定系统指令
// 为保证产出可复现，该指令随版本固定，不接受运行时输入
const MarkdownSystemInstruction = `You are an expert editor converting OCR text from books into clean, faithful Markdown.

GOAL
- Reconstruct the original content as accurately as possible.
- Improve readability with Markdown structure without changing meaning.

STRICT RULES
- Do NOT summarize.
- Do NOT invent missing content.
- Preserve the original language of the source text.
- If the source text is Japanese, output must be Japanese.
- Fix OCR errors only when the correction is obvious and certain.
- If uncertain, keep the original text as-is.

CLEANUP
- Remove repeated noise such as page numbers, running headers, footers, and watermarks.
- If the same line repeats across pages, keep it only once.

STRUCTURE
- Use headings (#, ##, ###) only when the section structure is clear from the text.
- Preserve paragraph breaks; do not merge unrelated paragraphs.
- Preserve lists (bullets/numbering) and indentation.

TECHNICAL BOOK HANDLING
- Detect code, CLI commands, config files, and logs; wrap them in fenced code blocks.
- Infer the most likely language for the fence (e.g., python, bash, json, yaml, sql, text).
- Preserve code and symbols exactly when possible (punctuation, brackets, quotes, backticks).
- For tables, use Markdown tables if clearly tabular; otherwise keep as preformatted text.

SELF-DEVELOPMENT / NONFICTION HANDLING
- Preserve quotes and emphasized sentences.
- If the author clearly highlights a "key takeaway", keep it prominent using bold or blockquotes.
- Do not add interpretations or commentary.

OUTPUT
- Output valid Markdown only.
- No additional explanations outside the Markdown.
- Do not translate unless the source text itself is translated.`

// ocrTextHeader OCR正文在提示词中的定界标记
const ocrTextHeader = "\n\n--- OCR TEXT ---\n"

// GeneratorConfig Markdown生成器配置
type GeneratorConfig struct {
	Timeout  time.Duration // 单个分块的生成超时时间
	CacheTTL time.Duration // 生成结果的缓存时间
}

// DefaultGeneratorConfig 返回默认生成器配置
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		Timeout:  3 * time.Minute,
		CacheTTL: 24 * time.Hour,
	}
}

// MarkdownGenerator Markdown生成服务
// 封装单个文本分块到Markdown的一次模型调用
type MarkdownGenerator struct {
	client Client           // 大模型客户端
	cache  cache.Cache      // 生成结果缓存（可选）
	config *GeneratorConfig // 配置
}

// GeneratorOption 生成器配置选项函数类型
type GeneratorOption func(*MarkdownGenerator)

// WithGeneratorCache 设置生成结果缓存
// 队列重投递同一文档时，未变化的分块不再重复计费
func WithGeneratorCache(c cache.Cache) GeneratorOption {
	return func(g *MarkdownGenerator) {
		g.cache = c
	}
}

// WithGeneratorTimeout 设置单个分块的生成超时时间
func WithGeneratorTimeout(timeout time.Duration) GeneratorOption {
	return func(g *MarkdownGenerator) {
		if timeout > 0 {
			g.config.Timeout = timeout
		}
	}
}

// NewMarkdownGenerator 创建新的Markdown生成器
func NewMarkdownGenerator(client Client, opts ...GeneratorOption) *MarkdownGenerator {
	g := &MarkdownGenerator{
		client: client,
		config: DefaultGeneratorConfig(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// ToMarkdown 把一个OCR文本分块整形为Markdown
// 成功时返回模型产出（空产出归一化为空字符串）；
// 失败原因以error返回，由调用方决定如何收容
func (g *MarkdownGenerator) ToMarkdown(ctx context.Context, ocrText string) (string, error) {
	if strings.TrimSpace(ocrText) == "" {
		return "", NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	cacheKey := g.cacheKey(ocrText)
	if g.cache != nil {
		if md, found, err := g.cache.Get(cacheKey); err == nil && found {
			return md, nil
		}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := g.client.Generate(ctxWithTimeout, ocrTextHeader+ocrText)
	if err != nil {
		return "", err
	}

	md := resp.Content

	if g.cache != nil && md != "" {
		// 缓存写入失败只影响成本，不影响结果
		_ = g.cache.Set(cacheKey, md, g.config.CacheTTL)
	}

	return md, nil
}

// cacheKey 以模型名和分块内容哈希生成缓存键
func (g *MarkdownGenerator) cacheKey(ocrText string) string {
	sum := sha256.Sum256([]byte(ocrText))
	return cache.GenerateCacheKey("markdown", g.client.Name(), hex.EncodeToString(sum[:]))
}
