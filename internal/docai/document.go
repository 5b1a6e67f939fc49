package docai

import (
	"encoding/json"
	"fmt"
)

// Document OCR结果文档
// 对应Document AI输出JSON的顶层结构
type Document struct {
	Text  string `json:"text"`  // 文档全文（所有页共享的扁平文本缓冲区）
	Pages []Page `json:"pages"` // 页列表，按页序排列
}

// Page 单页的版面信息
type Page struct {
	Layout Layout `json:"layout"` // 页级版面
}

// Layout 版面结构，持有文本锚点
type Layout struct {
	TextAnchor TextAnchor `json:"textAnchor"`
}

// TextAnchor 文本锚点
// 通过片段偏移指向Document.Text中的内容
type TextAnchor struct {
	TextSegments []TextSegment `json:"textSegments"`
}

// TextSegment 半开区间[StartIndex, EndIndex)的文本片段
// EndIndex <= StartIndex 的片段视为退化片段，不贡献任何文本
type TextSegment struct {
	StartIndex int64 `json:"startIndex"`
	EndIndex   int64 `json:"endIndex"`
}

// Parse 解析OCR结果JSON
// 缺失的嵌套字段解析为零值（空页、空片段），不视为错误
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ocr document: %w", err)
	}
	return &doc, nil
}

// PageCount 返回文档页数
func (d *Document) PageCount() int {
	if d == nil {
		return 0
	}
	return len(d.Pages)
}
