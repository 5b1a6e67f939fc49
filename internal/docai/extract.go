package docai

import "strings"

// ExtractPageRange 提取页范围[startPage, endPage)内的连接文本
// 越界的页范围会被截断到有效区间而不是报错；
// 片段按页序、页内片段序拼接，不插入任何分隔符。
// 片段偏移按OCR服务的定义解释为UTF-8字节偏移，
// 多字节文本（如日文）的片段边界必须落在字符边界上
func ExtractPageRange(doc *Document, startPage, endPage int) string {
	if doc == nil || len(doc.Pages) == 0 {
		return ""
	}

	if startPage < 0 {
		startPage = 0
	}
	if endPage > len(doc.Pages) {
		endPage = len(doc.Pages)
	}

	textLen := int64(len(doc.Text))

	var sb strings.Builder
	for i := startPage; i < endPage; i++ {
		for _, seg := range doc.Pages[i].Layout.TextAnchor.TextSegments {
			s := seg.StartIndex
			e := seg.EndIndex
			// 退化片段与越界偏移都不贡献文本
			if s < 0 {
				s = 0
			}
			if e > textLen {
				e = textLen
			}
			if e > s {
				sb.WriteString(doc.Text[s:e])
			}
		}
	}

	return sb.String()
}
