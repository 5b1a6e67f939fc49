package markdown

import (
	"path"
	"strings"
)

const (
	// OutputExt 输出Markdown对象的扩展名
	OutputExt = ".md"
	// FallbackName 无法从输入路径导出名称时的兜底名
	FallbackName = "output"

	// groupedJSONDirSuffix 分组JSON目录的历史命名后缀
	// 例如 "book.pdf_json/0.json" -> "book.md"
	groupedJSONDirSuffix = ".pdf_json"
	// pdfDirSuffix PDF派生目录的历史命名后缀
	// 例如 "processed/sample_pdf/0.json" -> "sample.md"
	pdfDirSuffix = "_pdf"
)

// DeriveOutputName 从输入对象名导出规范的输出Markdown名
// 输入命名经历过多代约定，按顺序匹配规则，先命中者生效：
//  1. 任一路径组件以".pdf_json"结尾：去掉该后缀
//  2. 任一路径组件以"_pdf"结尾：去掉该后缀
//  3. 取文件主干名并去掉末尾的"-<数字>"分片序号
//
// 同一逻辑文档的所有分片文件都会折叠到同一个输出名；
// 函数总是返回非空名称，不会失败
func DeriveOutputName(objectName string) string {
	components := strings.Split(objectName, "/")

	for _, c := range components {
		if base, ok := strings.CutSuffix(c, groupedJSONDirSuffix); ok && base != "" {
			return base + OutputExt
		}
	}

	for _, c := range components {
		if base, ok := strings.CutSuffix(c, pdfDirSuffix); ok && base != "" {
			return base + OutputExt
		}
	}

	stem := strings.TrimSuffix(path.Base(objectName), path.Ext(objectName))
	stem = trimPartSuffix(stem)
	if stem == "" || stem == "." || stem == "/" {
		stem = FallbackName
	}
	return stem + OutputExt
}

// trimPartSuffix 去掉主干名末尾的"-<数字>"分片序号
func trimPartSuffix(stem string) string {
	end := len(stem)
	start := end
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == end || start == 0 || stem[start-1] != '-' {
		return stem
	}
	return stem[:start-1]
}
