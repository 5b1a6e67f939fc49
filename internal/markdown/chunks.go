package markdown

// DefaultChunkSize 默认每次模型调用处理的页数
const DefaultChunkSize = 10

// PageChunk 半开区间[StartPage, EndPage)的页范围
// StartPage从0开始，EndPage不包含在内
type PageChunk struct {
	StartPage int // 起始页（含）
	EndPage   int // 结束页（不含）
}

// Pages 返回该分块覆盖的页数
func (c PageChunk) Pages() int {
	return c.EndPage - c.StartPage
}

// PlanChunks 把总页数划分为按序排列的页分块
// 返回的分块连续、不重叠，并且恰好覆盖[0, totalPages)；
// chunkSize非正时回退到DefaultChunkSize，保持流水线可用而不是报错
func PlanChunks(totalPages, chunkSize int) []PageChunk {
	if totalPages <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	chunks := make([]PageChunk, 0, (totalPages+chunkSize-1)/chunkSize)
	for start := 0; start < totalPages; start += chunkSize {
		end := start + chunkSize
		if end > totalPages {
			end = totalPages
		}
		chunks = append(chunks, PageChunk{StartPage: start, EndPage: end})
	}

	return chunks
}
