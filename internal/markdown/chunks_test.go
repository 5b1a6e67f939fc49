package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPlanChunks 测试页分块规划
func TestPlanChunks(t *testing.T) {
	t.Run("exact multiple", func(t *testing.T) {
		chunks := PlanChunks(20, 10)
		require.Len(t, chunks, 2)
		assert.Equal(t, PageChunk{StartPage: 0, EndPage: 10}, chunks[0])
		assert.Equal(t, PageChunk{StartPage: 10, EndPage: 20}, chunks[1])
	})

	t.Run("final chunk is partial", func(t *testing.T) {
		chunks := PlanChunks(25, 10)
		require.Len(t, chunks, 3)
		assert.Equal(t, PageChunk{StartPage: 0, EndPage: 10}, chunks[0])
		assert.Equal(t, PageChunk{StartPage: 10, EndPage: 20}, chunks[1])
		assert.Equal(t, PageChunk{StartPage: 20, EndPage: 25}, chunks[2])
		assert.Equal(t, 5, chunks[2].Pages())
	})

	t.Run("fewer pages than chunk size", func(t *testing.T) {
		chunks := PlanChunks(3, 10)
		require.Len(t, chunks, 1)
		assert.Equal(t, PageChunk{StartPage: 0, EndPage: 3}, chunks[0])
	})

	t.Run("no pages", func(t *testing.T) {
		assert.Nil(t, PlanChunks(0, 10))
		assert.Nil(t, PlanChunks(-5, 10))
	})

	t.Run("non-positive chunk size falls back to default", func(t *testing.T) {
		chunks := PlanChunks(DefaultChunkSize+1, 0)
		require.Len(t, chunks, 2)
		assert.Equal(t, DefaultChunkSize, chunks[0].Pages())

		chunks = PlanChunks(DefaultChunkSize+1, -7)
		require.Len(t, chunks, 2)
	})

	t.Run("chunks exactly cover page range", func(t *testing.T) {
		// 分块连续、不重叠，恰好覆盖所有页
		for _, tc := range []struct{ pages, size int }{
			{1, 1}, {7, 3}, {100, 10}, {99, 10}, {10, 100},
		} {
			chunks := PlanChunks(tc.pages, tc.size)
			require.NotEmpty(t, chunks)

			assert.Equal(t, 0, chunks[0].StartPage)
			assert.Equal(t, tc.pages, chunks[len(chunks)-1].EndPage)
			for i := 1; i < len(chunks); i++ {
				assert.Equal(t, chunks[i-1].EndPage, chunks[i].StartPage)
			}
		}
	})
}
