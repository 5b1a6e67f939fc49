package docai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParse 测试OCR结果JSON解析
func TestParse(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		data := []byte(`{
			"text": "hello world",
			"pages": [
				{"layout": {"textAnchor": {"textSegments": [{"startIndex": 0, "endIndex": 5}]}}},
				{"layout": {"textAnchor": {"textSegments": [{"startIndex": 5, "endIndex": 11}]}}}
			]
		}`)

		doc, err := Parse(data)
		require.NoError(t, err)
		require.NotNil(t, doc)

		assert.Equal(t, "hello world", doc.Text)
		assert.Equal(t, 2, doc.PageCount())
		assert.Equal(t, int64(0), doc.Pages[0].Layout.TextAnchor.TextSegments[0].StartIndex)
		assert.Equal(t, int64(5), doc.Pages[0].Layout.TextAnchor.TextSegments[0].EndIndex)
	})

	t.Run("missing nested fields", func(t *testing.T) {
		// 缺失的嵌套字段解析为零值，不报错
		data := []byte(`{"text": "abc", "pages": [{}, {"layout": {}}]}`)

		doc, err := Parse(data)
		require.NoError(t, err)

		assert.Equal(t, 2, doc.PageCount())
		assert.Empty(t, doc.Pages[0].Layout.TextAnchor.TextSegments)
		assert.Empty(t, doc.Pages[1].Layout.TextAnchor.TextSegments)
	})

	t.Run("empty document", func(t *testing.T) {
		doc, err := Parse([]byte(`{}`))
		require.NoError(t, err)

		assert.Equal(t, "", doc.Text)
		assert.Equal(t, 0, doc.PageCount())
	})

	t.Run("invalid json", func(t *testing.T) {
		doc, err := Parse([]byte(`{not json`))
		assert.Error(t, err)
		assert.Nil(t, doc)
	})

	t.Run("nil document page count", func(t *testing.T) {
		var doc *Document
		assert.Equal(t, 0, doc.PageCount())
	})
}
