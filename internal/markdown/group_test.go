package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestGroupPrefix 测试逻辑文档组前缀推导
func TestGroupPrefix(t *testing.T) {
	t.Run("nested object", func(t *testing.T) {
		assert.Equal(t, "book.pdf_json/711/0/", GroupPrefix("book.pdf_json/711/0/book-1.json"))
		assert.Equal(t, "processed/sample_pdf/", GroupPrefix("processed/sample_pdf/0.json"))
	})

	t.Run("root object falls back to whole bucket", func(t *testing.T) {
		assert.Equal(t, "", GroupPrefix("book.json"))
	})
}

// TestOrderGroup 测试组内排序
func TestOrderGroup(t *testing.T) {
	t.Run("numeric part order", func(t *testing.T) {
		names := []string{
			"dir/book-10.json",
			"dir/book-2.json",
			"dir/book-0.json",
			"dir/book-1.json",
		}
		ordered := OrderGroup(names)
		assert.Equal(t, []string{
			"dir/book-0.json",
			"dir/book-1.json",
			"dir/book-2.json",
			"dir/book-10.json",
		}, ordered)
	})

	t.Run("parent path takes precedence", func(t *testing.T) {
		names := []string{
			"dir/b/part-0.json",
			"dir/a/part-1.json",
			"dir/a/part-0.json",
		}
		ordered := OrderGroup(names)
		assert.Equal(t, []string{
			"dir/a/part-0.json",
			"dir/a/part-1.json",
			"dir/b/part-0.json",
		}, ordered)
	})

	t.Run("files without index sort first", func(t *testing.T) {
		names := []string{
			"dir/book-1.json",
			"dir/readme.json",
			"dir/book-0.json",
		}
		ordered := OrderGroup(names)
		assert.Equal(t, []string{
			"dir/readme.json",
			"dir/book-0.json",
			"dir/book-1.json",
		}, ordered)
	})

	t.Run("name breaks index ties", func(t *testing.T) {
		names := []string{
			"dir/b-1.json",
			"dir/a-1.json",
		}
		ordered := OrderGroup(names)
		assert.Equal(t, []string{"dir/a-1.json", "dir/b-1.json"}, ordered)
	})

	t.Run("ordering is idempotent", func(t *testing.T) {
		names := []string{
			"dir/book-3.json",
			"dir/book.json",
			"other/book-1.json",
			"dir/book-10.json",
		}
		once := OrderGroup(names)
		twice := OrderGroup(once)
		assert.Equal(t, once, twice)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, OrderGroup(nil))
	})
}

// TestTrailingIndex 测试末尾序号提取
func TestTrailingIndex(t *testing.T) {
	assert.Equal(t, 3, trailingIndex("dir/book-3.json"))
	assert.Equal(t, 0, trailingIndex("dir/0.json"))
	assert.Equal(t, 42, trailingIndex("chapter42.json"))
	assert.Equal(t, -1, trailingIndex("dir/book.json"))
	assert.Equal(t, -1, trailingIndex("dir/book-x.json"))

	// 超长数字串截断在安全值，不会溢出
	assert.Equal(t, 1<<30, trailingIndex("book-99999999999999999999.json"))
}
