package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound 请求的对象不存在
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore 对象存储接口
// 定义流水线需要的最小对象操作集，可以有不同实现(MinIO、本地文件系统等)
type ObjectStore interface {
	// ReadBytes 读取指定对象的完整内容
	ReadBytes(ctx context.Context, bucket, name string) ([]byte, error)

	// WriteText 以指定content type写入文本对象，覆盖已有对象
	WriteText(ctx context.Context, bucket, name, text, contentType string) error

	// ListNames 列出指定前缀下的所有对象名
	// 列表相对刚完成的写入可能是最终一致的，调用方需要自行容忍
	ListNames(ctx context.Context, bucket, prefix string) ([]string, error)
}
