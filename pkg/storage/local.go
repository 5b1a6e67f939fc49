package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore 本地文件系统对象存储实现
// 目录充当桶，文件名充当对象名；用于本地开发和测试，
// 对应生产环境之外的存储模拟模式
type LocalStore struct {
	root string // 所有桶目录的根路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 根目录路径
}

// NewLocalStore 创建本地存储实例
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/objects"
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &LocalStore{root: cfg.Path}, nil
}

// ReadBytes 读取指定对象的完整内容
func (s *LocalStore) ReadBytes(_ context.Context, bucket, name string) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(bucket, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s/%s: %w", bucket, name, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, name, err)
	}
	return data, nil
}

// WriteText 写入文本对象，覆盖已有文件
// 本地实现忽略content type，文件内容即对象内容
func (s *LocalStore) WriteText(_ context.Context, bucket, name, text, _ string) error {
	path := s.objectPath(bucket, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write object %s/%s: %w", bucket, name, err)
	}
	return nil
}

// ListNames 列出指定前缀下的所有对象名
func (s *LocalStore) ListNames(_ context.Context, bucket, prefix string) ([]string, error) {
	bucketDir := filepath.Join(s.root, bucket)
	if _, err := os.Stat(bucketDir); os.IsNotExist(err) {
		return nil, nil
	}

	var names []string
	err := filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(bucketDir, path)
		if err != nil {
			return err
		}

		// 对象名始终使用斜杠分隔
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects %s/%s: %w", bucket, prefix, err)
	}

	sort.Strings(names)
	return names, nil
}

// objectPath 计算对象的本地文件路径
func (s *LocalStore) objectPath(bucket, name string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(name))
}
