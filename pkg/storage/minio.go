package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore MinIO对象存储实现
type MinioStore struct {
	client *minio.Client // MinIO客户端
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
}

// NewMinioStore 创建MinIO存储实例
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioStore{client: client}, nil
}

// ReadBytes 读取指定对象的完整内容
func (s *MinioStore) ReadBytes(ctx context.Context, bucket, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, fmt.Errorf("object %s/%s: %w", bucket, name, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, name, err)
	}

	return data, nil
}

// WriteText 以指定content type写入文本对象
// 写入已存在的对象名时直接覆盖，保证重投递的幂等性
func (s *MinioStore) WriteText(ctx context.Context, bucket, name, text, contentType string) error {
	// 输出桶不存在时自动创建
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	reader := strings.NewReader(text)
	_, err = s.client.PutObject(ctx, bucket, name, reader, int64(len(text)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, name, err)
	}

	return nil
}

// ListNames 列出指定前缀下的所有对象名
func (s *MinioStore) ListNames(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string

	objectCh := s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects %s/%s: %w", bucket, prefix, object.Err)
		}
		names = append(names, object.Key)
	}

	return names, nil
}
