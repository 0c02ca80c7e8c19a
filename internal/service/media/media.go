// Package media 提供对象存储访问（MinIO）
package media

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ashwinyue/gptbundle/internal/config"
)

// 对象键命名空间：上传先进 temp/，消息落库时迁移到 permanent/
const (
	TempPrefix      = "temp/"
	PermanentPrefix = "permanent/"
)

// Service 媒体存储服务
type Service struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
}

// New 创建媒体存储服务；bucket 不存在时自动创建
func New(ctx context.Context, cfg *config.StorageConfig) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	ttl := time.Duration(cfg.PresignTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Service{
		client:     client,
		bucket:     cfg.Bucket,
		presignTTL: ttl,
	}, nil
}

// Upload 上传对象；底层存储错误原样向上传播
func (s *Service) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// PresignedURL 生成限时读取 URL；不校验对象是否存在
func (s *Service) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Move 复制后删除源对象
// 两步不是原子的：中途崩溃可能留下两份拷贝，复制幂等所以重试安全
func (s *Service) Move(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", srcKey, dstKey, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, srcKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove source %s: %w", srcKey, err)
	}
	return nil
}

// DeleteMany 批量删除对象，尽力而为；空输入直接返回
func (s *Service) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var firstErr error
	for result := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			log.Printf("failed to delete object %s: %v", result.ObjectName, result.Err)
			if firstErr == nil {
				firstErr = result.Err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("failed to delete objects: %w", firstErr)
	}
	return nil
}

// TempKey 为上传生成临时命名空间下的对象键
func TempKey(owner, filename string) string {
	ext := filepath.Ext(filename)
	return fmt.Sprintf("%s%s/%s%s", TempPrefix, owner, uuid.New().String(), ext)
}

// PermanentKey 把临时键映射到永久命名空间
func PermanentKey(key string) string {
	return strings.Replace(key, TempPrefix, PermanentPrefix, 1)
}

// GeneratedKey 为模型生成的图像分配永久键
func GeneratedKey() string {
	return PermanentPrefix + "generated/" + uuid.New().String() + ".png"
}
