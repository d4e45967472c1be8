package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"Tunehub/config"
	"Tunehub/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// 资源前缀
const (
	PrefixAudio = "songs/audio"
	PrefixImage = "images"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	ByKind       map[string]int64 // audio/image/other -> bytes
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// AssetStore keeps song audio and cover images in a MinIO bucket and hands
// out public URLs for them.
type AssetStore struct {
	client    *minio.Client
	bucket    string
	region    string
	publicURL string
}

// NewAssetStore 创建资源存储
func NewAssetStore(cfg *config.Config) (*AssetStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &AssetStore{
		client:    client,
		bucket:    cfg.MinioBucket,
		region:    cfg.MinioRegion,
		publicURL: PublicBaseURL(cfg),
	}, nil
}

// PublicBaseURL is where objects of the bucket can be fetched from.
// MINIO_PUBLIC_URL wins; otherwise the endpoint itself is used.
func PublicBaseURL(cfg *config.Config) string {
	if cfg.MinioPublicURL != "" {
		return strings.TrimRight(cfg.MinioPublicURL, "/")
	}
	scheme := "http"
	if cfg.MinioUseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.MinioEndpoint, cfg.MinioBucket)
}

// Bucket returns the bucket name.
func (s *AssetStore) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when missing and makes its objects
// publicly readable, since clients stream audio straight from it.
func (s *AssetStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("bucket created", logger.String("bucket", s.bucket))
	}

	if err := s.client.SetBucketPolicy(ctx, s.bucket, readOnlyPolicy(s.bucket)); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}
	return nil
}

func readOnlyPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

// ObjectKey builds "<prefix>/<uuid><ext>" for an uploaded file.
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+ext)
}

// Put uploads one object and returns its public URL.
func (s *AssetStore) Put(ctx context.Context, prefix, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := ObjectKey(prefix, filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	logger.Debug("asset uploaded",
		logger.String("key", key),
		logger.Int64("size", size))
	return s.URL(key), nil
}

// URL returns the public URL of key.
func (s *AssetStore) URL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

// ListObjects 列出前缀下的对象
func (s *AssetStore) ListObjects(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}
	return objects, nil
}

// Stats 获取存储桶统计信息
func (s *AssetStore) Stats(ctx context.Context) (*BucketStats, error) {
	objects, err := s.ListObjects(ctx, "", true)
	if err != nil {
		return nil, err
	}
	return Summarize(objects), nil
}

// Summarize totals a listing.
func Summarize(objects []ObjectInfo) *BucketStats {
	stats := &BucketStats{ByKind: make(map[string]int64)}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		stats.ByKind[InferKind(obj.Key)] += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	return stats
}

// InferKind 从文件名推断资源类型
func InferKind(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3", ".wav", ".flac", ".m4a", ".ogg":
		return "audio"
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	default:
		return "other"
	}
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
