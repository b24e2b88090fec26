package service

import (
	"context"
	"time"

	"jizhuanti-go/pkg/storage"
)

// presignedURLExpiry 是导出链接的有效期。
const presignedURLExpiry = 7 * 24 * time.Hour

// minioExporter 把传记 HTML 上传到 MinIO 并生成预签名访问链接。
type minioExporter struct {
	bucketName string
}

// NewMinioExporter 创建基于 MinIO 的 BiographyExporter。
func NewMinioExporter(bucketName string) BiographyExporter {
	return &minioExporter{bucketName: bucketName}
}

// Export 上传对象并返回带有效期的分享链接。
func (e *minioExporter) Export(ctx context.Context, objectName, html string) (string, error) {
	if err := storage.PutHTML(ctx, e.bucketName, objectName, html); err != nil {
		return "", err
	}
	return storage.GetPresignedURL(e.bucketName, objectName, presignedURLExpiry)
}
