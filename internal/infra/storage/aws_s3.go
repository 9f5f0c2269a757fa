// AWS S3 存储提供者实现（使用 aws-sdk-go-v2），兼容 MinIO、Ceph RGW 等自定义 endpoint。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// AWSS3Provider 实现了 IStorageProvider 接口，用于处理与 AWS S3 的所有交互。
type AWSS3Provider struct {
}

// NewAWSS3Provider 是 AWSS3Provider 的构造函数。
func NewAWSS3Provider() IStorageProvider {
	return &AWSS3Provider{}
}

// getS3Client 根据存储池配置创建 S3 客户端。
// Server 字段可以是区域名（us-west-2）或完整的自定义 endpoint URL。
func (p *AWSS3Provider) getS3Client(ctx context.Context, pool *model.FilePool) (*s3.Client, error) {
	if pool.BucketName == "" {
		return nil, fmt.Errorf("S3 存储池缺少存储桶名称")
	}
	if pool.AccessKey == "" || pool.SecretKey == "" {
		return nil, fmt.Errorf("S3 存储池缺少访问凭证")
	}

	region := "us-east-1"
	var customEndpoint *string
	if pool.Server != "" {
		if strings.HasPrefix(pool.Server, "http") {
			server := pool.Server
			customEndpoint = &server
			if parsedURL, err := url.Parse(server); err == nil && strings.Contains(parsedURL.Host, "amazonaws.com") {
				parts := strings.Split(parsedURL.Host, ".")
				if len(parts) >= 4 && strings.HasPrefix(parts[1], "s3") {
					region = parts[2]
				}
			}
		} else {
			region = pool.Server
		}
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			pool.AccessKey,
			pool.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 S3 配置失败: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if customEndpoint != nil {
			o.BaseEndpoint = aws.String(*customEndpoint)
			o.UsePathStyle = true // 自定义 endpoint 通常需要 path-style
		}
	})
	return client, nil
}

// Put 上传对象到 S3。size 已知时显式设置 ContentLength，
// 避免第三方 S3 兼容服务对分块签名的严格校验报错。
func (p *AWSS3Provider) Put(ctx context.Context, pool *model.FilePool, key string, file io.Reader, size int64) error {
	client, err := p.getS3Client(ctx, pool)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(pool.BucketName),
		Key:    aws.String(key),
		Body:   file,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		log.Printf("[AWS S3] 上传失败: key=%s, err=%v", key, err)
		return fmt.Errorf("%w: 上传到 S3 失败: %v", constant.ErrRemoteUnavailable, err)
	}
	return nil
}

func (p *AWSS3Provider) Get(ctx context.Context, pool *model.FilePool, key string) (io.ReadCloser, error) {
	client, err := p.getS3Client(ctx, pool)
	if err != nil {
		return nil, err
	}

	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(pool.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("从 S3 获取对象失败: %w", err)
	}
	return output.Body, nil
}

func (p *AWSS3Provider) Stat(ctx context.Context, pool *model.FilePool, key string) (*ObjectInfo, error) {
	client, err := p.getS3Client(ctx, pool)
	if err != nil {
		return nil, err
	}

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(pool.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("查询 S3 对象信息失败: %w", err)
	}

	info := &ObjectInfo{}
	if head.ContentLength != nil {
		info.Size = *head.ContentLength
	}
	if head.LastModified != nil {
		info.ModTime = *head.LastModified
	}
	return info, nil
}

// Remove 删除 S3 对象。S3 的 DeleteObject 对不存在的键也返回成功，天然幂等。
func (p *AWSS3Provider) Remove(ctx context.Context, pool *model.FilePool, key string) error {
	client, err := p.getS3Client(ctx, pool)
	if err != nil {
		return err
	}

	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(pool.BucketName),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("删除 S3 对象失败: %w", err)
	}
	return nil
}

// SignedURL 生成 S3 预签名下载链接。
func (p *AWSS3Provider) SignedURL(ctx context.Context, pool *model.FilePool, key string, options SignedURLOptions) (string, error) {
	client, err := p.getS3Client(ctx, pool)
	if err != nil {
		return "", err
	}

	expiresIn := options.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(pool.BucketName),
		Key:    aws.String(key),
	}
	if options.Filename != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf(`attachment; filename="%s"`, options.Filename))
	}

	presignClient := s3.NewPresignClient(client)
	presigned, err := presignClient.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = time.Duration(expiresIn) * time.Second
	})
	if err != nil {
		return "", fmt.Errorf("生成 S3 预签名链接失败: %w", err)
	}
	return presigned.URL, nil
}
