// 阿里云 OSS 存储提供者实现
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// AliOSSProvider 实现了 IStorageProvider 接口，用于处理与阿里云OSS的所有交互。
type AliOSSProvider struct {
}

// NewAliOSSProvider 是 AliOSSProvider 的构造函数。
func NewAliOSSProvider() IStorageProvider {
	return &AliOSSProvider{}
}

// getOSSBucket 获取 OSS 客户端与存储桶句柄。Server 字段存 endpoint。
func (p *AliOSSProvider) getOSSBucket(pool *model.FilePool) (*oss.Bucket, error) {
	if pool.Server == "" {
		return nil, fmt.Errorf("OSS 存储池缺少 endpoint")
	}
	if pool.BucketName == "" {
		return nil, fmt.Errorf("OSS 存储池缺少存储桶名称")
	}
	if pool.AccessKey == "" || pool.SecretKey == "" {
		return nil, fmt.Errorf("OSS 存储池缺少访问凭证")
	}

	client, err := oss.New(pool.Server, pool.AccessKey, pool.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("创建 OSS 客户端失败: %w", err)
	}
	bucket, err := client.Bucket(pool.BucketName)
	if err != nil {
		return nil, fmt.Errorf("获取 OSS 存储桶失败: %w", err)
	}
	return bucket, nil
}

func (p *AliOSSProvider) Put(ctx context.Context, pool *model.FilePool, key string, file io.Reader, size int64) error {
	bucket, err := p.getOSSBucket(pool)
	if err != nil {
		return err
	}
	if err := bucket.PutObject(key, file); err != nil {
		log.Printf("[阿里云OSS] 上传失败: key=%s, err=%v", key, err)
		return fmt.Errorf("%w: 上传到 OSS 失败: %v", constant.ErrRemoteUnavailable, err)
	}
	return nil
}

func (p *AliOSSProvider) Get(ctx context.Context, pool *model.FilePool, key string) (io.ReadCloser, error) {
	bucket, err := p.getOSSBucket(pool)
	if err != nil {
		return nil, err
	}
	body, err := bucket.GetObject(key)
	if err != nil {
		if isOSSNotFound(err) {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("从 OSS 获取对象失败: %w", err)
	}
	return body, nil
}

func (p *AliOSSProvider) Stat(ctx context.Context, pool *model.FilePool, key string) (*ObjectInfo, error) {
	bucket, err := p.getOSSBucket(pool)
	if err != nil {
		return nil, err
	}
	exist, err := bucket.IsObjectExist(key)
	if err != nil {
		return nil, fmt.Errorf("查询 OSS 对象信息失败: %w", err)
	}
	if !exist {
		return nil, constant.ErrNotFound
	}
	meta, err := bucket.GetObjectDetailedMeta(key)
	if err != nil {
		return nil, fmt.Errorf("查询 OSS 对象元信息失败: %w", err)
	}
	info := &ObjectInfo{}
	fmt.Sscanf(meta.Get("Content-Length"), "%d", &info.Size)
	return info, nil
}

func (p *AliOSSProvider) Remove(ctx context.Context, pool *model.FilePool, key string) error {
	bucket, err := p.getOSSBucket(pool)
	if err != nil {
		return err
	}
	// OSS 删除不存在的对象返回成功
	if err := bucket.DeleteObject(key); err != nil {
		return fmt.Errorf("删除 OSS 对象失败: %w", err)
	}
	return nil
}

// SignedURL 生成 OSS 签名下载链接；存储池配置了代理域名时替换官方域名。
func (p *AliOSSProvider) SignedURL(ctx context.Context, pool *model.FilePool, key string, options SignedURLOptions) (string, error) {
	bucket, err := p.getOSSBucket(pool)
	if err != nil {
		return "", err
	}

	expiresIn := options.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	var signOptions []oss.Option
	if options.Filename != "" {
		signOptions = append(signOptions, oss.ResponseContentDisposition(fmt.Sprintf(`attachment; filename="%s"`, options.Filename)))
	}

	signedURL, err := bucket.SignURL(key, oss.HTTPGet, expiresIn, signOptions...)
	if err != nil {
		return "", fmt.Errorf("生成 OSS 签名链接失败: %w", err)
	}

	if pool.ProxyURL != "" {
		if idx := strings.Index(signedURL, "?"); idx >= 0 {
			signedURL = strings.TrimSuffix(pool.ProxyURL, "/") + "/" + key + signedURL[idx:]
		}
	}
	return signedURL, nil
}

func isOSSNotFound(err error) bool {
	var serviceErr oss.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.StatusCode == 404
	}
	return false
}
