// 腾讯云 COS 存储提供者实现
package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// TencentCOSProvider 实现了 IStorageProvider 接口，用于处理与腾讯云COS的所有交互。
type TencentCOSProvider struct {
}

// NewTencentCOSProvider 是 TencentCOSProvider 的构造函数。
func NewTencentCOSProvider() IStorageProvider {
	return &TencentCOSProvider{}
}

// getCOSClient 获取 COS 客户端。Server 字段存完整的存储桶访问域名。
func (p *TencentCOSProvider) getCOSClient(pool *model.FilePool) (*cos.Client, error) {
	if pool.Server == "" {
		return nil, fmt.Errorf("COS 存储池缺少存储桶域名")
	}
	if pool.AccessKey == "" || pool.SecretKey == "" {
		return nil, fmt.Errorf("COS 存储池缺少访问凭证")
	}

	u, err := url.Parse(pool.Server)
	if err != nil {
		return nil, fmt.Errorf("解析 COS 存储桶域名失败: %w", err)
	}
	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  pool.AccessKey,
			SecretKey: pool.SecretKey,
		},
	})
	return client, nil
}

func (p *TencentCOSProvider) Put(ctx context.Context, pool *model.FilePool, key string, file io.Reader, size int64) error {
	client, err := p.getCOSClient(pool)
	if err != nil {
		return err
	}
	if _, err := client.Object.Put(ctx, key, file, nil); err != nil {
		log.Printf("[腾讯云COS] 上传失败: key=%s, err=%v", key, err)
		return fmt.Errorf("%w: 上传到 COS 失败: %v", constant.ErrRemoteUnavailable, err)
	}
	return nil
}

func (p *TencentCOSProvider) Get(ctx context.Context, pool *model.FilePool, key string) (io.ReadCloser, error) {
	client, err := p.getCOSClient(pool)
	if err != nil {
		return nil, err
	}
	resp, err := client.Object.Get(ctx, key, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("从 COS 获取对象失败: %w", err)
	}
	return resp.Body, nil
}

func (p *TencentCOSProvider) Stat(ctx context.Context, pool *model.FilePool, key string) (*ObjectInfo, error) {
	client, err := p.getCOSClient(pool)
	if err != nil {
		return nil, err
	}
	resp, err := client.Object.Head(ctx, key, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("查询 COS 对象信息失败: %w", err)
	}
	info := &ObjectInfo{Size: resp.ContentLength}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.ModTime = t
		}
	}
	return info, nil
}

func (p *TencentCOSProvider) Remove(ctx context.Context, pool *model.FilePool, key string) error {
	client, err := p.getCOSClient(pool)
	if err != nil {
		return err
	}
	resp, err := client.Object.Delete(ctx, key)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("删除 COS 对象失败: %w", err)
	}
	return nil
}

// SignedURL 生成 COS 预签名下载链接。
func (p *TencentCOSProvider) SignedURL(ctx context.Context, pool *model.FilePool, key string, options SignedURLOptions) (string, error) {
	client, err := p.getCOSClient(pool)
	if err != nil {
		return "", err
	}

	expiresIn := options.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	var opt *cos.PresignedURLOptions
	if options.Filename != "" {
		opt = &cos.PresignedURLOptions{Query: &url.Values{}}
		opt.Query.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, options.Filename))
	}

	presignedURL, err := client.Object.GetPresignedURL(ctx, http.MethodGet, key,
		pool.AccessKey, pool.SecretKey, time.Duration(expiresIn)*time.Second, opt)
	if err != nil {
		return "", fmt.Errorf("生成 COS 预签名链接失败: %w", err)
	}
	return presignedURL.String(), nil
}
