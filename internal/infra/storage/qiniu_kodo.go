// 七牛云 Kodo 存储提供者实现
package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/qiniu/go-sdk/v7/auth"
	"github.com/qiniu/go-sdk/v7/storage"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// QiniuKodoProvider 实现了 IStorageProvider 接口，用于处理与七牛云Kodo的所有交互。
type QiniuKodoProvider struct {
}

// NewQiniuKodoProvider 是 QiniuKodoProvider 的构造函数。
func NewQiniuKodoProvider() IStorageProvider {
	return &QiniuKodoProvider{}
}

func (p *QiniuKodoProvider) getCredentials(pool *model.FilePool) (*auth.Credentials, error) {
	if pool.AccessKey == "" || pool.SecretKey == "" {
		return nil, fmt.Errorf("Kodo 存储池缺少访问凭证")
	}
	return auth.New(pool.AccessKey, pool.SecretKey), nil
}

// getCDNDomain 返回外链域名。七牛的下载必须走绑定的 CDN 域名，
// 优先用代理域名配置，其次用 Server 字段。
func (p *QiniuKodoProvider) getCDNDomain(pool *model.FilePool) string {
	domain := pool.ProxyURL
	if domain == "" {
		domain = pool.Server
	}
	return strings.TrimSuffix(domain, "/")
}

func (p *QiniuKodoProvider) Put(ctx context.Context, pool *model.FilePool, key string, file io.Reader, size int64) error {
	mac, err := p.getCredentials(pool)
	if err != nil {
		return err
	}
	if pool.BucketName == "" {
		return fmt.Errorf("Kodo 存储池缺少存储桶名称")
	}

	// scope 带 key 实现覆盖上传语义，重复 Put 幂等
	putPolicy := storage.PutPolicy{
		Scope: fmt.Sprintf("%s:%s", pool.BucketName, key),
	}
	upToken := putPolicy.UploadToken(mac)

	cfg := &storage.Config{UseHTTPS: true}
	formUploader := storage.NewFormUploader(cfg)
	ret := storage.PutRet{}
	putExtra := storage.PutExtra{}

	if err := formUploader.Put(ctx, &ret, upToken, key, file, size, &putExtra); err != nil {
		log.Printf("[七牛云Kodo] 上传失败: key=%s, err=%v", key, err)
		return fmt.Errorf("%w: 上传到 Kodo 失败: %v", constant.ErrRemoteUnavailable, err)
	}
	return nil
}

// Get 通过私有签名链接回源读取对象内容。
func (p *QiniuKodoProvider) Get(ctx context.Context, pool *model.FilePool, key string) (io.ReadCloser, error) {
	signedURL, err := p.SignedURL(ctx, pool, key, SignedURLOptions{ExpiresIn: 600})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("从 Kodo 获取对象失败: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, constant.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("从 Kodo 获取对象失败: 状态码 %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (p *QiniuKodoProvider) Stat(ctx context.Context, pool *model.FilePool, key string) (*ObjectInfo, error) {
	mac, err := p.getCredentials(pool)
	if err != nil {
		return nil, err
	}
	cfg := storage.Config{UseHTTPS: true}
	bucketManager := storage.NewBucketManager(mac, &cfg)

	fileInfo, err := bucketManager.Stat(pool.BucketName, key)
	if err != nil {
		if strings.Contains(err.Error(), "no such file") || strings.Contains(err.Error(), "612") {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("查询 Kodo 对象信息失败: %w", err)
	}
	return &ObjectInfo{
		Size:    fileInfo.Fsize,
		ModTime: time.Unix(0, fileInfo.PutTime*100),
	}, nil
}

func (p *QiniuKodoProvider) Remove(ctx context.Context, pool *model.FilePool, key string) error {
	mac, err := p.getCredentials(pool)
	if err != nil {
		return err
	}
	cfg := storage.Config{UseHTTPS: true}
	bucketManager := storage.NewBucketManager(mac, &cfg)

	if err := bucketManager.Delete(pool.BucketName, key); err != nil {
		if strings.Contains(err.Error(), "no such file") || strings.Contains(err.Error(), "612") {
			return nil
		}
		return fmt.Errorf("删除 Kodo 对象失败: %w", err)
	}
	return nil
}

// SignedURL 生成七牛私有空间签名链接。
func (p *QiniuKodoProvider) SignedURL(ctx context.Context, pool *model.FilePool, key string, options SignedURLOptions) (string, error) {
	mac, err := p.getCredentials(pool)
	if err != nil {
		return "", err
	}
	domain := p.getCDNDomain(pool)
	if domain == "" {
		return "", fmt.Errorf("Kodo 存储池缺少外链域名")
	}

	expiresIn := options.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	deadline := time.Now().Add(time.Duration(expiresIn) * time.Second).Unix()
	return storage.MakePrivateURL(mac, domain, key, deadline), nil
}
