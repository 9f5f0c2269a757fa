package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// LocalProvider 实现了 IStorageProvider 接口，用于处理与本机磁盘文件系统的所有交互。
type LocalProvider struct {
	signingSecret string
}

// NewLocalProvider 是 LocalProvider 的构造函数，接收一个用于URL签名的密钥。
func NewLocalProvider(secret string) IStorageProvider {
	return &LocalProvider{
		signingSecret: secret,
	}
}

// resolvePath 把存储键映射为磁盘路径。池的 BucketName 为根目录，
// 存储键前四个字符展开成两级前缀目录，避免单目录文件数失控。
func (p *LocalProvider) resolvePath(pool *model.FilePool, key string) string {
	root := pool.BucketName
	if root == "" {
		root = "data/uploads"
	}
	if len(key) < 4 {
		return filepath.Join(root, key)
	}
	return filepath.Join(root, key[:2], key[2:4], key)
}

// Put 将文件流写入本机磁盘。先写临时文件再改名，保证目标处不出现半截文件。
func (p *LocalProvider) Put(ctx context.Context, pool *model.FilePool, key string, file io.Reader, size int64) error {
	path := p.resolvePath(pool, key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("无法创建存储目录 '%s': %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".qingyun-put-*.tmp")
	if err != nil {
		return fmt.Errorf("无法创建临时文件: %w", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := io.Copy(tempFile, file); err != nil {
		tempFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("同步文件到磁盘失败: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("移动文件到最终存储位置 '%s' 失败: %w", path, err)
	}
	return nil
}

// Get 实现了从本机磁盘获取文件读取器的逻辑。
func (p *LocalProvider) Get(ctx context.Context, pool *model.FilePool, key string) (io.ReadCloser, error) {
	path := p.resolvePath(pool, key)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: 物理文件不存在: %s", constant.ErrNotFound, path)
		}
		return nil, fmt.Errorf("无法打开物理文件 '%s': %w", path, err)
	}
	return file, nil
}

func (p *LocalProvider) Stat(ctx context.Context, pool *model.FilePool, key string) (*ObjectInfo, error) {
	info, err := os.Stat(p.resolvePath(pool, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, constant.ErrNotFound
		}
		return nil, err
	}
	return &ObjectInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Remove 删除本机上的物理文件，文件已不存在时静默处理。
func (p *LocalProvider) Remove(ctx context.Context, pool *model.FilePool, key string) error {
	path := p.resolvePath(pool, key)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除本地文件 '%s' 失败: %w", path, err)
	}
	return nil
}

// SignedURL 为本地文件生成一个带签名的、有时间限制的临时下载链接。
func (p *LocalProvider) SignedURL(ctx context.Context, pool *model.FilePool, key string, options SignedURLOptions) (string, error) {
	if options.PublicID == "" {
		return "", errors.New("生成本地下载链接需要文件公共ID")
	}
	if p.signingSecret == "" {
		return "", errors.New("签名密钥未提供给LocalProvider")
	}
	expiresIn := options.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600 // 默认1小时
	}
	expires := time.Now().Add(time.Duration(expiresIn) * time.Second).Unix()
	signature := signLocalURL(p.signingSecret, options.PublicID, expires)
	downloadURL := fmt.Sprintf(
		"/api/download/local/%s?expires=%d&sign=%s",
		url.PathEscape(options.PublicID),
		expires,
		url.QueryEscape(signature),
	)
	return downloadURL, nil
}

func signLocalURL(secret, publicID string, expires int64) string {
	stringToSign := fmt.Sprintf("%s:%d", publicID, expires)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stringToSign))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyLocalSignature 校验本地下载链接的签名与时效，供下载接口使用。
func VerifyLocalSignature(secret, publicID, sign string, expires int64) error {
	if time.Now().Unix() > expires {
		return constant.ErrLinkExpired
	}
	expected := signLocalURL(secret, publicID, expires)
	if !hmac.Equal([]byte(expected), []byte(sign)) {
		return constant.ErrSignatureInvalid
	}
	return nil
}
