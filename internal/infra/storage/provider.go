// 定义了所有存储驱动需要遵守的接口和公共结构
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// ObjectInfo 封装了 Stat 操作返回的物理对象信息。
type ObjectInfo struct {
	Size    int64
	ModTime time.Time
}

// SignedURLOptions 包含生成临时访问链接时可能需要的额外参数
type SignedURLOptions struct {
	PublicID  string // 文件公共ID，用于本地存储签名
	ExpiresIn int64  // 链接有效时长（秒）
	Filename  string // 期望的下载文件名
}

// 定义一个错误，用于表示某个功能不被当前 Provider 支持
var ErrFeatureNotSupported = errors.New("feature not supported by this provider")

// IStorageProvider 定义了所有存储提供者必须实现的接口。
// key 是数据库中记录的存储键（云端为完整对象键，本地为绝对路径）。
type IStorageProvider interface {
	// Put 将文件流写入指定存储池下的 key。
	Put(ctx context.Context, pool *model.FilePool, key string, file io.Reader, size int64) error
	// Get 返回一个可读的文件流，用于服务内部的文件处理，如元数据提取。
	Get(ctx context.Context, pool *model.FilePool, key string) (io.ReadCloser, error)
	// Stat 返回对象的基本信息，对象不存在时返回 constant.ErrNotFound。
	Stat(ctx context.Context, pool *model.FilePool, key string) (*ObjectInfo, error)
	// Remove 删除一个物理对象，对象不存在视为成功。
	Remove(ctx context.Context, pool *model.FilePool, key string) error
	// SignedURL 为对象生成一个临时的、可公开访问的下载链接。
	SignedURL(ctx context.Context, pool *model.FilePool, key string, options SignedURLOptions) (string, error)
}
