package repository

import (
	"context"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// PoolRepository 定义了存储池配置的持久化操作。
type PoolRepository interface {
	Create(ctx context.Context, pool *model.FilePool) error
	FindByID(ctx context.Context, id string) (*model.FilePool, error)
	Update(ctx context.Context, pool *model.FilePool) error
	List(ctx context.Context) ([]*model.FilePool, error)

	// ListRecycleEnabled 返回开启回收的存储池，未使用文件标记任务只扫描这些池。
	ListRecycleEnabled(ctx context.Context) ([]*model.FilePool, error)
}

// BundleRepository 定义了文件分享包的持久化操作。
type BundleRepository interface {
	Create(ctx context.Context, bundle *model.FileBundle) error
	FindByID(ctx context.Context, id string) (*model.FileBundle, error)
	FindBySlug(ctx context.Context, slug string) (*model.FileBundle, error)
	Update(ctx context.Context, bundle *model.FileBundle) error
	HardDelete(ctx context.Context, id string) error
}
