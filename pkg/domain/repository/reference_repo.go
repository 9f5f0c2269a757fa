package repository

import (
	"context"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// ReferenceRepository 定义了文件引用记录的持久化操作。
type ReferenceRepository interface {
	Create(ctx context.Context, ref *model.FileReference) error
	CreateBatch(ctx context.Context, refs []*model.FileReference) error
	FindByID(ctx context.Context, id string) (*model.FileReference, error)

	// ListByFile 返回某个文件的全部引用行。
	ListByFile(ctx context.Context, fileID string) ([]*model.FileReference, error)

	// ListByResource 返回某个资源（可按用途过滤，usage 为空表示全部）的引用行。
	ListByResource(ctx context.Context, resourceID string, usage constant.FileUsage) ([]*model.FileReference, error)

	// CountActiveByFile 统计某个文件未过期的引用数量。
	CountActiveByFile(ctx context.Context, fileID string, now time.Time) (int64, error)

	// DeleteByResource 删除某个资源的引用行（usage 为空表示全部用途），返回受影响的文件 ID。
	DeleteByResource(ctx context.Context, resourceID string, usage constant.FileUsage) ([]string, error)

	// DeleteByID 删除单条引用。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired 批量删除 expired_at 已过期的引用行（第一遍），
	// 返回受影响的去重文件 ID 列表（供第二遍批量查询，避免 N+1）。
	DeleteExpired(ctx context.Context, now time.Time, limit int) ([]string, error)

	// SetExpirationByID 更新单条引用的过期时间，expiry 为 nil 表示永久。
	SetExpirationByID(ctx context.Context, id string, expiry *time.Time) error

	// SetExpirationByFile 更新某个文件全部引用的过期时间，返回受影响行数。
	SetExpirationByFile(ctx context.Context, fileID string, expiry *time.Time) (int64, error)
}
