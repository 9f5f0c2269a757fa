package repository

import (
	"context"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// UploadTaskRepository 定义了分片上传任务的持久化操作。
type UploadTaskRepository interface {
	Create(ctx context.Context, task *model.UploadTask) error
	FindByID(ctx context.Context, id string) (*model.UploadTask, error)
	Update(ctx context.Context, task *model.UploadTask) error
	HardDelete(ctx context.Context, id string) error

	// UpdateStatus 以条件更新推进状态机：仅当当前状态等于 expect 时才写入 next。
	// 返回是否发生了状态切换。
	UpdateStatus(ctx context.Context, id string, expect, next model.UploadTaskStatus) (bool, error)

	// MergeChunks 以读-改-写事务把 indices 并入任务的已上传集合（原子集合并），
	// 并刷新 progress 与 last_activity。两个分片在同一瞬间完成也不会丢更新。
	MergeChunks(ctx context.Context, id string, indices []int) (*model.UploadTask, error)

	// ListStale 返回 last_activity 早于 cutoff 的 InProgress/Pending/Paused 任务。
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.UploadTask, error)
}
