package repository

import (
	"context"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// FileRepository 定义了逻辑文件的持久化操作。
type FileRepository interface {
	Create(ctx context.Context, file *model.File) error
	FindByID(ctx context.Context, id string) (*model.File, error)
	Update(ctx context.Context, file *model.File) error
	HardDelete(ctx context.Context, id string) error

	// FindByContentHash 返回任意一条内容哈希相同的已有记录，用于去重。
	// 未命中时返回 constant.ErrNotFound。
	FindByContentHash(ctx context.Context, hash string) (*model.File, error)

	// FindUploadedByHashSize 返回哈希与长度都一致、且已完成上传的另一条记录
	// （排除 excludeID 自身），供推送远端前的就近复查使用。
	// 未命中时返回 constant.ErrNotFound。
	FindUploadedByHashSize(ctx context.Context, hash string, size int64, excludeID string) (*model.File, error)

	// ListStalledIngest 返回创建早于 olderThan 且始终未完成上传的文件，
	// 供重分析任务重试或清理（摄取事件可能在总线拥塞时被丢弃）。
	ListStalledIngest(ctx context.Context, olderThan time.Time, limit int) ([]*model.File, error)

	// CountOtherOwners 统计除 excludeFileID 外、仍持有同一 StorageID
	// 且拥有未过期引用的逻辑文件数量。物理删除前的共享内容保护即基于此。
	CountOtherOwners(ctx context.Context, storageID, excludeFileID string) (int64, error)

	// CountByStorageID 统计指向同一物理键的全部逻辑文件数（不考虑引用状态）。
	CountByStorageID(ctx context.Context, storageID string) (int64, error)

	// ListUnreferencedKeyset 按主键升序做键集分页，返回 afterID 之后、创建时间
	// 早于 olderThan、且不存在任何引用行的文件，最多 limit 条。
	ListUnreferencedKeyset(ctx context.Context, poolIDs []string, olderThan time.Time, afterID string, limit int) ([]*model.File, error)

	// BulkMarkRecycle 批量置位 is_marked_recycle，返回受影响行数。
	BulkMarkRecycle(ctx context.Context, ids []string) (int64, error)

	// ListMarkedRecycle 返回已被标记回收的文件，供物理清除任务分批消费。
	ListMarkedRecycle(ctx context.Context, limit int) ([]*model.File, error)

	// MarkExpiredRecycle 将 expired_at 已过期且尚未标记的文件批量置位。
	MarkExpiredRecycle(ctx context.Context, now time.Time) (int64, error)

	// ListIncompleteMeta 返回元数据看起来不完整（缺哈希、零大小或无提取元数据）
	// 的文件，供重分析任务使用。
	ListIncompleteMeta(ctx context.Context, limit int) ([]*model.File, error)

	// ListWithDerivedFlags 按键集分页返回带压缩或缩略图标记的文件，供校验任务使用。
	ListWithDerivedFlags(ctx context.Context, afterID string, limit int) ([]*model.File, error)

	// ListByBundle 返回某个分享包的全部成员文件。
	ListByBundle(ctx context.Context, bundleID string) ([]*model.File, error)
}
