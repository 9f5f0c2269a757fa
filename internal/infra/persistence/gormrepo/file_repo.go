package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
)

// fileRepo 是 FileRepository 的 GORM 实现
type fileRepo struct {
	db *gorm.DB
}

// NewFileRepo 是 fileRepo 的构造函数
func NewFileRepo(db *gorm.DB) repository.FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Create(ctx context.Context, file *model.File) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *fileRepo) FindByID(ctx context.Context, id string) (*model.File, error) {
	var file model.File
	err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文件失败: %w", err)
	}
	return &file, nil
}

func (r *fileRepo) Update(ctx context.Context, file *model.File) error {
	return r.db.WithContext(ctx).Save(file).Error
}

func (r *fileRepo) HardDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.File{}, "id = ?", id).Error
}

func (r *fileRepo) FindByContentHash(ctx context.Context, hash string) (*model.File, error) {
	var file model.File
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND is_marked_recycle = ?", hash, false).
		Order("created_at ASC").
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("按内容哈希查询失败: %w", err)
	}
	return &file, nil
}

func (r *fileRepo) FindUploadedByHashSize(ctx context.Context, hash string, size int64, excludeID string) (*model.File, error) {
	var file model.File
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND size = ? AND id <> ?", hash, size, excludeID).
		Where("uploaded_at IS NOT NULL AND is_marked_recycle = ?", false).
		Order("created_at ASC").
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("复查已上传的同内容记录失败: %w", err)
	}
	return &file, nil
}

func (r *fileRepo) ListStalledIngest(ctx context.Context, olderThan time.Time, limit int) ([]*model.File, error) {
	var files []*model.File
	err := r.db.WithContext(ctx).Model(&model.File{}).
		Where("uploaded_at IS NULL").
		Where("created_at < ?", olderThan).
		Where("is_marked_recycle = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&files).Error
	return files, err
}

// CountOtherOwners 是共享内容保护的核心查询：
// 除 excludeFileID 外，仍有未过期引用的同 StorageID 逻辑文件数。
func (r *fileRepo) CountOtherOwners(ctx context.Context, storageID, excludeFileID string) (int64, error) {
	var count int64
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&model.File{}).
		Where("storage_id = ? AND id <> ?", storageID, excludeFileID).
		Where("EXISTS (SELECT 1 FROM file_references fr WHERE fr.file_id = files.id AND (fr.expired_at IS NULL OR fr.expired_at > ?))", now).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计共享内容持有者失败: %w", err)
	}
	return count, nil
}

func (r *fileRepo) CountByStorageID(ctx context.Context, storageID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.File{}).
		Where("storage_id = ?", storageID).
		Count(&count).Error
	return count, err
}

// ListUnreferencedKeyset 按主键做键集分页：每页的查询代价恒定，
// 不随扫描深度增长，这是大表回收扫描能跑得动的前提。
func (r *fileRepo) ListUnreferencedKeyset(ctx context.Context, poolIDs []string, olderThan time.Time, afterID string, limit int) ([]*model.File, error) {
	var files []*model.File
	query := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id > ?", afterID).
		Where("created_at < ?", olderThan).
		Where("is_marked_recycle = ?", false).
		Where("NOT EXISTS (SELECT 1 FROM file_references fr WHERE fr.file_id = files.id)")
	if len(poolIDs) > 0 {
		query = query.Where("pool_id IN ?", poolIDs)
	}
	err := query.Order("id ASC").Limit(limit).Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("键集扫描未引用文件失败: %w", err)
	}
	return files, nil
}

func (r *fileRepo) BulkMarkRecycle(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id IN ? AND is_marked_recycle = ?", ids, false).
		Update("is_marked_recycle", true)
	return result.RowsAffected, result.Error
}

func (r *fileRepo) ListMarkedRecycle(ctx context.Context, limit int) ([]*model.File, error) {
	var files []*model.File
	err := r.db.WithContext(ctx).
		Where("is_marked_recycle = ?", true).
		Order("id ASC").
		Limit(limit).
		Find(&files).Error
	return files, err
}

func (r *fileRepo) MarkExpiredRecycle(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.File{}).
		Where("expired_at IS NOT NULL AND expired_at < ? AND is_marked_recycle = ?", now, false).
		Update("is_marked_recycle", true)
	return result.RowsAffected, result.Error
}

func (r *fileRepo) ListIncompleteMeta(ctx context.Context, limit int) ([]*model.File, error) {
	var files []*model.File
	err := r.db.WithContext(ctx).Model(&model.File{}).
		Where("uploaded_at IS NOT NULL").
		Where("content_hash = '' OR size = 0 OR user_meta IS NULL OR user_meta = '' OR user_meta = '{}'").
		Limit(limit).
		Find(&files).Error
	return files, err
}

func (r *fileRepo) ListWithDerivedFlags(ctx context.Context, afterID string, limit int) ([]*model.File, error) {
	var files []*model.File
	err := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id > ?", afterID).
		Where("has_compression = ? OR has_thumbnail = ?", true, true).
		Order("id ASC").
		Limit(limit).
		Find(&files).Error
	return files, err
}

func (r *fileRepo) ListByBundle(ctx context.Context, bundleID string) ([]*model.File, error) {
	var files []*model.File
	err := r.db.WithContext(ctx).
		Where("bundle_id = ?", bundleID).
		Order("created_at ASC").
		Find(&files).Error
	return files, err
}
