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

// referenceRepo 是 ReferenceRepository 的 GORM 实现
type referenceRepo struct {
	db *gorm.DB
}

// NewReferenceRepo 是 referenceRepo 的构造函数
func NewReferenceRepo(db *gorm.DB) repository.ReferenceRepository {
	return &referenceRepo{db: db}
}

func (r *referenceRepo) Create(ctx context.Context, ref *model.FileReference) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

func (r *referenceRepo) CreateBatch(ctx context.Context, refs []*model.FileReference) error {
	if len(refs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(refs).Error
}

func (r *referenceRepo) FindByID(ctx context.Context, id string) (*model.FileReference, error) {
	var ref model.FileReference
	err := r.db.WithContext(ctx).First(&ref, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文件引用失败: %w", err)
	}
	return &ref, nil
}

func (r *referenceRepo) ListByFile(ctx context.Context, fileID string) ([]*model.FileReference, error) {
	var refs []*model.FileReference
	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Find(&refs).Error
	return refs, err
}

func (r *referenceRepo) ListByResource(ctx context.Context, resourceID string, usage constant.FileUsage) ([]*model.FileReference, error) {
	var refs []*model.FileReference
	query := r.db.WithContext(ctx).Where("resource_id = ?", resourceID)
	if usage != "" {
		query = query.Where("usage = ?", usage)
	}
	err := query.Find(&refs).Error
	return refs, err
}

func (r *referenceRepo) CountActiveByFile(ctx context.Context, fileID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.FileReference{}).
		Where("file_id = ?", fileID).
		Where("expired_at IS NULL OR expired_at > ?", now).
		Count(&count).Error
	return count, err
}

// DeleteByResource 删除资源名下全部引用，返回受影响文件 ID 去重列表，
// 调用方据此复查各文件是否已无引用。
func (r *referenceRepo) DeleteByResource(ctx context.Context, resourceID string, usage constant.FileUsage) ([]string, error) {
	var fileIDs []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&model.FileReference{}).Where("resource_id = ?", resourceID)
		if usage != "" {
			query = query.Where("usage = ?", usage)
		}
		if err := query.Distinct("file_id").Pluck("file_id", &fileIDs).Error; err != nil {
			return err
		}
		del := tx.Where("resource_id = ?", resourceID)
		if usage != "" {
			del = del.Where("usage = ?", usage)
		}
		return del.Delete(&model.FileReference{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("按资源删除引用失败: %w", err)
	}
	return fileIDs, nil
}

func (r *referenceRepo) DeleteByID(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.FileReference{}, "id = ?", id).Error
}

// DeleteExpired 删除一批已过期引用，返回受影响文件 ID 去重列表。
func (r *referenceRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var fileIDs []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&model.FileReference{}).
			Where("expired_at IS NOT NULL AND expired_at < ?", now).
			Limit(limit).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		err = tx.Model(&model.FileReference{}).
			Where("id IN ?", ids).
			Distinct("file_id").
			Pluck("file_id", &fileIDs).Error
		if err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.FileReference{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("删除过期引用失败: %w", err)
	}
	return fileIDs, nil
}

func (r *referenceRepo) SetExpirationByID(ctx context.Context, id string, expiredAt *time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.FileReference{}).
		Where("id = ?", id).
		Update("expired_at", expiredAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return constant.ErrNotFound
	}
	return nil
}

func (r *referenceRepo) SetExpirationByFile(ctx context.Context, fileID string, expiredAt *time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.FileReference{}).
		Where("file_id = ?", fileID).
		Update("expired_at", expiredAt)
	return result.RowsAffected, result.Error
}
