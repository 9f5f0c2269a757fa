package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
)

// objectRepo 是 ObjectRepository 的 GORM 实现
type objectRepo struct {
	db *gorm.DB
}

// NewObjectRepo 是 objectRepo 的构造函数
func NewObjectRepo(db *gorm.DB) repository.ObjectRepository {
	return &objectRepo{db: db}
}

func (r *objectRepo) CreateObject(ctx context.Context, obj *model.FileObject) error {
	return r.db.WithContext(ctx).Create(obj).Error
}

func (r *objectRepo) FindObjectByHash(ctx context.Context, hash string) (*model.FileObject, error) {
	var obj model.FileObject
	err := r.db.WithContext(ctx).First(&obj, "content_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("按哈希查询物理对象失败: %w", err)
	}
	return &obj, nil
}

func (r *objectRepo) UpdateObject(ctx context.Context, obj *model.FileObject) error {
	return r.db.WithContext(ctx).Save(obj).Error
}

func (r *objectRepo) DeleteObject(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.FileObject{}, "id = ?", id).Error
}

func (r *objectRepo) CreateReplica(ctx context.Context, replica *model.FileReplica) error {
	return r.db.WithContext(ctx).Create(replica).Error
}

func (r *objectRepo) ListReplicas(ctx context.Context, objectID string) ([]*model.FileReplica, error) {
	var replicas []*model.FileReplica
	err := r.db.WithContext(ctx).
		Where("object_id = ?", objectID).
		Find(&replicas).Error
	return replicas, err
}

func (r *objectRepo) FindPrimaryReplica(ctx context.Context, objectID string) (*model.FileReplica, error) {
	var replica model.FileReplica
	err := r.db.WithContext(ctx).
		Where("object_id = ? AND is_primary = ?", objectID, true).
		First(&replica).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询主副本失败: %w", err)
	}
	return &replica, nil
}

func (r *objectRepo) DeleteReplicasByObject(ctx context.Context, objectID string) error {
	return r.db.WithContext(ctx).
		Where("object_id = ?", objectID).
		Delete(&model.FileReplica{}).Error
}

// ListOrphanedObjects 找出没有任何逻辑文件指向的物理对象，
// 供后台任务清理远端存储与索引行。
func (r *objectRepo) ListOrphanedObjects(ctx context.Context, limit int) ([]*model.FileObject, error) {
	var objects []*model.FileObject
	err := r.db.WithContext(ctx).Model(&model.FileObject{}).
		Where("NOT EXISTS (SELECT 1 FROM files f WHERE f.content_hash = file_objects.content_hash)").
		Limit(limit).
		Find(&objects).Error
	if err != nil {
		return nil, fmt.Errorf("扫描孤儿对象失败: %w", err)
	}
	return objects, nil
}
