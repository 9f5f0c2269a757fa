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

// poolRepo 是 PoolRepository 的 GORM 实现
type poolRepo struct {
	db *gorm.DB
}

// NewPoolRepo 是 poolRepo 的构造函数
func NewPoolRepo(db *gorm.DB) repository.PoolRepository {
	return &poolRepo{db: db}
}

func (r *poolRepo) Create(ctx context.Context, pool *model.FilePool) error {
	return r.db.WithContext(ctx).Create(pool).Error
}

func (r *poolRepo) FindByID(ctx context.Context, id string) (*model.FilePool, error) {
	var pool model.FilePool
	err := r.db.WithContext(ctx).First(&pool, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrPoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询存储池失败: %w", err)
	}
	return &pool, nil
}

func (r *poolRepo) Update(ctx context.Context, pool *model.FilePool) error {
	return r.db.WithContext(ctx).Save(pool).Error
}

func (r *poolRepo) List(ctx context.Context) ([]*model.FilePool, error) {
	var pools []*model.FilePool
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&pools).Error
	return pools, err
}

func (r *poolRepo) ListRecycleEnabled(ctx context.Context) ([]*model.FilePool, error) {
	var pools []*model.FilePool
	err := r.db.WithContext(ctx).
		Where("recycle_enabled = ?", true).
		Find(&pools).Error
	return pools, err
}

// bundleRepo 是 BundleRepository 的 GORM 实现
type bundleRepo struct {
	db *gorm.DB
}

// NewBundleRepo 是 bundleRepo 的构造函数
func NewBundleRepo(db *gorm.DB) repository.BundleRepository {
	return &bundleRepo{db: db}
}

func (r *bundleRepo) Create(ctx context.Context, bundle *model.FileBundle) error {
	return r.db.WithContext(ctx).Create(bundle).Error
}

func (r *bundleRepo) FindByID(ctx context.Context, id string) (*model.FileBundle, error) {
	var bundle model.FileBundle
	err := r.db.WithContext(ctx).First(&bundle, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文件集合失败: %w", err)
	}
	return &bundle, nil
}

func (r *bundleRepo) FindBySlug(ctx context.Context, slug string) (*model.FileBundle, error) {
	var bundle model.FileBundle
	err := r.db.WithContext(ctx).First(&bundle, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("按短链查询集合失败: %w", err)
	}
	return &bundle, nil
}

func (r *bundleRepo) Update(ctx context.Context, bundle *model.FileBundle) error {
	return r.db.WithContext(ctx).Save(bundle).Error
}

func (r *bundleRepo) HardDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.FileBundle{}, "id = ?", id).Error
}
