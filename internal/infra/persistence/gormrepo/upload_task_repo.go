package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
)

// uploadTaskRepo 是 UploadTaskRepository 的 GORM 实现
type uploadTaskRepo struct {
	db *gorm.DB
}

// NewUploadTaskRepo 是 uploadTaskRepo 的构造函数
func NewUploadTaskRepo(db *gorm.DB) repository.UploadTaskRepository {
	return &uploadTaskRepo{db: db}
}

func (r *uploadTaskRepo) Create(ctx context.Context, task *model.UploadTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *uploadTaskRepo) FindByID(ctx context.Context, id string) (*model.UploadTask, error) {
	var task model.UploadTask
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, constant.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询上传任务失败: %w", err)
	}
	return &task, nil
}

func (r *uploadTaskRepo) Update(ctx context.Context, task *model.UploadTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *uploadTaskRepo) HardDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.UploadTask{}, "id = ?", id).Error
}

// UpdateStatus 做条件状态迁移：仅当当前状态等于 expect 时写入 next。
// 返回 false 表示任务已被并发请求迁移走，调用方应重读再决策。
func (r *uploadTaskRepo) UpdateStatus(ctx context.Context, id string, expect, next model.UploadTaskStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.UploadTask{}).
		Where("id = ? AND status = ?", id, expect).
		Updates(map[string]interface{}{
			"status":        next,
			"last_activity": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("任务状态迁移失败: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MergeChunks 在事务内做读-改-写的集合并集，避免并发分块确认互相覆盖。
// 进度按并集后的分块数重算，最后活动时间一并刷新。
func (r *uploadTaskRepo) MergeChunks(ctx context.Context, id string, indices []int) (*model.UploadTask, error) {
	var merged *model.UploadTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task model.UploadTask
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&task, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return constant.ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		if task.UploadedChunks == nil {
			task.UploadedChunks = model.ChunkSet{}
		}
		for _, idx := range indices {
			task.UploadedChunks[idx] = true
		}
		if task.ChunksCount > 0 {
			task.Progress = float64(len(task.UploadedChunks)) / float64(task.ChunksCount)
		}
		task.LastActivity = time.Now().UTC()
		if err := tx.Save(&task).Error; err != nil {
			return err
		}
		merged = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (r *uploadTaskRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.UploadTask, error) {
	var tasks []*model.UploadTask
	err := r.db.WithContext(ctx).
		Where("last_activity < ?", cutoff).
		Where("status IN ?", []model.UploadTaskStatus{
			model.TaskStatusPending,
			model.TaskStatusInProgress,
			model.TaskStatusPaused,
		}).
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("扫描滞留上传任务失败: %w", err)
	}
	return tasks, nil
}
