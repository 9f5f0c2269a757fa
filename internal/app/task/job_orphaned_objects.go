package task

import (
	"context"
	"errors"
	"log"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/file"
)

const orphanObjectBatchSize = 100

// OrphanedObjectsJob 负责清理去重索引中的孤儿对象：
// 没有任何逻辑文件指向的 FileObject 及其物理副本。
// 远端删除是尽力而为，副本删不掉时保留索引行，下轮重试。
type OrphanedObjectsJob struct {
	objectRepo repository.ObjectRepository
	poolRepo   repository.PoolRepository
	factory    file.ProviderResolver
}

// NewOrphanedObjectsJob 是任务的构造函数
func NewOrphanedObjectsJob(objectRepo repository.ObjectRepository, poolRepo repository.PoolRepository, factory file.ProviderResolver) *OrphanedObjectsJob {
	return &OrphanedObjectsJob{
		objectRepo: objectRepo,
		poolRepo:   poolRepo,
		factory:    factory,
	}
}

// Run 是 Job 接口要求实现的方法
func (j *OrphanedObjectsJob) Run() {
	ctx := context.Background()

	objects, err := j.objectRepo.ListOrphanedObjects(ctx, orphanObjectBatchSize)
	if err != nil {
		log.Printf("任务 '%s' 查询孤儿对象失败: %v", j.Name(), err)
		return
	}

	cleaned := 0
	for _, obj := range objects {
		replicas, err := j.objectRepo.ListReplicas(ctx, obj.ID)
		if err != nil {
			log.Printf("任务 '%s' 查询对象 %s 的副本失败: %v", j.Name(), obj.ID, err)
			continue
		}

		allRemoved := true
		for _, replica := range replicas {
			if err := j.removeReplica(ctx, replica); err != nil {
				log.Printf("任务 '%s' 删除副本 %s 失败: %v", j.Name(), replica.ID, err)
				allRemoved = false
			}
		}
		if !allRemoved {
			continue
		}

		if err := j.objectRepo.DeleteReplicasByObject(ctx, obj.ID); err != nil {
			log.Printf("任务 '%s' 删除对象 %s 的副本行失败: %v", j.Name(), obj.ID, err)
			continue
		}
		if err := j.objectRepo.DeleteObject(ctx, obj.ID); err != nil {
			log.Printf("任务 '%s' 删除对象 %s 失败: %v", j.Name(), obj.ID, err)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		log.Printf("任务 '%s' 执行完毕，清理了 %d 个孤儿对象。", j.Name(), cleaned)
	}
}

func (j *OrphanedObjectsJob) removeReplica(ctx context.Context, replica *model.FileReplica) error {
	pool, err := j.poolRepo.FindByID(ctx, replica.PoolID)
	if err != nil {
		if errors.Is(err, constant.ErrPoolNotFound) {
			// 存储池已不存在，字节无从删起，放行索引清理
			return nil
		}
		return err
	}
	provider, err := j.factory.GetProvider(pool)
	if err != nil {
		return err
	}
	return provider.Remove(ctx, pool, replica.StorageKey)
}

// Name 方法让日志包装器可以打印出更有意义的任务名
func (j *OrphanedObjectsJob) Name() string {
	return "OrphanedObjectsJob"
}
