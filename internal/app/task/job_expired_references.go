package task

import (
	"context"
	"log"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

const expiredRefBatchSize = 500

// ExpiredReferencesJob 负责两遍式的引用过期处理：
// 第一遍批量删除已过期的引用行，第二遍检查受影响文件是否还有
// 活跃引用，没有的标记回收。物理清除同样交给 RecyclePurgeJob。
// 引用删除与回收标记都是落库变更，受影响文件的缓存随之作废。
type ExpiredReferencesJob struct {
	refRepo  repository.ReferenceRepository
	fileRepo repository.FileRepository
	cacheSvc utility.CacheService
}

// NewExpiredReferencesJob 是任务的构造函数
func NewExpiredReferencesJob(refRepo repository.ReferenceRepository, fileRepo repository.FileRepository, cacheSvc utility.CacheService) *ExpiredReferencesJob {
	return &ExpiredReferencesJob{
		refRepo:  refRepo,
		fileRepo: fileRepo,
		cacheSvc: cacheSvc,
	}
}

// Run 是 Job 接口要求实现的方法
func (j *ExpiredReferencesJob) Run() {
	ctx := context.Background()
	now := time.Now().UTC()

	totalMarked := int64(0)
	for {
		fileIDs, err := j.refRepo.DeleteExpired(ctx, now, expiredRefBatchSize)
		if err != nil {
			log.Printf("任务 '%s' 删除过期引用失败: %v", j.Name(), err)
			return
		}
		if len(fileIDs) == 0 {
			break
		}
		j.purgeFileCache(ctx, fileIDs)

		// 第二遍只对刚失去引用的文件做判定，不全表扫描
		var orphaned []string
		for _, fileID := range fileIDs {
			active, err := j.refRepo.CountActiveByFile(ctx, fileID, now)
			if err != nil {
				log.Printf("任务 '%s' 统计文件 %s 的活跃引用失败: %v", j.Name(), fileID, err)
				continue
			}
			if active == 0 {
				orphaned = append(orphaned, fileID)
			}
		}
		if len(orphaned) > 0 {
			n, err := j.fileRepo.BulkMarkRecycle(ctx, orphaned)
			if err != nil {
				log.Printf("任务 '%s' 标记回收失败: %v", j.Name(), err)
				return
			}
			totalMarked += n
		}
	}

	if totalMarked > 0 {
		log.Printf("任务 '%s' 执行完毕，标记回收了 %d 个失去全部引用的文件。", j.Name(), totalMarked)
	}
}

// purgeFileCache 作废受影响文件的查询缓存与引用计数缓存
func (j *ExpiredReferencesJob) purgeFileCache(ctx context.Context, fileIDs []string) {
	keys := make([]string, 0, 2*len(fileIDs))
	for _, id := range fileIDs {
		keys = append(keys, "file:"+id, "ref:count:"+id)
	}
	if err := j.cacheSvc.Delete(ctx, keys...); err != nil {
		log.Printf("任务 '%s' 清除文件缓存失败: %v", j.Name(), err)
	}
}

// Name 方法让日志包装器可以打印出更有意义的任务名
func (j *ExpiredReferencesJob) Name() string {
	return "ExpiredReferencesJob"
}
