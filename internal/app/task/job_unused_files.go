package task

import (
	"context"
	"log"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

const (
	// 创建后超过该时长仍无任何引用的文件才会被标记回收
	unusedFileGrace = 30 * 24 * time.Hour
	markBatchSize   = 500
)

// UnusedFilesJob 负责标记回收长期无引用的文件。
// 只扫描开启了回收的存储池；显式 expired_at 已过的文件一并标记。
// 该任务只做标记，物理清除由 RecyclePurgeJob 执行。
type UnusedFilesJob struct {
	fileRepo repository.FileRepository
	poolRepo repository.PoolRepository
	cacheSvc utility.CacheService
}

// NewUnusedFilesJob 是任务的构造函数
func NewUnusedFilesJob(fileRepo repository.FileRepository, poolRepo repository.PoolRepository, cacheSvc utility.CacheService) *UnusedFilesJob {
	return &UnusedFilesJob{
		fileRepo: fileRepo,
		poolRepo: poolRepo,
		cacheSvc: cacheSvc,
	}
}

// Run 是 Job 接口要求实现的方法
func (j *UnusedFilesJob) Run() {
	ctx := context.Background()
	now := time.Now().UTC()

	pools, err := j.poolRepo.ListRecycleEnabled(ctx)
	if err != nil {
		log.Printf("任务 '%s' 查询回收池失败: %v", j.Name(), err)
		return
	}
	if len(pools) > 0 {
		poolIDs := make([]string, 0, len(pools))
		for _, p := range pools {
			poolIDs = append(poolIDs, p.ID)
		}

		olderThan := now.Add(-unusedFileGrace)
		marked := int64(0)
		afterID := ""
		for {
			files, err := j.fileRepo.ListUnreferencedKeyset(ctx, poolIDs, olderThan, afterID, markBatchSize)
			if err != nil {
				log.Printf("任务 '%s' 扫描无引用文件失败: %v", j.Name(), err)
				break
			}
			if len(files) == 0 {
				break
			}
			ids := make([]string, 0, len(files))
			for _, f := range files {
				ids = append(ids, f.ID)
			}
			n, err := j.fileRepo.BulkMarkRecycle(ctx, ids)
			if err != nil {
				log.Printf("任务 '%s' 标记回收失败: %v", j.Name(), err)
				break
			}
			marked += n
			// 回收标记是落库变更，作废受影响文件的查询缓存
			keys := make([]string, 0, len(ids))
			for _, id := range ids {
				keys = append(keys, "file:"+id)
			}
			if err := j.cacheSvc.Delete(ctx, keys...); err != nil {
				log.Printf("任务 '%s' 清除文件缓存失败: %v", j.Name(), err)
			}
			afterID = files[len(files)-1].ID
			if len(files) < markBatchSize {
				break
			}
		}
		if marked > 0 {
			log.Printf("任务 '%s' 标记了 %d 个长期无引用的文件。", j.Name(), marked)
		}
	}

	expired, err := j.fileRepo.MarkExpiredRecycle(ctx, now)
	if err != nil {
		log.Printf("任务 '%s' 标记过期文件失败: %v", j.Name(), err)
		return
	}
	if expired > 0 {
		log.Printf("任务 '%s' 标记了 %d 个已过有效期的文件。", j.Name(), expired)
	}
}

// Name 方法让日志包装器可以打印出更有意义的任务名
func (j *UnusedFilesJob) Name() string {
	return "UnusedFilesJob"
}
