package task

import (
	"context"
	"log"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/file"
)

const purgeBatchSize = 200

// RecyclePurgeJob 负责物理清除已标记回收的文件。
// 删除字节前先确认没有其他持有活跃引用的文件共享同一物理对象；
// 有共享者时只删逻辑记录，字节由文件服务的共享保护保留。
type RecyclePurgeJob struct {
	fileRepo repository.FileRepository
	fileSvc  file.IFileService
}

// NewRecyclePurgeJob 是任务的构造函数
func NewRecyclePurgeJob(fileRepo repository.FileRepository, fileSvc file.IFileService) *RecyclePurgeJob {
	return &RecyclePurgeJob{
		fileRepo: fileRepo,
		fileSvc:  fileSvc,
	}
}

// Run 是 Job 接口要求实现的方法
func (j *RecyclePurgeJob) Run() {
	ctx := context.Background()

	files, err := j.fileRepo.ListMarkedRecycle(ctx, purgeBatchSize)
	if err != nil {
		log.Printf("任务 '%s' 查询待清除文件失败: %v", j.Name(), err)
		return
	}

	purged := 0
	for _, f := range files {
		owners, err := j.fileRepo.CountOtherOwners(ctx, f.StorageID, f.ID)
		if err != nil {
			log.Printf("任务 '%s' 统计文件 %s 的共享者失败: %v", j.Name(), f.ID, err)
			continue
		}
		if owners > 0 {
			log.Printf("任务 '%s': 文件 %s 的内容仍被 %d 个活跃文件共享，仅删除逻辑记录。", j.Name(), f.ID, owners)
		}
		if err := j.fileSvc.DeleteData(ctx, f.ID); err != nil {
			log.Printf("任务 '%s' 清除文件 %s 失败: %v", j.Name(), f.ID, err)
			continue
		}
		purged++
	}

	if purged > 0 {
		log.Printf("任务 '%s' 执行完毕，清除了 %d 个文件。", j.Name(), purged)
	}
}

// Name 方法让日志包装器可以打印出更有意义的任务名
func (j *RecyclePurgeJob) Name() string {
	return "RecyclePurgeJob"
}
