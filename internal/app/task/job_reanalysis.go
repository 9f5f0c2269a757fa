package task

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"sync"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/file"
)

const (
	reanalysisBatchSize = 50
	// 刚失败过的文件暂缓重试，等下下轮再说
	reanalysisBackoff = 6 * time.Hour
	// 摄取后超过该时长仍未上传的记录视为流水线中断（事件可能被总线丢弃）
	stalledIngestAge = 30 * time.Minute
)

// ReanalysisJob 是元数据自愈任务，每轮做三件事：
// 对已上传但基础字段或提取元数据缺失的记录回源重建；
// 对摄取后长期未上传的记录重跑流水线，暂存字节已丢失的清除记录；
// 校验一批派生标记，标记与实际不符的回源重建。
// 进程内记录最近失败的文件，避免每轮都撞同一批坏文件。
type ReanalysisJob struct {
	fileRepo repository.FileRepository
	fileSvc  file.IFileService

	mu         sync.Mutex
	lastFailed map[string]time.Time
	// 派生标记校验批次的键集游标，扫完一轮后归零
	validateAfterID string
}

// NewReanalysisJob 是任务的构造函数
func NewReanalysisJob(fileRepo repository.FileRepository, fileSvc file.IFileService) *ReanalysisJob {
	return &ReanalysisJob{
		fileRepo:   fileRepo,
		fileSvc:    fileSvc,
		lastFailed: make(map[string]time.Time),
	}
}

// Run 是 Job 接口要求实现的方法
func (j *ReanalysisJob) Run() {
	ctx := context.Background()

	j.repairIncompleteMeta(ctx)
	j.retryStalledIngest(ctx)
	j.validateDerivedFlags(ctx)
}

// repairIncompleteMeta 对已上传但缺哈希、零大小或提取元数据为空的记录，
// 从远端对象回源重建。远端字节已丢失的记录没有恢复手段，直接清除。
func (j *ReanalysisJob) repairIncompleteMeta(ctx context.Context) {
	files, err := j.fileRepo.ListIncompleteMeta(ctx, reanalysisBatchSize)
	if err != nil {
		log.Printf("任务 '%s' 查询待补全文件失败: %v", j.Name(), err)
		return
	}

	repaired := 0
	for _, f := range files {
		if j.recentlyFailed(f.ID) {
			continue
		}
		err := j.fileSvc.ReanalyzeStored(ctx, f.ID)
		if errors.Is(err, constant.ErrNotFound) {
			log.Printf("任务 '%s': 文件 %s 的远端字节已丢失，清除记录。", j.Name(), f.ID)
			if err := j.fileSvc.DeleteData(ctx, f.ID); err != nil {
				log.Printf("任务 '%s' 清除文件 %s 失败: %v", j.Name(), f.ID, err)
				j.markFailed(f.ID)
			}
			continue
		}
		if err != nil {
			log.Printf("任务 '%s' 回源重建文件 %s 失败: %v", j.Name(), f.ID, err)
			j.markFailed(f.ID)
			continue
		}
		j.clearFailed(f.ID)
		repaired++
	}

	if repaired > 0 {
		log.Printf("任务 '%s' 回源重建了 %d 个文件的元数据。", j.Name(), repaired)
	}
}

// retryStalledIngest 重跑摄取后长期停留在未上传状态的记录。
// 暂存字节还在的走完整流水线；已经丢失的记录无法再推到远端，清除。
func (j *ReanalysisJob) retryStalledIngest(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-stalledIngestAge)
	files, err := j.fileRepo.ListStalledIngest(ctx, cutoff, reanalysisBatchSize)
	if err != nil {
		log.Printf("任务 '%s' 查询滞留摄取记录失败: %v", j.Name(), err)
		return
	}

	for _, f := range files {
		if j.recentlyFailed(f.ID) {
			continue
		}
		err := j.fileSvc.ProcessIngested(ctx, f.ID)
		if err == nil {
			j.clearFailed(f.ID)
			continue
		}
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("任务 '%s': 文件 %s 的暂存字节已丢失，清除记录。", j.Name(), f.ID)
			if err := j.fileSvc.DeleteData(ctx, f.ID); err != nil {
				log.Printf("任务 '%s' 清除文件 %s 失败: %v", j.Name(), f.ID, err)
				j.markFailed(f.ID)
			}
			continue
		}
		log.Printf("任务 '%s' 重跑文件 %s 的摄取流水线失败: %v", j.Name(), f.ID, err)
		j.markFailed(f.ID)
	}
}

// validateDerivedFlags 每轮校验一批带压缩或缩略图标记的文件：
// 标记已置位但提取元数据缺失的，说明流水线中断在变体之后，回源重建。
func (j *ReanalysisJob) validateDerivedFlags(ctx context.Context) {
	files, err := j.fileRepo.ListWithDerivedFlags(ctx, j.validateAfterID, reanalysisBatchSize)
	if err != nil {
		log.Printf("任务 '%s' 校验派生标记失败: %v", j.Name(), err)
		return
	}
	if len(files) == 0 {
		j.validateAfterID = ""
		return
	}
	j.validateAfterID = files[len(files)-1].ID

	for _, f := range files {
		if len(f.UserMeta) > 0 && f.UserMeta[model.MetaKeyWidth] != "" {
			continue
		}
		if j.recentlyFailed(f.ID) {
			continue
		}
		log.Printf("任务 '%s': 文件 %s 带派生标记但缺提取元数据，回源重建。", j.Name(), f.ID)
		if err := j.fileSvc.ReanalyzeStored(ctx, f.ID); err != nil {
			log.Printf("任务 '%s' 回源重建文件 %s 失败: %v", j.Name(), f.ID, err)
			j.markFailed(f.ID)
		}
	}
}

func (j *ReanalysisJob) recentlyFailed(fileID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	at, ok := j.lastFailed[fileID]
	return ok && time.Since(at) < reanalysisBackoff
}

func (j *ReanalysisJob) markFailed(fileID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastFailed[fileID] = time.Now()
}

func (j *ReanalysisJob) clearFailed(fileID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.lastFailed, fileID)
}

// Name 方法让日志包装器可以打印出更有意义的任务名
func (j *ReanalysisJob) Name() string {
	return "ReanalysisJob"
}
