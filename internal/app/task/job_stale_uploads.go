package task

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/upload"
)

const (
	// 无主任务暂存目录需要比任务有效期更老才会被扫掉，避免和进行中的清理竞争。
	orphanStagingAge = 48 * time.Hour
	// 原始落盘与摄取暂存的陈旧阈值：一小时内的内容可能仍在流水线手里。
	rawStagingAge = time.Hour
)

// StaleUploadsJob 负责清理滞留的上传任务及其各级暂存内容：
// 任务行的过期由上传服务处理；该任务额外扫掉任务行已不存在的无主暂存目录、
// 原始落盘目录里的陈旧散件，以及记录已删除或已上传完的摄取暂存残留。
type StaleUploadsJob struct {
	uploadSvc  upload.IUploadService
	taskRepo   repository.UploadTaskRepository
	fileRepo   repository.FileRepository
	stagingDir string
	uploadDir  string
}

// NewStaleUploadsJob 是任务的构造函数
func NewStaleUploadsJob(
	uploadSvc upload.IUploadService,
	taskRepo repository.UploadTaskRepository,
	fileRepo repository.FileRepository,
	stagingDir, uploadDir string,
) *StaleUploadsJob {
	return &StaleUploadsJob{
		uploadSvc:  uploadSvc,
		taskRepo:   taskRepo,
		fileRepo:   fileRepo,
		stagingDir: stagingDir,
		uploadDir:  uploadDir,
	}
}

// Run 是 Job 接口要求实现的方法
func (j *StaleUploadsJob) Run() {
	ctx := context.Background()

	expired, err := j.uploadSvc.CleanupStale(ctx)
	if err != nil {
		log.Printf("任务 '%s' 清理滞留任务时捕获到错误: %v", j.Name(), err)
	} else if expired > 0 {
		log.Printf("任务 '%s' 将 %d 个滞留任务标记为过期。", j.Name(), expired)
	}

	if removed := j.sweepOrphanStaging(ctx); removed > 0 {
		log.Printf("任务 '%s' 清除了 %d 个无主暂存目录。", j.Name(), removed)
	}
	if removed := j.sweepIngestStaging(ctx); removed > 0 {
		log.Printf("任务 '%s' 清除了 %d 个摄取暂存残留。", j.Name(), removed)
	}
	if removed := j.sweepRawUploads(); removed > 0 {
		log.Printf("任务 '%s' 清除了 %d 个陈旧的原始落盘文件。", j.Name(), removed)
	}
}

// sweepOrphanStaging 扫描任务暂存根目录，删除任务行已不存在且足够老的目录。
func (j *StaleUploadsJob) sweepOrphanStaging(ctx context.Context) int {
	root := filepath.Join(j.stagingDir, "tasks")
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("任务 '%s' 读取暂存目录失败: %v", j.Name(), err)
		}
		return 0
	}

	cutoff := time.Now().Add(-orphanStagingAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		_, err = j.taskRepo.FindByID(ctx, entry.Name())
		if err == nil {
			continue
		}
		if !errors.Is(err, constant.ErrTaskNotFound) {
			log.Printf("任务 '%s' 查询任务 %s 失败: %v", j.Name(), entry.Name(), err)
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			log.Printf("任务 '%s' 删除目录 %s 失败: %v", j.Name(), entry.Name(), err)
			continue
		}
		removed++
	}
	return removed
}

// sweepIngestStaging 扫描摄取暂存目录。条目以文件 ID 命名：
// 记录已不存在或内容已经到达远端的条目是残留，超过一小时即可删除；
// 记录还在等待上传的条目必须保留，自愈任务会重跑它的流水线。
func (j *StaleUploadsJob) sweepIngestStaging(ctx context.Context) int {
	root := filepath.Join(j.stagingDir, "ingest")
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("任务 '%s' 读取摄取暂存目录失败: %v", j.Name(), err)
		}
		return 0
	}

	cutoff := time.Now().Add(-rawStagingAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		// 派生对象残留（带 .compressed/.thumbnail 后缀）查不到记录，一并走删除分支
		f, err := j.fileRepo.FindByID(ctx, entry.Name())
		if err == nil && !f.IsUploaded() {
			continue
		}
		if err != nil && !errors.Is(err, constant.ErrNotFound) {
			log.Printf("任务 '%s' 查询文件 %s 失败: %v", j.Name(), entry.Name(), err)
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			log.Printf("任务 '%s' 删除摄取暂存 %s 失败: %v", j.Name(), entry.Name(), err)
			continue
		}
		removed++
	}
	return removed
}

// sweepRawUploads 删除原始落盘目录里超过一小时的散件。
// 该目录只存接收阶段的原始内容，落位后的内容不在这里。
func (j *StaleUploadsJob) sweepRawUploads() int {
	entries, err := os.ReadDir(j.uploadDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("任务 '%s' 读取原始落盘目录失败: %v", j.Name(), err)
		}
		return 0
	}

	cutoff := time.Now().Add(-rawStagingAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.uploadDir, entry.Name())); err != nil {
			log.Printf("任务 '%s' 删除原始落盘文件 %s 失败: %v", j.Name(), entry.Name(), err)
			continue
		}
		removed++
	}
	return removed
}

// Name 方法让日志包装器可以打印出更有意义的任务名
func (j *StaleUploadsJob) Name() string {
	return "StaleUploadsJob"
}
