package upload

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/qingyun-c/qingyun-drive/internal/pkg/envelope"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/service/file"
	"github.com/qingyun-c/qingyun-drive/pkg/service/notify"
)

// Complete 合并全部分片并移交文件服务。
// 分片齐全性以磁盘为准：缓存或数据库中的集合可能滞后于实际落盘。
func (s *uploadService) Complete(ctx context.Context, taskID string) (*model.File, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: 任务已进入终态 %s", constant.ErrConflict, task.Status)
	}

	if missing := s.missingChunks(task); len(missing) > 0 {
		return nil, fmt.Errorf("%w: 缺少分片 %v", constant.ErrIncompleteUpload, missing)
	}

	assembled, err := s.assembleChunks(task)
	if err != nil {
		s.failTask(ctx, task, err)
		return nil, err
	}

	contentPath := assembled
	size := task.FileSize
	if task.EncryptPassword != "" {
		contentPath, size, err = s.encryptAssembled(task, assembled)
		if err != nil {
			s.failTask(ctx, task, err)
			return nil, err
		}
	}

	ingested, err := s.fileSvc.Ingest(ctx, &file.IngestInput{
		Path:      contentPath,
		FileName:  task.FileName,
		Size:      size,
		MimeType:  task.ContentType,
		PoolID:    task.PoolID,
		AccountID: task.AccountID,
		BundleID:  task.BundleID,
	})
	if err != nil {
		s.failTask(ctx, task, err)
		return nil, err
	}

	if _, err := s.taskRepo.UpdateStatus(ctx, taskID, task.Status, model.TaskStatusCompleted); err != nil {
		log.Printf("[UploadService] 标记任务完成失败: task=%s, err=%v", taskID, err)
	}
	s.dropTaskState(ctx, taskID)

	s.notifySvc.Dispatch(ctx, notify.Notification{
		AccountID: task.AccountID,
		Title:     "上传完成",
		Content:   fmt.Sprintf("文件 %s 已完成上传。", task.FileName),
	})
	return ingested, nil
}

// assembleChunks 按下标顺序把分片拼接成完整内容，并核对总长度。
func (s *uploadService) assembleChunks(task *model.UploadTask) (string, error) {
	outPath := filepath.Join(s.taskStagingDir(task.ID), "assembled")
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("创建合并文件失败: %w", err)
	}
	defer out.Close()

	var total int64
	for i := 0; i < task.ChunksCount; i++ {
		chunk, err := os.Open(s.chunkPath(task.ID, i))
		if err != nil {
			return "", fmt.Errorf("打开分片 %d 失败: %w", i, err)
		}
		n, err := io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			return "", fmt.Errorf("拼接分片 %d 失败: %w", i, err)
		}
		total += n
	}
	if total != task.FileSize {
		return "", fmt.Errorf("合并后长度 %d 与声明 %d 不符", total, task.FileSize)
	}
	if err := out.Sync(); err != nil {
		return "", err
	}
	return outPath, nil
}

// encryptAssembled 对合并内容套加密信封，返回密文路径与长度。
func (s *uploadService) encryptAssembled(task *model.UploadTask, assembled string) (string, int64, error) {
	plaintext, err := os.ReadFile(assembled)
	if err != nil {
		return "", 0, err
	}
	sealed, err := envelope.Encode(plaintext, task.EncryptPassword)
	if err != nil {
		return "", 0, fmt.Errorf("加密内容失败: %w", err)
	}

	outPath := assembled + ".sealed"
	if err := os.WriteFile(outPath, sealed, 0o600); err != nil {
		return "", 0, err
	}
	os.Remove(assembled)
	return outPath, int64(len(sealed)), nil
}

// failTask 把任务标记为失败。暂存目录按配置决定去留，
// 保留时供人工排查，由滞留清理任务最终回收。
func (s *uploadService) failTask(ctx context.Context, task *model.UploadTask, cause error) {
	log.Printf("[UploadService] 任务 %s 完成阶段失败: %v", task.ID, cause)
	if _, err := s.taskRepo.UpdateStatus(ctx, task.ID, task.Status, model.TaskStatusFailed); err != nil {
		log.Printf("[UploadService] 标记任务失败态出错: %v", err)
	}
	if !s.keepFailedStaging {
		s.dropTaskState(ctx, task.ID)
	}
	s.notifySvc.Dispatch(ctx, notify.Notification{
		AccountID: task.AccountID,
		Title:     "上传失败",
		Content:   fmt.Sprintf("文件 %s 的上传未能完成。", task.FileName),
	})
}

// CleanupStale 处理滞留任务：最后活动超过有效期的非终态任务
// 标记为过期并回收暂存目录。
func (s *uploadService) CleanupStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-taskTTL)
	stale, err := s.taskRepo.ListStale(ctx, cutoff, 200)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, task := range stale {
		ok, err := s.taskRepo.UpdateStatus(ctx, task.ID, task.Status, model.TaskStatusExpired)
		if err != nil {
			log.Printf("[UploadService] 标记滞留任务过期失败: task=%s, err=%v", task.ID, err)
			continue
		}
		if !ok {
			// 状态已被并发迁移，跳过
			continue
		}
		s.dropTaskState(ctx, task.ID)
		cleaned++
	}
	if cleaned > 0 {
		log.Printf("[UploadService] 清理了 %d 个滞留上传任务。", cleaned)
	}
	return cleaned, nil
}
