package upload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// 每个任务的暂存目录结构：
//
//	{stagingDir}/tasks/{taskID}/
//	    task.json    任务元数据的磁盘镜像（崩溃恢复与人工排查用）
//	    {i}.chunk    第 i 个分片的内容
const taskMetaFileName = "task.json"

func (s *uploadService) taskStagingDir(taskID string) string {
	return filepath.Join(s.stagingDir, "tasks", taskID)
}

func (s *uploadService) chunkPath(taskID string, index int) string {
	return filepath.Join(s.taskStagingDir(taskID), fmt.Sprintf("%d.chunk", index))
}

// writeTaskMeta 把任务快照写到暂存目录。写失败只影响排查体验，
// 数据库中的任务行才是权威，调用方可以忽略错误。
func (s *uploadService) writeTaskMeta(task *model.UploadTask) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	dir := s.taskStagingDir(task.ID)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, taskMetaFileName), data, 0o644)
}

// writeChunk 原子落盘一个分片：先写临时文件再改名，
// 重传覆盖同名分片因此总是安全的。
func (s *uploadService) writeChunk(taskID string, index int, data []byte) error {
	dir := s.taskStagingDir(taskID)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("创建任务暂存目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%d.chunk-*", index))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.chunkPath(taskID, index))
}

// missingChunks 返回磁盘上缺失的分片下标。
// 完成合并前以磁盘内容为准复核，任务行的集合只是索引。
func (s *uploadService) missingChunks(task *model.UploadTask) []int {
	var missing []int
	for i := 0; i < task.ChunksCount; i++ {
		if _, err := os.Stat(s.chunkPath(task.ID, i)); err != nil {
			missing = append(missing, i)
		}
	}
	return missing
}

// removeStaging 删除任务的整个暂存目录
func (s *uploadService) removeStaging(taskID string) error {
	return os.RemoveAll(s.taskStagingDir(taskID))
}
