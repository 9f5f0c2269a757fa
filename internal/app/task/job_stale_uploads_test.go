package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/service/upload"
)

// stubUploader 只满足任务对上传服务的最小依赖
type stubUploader struct {
	upload.IUploadService
}

func (s *stubUploader) CleanupStale(ctx context.Context) (int, error) {
	return 0, nil
}

func backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("回拨文件时间失败: %v", err)
	}
}

func TestStaleUploadsSweepsStaging(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	stagingDir := t.TempDir()
	uploadDir := t.TempDir()

	ingestRoot := filepath.Join(stagingDir, "ingest")
	if err := os.MkdirAll(ingestRoot, os.ModePerm); err != nil {
		t.Fatal(err)
	}

	// 记录还在等待上传：摄取暂存必须保留给流水线重试
	pending := &model.File{ID: uuid.NewString(), Name: "pending.bin", StorageID: uuid.NewString()}
	if err := repos.File.Create(ctx, pending); err != nil {
		t.Fatal(err)
	}
	pendingPath := filepath.Join(ingestRoot, pending.ID)
	if err := os.WriteFile(pendingPath, []byte("等待上传"), 0o644); err != nil {
		t.Fatal(err)
	}
	backdate(t, pendingPath, 2*time.Hour)

	// 记录已上传完：暂存字节是残留
	uploadedAt := time.Now().UTC()
	done := &model.File{ID: uuid.NewString(), Name: "done.bin", StorageID: uuid.NewString(), UploadedAt: &uploadedAt}
	if err := repos.File.Create(ctx, done); err != nil {
		t.Fatal(err)
	}
	donePath := filepath.Join(ingestRoot, done.ID)
	if err := os.WriteFile(donePath, []byte("已上传"), 0o644); err != nil {
		t.Fatal(err)
	}
	backdate(t, donePath, 2*time.Hour)

	// 记录已删除的无主残留
	orphanPath := filepath.Join(ingestRoot, uuid.NewString())
	if err := os.WriteFile(orphanPath, []byte("无主"), 0o644); err != nil {
		t.Fatal(err)
	}
	backdate(t, orphanPath, 2*time.Hour)

	// 原始落盘目录里的陈旧散件和新鲜散件
	staleRaw := filepath.Join(uploadDir, "stale.part")
	if err := os.WriteFile(staleRaw, []byte("陈旧"), 0o644); err != nil {
		t.Fatal(err)
	}
	backdate(t, staleRaw, 2*time.Hour)
	freshRaw := filepath.Join(uploadDir, "fresh.part")
	if err := os.WriteFile(freshRaw, []byte("新鲜"), 0o644); err != nil {
		t.Fatal(err)
	}

	job := NewStaleUploadsJob(&stubUploader{}, repos.Task, repos.File, stagingDir, uploadDir)
	job.Run()

	if _, err := os.Stat(pendingPath); err != nil {
		t.Error("等待上传的暂存内容不应被清除")
	}
	if _, err := os.Stat(donePath); !os.IsNotExist(err) {
		t.Error("已上传记录的暂存残留应被清除")
	}
	if _, err := os.Stat(orphanPath); !os.IsNotExist(err) {
		t.Error("无主的暂存残留应被清除")
	}
	if _, err := os.Stat(staleRaw); !os.IsNotExist(err) {
		t.Error("超过阈值的原始落盘文件应被清除")
	}
	if _, err := os.Stat(freshRaw); err != nil {
		t.Error("阈值内的原始落盘文件不应被清除")
	}
}
