package task

import (
	"context"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/service/file"
)

// stubFileService 记录自愈任务的调用并按预设返回错误
type stubFileService struct {
	file.IFileService
	reanalyzed   []string
	reprocessed  []string
	deleted      []string
	reanalyzeErr map[string]error
	processErr   map[string]error
}

func (s *stubFileService) ReanalyzeStored(ctx context.Context, fileID string) error {
	s.reanalyzed = append(s.reanalyzed, fileID)
	return s.reanalyzeErr[fileID]
}

func (s *stubFileService) ProcessIngested(ctx context.Context, fileID string) error {
	s.reprocessed = append(s.reprocessed, fileID)
	return s.processErr[fileID]
}

func (s *stubFileService) DeleteData(ctx context.Context, fileID string) error {
	s.deleted = append(s.deleted, fileID)
	return nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestReanalysisSelfHeal(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// 已上传但指纹从未补全：应回源重建
	incomplete := &model.File{
		ID: uuid.NewString(), Name: "incomplete.bin",
		StorageID: uuid.NewString(), UploadedAt: &now,
	}
	if err := repos.File.Create(ctx, incomplete); err != nil {
		t.Fatal(err)
	}

	// 已上传但远端字节丢失：回源失败后应清除记录
	lost := &model.File{
		ID: uuid.NewString(), Name: "lost.bin",
		StorageID: uuid.NewString(), UploadedAt: &now,
	}
	if err := repos.File.Create(ctx, lost); err != nil {
		t.Fatal(err)
	}

	// 摄取后长期未上传：应重跑流水线；暂存字节已丢失的清除记录
	stalled := &model.File{
		ID: uuid.NewString(), Name: "stalled.bin", Size: 10,
		ContentHash: "deadbeef", StorageID: uuid.NewString(),
		CreatedAt: now.Add(-time.Hour),
	}
	if err := repos.File.Create(ctx, stalled); err != nil {
		t.Fatal(err)
	}
	vanished := &model.File{
		ID: uuid.NewString(), Name: "vanished.bin", Size: 10,
		ContentHash: "cafebabe", StorageID: uuid.NewString(),
		CreatedAt: now.Add(-time.Hour),
	}
	if err := repos.File.Create(ctx, vanished); err != nil {
		t.Fatal(err)
	}

	// 刚摄取的记录还在流水线手里，不应被碰
	fresh := &model.File{
		ID: uuid.NewString(), Name: "fresh.bin", Size: 10,
		ContentHash: "feedface", StorageID: uuid.NewString(),
	}
	if err := repos.File.Create(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	stub := &stubFileService{
		reanalyzeErr: map[string]error{lost.ID: constant.ErrNotFound},
		processErr:   map[string]error{vanished.ID: fmt.Errorf("暂存内容不可用: %w", fs.ErrNotExist)},
	}

	job := NewReanalysisJob(repos.File, stub)
	job.Run()

	if !contains(stub.reanalyzed, incomplete.ID) {
		t.Error("指纹缺失的已上传记录应触发回源重建")
	}
	if !contains(stub.deleted, lost.ID) {
		t.Error("远端字节丢失的记录应被清除")
	}
	if !contains(stub.reprocessed, stalled.ID) {
		t.Error("滞留的未上传记录应重跑摄取流水线")
	}
	if !contains(stub.deleted, vanished.ID) {
		t.Error("暂存字节丢失的滞留记录应被清除")
	}
	if contains(stub.reprocessed, fresh.ID) {
		t.Error("新鲜的未上传记录不应被重跑")
	}
}
