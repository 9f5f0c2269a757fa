package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/database"
	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/gormrepo"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/service/file"
	"github.com/qingyun-c/qingyun-drive/pkg/service/notify"
	"github.com/qingyun-c/qingyun-drive/pkg/service/pool"
	"github.com/qingyun-c/qingyun-drive/pkg/service/quota"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

// fakeFileService 记录摄取调用，返回固定结果
type fakeFileService struct {
	file.IFileService
	ingested     []*file.IngestInput
	lastContent  []byte
	dedupFile    *model.File
	dedupMatched bool
}

func (f *fakeFileService) Ingest(ctx context.Context, input *file.IngestInput) (*model.File, error) {
	f.ingested = append(f.ingested, input)
	if input.Path != "" {
		data, err := readAll(input.Path)
		if err != nil {
			return nil, err
		}
		f.lastContent = data
	}
	return &model.File{ID: "ingested-file", Name: input.FileName, Size: input.Size}, nil
}

func (f *fakeFileService) DedupByDeclaredHash(ctx context.Context, hash string, input *file.IngestInput) (*model.File, error) {
	if f.dedupFile != nil {
		f.dedupMatched = true
		return f.dedupFile, nil
	}
	return nil, constant.ErrNotFound
}

type openPoolService struct {
	pool.IPoolService
}

func (s *openPoolService) GetByID(ctx context.Context, id string) (*model.FilePool, error) {
	return &model.FilePool{ID: id, Type: constant.PoolTypeLocal, AllowAnonymous: true, AllowEncryption: true}, nil
}

func (s *openPoolService) ValidateUpload(ctx context.Context, p *model.FilePool, check pool.UploadCheck) error {
	return nil
}

func newTestUploadService(t *testing.T) (*uploadService, *fakeFileService) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("建表失败: %v", err)
	}

	fakeFS := &fakeFileService{}
	svc := &uploadService{
		taskRepo:   gormrepo.NewRepositories(db).Task,
		poolSvc:    &openPoolService{},
		quotaSvc:   quota.NewUnlimitedQuotaService(),
		fileSvc:    fakeFS,
		notifySvc:  notify.NewLogNotifyService(),
		cacheSvc:   utility.NewMemoryCacheService(),
		stagingDir: t.TempDir(),
	}
	return svc, fakeFS
}

func chunkOf(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestChunkedUploadRoundTrip(t *testing.T) {
	svc, fakeFS := newTestUploadService(t)
	ctx := context.Background()

	const chunkSize = 1024
	// 2.5 个分片：最后一片是半片
	fileSize := int64(chunkSize*2 + chunkSize/2)

	data, err := svc.CreateTask(ctx, UploaderIdentity{AccountID: "acc-1"}, &model.CreateUploadTaskRequest{
		FileName:  "big.bin",
		FileSize:  fileSize,
		PoolID:    "pool-1",
		ChunkSize: chunkSize,
	})
	if err != nil {
		t.Fatalf("创建任务失败: %v", err)
	}
	if data.ChunksCount != 3 {
		t.Fatalf("期望 3 个分片，实际 %d", data.ChunksCount)
	}

	// 乱序上传，并重传一个分片
	if _, err := svc.UploadChunk(ctx, data.TaskID, 2, chunkOf('c', chunkSize/2)); err != nil {
		t.Fatalf("上传分片 2 失败: %v", err)
	}
	if _, err := svc.UploadChunk(ctx, data.TaskID, 0, chunkOf('a', chunkSize)); err != nil {
		t.Fatalf("上传分片 0 失败: %v", err)
	}
	if _, err := svc.UploadChunk(ctx, data.TaskID, 0, chunkOf('a', chunkSize)); err != nil {
		t.Fatalf("重传分片 0 应幂等: %v", err)
	}

	// 缺分片 1 时完成应被拒绝
	if _, err := svc.Complete(ctx, data.TaskID); !errors.Is(err, constant.ErrIncompleteUpload) {
		t.Fatalf("期望 ErrIncompleteUpload，实际 %v", err)
	}

	status, err := svc.UploadChunk(ctx, data.TaskID, 1, chunkOf('b', chunkSize))
	if err != nil {
		t.Fatal(err)
	}
	if status.Progress < 0.999 {
		t.Errorf("全部分片到位后进度应为 1，实际 %f", status.Progress)
	}

	result, err := svc.Complete(ctx, data.TaskID)
	if err != nil {
		t.Fatalf("完成任务失败: %v", err)
	}
	if result.ID != "ingested-file" {
		t.Errorf("返回的文件不符: %+v", result)
	}

	// 校验合并内容的顺序与长度
	want := append(append(chunkOf('a', chunkSize), chunkOf('b', chunkSize)...), chunkOf('c', chunkSize/2)...)
	if !bytes.Equal(fakeFS.lastContent, want) {
		t.Error("合并内容与分片顺序不符")
	}

	// 完成后任务进入终态，重复完成被拒绝
	if _, err := svc.Complete(ctx, data.TaskID); !errors.Is(err, constant.ErrConflict) {
		t.Errorf("终态任务重复完成应返回 ErrConflict，实际 %v", err)
	}
}

func TestCreateTaskWritesMetaMirror(t *testing.T) {
	svc, _ := newTestUploadService(t)
	ctx := context.Background()

	data, err := svc.CreateTask(ctx, UploaderIdentity{AccountID: "acc-1"}, &model.CreateUploadTaskRequest{
		FileName: "f.bin", FileSize: 2048, PoolID: "pool-1", ChunkSize: 1024,
	})
	if err != nil {
		t.Fatal(err)
	}

	// 任务镜像在建任务时就该落盘，供崩溃恢复与人工排查
	metaPath := filepath.Join(svc.taskStagingDir(data.TaskID), taskMetaFileName)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("任务镜像未落盘: %v", err)
	}
	var mirrored model.UploadTask
	if err := json.Unmarshal(raw, &mirrored); err != nil {
		t.Fatalf("任务镜像不是合法 JSON: %v", err)
	}
	if mirrored.ID != data.TaskID {
		t.Errorf("任务镜像内容不符: got=%s, want=%s", mirrored.ID, data.TaskID)
	}
}

func TestZeroByteUpload(t *testing.T) {
	svc, fakeFS := newTestUploadService(t)
	ctx := context.Background()

	data, err := svc.CreateTask(ctx, UploaderIdentity{AccountID: "acc-1"}, &model.CreateUploadTaskRequest{
		FileName: "empty.txt", FileSize: 0, PoolID: "pool-1",
	})
	if err != nil {
		t.Fatalf("创建空文件任务失败: %v", err)
	}
	if data.ChunksCount != 1 {
		t.Fatalf("空文件应按单个分片表示，实际 %d", data.ChunksCount)
	}

	status, err := svc.UploadChunk(ctx, data.TaskID, 0, []byte{})
	if err != nil {
		t.Fatalf("上传零长度分片失败: %v", err)
	}
	if status.Progress < 0.999 {
		t.Errorf("唯一分片到位后进度应为 1，实际 %f", status.Progress)
	}

	result, err := svc.Complete(ctx, data.TaskID)
	if err != nil {
		t.Fatalf("完成空文件任务失败: %v", err)
	}
	if result.ID != "ingested-file" {
		t.Errorf("返回的文件不符: %+v", result)
	}
	if len(fakeFS.ingested) != 1 || fakeFS.ingested[0].Size != 0 {
		t.Errorf("摄取入参的长度应为 0: %+v", fakeFS.ingested)
	}
	if len(fakeFS.lastContent) != 0 {
		t.Errorf("合并内容应为空，实际 %d 字节", len(fakeFS.lastContent))
	}
}

func TestChunkLengthValidation(t *testing.T) {
	svc, _ := newTestUploadService(t)
	ctx := context.Background()

	data, err := svc.CreateTask(ctx, UploaderIdentity{AccountID: "acc-1"}, &model.CreateUploadTaskRequest{
		FileName: "f.bin", FileSize: 2048, PoolID: "pool-1", ChunkSize: 1024,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UploadChunk(ctx, data.TaskID, 0, chunkOf('x', 100)); !errors.Is(err, constant.ErrBadRequest) {
		t.Errorf("长度不符的分片应被拒绝，实际 %v", err)
	}
	if _, err := svc.UploadChunk(ctx, data.TaskID, 5, chunkOf('x', 1024)); !errors.Is(err, constant.ErrBadRequest) {
		t.Errorf("越界下标应被拒绝，实际 %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	svc, _ := newTestUploadService(t)
	ctx := context.Background()

	data, err := svc.CreateTask(ctx, UploaderIdentity{AccountID: "acc-1"}, &model.CreateUploadTaskRequest{
		FileName: "f.bin", FileSize: 2048, PoolID: "pool-1", ChunkSize: 1024,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Pending 状态不能直接暂停
	if err := svc.Pause(ctx, data.TaskID); !errors.Is(err, constant.ErrConflict) {
		t.Errorf("Pending 任务暂停应返回 ErrConflict，实际 %v", err)
	}

	if _, err := svc.UploadChunk(ctx, data.TaskID, 0, chunkOf('x', 1024)); err != nil {
		t.Fatal(err)
	}
	if err := svc.Pause(ctx, data.TaskID); err != nil {
		t.Fatalf("进行中任务暂停失败: %v", err)
	}

	// 暂停中拒收分片
	if _, err := svc.UploadChunk(ctx, data.TaskID, 1, chunkOf('y', 1024)); !errors.Is(err, constant.ErrConflict) {
		t.Errorf("暂停中的任务应拒收分片，实际 %v", err)
	}

	if err := svc.Resume(ctx, data.TaskID); err != nil {
		t.Fatalf("恢复任务失败: %v", err)
	}
	if _, err := svc.UploadChunk(ctx, data.TaskID, 1, chunkOf('y', 1024)); err != nil {
		t.Errorf("恢复后应继续接收分片: %v", err)
	}
}

func TestDeclaredHashShortCircuit(t *testing.T) {
	svc, fakeFS := newTestUploadService(t)
	fakeFS.dedupFile = &model.File{ID: "dedup-hit"}
	ctx := context.Background()

	data, err := svc.CreateTask(ctx, UploaderIdentity{AccountID: "acc-1"}, &model.CreateUploadTaskRequest{
		FileName: "f.bin", FileSize: 2048, PoolID: "pool-1", Hash: "abcdef",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !data.FileExists || data.FileID != "dedup-hit" {
		t.Errorf("声明哈希命中应秒传返回文件: %+v", data)
	}
	if data.TaskID != "" {
		t.Error("秒传命中不应创建任务")
	}
}

func readAll(path string) ([]byte, error) {
	return os.ReadFile(path)
}
