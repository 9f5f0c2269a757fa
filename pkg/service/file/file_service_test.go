package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/database"
	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/gormrepo"
	"github.com/qingyun-c/qingyun-drive/internal/infra/storage"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/service/pool"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

// fakeProvider 把对象写入内存并统计调用次数
type fakeProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	removes int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{objects: make(map[string][]byte)}
}

func (f *fakeProvider) Put(ctx context.Context, p *model.FilePool, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.puts++
	return nil
}

func (f *fakeProvider) Get(ctx context.Context, p *model.FilePool, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, constant.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeProvider) Stat(ctx context.Context, p *model.FilePool, key string) (*storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, constant.ErrNotFound
	}
	return &storage.ObjectInfo{Size: int64(len(data))}, nil
}

func (f *fakeProvider) Remove(ctx context.Context, p *model.FilePool, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removes++
	return nil
}

func (f *fakeProvider) SignedURL(ctx context.Context, p *model.FilePool, key string, options storage.SignedURLOptions) (string, error) {
	return "https://fake.example/" + key, nil
}

type fakeResolver struct {
	provider storage.IStorageProvider
}

func (r *fakeResolver) GetProvider(p *model.FilePool) (storage.IStorageProvider, error) {
	return r.provider, nil
}

// fakePoolService 返回固定的存储池
type fakePoolService struct {
	pool.IPoolService
	p *model.FilePool
}

func (s *fakePoolService) GetByID(ctx context.Context, id string) (*model.FilePool, error) {
	return s.p, nil
}

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func newTestFileService(t *testing.T, provider *fakeProvider) (*fileService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	repos := gormrepo.NewRepositories(db)

	svc := &fileService{
		fileRepo:   repos.File,
		objectRepo: repos.Object,
		poolSvc:    &fakePoolService{p: &model.FilePool{ID: "pool-1", Type: constant.PoolTypeS3, UseSignedURL: true}},
		factory:    &fakeResolver{provider: provider},
		cacheSvc:   utility.NewMemoryCacheService(),
		stagingDir: t.TempDir(),
	}
	return svc, db
}

func stageContent(t *testing.T, dir string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, "incoming")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("写入测试内容失败: %v", err)
	}
	return path
}

func TestIngestDedup(t *testing.T) {
	provider := newFakeProvider()
	svc, _ := newTestFileService(t, provider)
	ctx := context.Background()
	content := []byte("重复上传的同一份内容")

	first, err := svc.Ingest(ctx, &IngestInput{
		Path:      stageContent(t, t.TempDir(), content),
		FileName:  "a.txt",
		Size:      int64(len(content)),
		MimeType:  "text/plain",
		PoolID:    "pool-1",
		AccountID: "acc-1",
	})
	if err != nil {
		t.Fatalf("首次摄取失败: %v", err)
	}
	if first.IsUploaded() {
		t.Fatal("新内容的记录不应直接进入已上传状态")
	}
	if first.StorageID != first.ID {
		t.Errorf("新内容的物理键应等于记录ID: storage=%s, id=%s", first.StorageID, first.ID)
	}

	if err := svc.UploadToRemote(ctx, first.ID); err != nil {
		t.Fatalf("上传远端失败: %v", err)
	}
	if provider.puts != 1 {
		t.Fatalf("期望 1 次 Put，实际 %d", provider.puts)
	}

	second, err := svc.Ingest(ctx, &IngestInput{
		Path:      stageContent(t, t.TempDir(), content),
		FileName:  "b.txt",
		Size:      int64(len(content)),
		MimeType:  "text/plain",
		PoolID:    "pool-1",
		AccountID: "acc-2",
	})
	if err != nil {
		t.Fatalf("二次摄取失败: %v", err)
	}
	if !second.IsUploaded() {
		t.Error("去重命中的记录应直接进入已上传状态")
	}
	if second.StorageID != first.StorageID {
		t.Errorf("去重命中应复用物理键: got=%s, want=%s", second.StorageID, first.StorageID)
	}
	if provider.puts != 1 {
		t.Errorf("去重命中不应产生字节传输，Put 次数 %d", provider.puts)
	}
}

func TestConcurrentIngestAdoptsWinner(t *testing.T) {
	provider := newFakeProvider()
	svc, _ := newTestFileService(t, provider)
	ctx := context.Background()
	content := []byte("两条并发摄取撞上的同一份内容")

	// 两次摄取都发生在任何上传完成之前，摄取期的去重查不到已上传行，
	// 两条记录都以待上传状态落库
	first, err := svc.Ingest(ctx, &IngestInput{
		Path: stageContent(t, t.TempDir(), content), FileName: "a.bin",
		Size: int64(len(content)), PoolID: "pool-1", AccountID: "acc-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Ingest(ctx, &IngestInput{
		Path: stageContent(t, t.TempDir(), content), FileName: "b.bin",
		Size: int64(len(content)), PoolID: "pool-1", AccountID: "acc-2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.IsUploaded() || second.IsUploaded() {
		t.Fatal("上传前两条记录都应是待上传状态")
	}

	if err := svc.UploadToRemote(ctx, first.ID); err != nil {
		t.Fatalf("先到者上传失败: %v", err)
	}
	if err := svc.UploadToRemote(ctx, second.ID); err != nil {
		t.Fatalf("后到者上传失败: %v", err)
	}

	if provider.puts != 1 {
		t.Errorf("同内容只应推送一次字节，Put 次数 %d", provider.puts)
	}

	got, err := svc.fileRepo.FindByID(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsUploaded() {
		t.Error("挂靠后的记录应进入已上传状态")
	}
	if got.StorageID != first.StorageID {
		t.Errorf("后到者应挂靠先到者的物理键: got=%s, want=%s", got.StorageID, first.StorageID)
	}
	if _, statErr := os.Stat(svc.ingestStagingPath(second.ID)); !os.IsNotExist(statErr) {
		t.Error("挂靠后后到者的暂存字节应被清理")
	}

	// 对象索引仍然是一个对象、一个主副本
	obj, err := svc.objectRepo.FindObjectByHash(ctx, got.ContentHash)
	if err != nil {
		t.Fatalf("查询对象索引失败: %v", err)
	}
	replicas, err := svc.objectRepo.ListReplicas(ctx, obj.ID)
	if err != nil {
		t.Fatal(err)
	}
	primaries := 0
	for _, r := range replicas {
		if r.IsPrimary {
			primaries++
		}
	}
	if len(replicas) != 1 || primaries != 1 {
		t.Errorf("挂靠不应新增副本行, 副本数=%d 主副本数=%d", len(replicas), primaries)
	}
}

func TestReanalyzeStoredRebuildsMeta(t *testing.T) {
	provider := newFakeProvider()
	svc, _ := newTestFileService(t, provider)
	ctx := context.Background()
	content := []byte("流水线中断后只剩远端字节的内容")

	// 模拟流水线半途而废的残留：已上传但指纹与长度从未补全
	now := time.Now().UTC()
	broken := &model.File{
		ID:         newFileID(),
		Name:       "broken.bin",
		MimeType:   "application/octet-stream",
		PoolID:     "pool-1",
		UploadedAt: &now,
	}
	broken.StorageID = broken.ID
	if err := svc.fileRepo.Create(ctx, broken); err != nil {
		t.Fatal(err)
	}
	provider.objects[broken.StorageID] = content

	if err := svc.ReanalyzeStored(ctx, broken.ID); err != nil {
		t.Fatalf("回源重建失败: %v", err)
	}

	got, err := svc.fileRepo.FindByID(ctx, broken.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentHash == "" {
		t.Error("回源重建应补全内容指纹")
	}
	if got.Size != int64(len(content)) {
		t.Errorf("回源重建应补全长度: got=%d, want=%d", got.Size, len(content))
	}
	if _, statErr := os.Stat(svc.ingestStagingPath(broken.ID)); !os.IsNotExist(statErr) {
		t.Error("回源的临时暂存内容应在重建后清理")
	}

	// 远端字节已丢失的记录应透传 ErrNotFound，由调用方决定清除
	lost := &model.File{
		ID:         newFileID(),
		Name:       "lost.bin",
		PoolID:     "pool-1",
		UploadedAt: &now,
	}
	lost.StorageID = lost.ID
	if err := svc.fileRepo.Create(ctx, lost); err != nil {
		t.Fatal(err)
	}
	if err := svc.ReanalyzeStored(ctx, lost.ID); !errors.Is(err, constant.ErrNotFound) {
		t.Errorf("远端字节丢失应返回 ErrNotFound, got: %v", err)
	}
}

func TestDeleteDataSharedGuard(t *testing.T) {
	provider := newFakeProvider()
	svc, _ := newTestFileService(t, provider)
	ctx := context.Background()
	content := []byte("被两条逻辑记录共享的内容")

	first, err := svc.Ingest(ctx, &IngestInput{
		Path: stageContent(t, t.TempDir(), content), FileName: "a.bin",
		Size: int64(len(content)), PoolID: "pool-1", AccountID: "acc-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.UploadToRemote(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	second, err := svc.Ingest(ctx, &IngestInput{
		Path: stageContent(t, t.TempDir(), content), FileName: "b.bin",
		Size: int64(len(content)), PoolID: "pool-1", AccountID: "acc-2",
	})
	if err != nil {
		t.Fatal(err)
	}

	// 仍有共享者时只删逻辑记录，不碰物理字节
	if err := svc.DeleteData(ctx, second.ID); err != nil {
		t.Fatalf("删除共享记录失败: %v", err)
	}
	if provider.removes != 0 {
		t.Errorf("存在共享者时不应删除远端对象，Remove 次数 %d", provider.removes)
	}
	if _, err := svc.fileRepo.FindByID(ctx, second.ID); err == nil {
		t.Error("逻辑记录应已删除")
	}

	// 最后一个持有者删除时物理字节一并清理
	if err := svc.DeleteData(ctx, first.ID); err != nil {
		t.Fatalf("删除最后持有者失败: %v", err)
	}
	if provider.removes == 0 {
		t.Error("最后持有者删除后应删除远端对象")
	}

	// 重复删除幂等
	if err := svc.DeleteData(ctx, first.ID); err != nil {
		t.Errorf("重复删除应幂等: %v", err)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := &fileService{signingSecret: "test-secret"}

	token, err := svc.CreateAccessToken("file-123", time.Minute)
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}
	fileID, err := svc.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("校验令牌失败: %v", err)
	}
	if fileID != "file-123" {
		t.Errorf("令牌中的文件ID不符: %s", fileID)
	}

	other := &fileService{signingSecret: "another-secret"}
	if _, err := other.VerifyAccessToken(token); err == nil {
		t.Error("不同密钥签发的令牌应校验失败")
	}
}
