package task

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/database"
	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/gormrepo"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

func newTestRepos(t *testing.T) repository.Repositories {
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
	return gormrepo.NewRepositories(db)
}

func createFileWithRef(t *testing.T, repos repository.Repositories, refExpiry *time.Time) *model.File {
	t.Helper()
	ctx := context.Background()
	f := &model.File{
		ID:        uuid.NewString(),
		Name:      "sample.bin",
		Size:      10,
		StorageID: uuid.NewString(),
	}
	if err := repos.File.Create(ctx, f); err != nil {
		t.Fatalf("创建文件失败: %v", err)
	}
	ref := &model.FileReference{
		ID:         uuid.NewString(),
		FileID:     f.ID,
		Usage:      constant.UsageAttachment,
		ResourceID: "post-1",
		ExpiredAt:  refExpiry,
	}
	if err := repos.Reference.Create(ctx, ref); err != nil {
		t.Fatalf("创建引用失败: %v", err)
	}
	return f
}

func TestExpiredReferencesCascade(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	// 文件 A 只有一条已过期的引用，应被级联标记回收
	fileA := createFileWithRef(t, repos, &past)
	// 文件 B 有一条过期引用和一条永久引用，不应被标记
	fileB := createFileWithRef(t, repos, &past)
	if err := repos.Reference.Create(ctx, &model.FileReference{
		ID:         uuid.NewString(),
		FileID:     fileB.ID,
		Usage:      constant.UsageBundle,
		ResourceID: "bundle-1",
	}); err != nil {
		t.Fatalf("创建引用失败: %v", err)
	}
	// 文件 C 的引用尚未到期，完全不受影响
	fileC := createFileWithRef(t, repos, &future)

	cacheSvc := utility.NewMemoryCacheService()
	// 预热文件 A 的查询缓存，验证清理任务会将其作废
	if err := cacheSvc.Set(ctx, "file:"+fileA.ID, "stale", time.Minute); err != nil {
		t.Fatalf("写缓存失败: %v", err)
	}

	job := NewExpiredReferencesJob(repos.Reference, repos.File, cacheSvc)
	job.Run()

	if v, _ := cacheSvc.Get(ctx, "file:"+fileA.ID); v != "" {
		t.Error("过期清理后受影响文件的缓存应被作废")
	}

	got, err := repos.File.FindByID(ctx, fileA.ID)
	if err != nil {
		t.Fatalf("查询文件失败: %v", err)
	}
	if !got.IsMarkedRecycle {
		t.Error("失去全部引用的文件应被标记回收")
	}

	got, err = repos.File.FindByID(ctx, fileB.ID)
	if err != nil {
		t.Fatalf("查询文件失败: %v", err)
	}
	if got.IsMarkedRecycle {
		t.Error("仍有永久引用的文件不应被标记回收")
	}

	got, err = repos.File.FindByID(ctx, fileC.ID)
	if err != nil {
		t.Fatalf("查询文件失败: %v", err)
	}
	if got.IsMarkedRecycle {
		t.Error("引用未到期的文件不应被标记回收")
	}
	active, err := repos.Reference.CountActiveByFile(ctx, fileC.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("统计活跃引用失败: %v", err)
	}
	if active != 1 {
		t.Errorf("未到期引用应保留, 活跃数: %d", active)
	}
}

func TestUnusedFilesMarking(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	pool := &model.FilePool{
		ID:             uuid.NewString(),
		Name:           "默认存储池",
		Type:           constant.PoolTypeLocal,
		RecycleEnabled: true,
	}
	if err := repos.Pool.Create(ctx, pool); err != nil {
		t.Fatalf("创建存储池失败: %v", err)
	}

	old := &model.File{
		ID:        uuid.NewString(),
		Name:      "old.bin",
		StorageID: uuid.NewString(),
		PoolID:    pool.ID,
		CreatedAt: time.Now().UTC().Add(-40 * 24 * time.Hour),
	}
	if err := repos.File.Create(ctx, old); err != nil {
		t.Fatalf("创建文件失败: %v", err)
	}
	fresh := &model.File{
		ID:        uuid.NewString(),
		Name:      "fresh.bin",
		StorageID: uuid.NewString(),
		PoolID:    pool.ID,
	}
	if err := repos.File.Create(ctx, fresh); err != nil {
		t.Fatalf("创建文件失败: %v", err)
	}

	job := NewUnusedFilesJob(repos.File, repos.Pool, utility.NewMemoryCacheService())
	job.Run()

	got, err := repos.File.FindByID(ctx, old.ID)
	if err != nil {
		t.Fatalf("查询文件失败: %v", err)
	}
	if !got.IsMarkedRecycle {
		t.Error("超过宽限期且无引用的文件应被标记回收")
	}

	got, err = repos.File.FindByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("查询文件失败: %v", err)
	}
	if got.IsMarkedRecycle {
		t.Error("宽限期内的文件不应被标记回收")
	}
}
