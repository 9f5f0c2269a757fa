package reference

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/database"
	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/gormrepo"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

func newTestService(t *testing.T) (IReferenceService, repository.ReferenceRepository) {
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
	repo := gormrepo.NewRepositories(db).Reference
	return NewReferenceService(repo, utility.NewMemoryCacheService()), repo
}

func TestReferenceLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateReference(ctx, "file-1", "post-1", constant.UsageAttachment, nil); err != nil {
		t.Fatalf("创建引用失败: %v", err)
	}
	if _, err := svc.CreateReference(ctx, "file-1", "post-2", constant.UsageAttachment, nil); err != nil {
		t.Fatal(err)
	}

	has, err := svc.HasReferences(ctx, "file-1")
	if err != nil || !has {
		t.Fatalf("文件应有活跃引用: has=%v, err=%v", has, err)
	}

	affected, err := svc.DeleteReferencesForResource(ctx, "post-1", constant.UsageAttachment)
	if err != nil {
		t.Fatalf("按资源删除引用失败: %v", err)
	}
	if len(affected) != 1 || affected[0] != "file-1" {
		t.Errorf("受影响文件列表不符: %v", affected)
	}

	// post-2 的引用还在
	has, _ = svc.HasReferences(ctx, "file-1")
	if !has {
		t.Error("仍有引用的文件不应判定为无引用")
	}

	if _, err := svc.DeleteReferencesForResource(ctx, "post-2", constant.UsageAttachment); err != nil {
		t.Fatal(err)
	}
	has, _ = svc.HasReferences(ctx, "file-1")
	if has {
		t.Error("全部引用删除后应判定为无引用")
	}
}

func TestReferenceExpiration(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ref, err := svc.CreateReference(ctx, "file-2", "share-1", constant.UsageGeneral, nil)
	if err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-time.Hour)
	if err := svc.SetExpiration(ctx, ref.ID, &past); err != nil {
		t.Fatalf("设置过期时间失败: %v", err)
	}

	has, err := svc.HasReferences(ctx, "file-2")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("已过期的引用不应计入活跃引用")
	}
}

func TestSetExpirationByFileReportsAffectedRows(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateReference(ctx, "file-3", "post-a", constant.UsageAttachment, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateReference(ctx, "file-3", "post-b", constant.UsageGeneral, nil); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-time.Hour)
	affected, err := repo.SetExpirationByFile(ctx, "file-3", &past)
	if err != nil {
		t.Fatalf("按文件设置过期失败: %v", err)
	}
	if affected != 2 {
		t.Errorf("受影响行数不符: got=%d, want=2", affected)
	}

	// 服务层走同一条路径并负责作废缓存
	if err := svc.SetExpirationByFile(ctx, "file-3", &past); err != nil {
		t.Fatalf("服务层按文件设置过期失败: %v", err)
	}
	has, err := svc.HasReferences(ctx, "file-3")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("全部引用过期后不应再有活跃引用")
	}
}

func TestReferenceReadCacheAside(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	ref, err := svc.CreateReference(ctx, "file-5", "post-5", constant.UsageAttachment, nil)
	if err != nil {
		t.Fatal(err)
	}

	// 首次读落缓存
	has, err := svc.HasReferences(ctx, "file-5")
	if err != nil || !has {
		t.Fatalf("文件应有活跃引用: has=%v, err=%v", has, err)
	}
	refs, err := svc.ListByResource(ctx, "post-5", constant.UsageAttachment)
	if err != nil || len(refs) != 1 {
		t.Fatalf("引用列表不符: refs=%v, err=%v", refs, err)
	}

	// 绕过服务直接删库，缓存期内读到的仍是旧值
	if err := repo.DeleteByID(ctx, ref.ID); err != nil {
		t.Fatal(err)
	}
	has, _ = svc.HasReferences(ctx, "file-5")
	if !has {
		t.Error("缓存期内应命中旧的计数结果")
	}
	refs, _ = svc.ListByResource(ctx, "post-5", constant.UsageAttachment)
	if len(refs) != 1 {
		t.Errorf("缓存期内应命中旧的列表结果: %v", refs)
	}

	// 针对该文件的服务层变更会作废计数缓存
	if err := svc.SetExpirationByFile(ctx, "file-5", nil); err != nil {
		t.Fatal(err)
	}
	has, _ = svc.HasReferences(ctx, "file-5")
	if has {
		t.Error("变更作废缓存后应读到最新的计数结果")
	}

	// 针对该资源的服务层变更会作废列表缓存
	if _, err := svc.DeleteReferencesForResource(ctx, "post-5", constant.UsageAttachment); err != nil {
		t.Fatal(err)
	}
	refs, _ = svc.ListByResource(ctx, "post-5", constant.UsageAttachment)
	if len(refs) != 0 {
		t.Errorf("变更作废缓存后应读到最新的列表: %v", refs)
	}
}

func TestUpdateResourceFiles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateReferencesBatch(ctx, []string{"f1", "f2", "f3"}, "post-9", constant.UsageAttachment); err != nil {
		t.Fatal(err)
	}

	// 对齐到 f2、f4：删 f1/f3，建 f4，f2 不动
	if err := svc.UpdateResourceFiles(ctx, "post-9", constant.UsageAttachment, []string{"f2", "f4"}); err != nil {
		t.Fatalf("对齐引用集合失败: %v", err)
	}

	refs, err := svc.ListByResource(ctx, "post-9", constant.UsageAttachment)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range refs {
		got = append(got, r.FileID)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "f2" || got[1] != "f4" {
		t.Errorf("对齐后的引用集合不符: %v", got)
	}
}
