package bundle

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/database"
	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/gormrepo"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/service/reference"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

func newTestService(t *testing.T) (IBundleService, reference.IReferenceService) {
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
	repos := gormrepo.NewRepositories(db)
	refSvc := reference.NewReferenceService(repos.Reference, utility.NewMemoryCacheService())
	return NewBundleService(repos.Bundle, repos.File, refSvc, gormrepo.NewTransactionManager(db)), refSvc
}

func TestBundleLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, "user-1", "", []string{"file-1", "file-2"}, nil)
	if err != nil {
		t.Fatalf("创建分享包失败: %v", err)
	}
	if b.Slug == "" {
		t.Fatal("分享包缺少外部标识")
	}

	info, err := svc.GetBySlug(ctx, b.Slug, "")
	if err != nil {
		t.Fatalf("按标识取分享包失败: %v", err)
	}
	if info.HasPass {
		t.Error("无口令分享包不应要求口令")
	}
	sort.Strings(info.Files)
	if len(info.Files) != 2 || info.Files[0] != "file-1" || info.Files[1] != "file-2" {
		t.Errorf("成员文件不符: %v", info.Files)
	}

	if err := svc.UpdateFiles(ctx, b.ID, []string{"file-2", "file-3"}); err != nil {
		t.Fatalf("更新成员失败: %v", err)
	}
	info, err = svc.GetBySlug(ctx, b.Slug, "")
	if err != nil {
		t.Fatalf("按标识取分享包失败: %v", err)
	}
	sort.Strings(info.Files)
	if len(info.Files) != 2 || info.Files[0] != "file-2" || info.Files[1] != "file-3" {
		t.Errorf("更新后成员不符: %v", info.Files)
	}

	if err := svc.Delete(ctx, b.ID); err != nil {
		t.Fatalf("删除分享包失败: %v", err)
	}
	if _, err := svc.GetBySlug(ctx, b.Slug, ""); !errors.Is(err, constant.ErrNotFound) {
		t.Errorf("删除后应返回 ErrNotFound, 实际: %v", err)
	}
}

func TestBundlePasscode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, "user-1", "secret", []string{"file-1"}, nil)
	if err != nil {
		t.Fatalf("创建分享包失败: %v", err)
	}

	if _, err := svc.GetBySlug(ctx, b.Slug, "wrong"); !errors.Is(err, constant.ErrForbidden) {
		t.Errorf("口令错误应返回 ErrForbidden, 实际: %v", err)
	}
	if _, err := svc.GetBySlug(ctx, b.Slug, ""); !errors.Is(err, constant.ErrForbidden) {
		t.Errorf("缺口令应返回 ErrForbidden, 实际: %v", err)
	}

	info, err := svc.GetBySlug(ctx, b.Slug, "secret")
	if err != nil {
		t.Fatalf("口令正确仍失败: %v", err)
	}
	if !info.HasPass {
		t.Error("带口令分享包 HasPass 应为 true")
	}
}

func TestBundleExpiration(t *testing.T) {
	svc, refSvc := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	b, err := svc.Create(ctx, "user-1", "", []string{"file-1"}, &past)
	if err != nil {
		t.Fatalf("创建分享包失败: %v", err)
	}

	if _, err := svc.GetBySlug(ctx, b.Slug, ""); !errors.Is(err, constant.ErrLinkExpired) {
		t.Errorf("过期分享包应返回 ErrLinkExpired, 实际: %v", err)
	}

	// 成员引用同步带上了有效期，到期后不再计入活跃引用
	has, err := refSvc.HasReferences(ctx, "file-1")
	if err != nil {
		t.Fatalf("查询引用失败: %v", err)
	}
	if has {
		t.Error("过期成员引用不应计入活跃引用")
	}
}
