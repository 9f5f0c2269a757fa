package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qingyun-c/qingyun-drive/internal/app/task"
	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/database"
	"github.com/qingyun-c/qingyun-drive/internal/infra/persistence/gormrepo"
	"github.com/qingyun-c/qingyun-drive/internal/infra/router"
	"github.com/qingyun-c/qingyun-drive/internal/infra/storage"
	"github.com/qingyun-c/qingyun-drive/internal/pkg/event"
	"github.com/qingyun-c/qingyun-drive/pkg/config"
	bundle_handler "github.com/qingyun-c/qingyun-drive/pkg/handler/bundle"
	file_handler "github.com/qingyun-c/qingyun-drive/pkg/handler/file"
	pool_handler "github.com/qingyun-c/qingyun-drive/pkg/handler/pool"
	upload_handler "github.com/qingyun-c/qingyun-drive/pkg/handler/upload"
	bundle_service "github.com/qingyun-c/qingyun-drive/pkg/service/bundle"
	file_service "github.com/qingyun-c/qingyun-drive/pkg/service/file"
	"github.com/qingyun-c/qingyun-drive/pkg/service/notify"
	pool_service "github.com/qingyun-c/qingyun-drive/pkg/service/pool"
	"github.com/qingyun-c/qingyun-drive/pkg/service/quota"
	reference_service "github.com/qingyun-c/qingyun-drive/pkg/service/reference"
	upload_service "github.com/qingyun-c/qingyun-drive/pkg/service/upload"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

// App 结构体，用于封装应用的所有核心组件
type App struct {
	cfg       *config.Config
	engine    *gin.Engine
	scheduler *task.Scheduler
	eventBus  *event.EventBus
}

// NewApp 是应用的构造函数，它执行所有的初始化和依赖注入工作
func NewApp() (*App, func(), error) {
	// --- Phase 1: 加载外部配置 ---
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// --- Phase 2: 初始化基础设施 ---
	db, err := database.NewGormDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	// Redis 连接失败时自动降级到内存缓存
	redisClient, err := database.NewRedisClient(context.Background(), cfg)
	if err != nil {
		log.Printf("[App] Redis 不可用，缓存降级到进程内存: %v", err)
		redisClient = nil
	}
	cacheSvc := utility.NewCacheServiceWithFallback(redisClient)

	eventBus := event.NewEventBus()
	factory := storage.NewProviderFactory(cfg.GetString(config.KeySigningSecret))

	cleanup := func() {
		log.Println("[App] 执行清理操作...")
		if redisClient != nil {
			redisClient.Close()
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	// --- Phase 3: 初始化数据仓库层 ---
	repos := gormrepo.NewRepositories(db)

	// --- Phase 4: 初始化业务逻辑层 ---
	poolSvc := pool_service.NewPoolService(repos.Pool, cacheSvc)
	fileSvc := file_service.NewFileService(repos.File, repos.Object, poolSvc, factory, cacheSvc, eventBus, cfg)
	refSvc := reference_service.NewReferenceService(repos.Reference, cacheSvc)
	bundleSvc := bundle_service.NewBundleService(repos.Bundle, repos.File, refSvc, gormrepo.NewTransactionManager(db))
	quotaSvc := quota.NewUnlimitedQuotaService()
	notifySvc := notify.NewLogNotifyService()
	uploadSvc := upload_service.NewUploadService(
		repos.Task, poolSvc, quotaSvc, fileSvc, notifySvc, cacheSvc, eventBus, cfg)

	// --- Phase 5: 初始化定时任务 ---
	scheduler := task.NewScheduler(uploadSvc, fileSvc, factory, repos, cacheSvc,
		cfg.GetStringOrDefault(config.KeyStagingDir, "data/staging"),
		cfg.GetStringOrDefault(config.KeyLocalUploadDir, "data/uploads"))
	scheduler.RegisterJobs()

	// --- Phase 6: 初始化 HTTP 层 ---
	if !cfg.GetBool(config.KeyServerDebug) {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.Default()
	r := router.NewRouter(
		upload_handler.NewHandler(uploadSvc),
		file_handler.NewHandler(fileSvc, cfg.GetString(config.KeySigningSecret)),
		bundle_handler.NewHandler(bundleSvc),
		pool_handler.NewHandler(poolSvc),
	)
	r.Setup(engine)

	return &App{
		cfg:       cfg,
		engine:    engine,
		scheduler: scheduler,
		eventBus:  eventBus,
	}, cleanup, nil
}

// Run 启动后台任务和 HTTP 服务，并阻塞到收到退出信号。
func (a *App) Run() error {
	a.scheduler.Start()

	addr := ":" + a.cfg.GetStringOrDefault(config.KeyServerPort, "8091")
	srv := &http.Server{
		Addr:    addr,
		Handler: a.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[App] HTTP 服务启动，监听 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Printf("[App] 收到信号 %s，开始优雅退出...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[App] HTTP 服务关闭异常: %v", err)
	}
	a.Stop()
	return nil
}

// Stop 停止调度器与事件总线，等待在途的后台处理完成。
func (a *App) Stop() {
	a.scheduler.Stop()
	a.eventBus.Shutdown()
}
