package task

import (
	"log/slog"
	"os"

	"github.com/robfig/cron/v3"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/file"
	"github.com/qingyun-c/qingyun-drive/pkg/service/upload"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

// Scheduler 封装了 cron 实例和其依赖。
// 它是整个定时任务模块的核心协调者，负责任务的注册、启动和停止。
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	uploadSvc  upload.IUploadService
	fileSvc    file.IFileService
	factory    file.ProviderResolver
	repos      repository.Repositories
	cacheSvc   utility.CacheService
	stagingDir string
	uploadDir  string
}

// NewScheduler 是 Scheduler 的构造函数。
func NewScheduler(
	uploadSvc upload.IUploadService,
	fileSvc file.IFileService,
	factory file.ProviderResolver,
	repos repository.Repositories,
	cacheSvc utility.CacheService,
	stagingDir, uploadDir string,
) *Scheduler {
	slogHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(slogHandler).With("system", "cron")

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			NewPanicRecoveryWrapper(logger),
			NewLoggingWrapper(logger),
			cron.DelayIfStillRunning(cron.DefaultLogger),
		),
	)

	return &Scheduler{
		cron:       c,
		logger:     logger,
		uploadSvc:  uploadSvc,
		fileSvc:    fileSvc,
		factory:    factory,
		repos:      repos,
		cacheSvc:   cacheSvc,
		stagingDir: stagingDir,
		uploadDir:  uploadDir,
	}
}

// RegisterJobs 在调度器中注册所有定义好的定时任务。
func (s *Scheduler) RegisterJobs() {
	s.logger.Info("Registering all periodic jobs...")

	s.mustAdd("0 0 * * * *", NewStaleUploadsJob(s.uploadSvc, s.repos.Task, s.repos.File, s.stagingDir, s.uploadDir), "every hour")
	s.mustAdd("0 30 * * * *", NewExpiredReferencesJob(s.repos.Reference, s.repos.File, s.cacheSvc), "every hour at :30")
	s.mustAdd("0 0 4 * * *", NewUnusedFilesJob(s.repos.File, s.repos.Pool, s.cacheSvc), "every day at 4:00:00 AM")
	s.mustAdd("0 0 5 * * *", NewRecyclePurgeJob(s.repos.File, s.fileSvc), "every day at 5:00:00 AM")
	s.mustAdd("0 30 5 * * *", NewOrphanedObjectsJob(s.repos.Object, s.repos.Pool, s.factory), "every day at 5:30:00 AM")
	s.mustAdd("0 15 */6 * * *", NewReanalysisJob(s.repos.File, s.fileSvc), "every 6 hours at :15")

	s.logger.Info("All periodic jobs registered.")
}

func (s *Scheduler) mustAdd(spec string, job Job, schedule string) {
	if _, err := s.cron.AddJob(spec, job); err != nil {
		s.logger.Error("Failed to add job", slog.String("job_name", job.Name()), slog.Any("error", err))
		os.Exit(1)
	}
	s.logger.Info("-> Successfully registered '"+job.Name()+"'", "schedule", schedule)
}

// Start 启动 cron 调度器。
func (s *Scheduler) Start() {
	s.logger.Info("Cron scheduler started.")
	s.cron.Start()
}

// Stop 优雅地停止 cron 调度器。
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron scheduler gracefully stopped.")
}
