package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qingyun-c/qingyun-drive/internal/pkg/event"
	"github.com/qingyun-c/qingyun-drive/pkg/config"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/file"
	"github.com/qingyun-c/qingyun-drive/pkg/service/notify"
	"github.com/qingyun-c/qingyun-drive/pkg/service/pool"
	"github.com/qingyun-c/qingyun-drive/pkg/service/quota"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

const (
	// DefaultChunkSize 是未指定时的分片大小
	DefaultChunkSize = 5 << 20 // 5MiB

	// taskTTL 是任务创建后的有效期，最后活动超过它的任务按滞留处理
	taskTTL = 24 * time.Hour

	// progressFlushStep 是进度写穿数据库的最小步长。
	// 低于该步长的进度只更新缓存，减少大文件上传的行锁争抢。
	progressFlushStep = 0.05

	chunkCacheKeyPrefix = "upload:chunks:"
)

// UploaderIdentity 描述发起上传的主体
type UploaderIdentity struct {
	AccountID     string
	PrivilegeTier int
	IsAnonymous   bool
}

// IUploadService 定义了可断点续传的分片上传会话接口。
type IUploadService interface {
	// CreateTask 受理一次分片上传：策略校验、配额预检、声明哈希秒传短路。
	CreateTask(ctx context.Context, who UploaderIdentity, req *model.CreateUploadTaskRequest) (*model.UploadTaskData, error)
	// UploadChunk 落盘一个分片并合并进度，重传同一分片幂等。
	UploadChunk(ctx context.Context, taskID string, index int, data []byte) (*model.UploadTaskStatusResponse, error)
	GetStatus(ctx context.Context, taskID string) (*model.UploadTaskStatusResponse, error)
	Pause(ctx context.Context, taskID string) error
	Resume(ctx context.Context, taskID string) error
	Cancel(ctx context.Context, taskID string) error
	// Complete 合并全部分片并移交文件服务摄取，缺分片时返回 ErrIncompleteUpload。
	Complete(ctx context.Context, taskID string) (*model.File, error)
	// CleanupStale 把滞留超过有效期的任务标记为过期并清理暂存目录。
	CleanupStale(ctx context.Context) (int, error)
}

type uploadService struct {
	taskRepo  repository.UploadTaskRepository
	poolSvc   pool.IPoolService
	quotaSvc  quota.IQuotaService
	fileSvc   file.IFileService
	notifySvc notify.INotifyService
	cacheSvc  utility.CacheService
	bus       *event.EventBus

	stagingDir        string
	keepFailedStaging bool
}

// NewUploadService 是 uploadService 的构造函数
func NewUploadService(
	taskRepo repository.UploadTaskRepository,
	poolSvc pool.IPoolService,
	quotaSvc quota.IQuotaService,
	fileSvc file.IFileService,
	notifySvc notify.INotifyService,
	cacheSvc utility.CacheService,
	bus *event.EventBus,
	cfg *config.Config,
) IUploadService {
	return &uploadService{
		taskRepo:          taskRepo,
		poolSvc:           poolSvc,
		quotaSvc:          quotaSvc,
		fileSvc:           fileSvc,
		notifySvc:         notifySvc,
		cacheSvc:          cacheSvc,
		bus:               bus,
		stagingDir:        cfg.GetStringOrDefault(config.KeyStagingDir, "data/staging"),
		keepFailedStaging: cfg.GetBool(config.KeyKeepFailedStaging),
	}
}

func (s *uploadService) CreateTask(ctx context.Context, who UploaderIdentity, req *model.CreateUploadTaskRequest) (*model.UploadTaskData, error) {
	p, err := s.poolSvc.GetByID(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}

	if err := s.poolSvc.ValidateUpload(ctx, p, pool.UploadCheck{
		FileName:       req.FileName,
		Size:           req.FileSize,
		MimeType:       req.ContentType,
		PrivilegeTier:  who.PrivilegeTier,
		IsAnonymous:    who.IsAnonymous,
		WantEncryption: req.EncryptPassword != "",
	}); err != nil {
		return nil, err
	}

	ok, used, limit, err := s.quotaSvc.IsAcceptable(ctx, who.AccountID, p.BillingFactor, req.FileSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: 已用 %d / 上限 %d", constant.ErrInsufficientQuota, used, limit)
	}

	var bundleID *string
	if req.BundleID != "" {
		bundleID = &req.BundleID
	}

	// 声明哈希秒传：命中则不建任务，零字节传输直接返回文件
	if req.Hash != "" && req.EncryptPassword == "" {
		dedup, err := s.fileSvc.DedupByDeclaredHash(ctx, req.Hash, &file.IngestInput{
			FileName:  req.FileName,
			Size:      req.FileSize,
			MimeType:  req.ContentType,
			PoolID:    req.PoolID,
			AccountID: who.AccountID,
			BundleID:  bundleID,
		})
		if err == nil {
			return &model.UploadTaskData{FileExists: true, FileID: dedup.ID}, nil
		}
		if !errors.Is(err, constant.ErrNotFound) {
			return nil, err
		}
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunksCount := int((req.FileSize + chunkSize - 1) / chunkSize)
	if chunksCount == 0 {
		chunksCount = 1
	}

	now := time.Now().UTC()
	expiredAt := now.Add(taskTTL)
	task := &model.UploadTask{
		ID:              uuid.NewString(),
		FileName:        req.FileName,
		FileSize:        req.FileSize,
		ContentType:     req.ContentType,
		ChunkSize:       chunkSize,
		ChunksCount:     chunksCount,
		UploadedChunks:  model.ChunkSet{},
		PoolID:          req.PoolID,
		BundleID:        bundleID,
		EncryptPassword: req.EncryptPassword,
		DeclaredHash:    req.Hash,
		AccountID:       who.AccountID,
		Status:          model.TaskStatusPending,
		ExpiredAt:       &expiredAt,
		LastActivity:    now,
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}
	if err := s.writeTaskMeta(task); err != nil {
		log.Printf("[UploadService] 写入任务镜像失败: task=%s, err=%v", task.ID, err)
	}

	return &model.UploadTaskData{
		TaskID:      task.ID,
		ChunkSize:   chunkSize,
		ChunksCount: chunksCount,
		Expires:     expiredAt.Unix(),
	}, nil
}

func (s *uploadService) UploadChunk(ctx context.Context, taskID string, index int, data []byte) (*model.UploadTaskStatusResponse, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: 任务已进入终态 %s", constant.ErrConflict, task.Status)
	}
	if task.Status == model.TaskStatusPaused {
		return nil, fmt.Errorf("%w: 任务已暂停", constant.ErrConflict)
	}
	if index < 0 || index >= task.ChunksCount {
		return nil, fmt.Errorf("%w: 分片下标 %d 越界（共 %d 片）", constant.ErrBadRequest, index, task.ChunksCount)
	}
	if expectedChunkLen(task, index) != int64(len(data)) {
		return nil, fmt.Errorf("%w: 分片 %d 长度不符", constant.ErrBadRequest, index)
	}

	if task.Status == model.TaskStatusPending {
		// 竞争失败说明另一个请求已完成迁移，继续即可
		if _, err := s.taskRepo.UpdateStatus(ctx, taskID, model.TaskStatusPending, model.TaskStatusInProgress); err != nil {
			return nil, err
		}
	}

	if err := s.writeChunk(taskID, index, data); err != nil {
		return nil, fmt.Errorf("落盘分片失败: %w", err)
	}

	merged := s.mergeChunkProgress(ctx, task, index)
	return s.buildStatus(merged), nil
}

// mergeChunkProgress 合并分片确认。缓存副本总是即时更新；
// 数据库行只在进度跨过写穿步长或集合齐全时更新，
// 丢失的确认可以在完成阶段由磁盘扫描找回。
func (s *uploadService) mergeChunkProgress(ctx context.Context, task *model.UploadTask, index int) *model.UploadTask {
	set := s.loadChunkOverlay(ctx, task)
	set[index] = true

	if data, err := json.Marshal(set.Indices()); err == nil {
		if err := s.cacheSvc.Set(ctx, chunkCacheKeyPrefix+task.ID, string(data), taskTTL); err != nil {
			log.Printf("[UploadService] 更新分片缓存失败: %v", err)
		}
	}

	progress := float64(len(set)) / float64(task.ChunksCount)
	complete := len(set) == task.ChunksCount
	if complete || progress-task.Progress >= progressFlushStep {
		merged, err := s.taskRepo.MergeChunks(ctx, task.ID, set.Indices())
		if err != nil {
			log.Printf("[UploadService] 写穿分片进度失败: task=%s, err=%v", task.ID, err)
		} else {
			task = merged
			if err := s.writeTaskMeta(task); err != nil {
				log.Printf("[UploadService] 刷新任务镜像失败: %v", err)
			}
		}
		if s.bus != nil {
			s.bus.Publish(constant.EventUploadProgress, &model.UploadProgressEvent{
				TaskID:   task.ID,
				Progress: progress,
				Done:     complete,
			})
		}
	} else {
		task.UploadedChunks = set
		task.Progress = progress
	}
	return task
}

// loadChunkOverlay 返回数据库集合与缓存副本的并集
func (s *uploadService) loadChunkOverlay(ctx context.Context, task *model.UploadTask) model.ChunkSet {
	set := model.ChunkSet{}
	for i := range task.UploadedChunks {
		set[i] = true
	}
	if cached, err := s.cacheSvc.Get(ctx, chunkCacheKeyPrefix+task.ID); err == nil && cached != "" {
		var indices []int
		if err := json.Unmarshal([]byte(cached), &indices); err == nil {
			for _, i := range indices {
				set[i] = true
			}
		}
	}
	return set
}

func expectedChunkLen(task *model.UploadTask, index int) int64 {
	// 空文件按单个零长度分片表示
	if task.FileSize == 0 {
		return 0
	}
	if index == task.ChunksCount-1 {
		last := task.FileSize - int64(task.ChunksCount-1)*task.ChunkSize
		if last > 0 {
			return last
		}
	}
	return task.ChunkSize
}

func (s *uploadService) GetStatus(ctx context.Context, taskID string) (*model.UploadTaskStatusResponse, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.UploadedChunks = s.loadChunkOverlay(ctx, task)
	if task.ChunksCount > 0 {
		task.Progress = float64(len(task.UploadedChunks)) / float64(task.ChunksCount)
	}
	return s.buildStatus(task), nil
}

func (s *uploadService) buildStatus(task *model.UploadTask) *model.UploadTaskStatusResponse {
	indices := task.UploadedChunks.Indices()
	sort.Ints(indices)
	return &model.UploadTaskStatusResponse{
		TaskID:         task.ID,
		Status:         task.Status,
		ChunkSize:      task.ChunkSize,
		ChunksCount:    task.ChunksCount,
		UploadedChunks: indices,
		Progress:       task.Progress,
		ExpiresAt:      task.ExpiredAt,
	}
}

func (s *uploadService) Pause(ctx context.Context, taskID string) error {
	ok, err := s.taskRepo.UpdateStatus(ctx, taskID, model.TaskStatusInProgress, model.TaskStatusPaused)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: 仅进行中的任务可以暂停", constant.ErrConflict)
	}
	return nil
}

func (s *uploadService) Resume(ctx context.Context, taskID string) error {
	ok, err := s.taskRepo.UpdateStatus(ctx, taskID, model.TaskStatusPaused, model.TaskStatusInProgress)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: 仅已暂停的任务可以恢复", constant.ErrConflict)
	}
	return nil
}

func (s *uploadService) Cancel(ctx context.Context, taskID string) error {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: 任务已进入终态 %s", constant.ErrConflict, task.Status)
	}
	if _, err := s.taskRepo.UpdateStatus(ctx, taskID, task.Status, model.TaskStatusCancelled); err != nil {
		return err
	}
	s.dropTaskState(ctx, taskID)
	return nil
}

func (s *uploadService) dropTaskState(ctx context.Context, taskID string) {
	if err := s.removeStaging(taskID); err != nil {
		log.Printf("[UploadService] 清理任务暂存目录失败: task=%s, err=%v", taskID, err)
	}
	if err := s.cacheSvc.Delete(ctx, chunkCacheKeyPrefix+taskID); err != nil {
		log.Printf("[UploadService] 清理分片缓存失败: %v", err)
	}
}
