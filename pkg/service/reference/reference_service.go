package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

const (
	countCacheKeyPrefix = "ref:count:"
	listCacheKeyPrefix  = "ref:list:"
	// 读缓存的有效期刻意压短：活跃引用数随时间自然变化（引用会到期），
	// 失效兜底不能只依赖显式清除。
	readCacheTTL = time.Minute
)

// IReferenceService 定义了文件引用的服务接口。
// 引用表达“资源 X 为了用途 Z 正在使用文件 Y”，是回收判定的依据：
// 没有活跃引用的文件才可能被生命周期任务回收。
type IReferenceService interface {
	CreateReference(ctx context.Context, fileID, resourceID string, usage constant.FileUsage, expiredAt *time.Time) (*model.FileReference, error)
	CreateReferencesBatch(ctx context.Context, fileIDs []string, resourceID string, usage constant.FileUsage) error
	// DeleteReferencesForResource 移除资源名下的全部引用，
	// 返回因此可能失去最后引用的文件 ID 列表。
	DeleteReferencesForResource(ctx context.Context, resourceID string, usage constant.FileUsage) ([]string, error)
	// UpdateResourceFiles 把资源的引用集合对齐到给定文件列表：
	// 多余的删、缺少的建、已有的保持不动。
	UpdateResourceFiles(ctx context.Context, resourceID string, usage constant.FileUsage, fileIDs []string) error
	SetExpiration(ctx context.Context, referenceID string, expiredAt *time.Time) error
	SetExpirationByFile(ctx context.Context, fileID string, expiredAt *time.Time) error
	HasReferences(ctx context.Context, fileID string) (bool, error)
	ListByResource(ctx context.Context, resourceID string, usage constant.FileUsage) ([]*model.FileReference, error)
}

type referenceService struct {
	refRepo  repository.ReferenceRepository
	cacheSvc utility.CacheService
}

// NewReferenceService 是 referenceService 的构造函数
func NewReferenceService(refRepo repository.ReferenceRepository, cacheSvc utility.CacheService) IReferenceService {
	return &referenceService{
		refRepo:  refRepo,
		cacheSvc: cacheSvc,
	}
}

// purgeFileCache 在引用变更落库后清文件缓存与引用计数缓存：
// 引用状态影响文件的生命周期判定，读方不能命中旧值。
func (s *referenceService) purgeFileCache(ctx context.Context, fileIDs ...string) {
	keys := make([]string, 0, 2*len(fileIDs))
	for _, id := range fileIDs {
		keys = append(keys, "file:"+id, countCacheKeyPrefix+id)
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cacheSvc.Delete(ctx, keys...); err != nil {
		log.Printf("[ReferenceService] 清除文件缓存失败: %v", err)
	}
}

// purgeResourceCache 清掉资源引用列表的缓存，连同不过滤用途的变体。
func (s *referenceService) purgeResourceCache(ctx context.Context, resourceID string, usage constant.FileUsage) {
	keys := []string{listCacheKeyPrefix + resourceID + ":"}
	if usage != "" {
		keys = append(keys, listCacheKeyPrefix+resourceID+":"+string(usage))
	}
	if err := s.cacheSvc.Delete(ctx, keys...); err != nil {
		log.Printf("[ReferenceService] 清除引用列表缓存失败: %v", err)
	}
}

func (s *referenceService) CreateReference(ctx context.Context, fileID, resourceID string, usage constant.FileUsage, expiredAt *time.Time) (*model.FileReference, error) {
	if fileID == "" || resourceID == "" {
		return nil, fmt.Errorf("%w: 引用缺少文件或资源标识", constant.ErrBadRequest)
	}
	ref := &model.FileReference{
		ID:         uuid.NewString(),
		FileID:     fileID,
		Usage:      usage,
		ResourceID: resourceID,
		ExpiredAt:  expiredAt,
	}
	if err := s.refRepo.Create(ctx, ref); err != nil {
		return nil, err
	}
	s.purgeFileCache(ctx, fileID)
	s.purgeResourceCache(ctx, resourceID, usage)
	return ref, nil
}

func (s *referenceService) CreateReferencesBatch(ctx context.Context, fileIDs []string, resourceID string, usage constant.FileUsage) error {
	if len(fileIDs) == 0 {
		return nil
	}
	refs := make([]*model.FileReference, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		refs = append(refs, &model.FileReference{
			ID:         uuid.NewString(),
			FileID:     fileID,
			Usage:      usage,
			ResourceID: resourceID,
		})
	}
	if err := s.refRepo.CreateBatch(ctx, refs); err != nil {
		return err
	}
	s.purgeFileCache(ctx, fileIDs...)
	s.purgeResourceCache(ctx, resourceID, usage)
	return nil
}

func (s *referenceService) DeleteReferencesForResource(ctx context.Context, resourceID string, usage constant.FileUsage) ([]string, error) {
	affected, err := s.refRepo.DeleteByResource(ctx, resourceID, usage)
	if err != nil {
		return nil, err
	}
	s.purgeFileCache(ctx, affected...)
	s.purgeResourceCache(ctx, resourceID, usage)
	return affected, nil
}

func (s *referenceService) UpdateResourceFiles(ctx context.Context, resourceID string, usage constant.FileUsage, fileIDs []string) error {
	current, err := s.refRepo.ListByResource(ctx, resourceID, usage)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		want[id] = true
	}

	var touched []string
	have := make(map[string]bool, len(current))
	for _, ref := range current {
		have[ref.FileID] = true
		if !want[ref.FileID] {
			if err := s.refRepo.DeleteByID(ctx, ref.ID); err != nil {
				return err
			}
			touched = append(touched, ref.FileID)
		}
	}

	var missing []*model.FileReference
	for _, id := range fileIDs {
		if !have[id] {
			missing = append(missing, &model.FileReference{
				ID:         uuid.NewString(),
				FileID:     id,
				Usage:      usage,
				ResourceID: resourceID,
			})
			touched = append(touched, id)
		}
	}
	if len(missing) > 0 {
		if err := s.refRepo.CreateBatch(ctx, missing); err != nil {
			return err
		}
	}

	s.purgeFileCache(ctx, touched...)
	s.purgeResourceCache(ctx, resourceID, usage)
	return nil
}

func (s *referenceService) SetExpiration(ctx context.Context, referenceID string, expiredAt *time.Time) error {
	ref, err := s.refRepo.FindByID(ctx, referenceID)
	if err != nil {
		return err
	}
	if err := s.refRepo.SetExpirationByID(ctx, referenceID, expiredAt); err != nil {
		return err
	}
	s.purgeFileCache(ctx, ref.FileID)
	s.purgeResourceCache(ctx, ref.ResourceID, ref.Usage)
	return nil
}

func (s *referenceService) SetExpirationByFile(ctx context.Context, fileID string, expiredAt *time.Time) error {
	// 先取引用行，变更后它们所属资源的列表缓存也要一并作废
	refs, err := s.refRepo.ListByFile(ctx, fileID)
	if err != nil {
		return err
	}
	if _, err := s.refRepo.SetExpirationByFile(ctx, fileID, expiredAt); err != nil {
		return err
	}
	s.purgeFileCache(ctx, fileID)
	for _, ref := range refs {
		s.purgeResourceCache(ctx, ref.ResourceID, ref.Usage)
	}
	return nil
}

func (s *referenceService) HasReferences(ctx context.Context, fileID string) (bool, error) {
	cacheKey := countCacheKeyPrefix + fileID
	if cached, err := s.cacheSvc.Get(ctx, cacheKey); err == nil && cached != "" {
		return cached == "1", nil
	}

	count, err := s.refRepo.CountActiveByFile(ctx, fileID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	val := "0"
	if count > 0 {
		val = "1"
	}
	if err := s.cacheSvc.Set(ctx, cacheKey, val, readCacheTTL); err != nil {
		log.Printf("[ReferenceService] 写入引用计数缓存失败: %v", err)
	}
	return count > 0, nil
}

func (s *referenceService) ListByResource(ctx context.Context, resourceID string, usage constant.FileUsage) ([]*model.FileReference, error) {
	cacheKey := listCacheKeyPrefix + resourceID + ":" + string(usage)
	if cached, err := s.cacheSvc.Get(ctx, cacheKey); err == nil && cached != "" {
		var refs []*model.FileReference
		if err := json.Unmarshal([]byte(cached), &refs); err == nil {
			return refs, nil
		}
	}

	refs, err := s.refRepo.ListByResource(ctx, resourceID, usage)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(refs); err == nil {
		if err := s.cacheSvc.Set(ctx, cacheKey, string(data), readCacheTTL); err != nil {
			log.Printf("[ReferenceService] 写入引用列表缓存失败: %v", err)
		}
	}
	return refs, nil
}
