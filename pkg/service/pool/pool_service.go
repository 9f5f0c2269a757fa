package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

const (
	cacheKeyPrefix = "pool:"
	cacheTTL       = 10 * time.Minute
)

// UploadCheck 描述一次上传意图，供存储池接收策略校验。
type UploadCheck struct {
	FileName       string
	Size           int64
	MimeType       string // 为空时按文件名后缀推断
	PrivilegeTier  int
	IsAnonymous    bool
	WantEncryption bool
}

// IPoolService 定义了存储池注册表的服务接口。
// 存储池是读多写少的配置对象，查询走缓存旁路。
type IPoolService interface {
	GetByID(ctx context.Context, id string) (*model.FilePool, error)
	Create(ctx context.Context, pool *model.FilePool) error
	Update(ctx context.Context, pool *model.FilePool) error
	List(ctx context.Context) ([]*model.FilePool, error)
	// ValidateUpload 校验上传意图是否符合池的接收策略，
	// 违规时返回包裹 ErrPolicyViolation 的错误并说明原因。
	ValidateUpload(ctx context.Context, pool *model.FilePool, check UploadCheck) error
}

type poolService struct {
	poolRepo repository.PoolRepository
	cacheSvc utility.CacheService
}

// NewPoolService 是 poolService 的构造函数
func NewPoolService(poolRepo repository.PoolRepository, cacheSvc utility.CacheService) IPoolService {
	return &poolService{
		poolRepo: poolRepo,
		cacheSvc: cacheSvc,
	}
}

func (s *poolService) GetByID(ctx context.Context, id string) (*model.FilePool, error) {
	cacheKey := cacheKeyPrefix + id
	if cached, err := s.cacheSvc.Get(ctx, cacheKey); err == nil && cached != "" {
		var pool model.FilePool
		if err := json.Unmarshal([]byte(cached), &pool); err == nil {
			return &pool, nil
		}
		// 缓存内容损坏时当作未命中，回源后覆盖
		log.Printf("[PoolService] 存储池缓存内容无法解析，回源: id=%s", id)
	}

	pool, err := s.poolRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(pool); err == nil {
		if err := s.cacheSvc.Set(ctx, cacheKey, string(data), cacheTTL); err != nil {
			log.Printf("[PoolService] 写入存储池缓存失败: %v", err)
		}
	}
	return pool, nil
}

func (s *poolService) Create(ctx context.Context, pool *model.FilePool) error {
	return s.poolRepo.Create(ctx, pool)
}

// Update 先落库再清缓存，保证后续读取不会命中旧配置。
func (s *poolService) Update(ctx context.Context, pool *model.FilePool) error {
	if err := s.poolRepo.Update(ctx, pool); err != nil {
		return err
	}
	if err := s.cacheSvc.Delete(ctx, cacheKeyPrefix+pool.ID); err != nil {
		log.Printf("[PoolService] 清除存储池缓存失败: id=%s, err=%v", pool.ID, err)
	}
	return nil
}

func (s *poolService) List(ctx context.Context) ([]*model.FilePool, error) {
	return s.poolRepo.List(ctx)
}

func (s *poolService) ValidateUpload(ctx context.Context, pool *model.FilePool, check UploadCheck) error {
	if check.IsAnonymous && !pool.AllowAnonymous {
		return fmt.Errorf("%w: 该存储池不接受匿名上传", constant.ErrPolicyViolation)
	}
	if !check.IsAnonymous && check.PrivilegeTier < pool.MinPrivilegeTier {
		return fmt.Errorf("%w: 权限等级不足（需要 %d）", constant.ErrPolicyViolation, pool.MinPrivilegeTier)
	}
	if check.WantEncryption && !pool.AllowEncryption {
		return fmt.Errorf("%w: 该存储池不支持加密存储", constant.ErrPolicyViolation)
	}
	if pool.MaxSize > 0 && check.Size > pool.MaxSize {
		return fmt.Errorf("%w: 文件大小 %d 超出上限 %d", constant.ErrPolicyViolation, check.Size, pool.MaxSize)
	}

	if len(pool.AcceptedMimes) > 0 {
		mimeType := check.MimeType
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(check.FileName))
		}
		if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
			mimeType = mediaType
		}
		if !mimeAccepted(pool.AcceptedMimes, mimeType) {
			return fmt.Errorf("%w: 不接受的文件类型 %q", constant.ErrPolicyViolation, mimeType)
		}
	}
	return nil
}

// mimeAccepted 支持精确匹配与 "image/*" 形式的前缀通配。
func mimeAccepted(accepted []string, mimeType string) bool {
	for _, pattern := range accepted {
		if pattern == mimeType {
			return true
		}
		if strings.HasSuffix(pattern, "/*") &&
			strings.HasPrefix(mimeType, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}
