package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/qingyun-c/qingyun-drive/internal/infra/storage"
	"github.com/qingyun-c/qingyun-drive/internal/pkg/event"
	"github.com/qingyun-c/qingyun-drive/pkg/config"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/service/pool"
	"github.com/qingyun-c/qingyun-drive/pkg/service/utility"
)

const (
	fileCacheKeyPrefix = "file:"
	fileCacheTTL       = 5 * time.Minute
)

// IFileService 定义了逻辑文件的服务接口：摄取、查询、访问与删除。
type IFileService interface {
	// Ingest 受理一份内容：命中去重时只建逻辑记录不传输字节，
	// 未命中时暂存内容并发布摄取事件交给异步流水线。
	Ingest(ctx context.Context, input *IngestInput) (*model.File, error)
	// UploadToRemote 把暂存内容推到远端存储并补全索引，幂等。
	UploadToRemote(ctx context.Context, fileID string) error
	// ProcessIngested 对已摄取的文件执行完整的分析与上传流水线，可安全重试。
	ProcessIngested(ctx context.Context, fileID string) error
	// ReanalyzeStored 从远端对象回源，重建已上传文件的提取元数据与派生对象。
	// 远端字节已丢失时透传 constant.ErrNotFound。
	ReanalyzeStored(ctx context.Context, fileID string) error
	// DedupByDeclaredHash 按客户端声明的哈希尝试秒传，未命中返回 ErrNotFound。
	DedupByDeclaredHash(ctx context.Context, hash string, input *IngestInput) (*model.File, error)
	GetByID(ctx context.Context, id string) (*model.File, error)
	// GetDownloadURL 为文件生成临时访问链接；
	// 字节未到达远端时返回指向本地暂存内容的签名链接。
	GetDownloadURL(ctx context.Context, file *model.File, filename string) (string, error)
	// DeleteData 删除逻辑文件。仅当没有其他逻辑文件共享同一物理对象时
	// 才删除远端字节与索引行。
	DeleteData(ctx context.Context, fileID string) error
	// CreateAccessToken 为文件签发临时访问令牌，VerifyAccessToken 校验并返回文件 ID。
	CreateAccessToken(fileID string, ttl time.Duration) (string, error)
	VerifyAccessToken(token string) (string, error)
	// OpenContent 返回文件内容的读取流，优先远端，未上传时读本地暂存。
	OpenContent(ctx context.Context, file *model.File) (io.ReadCloser, error)
	BuildInfoResponse(ctx context.Context, file *model.File) *model.FileInfoResponse
}

// ProviderResolver 按存储池解析出存储提供者，*storage.ProviderFactory 满足此接口。
type ProviderResolver interface {
	GetProvider(pool *model.FilePool) (storage.IStorageProvider, error)
}

// IngestInput 描述一次内容摄取请求。
type IngestInput struct {
	Path      string // 内容所在的本地暂存路径
	FileName  string
	Size      int64
	MimeType  string
	PoolID    string
	AccountID string
	BundleID  *string
	ExpiredAt *time.Time
	UserMeta  model.JSONMap
}

type fileService struct {
	fileRepo   repository.FileRepository
	objectRepo repository.ObjectRepository
	poolSvc    pool.IPoolService
	factory    ProviderResolver
	cacheSvc   utility.CacheService
	bus        *event.EventBus
	cfg        *config.Config

	stagingDir    string
	signingSecret string
	ffprobePath   string
}

// NewFileService 是 fileService 的构造函数，并在事件总线上挂载摄取流水线。
func NewFileService(
	fileRepo repository.FileRepository,
	objectRepo repository.ObjectRepository,
	poolSvc pool.IPoolService,
	factory ProviderResolver,
	cacheSvc utility.CacheService,
	bus *event.EventBus,
	cfg *config.Config,
) IFileService {
	s := &fileService{
		fileRepo:      fileRepo,
		objectRepo:    objectRepo,
		poolSvc:       poolSvc,
		factory:       factory,
		cacheSvc:      cacheSvc,
		bus:           bus,
		cfg:           cfg,
		stagingDir:    cfg.GetStringOrDefault(config.KeyStagingDir, "data/staging"),
		signingSecret: cfg.GetString(config.KeySigningSecret),
		ffprobePath:   cfg.GetStringOrDefault(config.KeyFfprobePath, "ffprobe"),
	}
	if bus != nil {
		bus.Subscribe(constant.EventFileIngested, s.onFileIngested)
	}
	return s
}

func (s *fileService) GetByID(ctx context.Context, id string) (*model.File, error) {
	cacheKey := fileCacheKeyPrefix + id
	if cached, err := s.cacheSvc.Get(ctx, cacheKey); err == nil && cached != "" {
		var file model.File
		if err := json.Unmarshal([]byte(cached), &file); err == nil {
			return &file, nil
		}
	}

	file, err := s.fileRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(file); err == nil {
		if err := s.cacheSvc.Set(ctx, cacheKey, string(data), fileCacheTTL); err != nil {
			log.Printf("[FileService] 写入文件缓存失败: %v", err)
		}
	}
	return file, nil
}

// purgeCache 在任何写路径落库之后调用，保证读方不会命中旧数据。
func (s *fileService) purgeCache(ctx context.Context, fileID string) {
	if err := s.cacheSvc.Delete(ctx, fileCacheKeyPrefix+fileID); err != nil {
		log.Printf("[FileService] 清除文件缓存失败: id=%s, err=%v", fileID, err)
	}
}

func (s *fileService) GetDownloadURL(ctx context.Context, file *model.File, filename string) (string, error) {
	if filename == "" {
		filename = file.Name
	}

	// 字节还在本地暂存时，发放短时效的本地签名链接
	if !file.IsUploaded() {
		token, err := s.CreateAccessToken(file.ID, 10*time.Minute)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("/api/files/%s/raw?token=%s", file.ID, token), nil
	}

	p, err := s.poolSvc.GetByID(ctx, file.PoolID)
	if err != nil {
		return "", err
	}

	// 池关闭直链时统一走服务端代理
	if !p.UseSignedURL {
		token, err := s.CreateAccessToken(file.ID, time.Hour)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("/api/files/%s/raw?token=%s", file.ID, token), nil
	}

	provider, err := s.factory.GetProvider(p)
	if err != nil {
		return "", err
	}
	return provider.SignedURL(ctx, p, file.StorageID, storage.SignedURLOptions{
		PublicID: file.ID,
		Filename: filename,
	})
}

func (s *fileService) OpenContent(ctx context.Context, file *model.File) (io.ReadCloser, error) {
	if !file.IsUploaded() {
		f, err := os.Open(s.ingestStagingPath(file.ID))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, constant.ErrNotFound
			}
			return nil, err
		}
		return f, nil
	}

	p, err := s.poolSvc.GetByID(ctx, file.PoolID)
	if err != nil {
		return nil, err
	}
	provider, err := s.factory.GetProvider(p)
	if err != nil {
		return nil, err
	}
	return provider.Get(ctx, p, file.StorageID)
}

// DeleteData 的删除顺序：先确认共享、再删远端、最后删记录并清缓存。
// 远端的派生对象（压缩副本、缩略图）删除失败只告警，由孤儿清理任务兜底。
func (s *fileService) DeleteData(ctx context.Context, fileID string) error {
	file, err := s.fileRepo.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, constant.ErrNotFound) {
			return nil
		}
		return err
	}

	owners, err := s.fileRepo.CountByStorageID(ctx, file.StorageID)
	if err != nil {
		return err
	}
	// owners 含自身，大于 1 表示还有逻辑文件共享这份物理内容
	if owners > 1 {
		log.Printf("[FileService] 物理内容仍被共享，仅删除逻辑记录: file=%s, storage=%s", fileID, file.StorageID)
		if err := s.fileRepo.HardDelete(ctx, fileID); err != nil {
			return err
		}
		s.purgeCache(ctx, fileID)
		return nil
	}

	if file.IsUploaded() {
		if err := s.removeRemoteObjects(ctx, file); err != nil {
			return err
		}
	} else {
		// 字节还没离开本地，清掉暂存内容即可
		if err := os.Remove(s.ingestStagingPath(file.ID)); err != nil && !os.IsNotExist(err) {
			log.Printf("[FileService] 删除暂存内容失败: %v", err)
		}
	}

	if obj, err := s.objectRepo.FindObjectByHash(ctx, file.ContentHash); err == nil {
		if err := s.objectRepo.DeleteReplicasByObject(ctx, obj.ID); err != nil {
			log.Printf("[FileService] 删除副本索引失败: %v", err)
		}
		if err := s.objectRepo.DeleteObject(ctx, obj.ID); err != nil {
			log.Printf("[FileService] 删除对象索引失败: %v", err)
		}
	}

	if err := s.fileRepo.HardDelete(ctx, fileID); err != nil {
		return err
	}
	s.purgeCache(ctx, fileID)
	return nil
}

// removeRemoteObjects 删除远端的主对象与派生对象。
// 主对象删除失败会中止并返回错误，派生对象失败只告警。
func (s *fileService) removeRemoteObjects(ctx context.Context, file *model.File) error {
	p, err := s.poolSvc.GetByID(ctx, file.PoolID)
	if err != nil {
		if errors.Is(err, constant.ErrPoolNotFound) {
			log.Printf("[FileService] 存储池已不存在，跳过远端删除: pool=%s", file.PoolID)
			return nil
		}
		return err
	}
	provider, err := s.factory.GetProvider(p)
	if err != nil {
		return err
	}

	if err := provider.Remove(ctx, p, file.StorageID); err != nil {
		return fmt.Errorf("删除远端主对象失败: %w", err)
	}
	if file.HasCompression {
		if err := provider.Remove(ctx, p, file.StorageID+constant.SuffixCompressed); err != nil {
			log.Printf("[FileService] 删除压缩副本失败: %v", err)
		}
	}
	if file.HasThumbnail {
		if err := provider.Remove(ctx, p, file.StorageID+constant.SuffixThumbnail); err != nil {
			log.Printf("[FileService] 删除缩略图失败: %v", err)
		}
	}
	return nil
}

type accessClaims struct {
	FileID string `json:"fid"`
	jwt.RegisteredClaims
}

// CreateAccessToken 签发文件访问令牌，用于代理下载与本地暂存内容的访问。
func (s *fileService) CreateAccessToken(fileID string, ttl time.Duration) (string, error) {
	claims := accessClaims{
		FileID: fileID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.signingSecret))
}

func (s *fileService) VerifyAccessToken(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("意外的签名算法: %v", t.Header["alg"])
		}
		return []byte(s.signingSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", constant.ErrLinkExpired
		}
		return "", constant.ErrSignatureInvalid
	}
	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.FileID == "" {
		return "", constant.ErrSignatureInvalid
	}
	return claims.FileID, nil
}

func (s *fileService) BuildInfoResponse(ctx context.Context, file *model.File) *model.FileInfoResponse {
	resp := &model.FileInfoResponse{
		ID:              file.ID,
		Name:            file.Name,
		MimeType:        file.MimeType,
		Size:            file.Size,
		CreatedAt:       file.CreatedAt,
		UploadedAt:      file.UploadedAt,
		HasCompression:  file.HasCompression,
		HasThumbnail:    file.HasThumbnail,
		IsMarkedRecycle: file.IsMarkedRecycle,
		UserMeta:        file.UserMeta,
	}
	if url, err := s.GetDownloadURL(ctx, file, file.Name); err == nil {
		resp.URL = url
	}
	return resp
}

func newFileID() string {
	return uuid.NewString()
}
