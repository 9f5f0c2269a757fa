package bundle

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
	"github.com/qingyun-c/qingyun-drive/pkg/idgen"
	"github.com/qingyun-c/qingyun-drive/pkg/service/reference"
)

// IBundleService 定义了文件分享包的服务接口。
// 成员文件通过 usage 为 bundle 的引用关联，分享有效期内成员不会被回收；
// 创建上传任务时直接携带 bundle_id 的文件也是成员。
type IBundleService interface {
	Create(ctx context.Context, accountID, passcode string, fileIDs []string, expiredAt *time.Time) (*model.FileBundle, error)
	// GetBySlug 按外部标识取分享包，过期返回 ErrLinkExpired，口令不符返回 ErrForbidden。
	GetBySlug(ctx context.Context, slug, passcode string) (*model.BundleInfoResponse, error)
	UpdateFiles(ctx context.Context, bundleID string, fileIDs []string) error
	Delete(ctx context.Context, bundleID string) error
}

type bundleService struct {
	bundleRepo repository.BundleRepository
	fileRepo   repository.FileRepository
	refSvc     reference.IReferenceService
	txManager  repository.TransactionManager
}

// NewBundleService 是 bundleService 的构造函数
func NewBundleService(
	bundleRepo repository.BundleRepository,
	fileRepo repository.FileRepository,
	refSvc reference.IReferenceService,
	txManager repository.TransactionManager,
) IBundleService {
	return &bundleService{
		bundleRepo: bundleRepo,
		fileRepo:   fileRepo,
		refSvc:     refSvc,
		txManager:  txManager,
	}
}

func hashPasscode(passcode string) string {
	sum := sha256.Sum256([]byte(passcode))
	return hex.EncodeToString(sum[:])
}

func (s *bundleService) Create(ctx context.Context, accountID, passcode string, fileIDs []string, expiredAt *time.Time) (*model.FileBundle, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("%w: 分享包至少包含一个文件", constant.ErrBadRequest)
	}

	slug, err := idgen.NewBundleSlug()
	if err != nil {
		return nil, err
	}

	b := &model.FileBundle{
		ID:        uuid.NewString(),
		Slug:      slug,
		ExpiredAt: expiredAt,
		AccountID: accountID,
	}
	if passcode != "" {
		b.PasscodeHash = hashPasscode(passcode)
	}

	// 包记录与成员引用一并落库，引用跟随分享包的有效期
	err = s.txManager.Do(ctx, func(repos repository.Repositories) error {
		if err := repos.Bundle.Create(ctx, b); err != nil {
			return err
		}
		refs := make([]*model.FileReference, 0, len(fileIDs))
		for _, fileID := range fileIDs {
			refs = append(refs, &model.FileReference{
				ID:         uuid.NewString(),
				FileID:     fileID,
				Usage:      constant.UsageBundle,
				ResourceID: b.ID,
				ExpiredAt:  expiredAt,
			})
		}
		return repos.Reference.CreateBatch(ctx, refs)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *bundleService) GetBySlug(ctx context.Context, slug, passcode string) (*model.BundleInfoResponse, error) {
	b, err := s.bundleRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if b.IsExpired(time.Now()) {
		return nil, constant.ErrLinkExpired
	}
	if b.PasscodeHash != "" {
		given := hashPasscode(passcode)
		if subtle.ConstantTimeCompare([]byte(given), []byte(b.PasscodeHash)) != 1 {
			return nil, constant.ErrForbidden
		}
	}

	files, err := s.memberFiles(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	return &model.BundleInfoResponse{
		ID:        b.ID,
		Slug:      b.Slug,
		HasPass:   b.PasscodeHash != "",
		ExpiredAt: b.ExpiredAt,
		Files:     files,
	}, nil
}

// memberFiles 合并两类成员：显式引用关联的，和上传时直接挂到包下的。
func (s *bundleService) memberFiles(ctx context.Context, bundleID string) ([]string, error) {
	refs, err := s.refSvc.ListByResource(ctx, bundleID, constant.UsageBundle)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(refs))
	files := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !seen[ref.FileID] {
			seen[ref.FileID] = true
			files = append(files, ref.FileID)
		}
	}

	uploaded, err := s.fileRepo.ListByBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	for _, f := range uploaded {
		if !seen[f.ID] {
			seen[f.ID] = true
			files = append(files, f.ID)
		}
	}
	return files, nil
}

func (s *bundleService) UpdateFiles(ctx context.Context, bundleID string, fileIDs []string) error {
	if _, err := s.bundleRepo.FindByID(ctx, bundleID); err != nil {
		return err
	}
	return s.refSvc.UpdateResourceFiles(ctx, bundleID, constant.UsageBundle, fileIDs)
}

// Delete 先走引用服务删成员（带缓存清理），再删包记录。
func (s *bundleService) Delete(ctx context.Context, bundleID string) error {
	if _, err := s.refSvc.DeleteReferencesForResource(ctx, bundleID, constant.UsageBundle); err != nil {
		return err
	}
	return s.bundleRepo.HardDelete(ctx, bundleID)
}
