package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/qingyun-c/qingyun-drive/internal/pkg/hashx"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// ingestStagingPath 返回摄取暂存内容的存放路径
func (s *fileService) ingestStagingPath(fileID string) string {
	return filepath.Join(s.stagingDir, "ingest", fileID)
}

// Ingest 受理一份内容。
//
// 去重判定以内容指纹为主键、声明长度为次级校验：指纹是快速近似值，
// 头尾取样可能把长度不同的内容算出同一指纹，长度不一致时不复用。
// 命中去重时新逻辑记录直接借用命中行的 StorageID 与派生标志，零字节传输；
// 未命中时内容移入暂存区，记录以“处理中”状态落库，由异步流水线完成
// 元数据提取与远端上传。
func (s *fileService) Ingest(ctx context.Context, input *IngestInput) (*model.File, error) {
	src, err := os.Open(input.Path)
	if err != nil {
		return nil, fmt.Errorf("打开待摄取内容失败: %w", err)
	}
	defer src.Close()

	hash, err := hashx.Hash(src, input.Size)
	if err != nil {
		return nil, err
	}

	existing, err := s.fileRepo.FindByContentHash(ctx, hash)
	if err != nil && !errors.Is(err, constant.ErrNotFound) {
		return nil, err
	}

	if existing != nil && existing.Size == input.Size && existing.IsUploaded() {
		return s.ingestDedup(ctx, input, hash, existing)
	}
	return s.ingestNew(ctx, input, hash)
}

// DedupByDeclaredHash 按客户端声明的哈希尝试秒传：
// 声明值命中已上传且长度一致的内容时直接建共享记录，未命中返回 ErrNotFound。
func (s *fileService) DedupByDeclaredHash(ctx context.Context, hash string, input *IngestInput) (*model.File, error) {
	if hash == "" {
		return nil, constant.ErrNotFound
	}
	existing, err := s.fileRepo.FindByContentHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing.Size != input.Size || !existing.IsUploaded() {
		return nil, constant.ErrNotFound
	}
	return s.ingestDedup(ctx, input, hash, existing)
}

// ingestDedup 是去重快速路径：共享已有物理内容，不触发优化流水线。
func (s *fileService) ingestDedup(ctx context.Context, input *IngestInput, hash string, existing *model.File) (*model.File, error) {
	now := time.Now().UTC()
	file := &model.File{
		ID:             newFileID(),
		Name:           input.FileName,
		MimeType:       firstNonEmpty(input.MimeType, existing.MimeType),
		Size:           input.Size,
		ContentHash:    hash,
		StorageID:      existing.StorageID,
		PoolID:         existing.PoolID,
		AccountID:      input.AccountID,
		BundleID:       input.BundleID,
		UploadedAt:     &now,
		HasCompression: existing.HasCompression,
		HasThumbnail:   existing.HasThumbnail,
		ExpiredAt:      input.ExpiredAt,
		UserMeta:       input.UserMeta,
		SensitiveMarks: existing.SensitiveMarks,
	}
	if err := s.fileRepo.Create(ctx, file); err != nil {
		return nil, err
	}

	// 复用路径不再需要调用方的暂存内容
	if input.Path != "" {
		if err := os.Remove(input.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("[FileService] 清理去重暂存内容失败: %v", err)
		}
	}

	log.Printf("[FileService] 内容去重命中: file=%s 复用 storage=%s", file.ID, file.StorageID)
	return file, nil
}

// ingestNew 受理新内容：暂存落位、记录落库、发布摄取事件。
func (s *fileService) ingestNew(ctx context.Context, input *IngestInput, hash string) (*model.File, error) {
	file := &model.File{
		ID:          newFileID(),
		Name:        input.FileName,
		MimeType:    input.MimeType,
		Size:        input.Size,
		ContentHash: hash,
		PoolID:      input.PoolID,
		AccountID:   input.AccountID,
		BundleID:    input.BundleID,
		ExpiredAt:   input.ExpiredAt,
		UserMeta:    input.UserMeta,
	}
	// 新内容的物理键等于逻辑记录自身的 ID
	file.StorageID = file.ID

	stagingPath := s.ingestStagingPath(file.ID)
	if err := os.MkdirAll(filepath.Dir(stagingPath), os.ModePerm); err != nil {
		return nil, fmt.Errorf("创建摄取暂存目录失败: %w", err)
	}
	if err := os.Rename(input.Path, stagingPath); err != nil {
		// 跨文件系统时 rename 失败，退回复制
		if copyErr := copyFileContents(input.Path, stagingPath); copyErr != nil {
			return nil, fmt.Errorf("移动内容到暂存区失败: %w", copyErr)
		}
		os.Remove(input.Path)
	}

	if err := s.fileRepo.Create(ctx, file); err != nil {
		os.Remove(stagingPath)
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish(constant.EventFileIngested, file.ID)
	}
	return file, nil
}

// UploadToRemote 把暂存内容推到远端存储。幂等：已上传的记录直接返回。
// 推送前重新计算暂存内容的指纹并与落库值比对，防止暂存内容被篡改或损坏；
// 随后就近复查一次去重索引：并发摄取的同内容记录若已抢先完成上传，
// 本条记录直接挂靠其物理对象，不再推送重复字节。
func (s *fileService) UploadToRemote(ctx context.Context, fileID string) error {
	file, err := s.fileRepo.FindByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.IsUploaded() {
		return nil
	}

	stagingPath := s.ingestStagingPath(file.ID)
	src, err := os.Open(stagingPath)
	if err != nil {
		return fmt.Errorf("打开暂存内容失败: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hash, err := hashx.Hash(src, info.Size())
	if err != nil {
		return err
	}
	if hash != file.ContentHash {
		return fmt.Errorf("暂存内容指纹与记录不符: file=%s", file.ID)
	}

	winner, err := s.fileRepo.FindUploadedByHashSize(ctx, file.ContentHash, file.Size, file.ID)
	if err == nil {
		return s.adoptExistingObject(ctx, file, winner, stagingPath)
	}
	if !errors.Is(err, constant.ErrNotFound) {
		return err
	}

	p, err := s.poolSvc.GetByID(ctx, file.PoolID)
	if err != nil {
		return err
	}
	provider, err := s.factory.GetProvider(p)
	if err != nil {
		return err
	}

	if err := provider.Put(ctx, p, file.StorageID, src, info.Size()); err != nil {
		return err
	}

	if err := s.recordObjectIndex(ctx, file, p.ID, file.StorageID); err != nil {
		log.Printf("[FileService] 写入对象索引失败: %v", err)
	}

	now := time.Now().UTC()
	file.UploadedAt = &now
	if err := s.fileRepo.Update(ctx, file); err != nil {
		return err
	}
	s.purgeCache(ctx, file.ID)

	src.Close()
	if err := os.Remove(stagingPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[FileService] 清理摄取暂存内容失败: %v", err)
	}
	return nil
}

// adoptExistingObject 把输掉上传竞争的记录挂靠到已上传的同内容记录上：
// 借用其物理键与派生标志，丢弃自己的暂存字节。对象索引由胜者维护，
// 这里不再写入副本行，主副本因此保持唯一。
func (s *fileService) adoptExistingObject(ctx context.Context, file, winner *model.File, stagingPath string) error {
	log.Printf("[FileService] 同内容记录已抢先上传，挂靠其物理对象: file=%s -> storage=%s", file.ID, winner.StorageID)

	file.StorageID = winner.StorageID
	file.PoolID = winner.PoolID
	file.HasCompression = winner.HasCompression
	file.HasThumbnail = winner.HasThumbnail
	now := time.Now().UTC()
	file.UploadedAt = &now
	if err := s.fileRepo.Update(ctx, file); err != nil {
		return err
	}
	s.purgeCache(ctx, file.ID)

	if err := os.Remove(stagingPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[FileService] 清理摄取暂存内容失败: %v", err)
	}
	for _, suffix := range []string{constant.SuffixCompressed, constant.SuffixThumbnail} {
		os.Remove(stagingPath + suffix)
	}
	return nil
}

// recordObjectIndex 维护物理对象索引：对象行按指纹唯一，副本行指向存储池。
func (s *fileService) recordObjectIndex(ctx context.Context, file *model.File, poolID, key string) error {
	obj, err := s.objectRepo.FindObjectByHash(ctx, file.ContentHash)
	if errors.Is(err, constant.ErrNotFound) {
		obj = &model.FileObject{
			ID:          newFileID(),
			ContentHash: file.ContentHash,
			Size:        file.Size,
		}
		if err := s.objectRepo.CreateObject(ctx, obj); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	replica := &model.FileReplica{
		ID:         newFileID(),
		ObjectID:   obj.ID,
		PoolID:     poolID,
		StorageKey: key,
		IsPrimary:  true,
	}
	return s.objectRepo.CreateReplica(ctx, replica)
}

func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
