package file

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	// 注册 bmp/webp 解码器，变体生成才能解码这些格式
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/qingyun-c/qingyun-drive/internal/pkg/hashx"
	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

const (
	// 长边超过该像素数的图片才生成压缩副本
	compressThresholdPx = 2560
	thumbnailWidthPx    = 400
	blurPreviewWidthPx  = 16

	pipelineTimeout = 5 * time.Minute
)

// onFileIngested 是摄取事件的处理入口，在事件总线的 worker 内执行。
func (s *fileService) onFileIngested(payload interface{}) {
	fileID, ok := payload.(string)
	if !ok {
		log.Printf("[Pipeline] 忽略类型错误的摄取事件: %T", payload)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
	defer cancel()

	if err := s.ProcessIngested(ctx, fileID); err != nil {
		log.Printf("[Pipeline] 文件 %s 的摄取流水线失败: %v", fileID, err)
	}
}

// ProcessIngested 执行完整的摄取后流水线：
// 元数据分析 → 派生对象生成 → 远端上传 → 记录补全。
// 分析与派生步骤失败只降级不中断，上传失败则整体失败，留给重试任务。
func (s *fileService) ProcessIngested(ctx context.Context, fileID string) error {
	file, err := s.fileRepo.FindByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.IsUploaded() {
		return nil
	}

	stagingPath := s.ingestStagingPath(file.ID)
	if _, err := os.Stat(stagingPath); err != nil {
		return fmt.Errorf("暂存内容不可用: %w", err)
	}

	if file.UserMeta == nil {
		file.UserMeta = model.JSONMap{}
	}
	s.analyzeContent(ctx, file, stagingPath)

	var variants []string
	if isOptimizableImage(file.MimeType, stagingPath) {
		variants = s.generateImageVariants(file, stagingPath)
	}

	// 分析结果先落库，上传失败时元数据不丢
	if err := s.fileRepo.Update(ctx, file); err != nil {
		return err
	}
	s.purgeCache(ctx, file.ID)

	if err := s.UploadToRemote(ctx, file.ID); err != nil {
		return err
	}
	// 上传阶段可能挂靠了并发竞争胜者的物理对象，此时派生对象跟随胜者，
	// 本地生成的副本已被丢弃，不再上传。
	uploaded, err := s.fileRepo.FindByID(ctx, file.ID)
	if err != nil {
		return err
	}
	if uploaded.StorageID != file.StorageID {
		return nil
	}
	s.uploadVariants(ctx, uploaded, variants)
	return nil
}

// ReanalyzeStored 从远端对象回源重建一份已上传文件的提取元数据与派生对象，
// 供自愈任务修复流水线中断的记录：基础字段缺失的补齐，派生标记先清零
// 再按本轮实际生成结果重置。远端字节已丢失时透传 constant.ErrNotFound，
// 调用方据此决定是否清除记录。未上传的记录退回常规摄取流水线。
func (s *fileService) ReanalyzeStored(ctx context.Context, fileID string) error {
	file, err := s.fileRepo.FindByID(ctx, fileID)
	if err != nil {
		return err
	}
	if !file.IsUploaded() {
		return s.ProcessIngested(ctx, fileID)
	}

	rc, err := s.OpenContent(ctx, file)
	if err != nil {
		return err
	}
	defer rc.Close()

	stagingPath := s.ingestStagingPath(file.ID)
	if err := os.MkdirAll(filepath.Dir(stagingPath), os.ModePerm); err != nil {
		return err
	}
	out, err := os.Create(stagingPath)
	if err != nil {
		return err
	}
	size, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(stagingPath)
		return fmt.Errorf("回源内容失败: %w", err)
	}
	defer os.Remove(stagingPath)

	src, err := os.Open(stagingPath)
	if err != nil {
		return err
	}
	hash, hashErr := hashx.Hash(src, size)
	src.Close()
	if hashErr != nil {
		return hashErr
	}
	if file.ContentHash == "" {
		file.ContentHash = hash
	}
	if file.Size == 0 {
		file.Size = size
	}
	if file.UserMeta == nil {
		file.UserMeta = model.JSONMap{}
	}
	file.HasCompression = false
	file.HasThumbnail = false

	s.analyzeContent(ctx, file, stagingPath)

	var variants []string
	if isOptimizableImage(file.MimeType, stagingPath) {
		variants = s.generateImageVariants(file, stagingPath)
	}

	if err := s.fileRepo.Update(ctx, file); err != nil {
		return err
	}
	s.purgeCache(ctx, file.ID)
	s.uploadVariants(ctx, file, variants)
	return nil
}

// isOptimizableImage 判断内容是否进入图片优化分支。
// 动图不做重编码，逐帧处理的收益抵不过失真风险。
func isOptimizableImage(mimeType, path string) bool {
	if !strings.HasPrefix(mimeType, "image/") {
		return false
	}
	if mimeType == "image/svg+xml" {
		return false
	}
	if mimeType == "image/gif" {
		f, err := os.Open(path)
		if err != nil {
			return false
		}
		defer f.Close()
		g, err := gif.DecodeAll(f)
		if err != nil || len(g.Image) > 1 {
			return false
		}
	}
	return true
}

// generateImageVariants 在暂存区生成压缩副本与缩略图，
// 返回成功生成的后缀列表。任何一步失败都只记日志。
func (s *fileService) generateImageVariants(file *model.File, stagingPath string) []string {
	src, err := imaging.Open(stagingPath, imaging.AutoOrientation(true))
	if err != nil {
		log.Printf("[Pipeline] 解码图片失败，跳过优化: file=%s, err=%v", file.ID, err)
		return nil
	}

	bounds := src.Bounds()
	file.UserMeta[model.MetaKeyWidth] = fmt.Sprintf("%d", bounds.Dx())
	file.UserMeta[model.MetaKeyHeight] = fmt.Sprintf("%d", bounds.Dy())

	var variants []string

	if bounds.Dx() > compressThresholdPx || bounds.Dy() > compressThresholdPx {
		compressed := imaging.Fit(src, compressThresholdPx, compressThresholdPx, imaging.Lanczos)
		if err := saveJPEG(stagingPath+constant.SuffixCompressed, compressed, 80); err == nil {
			file.HasCompression = true
			variants = append(variants, constant.SuffixCompressed)
		} else {
			log.Printf("[Pipeline] 生成压缩副本失败: file=%s, err=%v", file.ID, err)
		}
	}

	thumbnail := imaging.Resize(src, thumbnailWidthPx, 0, imaging.Lanczos)
	if err := saveJPEG(stagingPath+constant.SuffixThumbnail, thumbnail, 80); err == nil {
		file.HasThumbnail = true
		variants = append(variants, constant.SuffixThumbnail)
	} else {
		log.Printf("[Pipeline] 生成缩略图失败: file=%s, err=%v", file.ID, err)
	}

	// 极小的模糊占位图直接内联进元数据，前端首屏无需额外请求
	blur := imaging.Blur(imaging.Resize(src, blurPreviewWidthPx, 0, imaging.Lanczos), 1.5)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, blur, imaging.JPEG, imaging.JPEGQuality(40)); err == nil {
		file.UserMeta[model.MetaKeyBlurPreview] = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	return variants
}

// saveJPEG 把图片以 JPEG 编码写到指定路径。
// 派生对象的路径带自定义后缀，不能依赖 imaging.Save 的扩展名推断。
func saveJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

// uploadVariants 把暂存区的派生对象推到远端，键为主对象键加后缀。
// 失败只告警：派生对象缺失可以重新生成，不值得让流水线失败。
func (s *fileService) uploadVariants(ctx context.Context, file *model.File, suffixes []string) {
	if len(suffixes) == 0 {
		return
	}

	p, err := s.poolSvc.GetByID(ctx, file.PoolID)
	if err != nil {
		log.Printf("[Pipeline] 查询存储池失败，派生对象未上传: %v", err)
		return
	}
	provider, err := s.factory.GetProvider(p)
	if err != nil {
		log.Printf("[Pipeline] 获取存储提供者失败: %v", err)
		return
	}

	stagingPath := s.ingestStagingPath(file.ID)
	for _, suffix := range suffixes {
		path := stagingPath + suffix
		f, err := os.Open(path)
		if err != nil {
			log.Printf("[Pipeline] 打开派生对象失败: %v", err)
			continue
		}
		info, _ := f.Stat()
		var size int64
		if info != nil {
			size = info.Size()
		}
		if err := provider.Put(ctx, p, file.StorageID+suffix, f, size); err != nil {
			log.Printf("[Pipeline] 上传派生对象失败: key=%s, err=%v", file.StorageID+suffix, err)
		}
		f.Close()
		os.Remove(path)
	}
}
