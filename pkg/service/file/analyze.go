// 媒体元数据分析：EXIF、音乐标签、主色调。
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/dhowden/tag"
	"github.com/disintegration/imaging"
	"github.com/dsoprea/go-exif/v3"

	heicexif "github.com/dsoprea/go-heic-exif-extractor"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
	pngstructure "github.com/dsoprea/go-png-image-structure"
	tiffstructure "github.com/dsoprea/go-tiff-image-structure"
	riimage "github.com/dsoprea/go-utility/image"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

type exifParser interface {
	Parse(rs io.ReadSeeker, size int) (ec riimage.MediaContext, err error)
}

func getExifParser(ext string) exifParser {
	switch ext {
	case ".jpg", ".jpeg":
		return jpegstructure.NewJpegMediaParser()
	case ".png":
		return pngstructure.NewPngMediaParser()
	case ".tiff":
		return tiffstructure.NewTiffMediaParser()
	case ".heic", ".heif", ".avif":
		return heicexif.NewHeicExifMediaParser()
	default:
		// 其他格式依赖蛮力搜索
		return nil
	}
}

// analyzeContent 按内容类型提取元数据写入 file.UserMeta。
// 所有分支都是尽力而为：单项失败不影响其余分析，更不影响主流程。
func (s *fileService) analyzeContent(ctx context.Context, file *model.File, path string) {
	ext := strings.ToLower(filepath.Ext(file.Name))

	switch {
	case strings.HasPrefix(file.MimeType, "image/"):
		s.analyzeExif(file, path, ext)
		s.analyzeDominantColor(file, path)
	case strings.HasPrefix(file.MimeType, "audio/") || isMusicExt(ext):
		s.analyzeMusicTags(file, path)
		s.probeMedia(ctx, file, path)
	case strings.HasPrefix(file.MimeType, "video/"):
		s.probeMedia(ctx, file, path)
	}
}

func isMusicExt(ext string) bool {
	switch ext {
	case ".mp3", ".m4a", ".flac", ".ogg":
		return true
	}
	return false
}

func (s *fileService) analyzeExif(file *model.File, path, ext string) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("[Extractor] 打开文件失败: %v", err)
		return
	}
	defer f.Close()

	var exifData []byte
	if parser := getExifParser(ext); parser != nil {
		if res, pErr := parser.Parse(f, int(file.Size)); pErr == nil {
			_, exifData, _ = res.Exif()
		}
	}

	if len(exifData) == 0 {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return
		}
		exifData, err = exif.SearchAndExtractExifWithReader(f)
		if err != nil && !errors.Is(err, exif.ErrNoExif) {
			log.Printf("[Extractor] 搜索文件 %s 的EXIF数据出错: %v", file.ID, err)
		}
	}
	if len(exifData) == 0 {
		return
	}

	entries, _, err := exif.GetFlatExifData(exifData, nil)
	if err != nil {
		log.Printf("[Extractor] 解析文件 %s 的EXIF条目失败: %v", file.ID, err)
		return
	}

	rawExifMap := make(map[string]string)
	for _, t := range entries {
		if t.TagName == "" {
			continue
		}
		// 位置信息是隐私数据，任何 GPS 条目都不落库
		if strings.Contains(t.IfdPath, "GPS") || strings.HasPrefix(t.TagName, "GPS") {
			continue
		}
		cleaned := strings.ReplaceAll(t.FormattedFirst, "\x00", "")
		if cleaned != "" {
			rawExifMap[t.TagName] = cleaned
		}
	}
	if len(rawExifMap) == 0 {
		return
	}

	mapExifData(rawExifMap, file.UserMeta)
	log.Printf("[Extractor] 为文件 %s 提取了EXIF信息。", file.ID)
}

func mapExifData(exifMap map[string]string, meta model.JSONMap) {
	direct := map[string]string{
		"Make":            model.MetaKeyExifMake,
		"Model":           model.MetaKeyExifModel,
		"Software":        model.MetaKeyExifSoftware,
		"ExposureTime":    model.MetaKeyExifExposureTime,
		"ISOSpeedRatings": model.MetaKeyExifISOSpeed,
	}
	for src, dst := range direct {
		if v, ok := exifMap[src]; ok {
			meta[dst] = v
		}
	}
	for _, tagName := range []string{"DateTimeOriginal", "CreateDate", "DateTime"} {
		if value, ok := exifMap[tagName]; ok {
			if t, err := time.Parse("2006:01:02 15:04:05", value); err == nil {
				meta[model.MetaKeyExifDateTime] = t.Format(time.RFC3339)
				break
			}
		}
	}
	if v, ok := exifMap["FNumber"]; ok {
		if f, err := parseRational(v); err == nil {
			meta[model.MetaKeyExifFNumber] = fmt.Sprintf("%.1f", f)
		}
	}
	if v, ok := exifMap["FocalLength"]; ok {
		if f, err := parseRational(v); err == nil {
			meta[model.MetaKeyExifFocalLength] = fmt.Sprintf("%d", int(f))
		}
	}
}

func parseRational(s string) (float64, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, errors.New("invalid rational format")
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0, errors.New("invalid rational components")
	}
	return num / den, nil
}

func (s *fileService) analyzeMusicTags(file *model.File, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return
	}

	musicData := map[string]string{
		model.MetaKeyMusicFormat: string(m.FileType()),
		model.MetaKeyMusicTitle:  m.Title(),
		model.MetaKeyMusicAlbum:  m.Album(),
		model.MetaKeyMusicArtist: m.Artist(),
		model.MetaKeyMusicGenre:  m.Genre(),
		model.MetaKeyMusicYear:   strconv.Itoa(m.Year()),
	}
	for k, v := range musicData {
		if v != "" && v != "0" {
			file.UserMeta[k] = v
		}
	}
	log.Printf("[Extractor] 为文件 %s 提取了音乐标签。", file.ID)
}

// analyzeDominantColor 用 K-means 提取图片主色调。
// 大图先缩小再聚类，控制计算量。
func (s *fileService) analyzeDominantColor(file *model.File, path string) {
	img, err := imaging.Open(path)
	if err != nil {
		return
	}
	if img.Bounds().Dx() > 800 {
		img = imaging.Resize(img, 800, 0, imaging.NearestNeighbor)
	}

	colors, err := prominentcolor.KmeansWithArgs(prominentcolor.ArgumentNoCropping, img)
	if err != nil || len(colors) == 0 {
		return
	}
	c := colors[0].Color
	file.UserMeta[model.MetaKeyDominantColor] = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
