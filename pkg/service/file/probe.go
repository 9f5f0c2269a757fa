package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

const probeTimeout = 30 * time.Second

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type probeOutput struct {
	Format probeFormat `json:"format"`
}

// probeMedia 调用外部 ffprobe 提取音视频的时长与码率。
// ffprobe 不存在或执行失败都只降级：媒体元数据是锦上添花。
func (s *fileService) probeMedia(ctx context.Context, file *model.File, path string) {
	if s.ffprobePath == "" {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration,bit_rate",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		log.Printf("[Probe] ffprobe 执行失败: file=%s, err=%v", file.ID, err)
		return
	}

	var result probeOutput
	if err := json.Unmarshal(out, &result); err != nil {
		log.Printf("[Probe] 解析 ffprobe 输出失败: file=%s, err=%v", file.ID, err)
		return
	}

	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil && d > 0 {
		file.UserMeta[model.MetaKeyMediaDuration] = fmt.Sprintf("%.3f", d)
	}
	if result.Format.BitRate != "" {
		file.UserMeta[model.MetaKeyMediaBitRate] = result.Format.BitRate
	}
}
