// internal/pkg/hashx/hashx.go

/*
 * 内容指纹计算。
 *
 * 指纹只是去重键，不承担抗碰撞的安全职责，因此选用 MD5。
 * 小文件做全量摘要；超过阈值的大文件只取头尾各 SampleSize 字节
 * 加上总长度参与摘要，把多 GB 上传的哈希开销压到 O(1) 的 I/O。
 * 这是刻意的快速近似指纹：接受极低的去重漏报率。
 */
package hashx

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
)

const (
	// FullHashThreshold 以下的文件做全量摘要
	FullHashThreshold = 1 << 20 // 1MiB

	// SampleSize 是大文件头尾各取样的字节数
	SampleSize = 64 << 10 // 64KiB
)

// Hash 计算内容流的指纹并恢复流的读取位置。
// declaredSize 是调用方声明的内容总长度；流必须可定位，
// 否则返回 constant.ErrStreamNotSeekable，调用方需要先缓冲到磁盘。
func Hash(rs io.ReadSeeker, declaredSize int64) (string, error) {
	if rs == nil {
		return "", constant.ErrStreamNotSeekable
	}

	// 记录当前位置，算完后必须恢复，保证对流只读
	origin, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", constant.ErrStreamNotSeekable, err)
	}

	digest, err := compute(rs, declaredSize)
	if err != nil {
		return "", err
	}

	if _, err := rs.Seek(origin, io.SeekStart); err != nil {
		return "", fmt.Errorf("恢复流位置失败: %w", err)
	}
	return digest, nil
}

func compute(rs io.ReadSeeker, size int64) (string, error) {
	h := md5.New()

	if size <= FullHashThreshold {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("%w: %v", constant.ErrStreamNotSeekable, err)
		}
		if _, err := io.Copy(h, rs); err != nil {
			return "", fmt.Errorf("读取内容流失败: %w", err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	// 头部取样
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("%w: %v", constant.ErrStreamNotSeekable, err)
	}
	if _, err := io.CopyN(h, rs, SampleSize); err != nil {
		return "", fmt.Errorf("读取头部样本失败: %w", err)
	}

	// 尾部取样
	if _, err := rs.Seek(-SampleSize, io.SeekEnd); err != nil {
		return "", fmt.Errorf("%w: %v", constant.ErrStreamNotSeekable, err)
	}
	if _, err := io.CopyN(h, rs, SampleSize); err != nil && err != io.EOF {
		return "", fmt.Errorf("读取尾部样本失败: %w", err)
	}

	// 总长度参与摘要，区分头尾相同但长度不同的文件
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(size))
	h.Write(lenBuf[:])

	return hex.EncodeToString(h.Sum(nil)), nil
}
