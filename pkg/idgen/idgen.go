package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sqids/sqids-go"
)

// DefaultAlphabet 是默认的字母表
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var slugEncoder *sqids.Sqids

func init() {
	var err error
	slugEncoder, err = sqids.New(sqids.Options{
		Alphabet:  DefaultAlphabet,
		MinLength: 6,
	})
	if err != nil {
		panic(fmt.Sprintf("初始化 Sqids 编码器失败: %v", err))
	}
}

// NewBundleSlug 生成一个短小、URL 友好且不可枚举的分享包 slug。
// 随机量与秒级时间戳共同编码，保证唯一性的同时避免顺序可猜。
func NewBundleSlug() (string, error) {
	var randPart [8]byte
	if _, err := rand.Read(randPart[:]); err != nil {
		return "", fmt.Errorf("生成随机量失败: %w", err)
	}
	// sqids 输入限制在 uint64 正数范围内
	n := binary.LittleEndian.Uint64(randPart[:]) >> 1
	slug, err := slugEncoder.Encode([]uint64{n, uint64(time.Now().Unix())})
	if err != nil {
		return "", fmt.Errorf("编码 slug 失败: %w", err)
	}
	return slug, nil
}
