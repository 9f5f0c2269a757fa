package hashx

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"io"
	"testing"
)

func TestHash_小文件全量摘要(t *testing.T) {
	data := []byte("hello qingyun drive")
	want := md5.Sum(data)

	got, err := Hash(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Hash 返回错误: %v", err)
	}
	if got != hex.EncodeToString(want[:]) {
		t.Errorf("摘要不符: got %s, want %s", got, hex.EncodeToString(want[:]))
	}
}

func TestHash_相同内容指纹一致(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 500)

	h1, err := Hash(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("第一次 Hash 失败: %v", err)
	}
	h2, err := Hash(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("第二次 Hash 失败: %v", err)
	}
	if h1 != h2 {
		t.Errorf("相同内容产生了不同指纹: %s vs %s", h1, h2)
	}
}

func TestHash_大文件快速指纹(t *testing.T) {
	// 构造一个刚超过阈值的内容
	data := bytes.Repeat([]byte("x"), FullHashThreshold+1)

	tests := []struct {
		name     string
		mutate   func([]byte) []byte
		wantSame bool
	}{
		{
			name:     "完全相同",
			mutate:   func(b []byte) []byte { return b },
			wantSame: true,
		},
		{
			name: "头部不同",
			mutate: func(b []byte) []byte {
				out := append([]byte(nil), b...)
				out[0] = 'y'
				return out
			},
			wantSame: false,
		},
		{
			name: "尾部不同",
			mutate: func(b []byte) []byte {
				out := append([]byte(nil), b...)
				out[len(out)-1] = 'y'
				return out
			},
			wantSame: false,
		},
		{
			name: "长度不同",
			mutate: func(b []byte) []byte {
				return append(append([]byte(nil), b...), 'x')
			},
			wantSame: false,
		},
		{
			name: "仅中间不同（快速指纹的已知盲区）",
			mutate: func(b []byte) []byte {
				out := append([]byte(nil), b...)
				out[len(out)/2] = 'y'
				return out
			},
			wantSame: true,
		},
	}

	base, err := Hash(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("基准 Hash 失败: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := tt.mutate(data)
			got, err := Hash(bytes.NewReader(mutated), int64(len(mutated)))
			if err != nil {
				t.Fatalf("Hash 失败: %v", err)
			}
			if (got == base) != tt.wantSame {
				t.Errorf("指纹相等性不符: got %v, want %v", got == base, tt.wantSame)
			}
		})
	}
}

func TestHash_恢复流位置(t *testing.T) {
	data := []byte("positional content")
	r := bytes.NewReader(data)

	// 先读掉一部分，Hash 之后位置应当回到这里
	buf := make([]byte, 4)
	if _, err := r.Read(buf); err != nil {
		t.Fatal(err)
	}

	if _, err := Hash(r, int64(len(data))); err != nil {
		t.Fatalf("Hash 失败: %v", err)
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 4 {
		t.Errorf("流位置未恢复: got %d, want 4", pos)
	}
}
