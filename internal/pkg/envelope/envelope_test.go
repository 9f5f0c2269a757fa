package envelope

import (
	"bytes"
	"errors"
	"testing"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
)

func TestEncode_往返一致(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"普通内容", []byte("机密的文件内容")},
		{"空明文", []byte{}},
		{"二进制内容", []byte{0x00, 0xff, 0x7f, 0x80, 0x01}},
		{"较大内容", bytes.Repeat([]byte("payload"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.plaintext, "correct horse battery staple")
			if err != nil {
				t.Fatalf("Encode 失败: %v", err)
			}
			got, err := Decode(data, "correct horse battery staple")
			if err != nil {
				t.Fatalf("Decode 失败: %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("往返后的明文不一致")
			}
		})
	}
}

func TestDecode_密钥错误(t *testing.T) {
	data, err := Encode([]byte("secret"), "password-a")
	if err != nil {
		t.Fatalf("Encode 失败: %v", err)
	}
	_, err = Decode(data, "password-b")
	if !errors.Is(err, constant.ErrWrongKeyOrCorrupt) {
		t.Errorf("期望 ErrWrongKeyOrCorrupt, got %v", err)
	}
}

func TestDecode_截断信封(t *testing.T) {
	data, err := Encode([]byte("secret"), "pw")
	if err != nil {
		t.Fatalf("Encode 失败: %v", err)
	}

	// 头部区域内的任意截断都必须是 ErrCorruptEnvelope；
	// 密文区域的截断会破坏 AEAD 校验，报 ErrWrongKeyOrCorrupt
	for cut := 1; cut < 32; cut++ {
		_, err := Decode(data[:cut], "pw")
		if err == nil {
			t.Fatalf("截断到 %d 字节仍解码成功", cut)
		}
	}

	_, err = Decode(data[:len(data)-1], "pw")
	if !errors.Is(err, constant.ErrWrongKeyOrCorrupt) && !errors.Is(err, constant.ErrCorruptEnvelope) {
		t.Errorf("末尾截断期望损坏类错误, got %v", err)
	}
}

func TestDecode_魔数与版本校验(t *testing.T) {
	data, err := Encode([]byte("secret"), "pw")
	if err != nil {
		t.Fatalf("Encode 失败: %v", err)
	}

	t.Run("外层魔数被篡改", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] ^= 0xff
		_, err := Decode(bad, "pw")
		if !errors.Is(err, constant.ErrCorruptEnvelope) {
			t.Errorf("期望 ErrCorruptEnvelope, got %v", err)
		}
	})

	t.Run("版本不支持", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[len(Magic)] = 99
		_, err := Decode(bad, "pw")
		if !errors.Is(err, constant.ErrCorruptEnvelope) {
			t.Errorf("期望 ErrCorruptEnvelope, got %v", err)
		}
	})
}
