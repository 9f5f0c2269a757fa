package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

func TestValidateUpload(t *testing.T) {
	svc := &poolService{}
	basePool := &model.FilePool{
		MaxSize:          10 << 20,
		AcceptedMimes:    model.StringList{"image/*", "application/pdf"},
		AllowEncryption:  false,
		AllowAnonymous:   false,
		MinPrivilegeTier: 2,
	}

	tests := []struct {
		name    string
		check   UploadCheck
		wantErr bool
	}{
		{
			name:    "合规的图片上传",
			check:   UploadCheck{FileName: "a.png", Size: 1024, MimeType: "image/png", PrivilegeTier: 3},
			wantErr: false,
		},
		{
			name:    "精确匹配的类型",
			check:   UploadCheck{FileName: "doc.pdf", Size: 1024, MimeType: "application/pdf", PrivilegeTier: 2},
			wantErr: false,
		},
		{
			name:    "类型不在接受列表",
			check:   UploadCheck{FileName: "a.zip", Size: 1024, MimeType: "application/zip", PrivilegeTier: 3},
			wantErr: true,
		},
		{
			name:    "超出大小上限",
			check:   UploadCheck{FileName: "a.png", Size: 11 << 20, MimeType: "image/png", PrivilegeTier: 3},
			wantErr: true,
		},
		{
			name:    "权限等级不足",
			check:   UploadCheck{FileName: "a.png", Size: 1024, MimeType: "image/png", PrivilegeTier: 1},
			wantErr: true,
		},
		{
			name:    "匿名上传被拒绝",
			check:   UploadCheck{FileName: "a.png", Size: 1024, MimeType: "image/png", IsAnonymous: true},
			wantErr: true,
		},
		{
			name:    "池不支持加密",
			check:   UploadCheck{FileName: "a.png", Size: 1024, MimeType: "image/png", PrivilegeTier: 3, WantEncryption: true},
			wantErr: true,
		},
		{
			name:    "未提供类型时按后缀推断",
			check:   UploadCheck{FileName: "photo.jpg", Size: 1024, PrivilegeTier: 3},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ValidateUpload(context.Background(), basePool, tt.check)
			if tt.wantErr {
				if err == nil {
					t.Fatal("期望校验失败，实际通过")
				}
				if !errors.Is(err, constant.ErrPolicyViolation) {
					t.Errorf("期望 ErrPolicyViolation，实际 %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("期望校验通过，实际失败: %v", err)
			}
		})
	}
}

func TestValidateUploadNoMimeRestriction(t *testing.T) {
	svc := &poolService{}
	pool := &model.FilePool{AllowAnonymous: true}

	err := svc.ValidateUpload(context.Background(), pool, UploadCheck{
		FileName:    "anything.bin",
		Size:        123,
		MimeType:    "application/octet-stream",
		IsAnonymous: true,
	})
	if err != nil {
		t.Fatalf("无类型限制的池应接受任意类型: %v", err)
	}
}
