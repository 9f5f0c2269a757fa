package model

import (
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
)

// FileReference 表示“资源 ResourceID 出于用途 Usage 正在使用文件 FileID”。
// 引用驱动垃圾回收：一个文件在没有任何引用行、或所有引用行均已过期时，
// 才会进入回收候选。
type FileReference struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	FileID     string             `gorm:"type:varchar(36);index;not null" json:"file_id"`
	Usage      constant.FileUsage `gorm:"type:varchar(32);not null" json:"usage"`
	ResourceID string             `gorm:"type:varchar(64);index;not null" json:"resource_id"`

	// ExpiredAt 为空表示永久引用；非空则到期后由过期引用清扫任务删除
	ExpiredAt *time.Time `gorm:"index" json:"expired_at,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (FileReference) TableName() string {
	return "file_references"
}

// IsExpired 判断引用在给定时刻是否已过期。
func (r *FileReference) IsExpired(now time.Time) bool {
	return r.ExpiredAt != nil && r.ExpiredAt.Before(now)
}
