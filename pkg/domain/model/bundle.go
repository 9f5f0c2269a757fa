package model

import "time"

// FileBundle 把若干文件归入一个可访问控制、可限时的分享链接。
// Slug 全局唯一，作为外部访问标识；PasscodeHash 非空时访问需校验口令。
// 成员文件通过 usage 为 bundle 的引用记录关联，保证成员文件不被回收。
type FileBundle struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Slug         string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"slug"`
	PasscodeHash string     `gorm:"type:varchar(128)" json:"-"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
	AccountID    string     `gorm:"type:varchar(36);index;not null" json:"account_id"`
}

// TableName 指定 GORM 使用的表名
func (FileBundle) TableName() string {
	return "file_bundles"
}

// IsExpired 判断分享包在给定时刻是否已过期。
func (b *FileBundle) IsExpired(now time.Time) bool {
	return b.ExpiredAt != nil && b.ExpiredAt.Before(now)
}

// BundleInfoResponse 是用于 API 响应的分享包详情。
type BundleInfoResponse struct {
	ID        string     `json:"id"`
	Slug      string     `json:"slug"`
	HasPass   bool       `json:"has_passcode"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`
	Files     []string   `json:"files"`
}
