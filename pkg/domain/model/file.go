package model

import (
	"time"
)

// File 是逻辑文件的领域模型。
// 多个逻辑文件可以通过相同的 StorageID 共享同一份物理内容（整文件去重），
// 因此删除物理字节前必须检查是否仍有其他逻辑文件持有同一 StorageID。
type File struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	MimeType    string `gorm:"type:varchar(128)" json:"mime_type"`
	Size        int64  `gorm:"not null;default:0" json:"size"`
	ContentHash string `gorm:"type:varchar(64);index" json:"content_hash"`

	// StorageID 是物理对象在远端存储中的键。
	// 新内容首次落库时等于自身 ID；命中已有 ContentHash 时复用命中行的 StorageID。
	StorageID string `gorm:"type:varchar(36);index" json:"storage_id"`

	PoolID    string  `gorm:"type:varchar(36);index" json:"pool_id"`
	AccountID string  `gorm:"type:varchar(36);index" json:"account_id"`
	BundleID  *string `gorm:"type:varchar(36);index" json:"bundle_id,omitempty"`

	// UploadedAt 为空表示物理字节尚未到达远端存储（优化流水线未完成），
	// 服务路径必须将这种状态视为“处理中”，通过本地暂存路径加签名令牌提供访问。
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`

	HasCompression  bool `gorm:"not null;default:false" json:"has_compression"`
	HasThumbnail    bool `gorm:"not null;default:false" json:"has_thumbnail"`
	IsMarkedRecycle bool `gorm:"not null;default:false;index" json:"is_marked_recycle"`

	// ExpiredAt 显式过期时间，到期后由生命周期任务标记回收
	ExpiredAt *time.Time `json:"expired_at,omitempty"`

	UserMeta       JSONMap    `gorm:"type:text" json:"user_meta,omitempty"`
	SensitiveMarks StringList `gorm:"type:text" json:"sensitive_marks,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (File) TableName() string {
	return "files"
}

// IsUploaded 判断物理内容是否已经到达远端存储。
func (f *File) IsUploaded() bool {
	return f.UploadedAt != nil
}

// FileInfoResponse 是用于 API 响应的文件详情模型。
type FileInfoResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	MimeType        string     `json:"mime_type"`
	Size            int64      `json:"size"`
	CreatedAt       time.Time  `json:"created_at"`
	UploadedAt      *time.Time `json:"uploaded_at,omitempty"`
	HasCompression  bool       `json:"has_compression"`
	HasThumbnail    bool       `json:"has_thumbnail"`
	IsMarkedRecycle bool       `json:"is_marked_recycle"`
	UserMeta        JSONMap    `json:"user_meta,omitempty"`
	URL             string     `json:"url,omitempty"`
}
