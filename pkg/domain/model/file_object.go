package model

import "time"

// FileObject 表示一份去重后的物理内容（规范化模型）。
// 多个逻辑文件可以指向同一个 FileObject；内容本身的哈希、大小和
// 提取出的元数据记录在这里，而不是散落在每个逻辑文件上。
type FileObject struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ContentHash string  `gorm:"type:varchar(64);uniqueIndex" json:"content_hash"`
	Size        int64   `gorm:"not null;default:0" json:"size"`
	Metadata    JSONMap `gorm:"type:text" json:"metadata,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (FileObject) TableName() string {
	return "file_objects"
}

// FileReplica 表示 FileObject 在某个存储池中的一份物理副本。
// 不变量：每个 FileObject 恰好有一个 IsPrimary 副本；
// 其余副本是冗余或跨区域拷贝。主副本是重分析和读取的数据来源。
type FileReplica struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ObjectID   string `gorm:"type:varchar(36);index;not null" json:"object_id"`
	PoolID     string `gorm:"type:varchar(36);index;not null" json:"pool_id"`
	StorageKey string `gorm:"type:varchar(255);not null" json:"storage_key"`
	IsPrimary  bool   `gorm:"not null;default:false" json:"is_primary"`
}

// TableName 指定 GORM 使用的表名
func (FileReplica) TableName() string {
	return "file_replicas"
}
