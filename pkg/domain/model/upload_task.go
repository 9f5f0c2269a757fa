package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// UploadTaskStatus 定义分片上传任务的状态机：
// Pending → InProgress → {Completed, Failed, Expired, Cancelled}，
// 其中 InProgress ⇄ Paused 可以往返。
type UploadTaskStatus string

const (
	TaskStatusPending    UploadTaskStatus = "pending"
	TaskStatusInProgress UploadTaskStatus = "in_progress"
	TaskStatusPaused     UploadTaskStatus = "paused"
	TaskStatusCompleted  UploadTaskStatus = "completed"
	TaskStatusFailed     UploadTaskStatus = "failed"
	TaskStatusExpired    UploadTaskStatus = "expired"
	TaskStatusCancelled  UploadTaskStatus = "cancelled"
)

// IsTerminal 判断状态是否为终态。终态任务不再接受分片。
func (s UploadTaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusExpired, TaskStatusCancelled:
		return true
	}
	return false
}

// ChunkSet 是已上传分片下标的集合，持久化为 JSON 数组。
type ChunkSet map[int]bool

// Indices 返回升序排列前的下标切片（序列化用，顺序不保证）。
func (cs ChunkSet) Indices() []int {
	out := make([]int, 0, len(cs))
	for i := range cs {
		out = append(out, i)
	}
	return out
}

// Value - 实现 driver.Valuer 接口
func (cs ChunkSet) Value() (driver.Value, error) {
	if cs == nil {
		return "[]", nil
	}
	return json.Marshal(cs.Indices())
}

// Scan - 实现 sql.Scanner 接口
func (cs *ChunkSet) Scan(value interface{}) error {
	*cs = make(ChunkSet)
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, isStr := value.(string); isStr {
			b = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	if len(b) == 0 {
		return nil
	}
	var indices []int
	if err := json.Unmarshal(b, &indices); err != nil {
		return err
	}
	for _, i := range indices {
		(*cs)[i] = true
	}
	return nil
}

// MarshalJSON 让 task.json 中的分片集合以数组形式出现。
func (cs ChunkSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(cs.Indices())
}

// UnmarshalJSON - 与 MarshalJSON 对应
func (cs *ChunkSet) UnmarshalJSON(b []byte) error {
	var indices []int
	if err := json.Unmarshal(b, &indices); err != nil {
		return err
	}
	*cs = make(ChunkSet, len(indices))
	for _, i := range indices {
		(*cs)[i] = true
	}
	return nil
}

// UploadTask 是可断点续传的分片上传任务（持久化模型）。
// 任务行是进度的权威来源；暂存目录中的 task.json 是它的磁盘镜像，
// 供崩溃恢复与人工排查使用。
type UploadTask struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FileName    string `gorm:"type:varchar(255);not null" json:"file_name"`
	FileSize    int64  `gorm:"not null" json:"file_size"`
	ContentType string `gorm:"type:varchar(128)" json:"content_type"`

	ChunkSize   int64 `gorm:"not null" json:"chunk_size"`
	ChunksCount int   `gorm:"not null" json:"chunks_count"`

	UploadedChunks ChunkSet `gorm:"type:text" json:"uploaded_chunks"`

	// Progress 为 |UploadedChunks| / ChunksCount，范围 [0,1]。
	// 仅在跨过粗粒度阈值时写穿到数据库，缓存副本则总是即时更新。
	Progress float64 `gorm:"not null;default:0" json:"progress"`

	PoolID   string  `gorm:"type:varchar(36);not null" json:"pool_id"`
	BundleID *string `gorm:"type:varchar(36)" json:"bundle_id,omitempty"`

	// EncryptPassword 非空时，合并后的内容先经过加密信封再交给文件服务
	EncryptPassword string `gorm:"type:varchar(255)" json:"encrypt_password,omitempty"`

	// DeclaredHash 是客户端声明的内容哈希，用于创建任务时的秒传短路
	DeclaredHash string `gorm:"type:varchar(64)" json:"hash,omitempty"`

	AccountID    string           `gorm:"type:varchar(36);index;not null" json:"account_id"`
	Status       UploadTaskStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	ExpiredAt    *time.Time       `json:"expired_at,omitempty"`
	LastActivity time.Time        `gorm:"index" json:"last_activity"`
}

// TableName 指定 GORM 使用的表名
func (UploadTask) TableName() string {
	return "upload_tasks"
}

// --- API 请求/响应模型 ---

// CreateUploadTaskRequest 对应“创建上传任务”API 的请求体。
type CreateUploadTaskRequest struct {
	FileName string `json:"file_name" binding:"required"`
	// FileSize 允许为 0：空文件按单个零长度分片上传
	FileSize        int64  `json:"file_size" binding:"min=0"`
	ContentType     string `json:"content_type"`
	PoolID          string `json:"pool_id" binding:"required"`
	BundleID        string `json:"bundle_id,omitempty"`
	Hash            string `json:"hash,omitempty"`
	EncryptPassword string `json:"encrypt_password,omitempty"`
	ChunkSize       int64  `json:"chunk_size,omitempty"`
}

// UploadTaskData 是创建上传任务后返回给前端的响应数据。
type UploadTaskData struct {
	TaskID      string `json:"task_id,omitempty"`
	ChunkSize   int64  `json:"chunk_size,omitempty"`
	ChunksCount int    `json:"chunks_count,omitempty"`
	Expires     int64  `json:"expires,omitempty"`

	// FileExists 为 true 表示声明哈希秒传命中，未创建任务
	FileExists bool   `json:"file_exists,omitempty"`
	FileID     string `json:"file_id,omitempty"`
}

// UploadTaskStatusResponse 定义了获取上传任务状态接口的响应体。
type UploadTaskStatusResponse struct {
	TaskID         string           `json:"task_id"`
	Status         UploadTaskStatus `json:"status"`
	ChunkSize      int64            `json:"chunk_size"`
	ChunksCount    int              `json:"chunks_count"`
	UploadedChunks []int            `json:"uploaded_chunks"`
	Progress       float64          `json:"progress"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
}

// UploadProgressEvent 是进度事件的载荷。
type UploadProgressEvent struct {
	TaskID   string  `json:"task_id"`
	Progress float64 `json:"progress"`
	Done     bool    `json:"done"`
}
