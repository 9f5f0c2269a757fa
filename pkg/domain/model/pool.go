package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
)

// PoolSettings 是存储池的策略设置，持久化为 JSON。
type PoolSettings map[string]interface{}

// GetString 从 settings map 中安全地获取字符串值。
// 如果键不存在，或者值的类型不是字符串，则返回提供的默认值。
func (s PoolSettings) GetString(key, defaultValue string) string {
	if val, ok := s[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// GetInt 从 settings map 中安全地获取整数值。
func (s PoolSettings) GetInt(key string, defaultValue int) int {
	if value, ok := s[key]; ok {
		if floatVal, isFloat := value.(float64); isFloat {
			return int(floatVal)
		}
		if intVal, isInt := value.(int); isInt {
			return intVal
		}
	}
	return defaultValue
}

// GetBool 从 settings map 中安全地获取布尔值。
func (s PoolSettings) GetBool(key string, defaultValue bool) bool {
	if val, ok := s[key].(bool); ok {
		return val
	}
	return defaultValue
}

// Value - 实现 driver.Valuer 接口, GORM 保存时调用
func (s PoolSettings) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan - 实现 sql.Scanner 接口, GORM 查询时调用
func (s *PoolSettings) Scan(value interface{}) error {
	if value == nil {
		*s = make(PoolSettings)
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if str, isStr := value.(string); isStr {
			b = []byte(str)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(b, s)
}

// FilePool 是存储池的领域模型：一份全局共享、读多写少的配置对象，
// 描述一个远端存储的连接信息与接收策略。
type FilePool struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string            `gorm:"type:varchar(64);not null" json:"name"`
	Type constant.PoolType `gorm:"type:varchar(16);not null" json:"type"`

	// 远端连接配置
	Server     string `gorm:"type:varchar(255)" json:"server"`      // Endpoint 或区域
	BucketName string `gorm:"type:varchar(128)" json:"bucket_name"` // 桶名；本地池为根目录
	AccessKey  string `gorm:"type:varchar(128)" json:"access_key"`
	SecretKey  string `gorm:"type:varchar(128)" json:"secret_key"`

	// UseSignedURL 控制下载是否走预签名直链；关闭时由服务端代理流量
	UseSignedURL bool   `gorm:"not null;default:true" json:"use_signed_url"`
	ProxyURL     string `gorm:"type:varchar(255)" json:"proxy_url,omitempty"`

	// BillingFactor 是计费倍率，传给配额协作方
	BillingFactor float64 `gorm:"not null;default:1" json:"billing_factor"`

	// 接收策略
	MaxSize          int64        `gorm:"not null;default:0" json:"max_size"` // 0 表示不限制
	AcceptedMimes    StringList   `gorm:"type:text" json:"accepted_mimes"`    // 精确或 "image/*" 前缀通配
	AllowEncryption  bool         `gorm:"not null;default:true" json:"allow_encryption"`
	AllowAnonymous   bool         `gorm:"not null;default:false" json:"allow_anonymous"`
	RecycleEnabled   bool         `gorm:"not null;default:true" json:"recycle_enabled"`
	MinPrivilegeTier int          `gorm:"not null;default:0" json:"min_privilege_tier"`
	Settings         PoolSettings `gorm:"type:text" json:"settings,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (FilePool) TableName() string {
	return "file_pools"
}
