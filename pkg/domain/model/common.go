package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap 是存储为 JSON 字符串的动态键值元数据。
// 用于 UserMeta、EXIF 提取结果等每种 MIME 族各有固定小集合形状的场景，
// 杜绝把原始动态对象直接跨边界传递。
type JSONMap map[string]string

// Value - 实现 driver.Valuer 接口, GORM 保存时调用
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan - 实现 sql.Scanner 接口, GORM 查询时调用
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(JSONMap)
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
		*m = make(JSONMap)
		return nil
	}
	return json.Unmarshal(b, m)
}

// StringList 是存储为 JSON 数组的字符串列表（敏感内容标记等）。
type StringList []string

// Value - 实现 driver.Valuer 接口
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan - 实现 sql.Scanner 接口
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
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
		*l = nil
		return nil
	}
	return json.Unmarshal(b, l)
}
