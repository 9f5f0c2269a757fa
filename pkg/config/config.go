package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/spf13/viper"
)

// 定义所有已知的配置键
var allKeys = []string{
	KeyServerPort, KeyServerDebug, KeySigningSecret,
	KeyDBType, KeyDBHost, KeyDBPort, KeyDBUser, KeyDBPassword, KeyDBName, KeyDBDebug,
	KeyRedisAddr, KeyRedisPassword, KeyRedisDB,
	KeyStagingDir, KeyLocalUploadDir, KeyKeepFailedStaging,
	KeyFfprobePath,
}

const (
	KeyServerPort    = "System.Port"
	KeyServerDebug   = "System.Debug"
	KeySigningSecret = "System.SigningSecret"

	KeyDBType     = "Database.Type"
	KeyDBHost     = "Database.Host"
	KeyDBPort     = "Database.Port"
	KeyDBUser     = "Database.User"
	KeyDBPassword = "Database.Password"
	KeyDBName     = "Database.Name"
	KeyDBDebug    = "Database.Debug"

	KeyRedisAddr     = "Redis.Addr"
	KeyRedisPassword = "Redis.Password"
	KeyRedisDB       = "Redis.DB"

	// KeyStagingDir 是分片上传任务的暂存根目录（每个任务一个子目录）
	KeyStagingDir = "Storage.StagingDir"
	// KeyLocalUploadDir 是原始上传的本机落盘目录，1 小时陈旧清扫的对象
	KeyLocalUploadDir = "Storage.LocalUploadDir"
	// KeyKeepFailedStaging 为 true 时合并失败的任务保留暂存文件供排查
	KeyKeepFailedStaging = "Storage.KeepFailedStaging"

	KeyFfprobePath = "Media.FfprobePath"
)

type Config struct {
	vp *viper.Viper
}

// NewConfig 手动加载 data/conf.ini 并叠加环境变量，确保可靠性。
// 配置文件不存在时自动创建带默认值的文件。
func NewConfig() (*Config, error) {
	vp := viper.New()
	filePath := "data/conf.ini"

	// 步骤 1: 使用 go-ini 从文件加载配置 (作为默认值)
	iniCfg, err := ini.Load(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("提示: 未找到 %s，将创建默认配置文件。", filePath)
			if createErr := createDefaultConfigFile(filePath); createErr != nil {
				log.Printf("警告: 创建默认配置文件失败: %v，将仅依赖环境变量或内部默认值。", createErr)
			} else {
				log.Printf("已创建默认配置文件: %s", filePath)
				iniCfg, err = ini.Load(filePath)
				if err != nil {
					log.Printf("警告: 重新加载配置文件失败: %v", err)
				}
			}
		} else {
			return nil, fmt.Errorf("错误: 解析配置文件 '%s' 失败: %w", filePath, err)
		}
	}

	if iniCfg != nil {
		for _, section := range iniCfg.Sections() {
			for _, key := range section.Keys() {
				viperKey := fmt.Sprintf("%s.%s", section.Name(), key.Name())
				if section.Name() == ini.DefaultSection {
					viperKey = key.Name()
				}
				vp.SetDefault(viperKey, key.Value())
			}
		}
	}

	// 步骤 2: 环境变量覆盖文件值，例如 QINGYUN_DATABASE_TYPE
	vp.SetEnvPrefix("QINGYUN")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range allKeys {
		_ = vp.BindEnv(key)
	}

	return &Config{vp: vp}, nil
}

// GetString 读取字符串配置值
func (c *Config) GetString(key string) string {
	return c.vp.GetString(key)
}

// GetBool 读取布尔配置值
func (c *Config) GetBool(key string) bool {
	return c.vp.GetBool(key)
}

// GetStringOrDefault 读取字符串配置值，空值时回退默认值
func (c *Config) GetStringOrDefault(key, defaultValue string) string {
	if v := c.vp.GetString(key); v != "" {
		return v
	}
	return defaultValue
}

// createDefaultConfigFile 写出一份带注释的默认配置
func createDefaultConfigFile(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return err
	}

	content := `[System]
Port = 8091
Debug = false
; 本地签名链接与服务令牌使用的密钥，留空则每次启动随机生成
SigningSecret =

[Database]
; 支持: sqlite / mysql / postgres
Type = sqlite
Host =
Port =
User =
Password =
Name =
Debug = false

[Redis]
; 留空时自动降级为内存缓存
Addr =
Password =
DB = 10

[Storage]
StagingDir = ./data/staging/uploads
LocalUploadDir = ./data/uploads
KeepFailedStaging = false

[Media]
; 留空则在 PATH 中自动搜索
FfprobePath =
`
	return os.WriteFile(filePath, []byte(content), 0644)
}
