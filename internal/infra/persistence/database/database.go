package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qingyun-c/qingyun-drive/pkg/config"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// NewGormDB 创建并返回一个 *gorm.DB 连接池，支持多种数据库。
func NewGormDB(cfg *config.Config) (*gorm.DB, error) {
	driver := cfg.GetString(config.KeyDBType)
	if driver == "" {
		log.Println("提示: 配置文件中未指定 'Database.Type'，将默认使用 'sqlite'")
		driver = "sqlite"
	}

	logLevel := logger.Silent
	if cfg.GetBool(config.KeyDBDebug) {
		logLevel = logger.Info
	}
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	dbUser := cfg.GetString(config.KeyDBUser)
	dbPass := cfg.GetString(config.KeyDBPassword)
	dbHost := cfg.GetString(config.KeyDBHost)
	dbPort := cfg.GetString(config.KeyDBPort)
	dbName := cfg.GetString(config.KeyDBName)

	var db *gorm.DB
	var err error

	switch driver {
	case "mysql", "mariadb":
		if dbUser == "" || dbHost == "" || dbPort == "" || dbName == "" {
			return nil, fmt.Errorf("MySQL 连接参数不完整 (需要 User, Host, Port, Name)")
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			dbUser, dbPass, dbHost, dbPort, dbName)
		db, err = gorm.Open(mysql.Open(dsn), gormCfg)
	case "postgres":
		if dbUser == "" || dbHost == "" || dbPort == "" || dbName == "" {
			return nil, fmt.Errorf("PostgreSQL 连接参数不完整 (需要 User, Host, Port, Name)")
		}
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbHost, dbPort, dbUser, dbPass, dbName)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite", "sqlite3":
		dataDir := "./data"
		if mkErr := os.MkdirAll(dataDir, os.ModePerm); mkErr != nil {
			return nil, fmt.Errorf("无法创建 data 目录: %w", mkErr)
		}
		finalDbName := dbName
		if finalDbName == "" {
			finalDbName = "qingyun_drive.db"
		}
		finalPath := filepath.Join(dataDir, finalDbName)
		log.Printf("【提示】SQLite 数据库路径: %s\n", finalPath)
		db, err = gorm.Open(sqlite.Open(finalPath), gormCfg)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s (支持: mysql/mariadb, postgres, sqlite)", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败 (驱动: %s): %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接池失败: %w", err)
	}
	if driver == "sqlite" || driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1) // SQLite 只允许一个写入者
	} else {
		sqlDB.SetMaxOpenConns(25)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// AutoMigrate 执行引擎全部表的结构迁移。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.File{},
		&model.FileObject{},
		&model.FileReplica{},
		&model.FileReference{},
		&model.UploadTask{},
		&model.FilePool{},
		&model.FileBundle{},
	)
}
