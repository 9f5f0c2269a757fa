package database

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qingyun-c/qingyun-drive/pkg/config"
)

// NewRedisClient 按配置建立 Redis 连接，返回客户端或 nil。
// 地址未配置、DB 序号非法或连接失败都不算错误：返回 nil，
// 由上层把缓存降级到进程内存。文件与引用的查询缓存容忍这种降级。
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	addr := cfg.GetString(config.KeyRedisAddr)
	if addr == "" {
		log.Println("Redis 地址未配置，将使用内存缓存")
		return nil, nil
	}

	// DB 序号留空时落在 10 号库，与默认配置文件保持一致
	dbIndex, err := strconv.Atoi(cfg.GetStringOrDefault(config.KeyRedisDB, "10"))
	if err != nil {
		log.Printf("无效的 Redis.DB 值 '%s': %v，将使用内存缓存", cfg.GetString(config.KeyRedisDB), err)
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.GetString(config.KeyRedisPassword),
		DB:          dbIndex,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("连接 Redis (%s, DB %d) 失败: %v，将使用内存缓存", addr, dbIndex, err)
		rdb.Close()
		return nil, nil
	}

	log.Printf("成功连接到 Redis (%s, DB %d)", addr, dbIndex)
	return rdb, nil
}
