package utility

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// cacheItem 缓存项结构
type cacheItem struct {
	value      string
	expiration time.Time
	hasExpiry  bool
}

// isExpired 检查是否过期
func (item *cacheItem) isExpired() bool {
	if !item.hasExpiry {
		return false
	}
	return time.Now().After(item.expiration)
}

// memoryCacheService 是基于内存的缓存服务实现（Redis 不可用时的降级方案）
type memoryCacheService struct {
	data   sync.Map
	mu     sync.Mutex // 保护 Increment 的读-改-写
	ticker *time.Ticker
	done   chan bool
}

// NewMemoryCacheService 创建内存缓存服务实例
func NewMemoryCacheService() CacheService {
	svc := &memoryCacheService{
		ticker: time.NewTicker(1 * time.Minute), // 每分钟清理一次过期数据
		done:   make(chan bool),
	}
	go svc.cleanupExpired()
	return svc
}

// cleanupExpired 定期清理过期的缓存项
func (s *memoryCacheService) cleanupExpired() {
	for {
		select {
		case <-s.ticker.C:
			s.data.Range(func(key, value interface{}) bool {
				if item, ok := value.(*cacheItem); ok {
					if item.isExpired() {
						s.data.Delete(key)
					}
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

// Stop 停止清理任务
func (s *memoryCacheService) Stop() {
	s.ticker.Stop()
	s.done <- true
}

// Set 设置缓存
func (s *memoryCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	item := &cacheItem{
		value: fmt.Sprintf("%v", value),
	}
	if expiration > 0 {
		item.expiration = time.Now().Add(expiration)
		item.hasExpiry = true
	}
	s.data.Store(key, item)
	return nil
}

// Get 获取缓存；键不存在或已过期时返回空字符串，与 Redis 实现保持一致
func (s *memoryCacheService) Get(ctx context.Context, key string) (string, error) {
	value, ok := s.data.Load(key)
	if !ok {
		return "", nil
	}
	item, ok := value.(*cacheItem)
	if !ok || item.isExpired() {
		s.data.Delete(key)
		return "", nil
	}
	return item.value, nil
}

// Delete 删除缓存
func (s *memoryCacheService) Delete(ctx context.Context, key ...string) error {
	for _, k := range key {
		s.data.Delete(k)
	}
	return nil
}

// Increment 原子递增
func (s *memoryCacheService) Increment(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if value, ok := s.data.Load(key); ok {
		if item, isItem := value.(*cacheItem); isItem && !item.isExpired() {
			parsed, err := strconv.ParseInt(item.value, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("缓存值 '%s' 不是整数: %w", item.value, err)
			}
			current = parsed
		}
	}
	current++
	s.data.Store(key, &cacheItem{value: strconv.FormatInt(current, 10)})
	return current, nil
}

// Expire 设置键的过期时间
func (s *memoryCacheService) Expire(ctx context.Context, key string, expiration time.Duration) error {
	value, ok := s.data.Load(key)
	if !ok {
		return nil
	}
	item, ok := value.(*cacheItem)
	if !ok {
		return nil
	}
	item.expiration = time.Now().Add(expiration)
	item.hasExpiry = true
	s.data.Store(key, item)
	return nil
}
