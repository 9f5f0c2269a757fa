package storage

import (
	"fmt"
	"sync"

	"github.com/qingyun-c/qingyun-drive/pkg/constant"
	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// ProviderFactory 按存储池类型分发存储提供者。
// 提供者自身无状态（客户端按池配置即时创建），同类型可以安全复用。
type ProviderFactory struct {
	mu            sync.RWMutex
	providers     map[constant.PoolType]IStorageProvider
	signingSecret string
}

// NewProviderFactory 是 ProviderFactory 的构造函数，secret 用于本地存储的链接签名。
func NewProviderFactory(signingSecret string) *ProviderFactory {
	return &ProviderFactory{
		providers:     make(map[constant.PoolType]IStorageProvider),
		signingSecret: signingSecret,
	}
}

// GetProvider 返回存储池对应的提供者，未知类型返回错误。
func (f *ProviderFactory) GetProvider(pool *model.FilePool) (IStorageProvider, error) {
	f.mu.RLock()
	if p, ok := f.providers[pool.Type]; ok {
		f.mu.RUnlock()
		return p, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.providers[pool.Type]; ok {
		return p, nil
	}

	var provider IStorageProvider
	switch pool.Type {
	case constant.PoolTypeLocal:
		provider = NewLocalProvider(f.signingSecret)
	case constant.PoolTypeS3:
		provider = NewAWSS3Provider()
	case constant.PoolTypeAliOSS:
		provider = NewAliOSSProvider()
	case constant.PoolTypeTencentCOS:
		provider = NewTencentCOSProvider()
	case constant.PoolTypeQiniuKodo:
		provider = NewQiniuKodoProvider()
	default:
		return nil, fmt.Errorf("不支持的存储池类型: %s", pool.Type)
	}
	f.providers[pool.Type] = provider
	return provider, nil
}
