package gormrepo

import (
	"context"

	"gorm.io/gorm"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/repository"
)

// transactionManager 基于 gorm 事务实现跨仓储的原子操作
type transactionManager struct {
	db *gorm.DB
}

// NewTransactionManager 是 transactionManager 的构造函数
func NewTransactionManager(db *gorm.DB) repository.TransactionManager {
	return &transactionManager{db: db}
}

// Do 在单个数据库事务内执行 fn，fn 拿到的仓储全部绑定事务句柄。
// fn 返回错误时整体回滚。
func (m *transactionManager) Do(ctx context.Context, fn func(repos repository.Repositories) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// NewRepositories 在同一个数据库句柄上装配全部仓储
func NewRepositories(db *gorm.DB) repository.Repositories {
	return repository.Repositories{
		File:      NewFileRepo(db),
		Object:    NewObjectRepo(db),
		Reference: NewReferenceRepo(db),
		Task:      NewUploadTaskRepo(db),
		Pool:      NewPoolRepo(db),
		Bundle:    NewBundleRepo(db),
	}
}
