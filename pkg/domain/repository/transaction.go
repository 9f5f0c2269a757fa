package repository

import "context"

// Repositories 聚合了一次事务内可用的全部仓库。
type Repositories struct {
	File      FileRepository
	Object    ObjectRepository
	Reference ReferenceRepository
	Task      UploadTaskRepository
	Pool      PoolRepository
	Bundle    BundleRepository
}

// TransactionManager 把闭包内的仓库操作包进一个数据库事务。
// 闭包返回错误时整体回滚。
type TransactionManager interface {
	Do(ctx context.Context, fn func(repos Repositories) error) error
}
