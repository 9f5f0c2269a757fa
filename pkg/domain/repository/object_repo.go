package repository

import (
	"context"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
)

// ObjectRepository 定义了去重内容对象与物理副本的持久化操作。
type ObjectRepository interface {
	CreateObject(ctx context.Context, obj *model.FileObject) error
	FindObjectByHash(ctx context.Context, hash string) (*model.FileObject, error)
	UpdateObject(ctx context.Context, obj *model.FileObject) error
	DeleteObject(ctx context.Context, id string) error

	CreateReplica(ctx context.Context, replica *model.FileReplica) error
	ListReplicas(ctx context.Context, objectID string) ([]*model.FileReplica, error)

	// FindPrimaryReplica 返回对象的主副本。不变量：每个对象恰好一个主副本。
	FindPrimaryReplica(ctx context.Context, objectID string) (*model.FileReplica, error)

	// DeleteReplicasByObject 删除对象的全部副本行。
	DeleteReplicasByObject(ctx context.Context, objectID string) error

	// ListOrphanedObjects 返回没有任何逻辑文件指向的对象，最多 limit 条。
	ListOrphanedObjects(ctx context.Context, limit int) ([]*model.FileObject, error)
}
