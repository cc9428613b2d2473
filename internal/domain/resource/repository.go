package resource

import "context"

// Repository はリソースリポジトリのインターフェース
type Repository interface {
	// Create は新しいリソースを作成する
	Create(ctx context.Context, r *Resource) error

	// GetByID はIDからリソースを取得する
	GetByID(ctx context.Context, id string) (*Resource, error)
}
