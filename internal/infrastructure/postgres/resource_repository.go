package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/SUNR153/room-time/internal/domain/resource"
)

type resourceRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Location  string    `db:"location"`
	Capacity  int       `db:"capacity"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *resourceRow) toEntity() *resource.Resource {
	return &resource.Resource{
		ID: r.ID, Name: r.Name, Location: r.Location,
		Capacity: r.Capacity, IsActive: r.IsActive,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type ResourceRepository struct{ db *sqlx.DB }

func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) Create(ctx context.Context, res *resource.Resource) error {
	query := `INSERT INTO resources (name, location, capacity, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		res.Name, res.Location, res.Capacity, res.IsActive, res.CreatedAt, res.UpdatedAt,
	).Scan(&res.ID)
	if err != nil {
		return fmt.Errorf("リソース作成に失敗: %w", err)
	}
	return nil
}

func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*resource.Resource, error) {
	var row resourceRow
	query := `SELECT id, name, location, capacity, is_active, created_at, updated_at FROM resources WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, resource.ErrResourceNotFound
		}
		return nil, fmt.Errorf("リソース取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

var _ resource.Repository = (*ResourceRepository)(nil)
