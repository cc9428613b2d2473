package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/SUNR153/room-time/internal/domain/availability"
	"github.com/SUNR153/room-time/internal/domain/slot"
	"github.com/SUNR153/room-time/internal/domain/transaction"
)

type slotRow struct {
	ID         string    `db:"id"`
	ResourceID string    `db:"resource_id"`
	StartsAt   time.Time `db:"starts_at"`
	EndsAt     time.Time `db:"ends_at"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *slotRow) toEntity() *slot.TimeSlot {
	return &slot.TimeSlot{
		ID: r.ID, ResourceID: r.ResourceID,
		StartsAt: r.StartsAt, EndsAt: r.EndsAt,
		Status:    slot.Status(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const slotColumns = `id, resource_id, starts_at, ends_at, status, created_at, updated_at`

type SlotRepository struct{ db *sqlx.DB }

func NewSlotRepository(db *sqlx.DB) *SlotRepository { return &SlotRepository{db: db} }

func (r *SlotRepository) Create(ctx context.Context, s *slot.TimeSlot) error {
	query := `INSERT INTO time_slots (resource_id, starts_at, ends_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		s.ResourceID, s.StartsAt, s.EndsAt, string(s.Status), s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return slot.ErrSlotConflict
		}
		return fmt.Errorf("スロット作成に失敗: %w", err)
	}
	return nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id string) (*slot.TimeSlot, error) {
	var row slotRow
	query := `SELECT ` + slotColumns + ` FROM time_slots WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, slot.ErrSlotNotFound
		}
		return nil, fmt.Errorf("スロット取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *SlotRepository) GetByResourceAndDate(ctx context.Context, resourceID string, date time.Time) ([]*slot.TimeSlot, error) {
	// 日付境界はロックキー・キャッシュキーと同じUTC正規化を使う
	dayStart := availability.Day(date)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var rows []slotRow
	query := `SELECT ` + slotColumns + ` FROM time_slots
		WHERE resource_id = $1 AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at`
	if err := r.db.SelectContext(ctx, &rows, query, resourceID, dayStart, dayEnd); err != nil {
		return nil, fmt.Errorf("スロット一覧取得に失敗: %w", err)
	}
	slots := make([]*slot.TimeSlot, len(rows))
	for i, row := range rows {
		slots[i] = row.toEntity()
	}
	return slots, nil
}

func (r *SlotRepository) GetOverlapping(ctx context.Context, resourceID string, startsAt, endsAt time.Time, statuses []slot.Status) ([]*slot.TimeSlot, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}

	var rows []slotRow
	query := `SELECT ` + slotColumns + ` FROM time_slots
		WHERE resource_id = $1 AND starts_at < $3 AND ends_at > $2 AND status = ANY($4)
		ORDER BY starts_at`
	if err := r.db.SelectContext(ctx, &rows, query, resourceID, startsAt, endsAt, pq.Array(strs)); err != nil {
		return nil, fmt.Errorf("重複スロット検索に失敗: %w", err)
	}
	slots := make([]*slot.TimeSlot, len(rows))
	for i, row := range rows {
		slots[i] = row.toEntity()
	}
	return slots, nil
}

// HoldSlot はスロットをホールド状態で upsert する
// 同一 (resource_id, starts_at, ends_at) の既存行が available の場合のみ
// 上書きされ、それ以外（hold/booked）は ErrSlotConflict となる
func (r *SlotRepository) HoldSlot(ctx context.Context, tx transaction.Tx, resourceID string, startsAt, endsAt time.Time) (*slot.TimeSlot, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return nil, fmt.Errorf("無効なトランザクションです")
	}

	query := `INSERT INTO time_slots (resource_id, starts_at, ends_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'hold', NOW(), NOW())
		ON CONFLICT (resource_id, starts_at, ends_at)
		DO UPDATE SET status = 'hold', updated_at = NOW()
		WHERE time_slots.status = 'available'
		RETURNING ` + slotColumns
	var row slotRow
	if err := sqlxTx.GetContext(ctx, &row, query, resourceID, startsAt, endsAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, slot.ErrSlotConflict
		}
		return nil, fmt.Errorf("スロットのホールドに失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *SlotRepository) BookSlot(ctx context.Context, tx transaction.Tx, resourceID string, startsAt, endsAt time.Time) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	query := `UPDATE time_slots SET status = 'booked', updated_at = NOW()
		WHERE resource_id = $1 AND starts_at = $2 AND ends_at = $3 AND status = 'hold'`
	result, err := sqlxTx.ExecContext(ctx, query, resourceID, startsAt, endsAt)
	if err != nil {
		return fmt.Errorf("スロット確定に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return slot.ErrSlotNotHeld
	}
	return nil
}

func (r *SlotRepository) ReleaseSlot(ctx context.Context, tx transaction.Tx, resourceID string, startsAt, endsAt time.Time) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	query := `UPDATE time_slots SET status = 'available', updated_at = NOW()
		WHERE resource_id = $1 AND starts_at = $2 AND ends_at = $3 AND status IN ('hold', 'booked')`
	if _, err := sqlxTx.ExecContext(ctx, query, resourceID, startsAt, endsAt); err != nil {
		return fmt.Errorf("スロット解放に失敗: %w", err)
	}
	return nil
}

var _ slot.Repository = (*SlotRepository)(nil)
