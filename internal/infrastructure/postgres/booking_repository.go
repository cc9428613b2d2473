package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/SUNR153/room-time/internal/domain/booking"
	"github.com/SUNR153/room-time/internal/domain/transaction"
)

type bookingRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	ResourceID     string         `db:"resource_id"`
	StartsAt       time.Time      `db:"starts_at"`
	EndsAt         time.Time      `db:"ends_at"`
	Status         string         `db:"status"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	ExpiresAt      time.Time      `db:"expires_at"`
	ConfirmedAt    *time.Time     `db:"confirmed_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *bookingRow) toEntity() *booking.Booking {
	return &booking.Booking{
		ID: r.ID, UserID: r.UserID, ResourceID: r.ResourceID,
		StartsAt: r.StartsAt, EndsAt: r.EndsAt,
		Status:         booking.Status(r.Status),
		IdempotencyKey: r.IdempotencyKey.String,
		ExpiresAt:      r.ExpiresAt, ConfirmedAt: r.ConfirmedAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// nullableKey は空文字の冪等性キーをNULLとして保存する
// 一意制約は値が存在する行にのみ適用されるため
func nullableKey(key string) sql.NullString {
	return sql.NullString{String: key, Valid: key != ""}
}

const bookingColumns = `id, user_id, resource_id, starts_at, ends_at, status, idempotency_key, expires_at, confirmed_at, created_at, updated_at`

type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	query := `INSERT INTO bookings (user_id, resource_id, starts_at, ends_at, status, idempotency_key, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := sqlxTx.QueryRowContext(ctx, query,
		b.UserID, b.ResourceID, b.StartsAt, b.EndsAt, string(b.Status),
		nullableKey(b.IdempotencyKey), b.ExpiresAt, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return booking.ErrIdempotencyKeyConflict
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE idempotency_key = $1`
	if err := r.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *BookingRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i, row := range rows {
		result[i] = row.toEntity()
	}
	return result, nil
}

func (r *BookingRepository) Update(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	query := `UPDATE bookings SET status = $1, idempotency_key = $2, confirmed_at = $3, updated_at = $4 WHERE id = $5`
	result, err := sqlxTx.ExecContext(ctx, query,
		string(b.Status), nullableKey(b.IdempotencyKey), b.ConfirmedAt, b.UpdatedAt, b.ID)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return booking.ErrIdempotencyKeyConflict
		}
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

// CancelIfPending は pending のままの行に限って cancelled へ更新する
// 失効スイープと確定処理が競合した場合、確定済みの行を巻き戻さないための条件付き更新
func (r *BookingRepository) CancelIfPending(ctx context.Context, tx transaction.Tx, b *booking.Booking) (bool, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return false, fmt.Errorf("無効なトランザクションです")
	}

	query := `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 AND status = 'pending'`
	result, err := sqlxTx.ExecContext(ctx, query, string(booking.StatusCancelled), b.UpdatedAt, b.ID)
	if err != nil {
		return false, fmt.Errorf("予約の失効に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *BookingRepository) GetExpiredPending(ctx context.Context) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'pending' AND expires_at < NOW()`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("期限切れ予約取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i, row := range rows {
		result[i] = row.toEntity()
	}
	return result, nil
}

func (r *BookingRepository) CountActiveOverlapping(ctx context.Context, tx transaction.Tx, resourceID string, startsAt, endsAt time.Time, excludeID string) (int, error) {
	var count int
	// excludeID が空文字の場合は全件が対象（id::text は空文字に一致しない）
	// 期限切れの pending は有効予約として数えない
	query := `SELECT COUNT(*) FROM bookings
		WHERE resource_id = $1 AND starts_at < $3 AND ends_at > $2
		AND (status = 'confirmed' OR (status = 'pending' AND expires_at > NOW()))
		AND id::text <> $4`

	var err error
	if sqlxTx := UnwrapTx(tx); sqlxTx != nil {
		err = sqlxTx.GetContext(ctx, &count, query, resourceID, startsAt, endsAt, excludeID)
	} else {
		err = r.db.GetContext(ctx, &count, query, resourceID, startsAt, endsAt, excludeID)
	}
	if err != nil {
		return 0, fmt.Errorf("有効予約件数の取得に失敗: %w", err)
	}
	return count, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
