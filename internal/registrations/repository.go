package registrations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/backend/internal/models"
)

// Repository handles registration persistence. Payment fields are written only
// through MarkPaid/MarkFailed and check-in fields only through MarkCheckedIn;
// both are conditional updates so concurrent transitions linearize in the store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const regColumns = `id, event_id, user_id, payment_status, amount_paid_cents, payment_reference, checked_in, checked_in_at, checked_in_by, created_at, updated_at`

// Create inserts a registration. Payment status must be pending, or paid with
// amount 0 for free events. Unique per (event, user).
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (id, event_id, user_id, payment_status, amount_paid_cents, payment_reference)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, checked_in, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, reg.EventID, reg.UserID, reg.PaymentStatus, reg.AmountPaidCents, reg.PaymentReference).
		Scan(&reg.ID, &reg.CheckedIn, &reg.CreatedAt, &reg.UpdatedAt)
}

// GetByID returns a registration by ID, or nil if none exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

// GetByEventAndUser returns the registration for event+member, or nil if none exists.
func (r *Repository) GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations WHERE event_id = $1 AND user_id = $2`
	return r.scanOne(ctx, q, eventID, userID)
}

// ListByUser returns a member's registrations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+regColumns+` FROM registrations WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// ListByEvent returns all registrations for an event.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+regColumns+` FROM registrations WHERE event_id = $1 ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// MarkPaid transitions pending→paid with the gateway-reported amount and
// transaction id. Returns false when the registration was no longer pending,
// which the caller treats as losing the race to a concurrent capture.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, amountCents int, reference string) (bool, error) {
	const q = `UPDATE registrations
		SET payment_status = 'paid', amount_paid_cents = $2, payment_reference = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, id, amountCents, reference)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed transitions pending→failed. No amount is recorded. Returns false
// when the registration was already terminal.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE registrations
		SET payment_status = 'failed', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCheckedIn sets the check-in fields once. staffID is nil for self-service
// QR scans. Returns false when the registration was already checked in, which
// degrades a duplicate concurrent scan to the idempotent path.
func (r *Repository) MarkCheckedIn(ctx context.Context, id uuid.UUID, staffID *uuid.UUID) (bool, error) {
	const q = `UPDATE registrations
		SET checked_in = TRUE, checked_in_at = NOW(), checked_in_by = $2, updated_at = NOW()
		WHERE id = $1 AND checked_in = FALSE`
	tag, err := r.pool.Exec(ctx, q, id, staffID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountAttended returns how many events the member has checked in to.
func (r *Repository) CountAttended(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE user_id = $1 AND checked_in`, userID).Scan(&n)
	return n, err
}

func (r *Repository) scanOne(ctx context.Context, q string, args ...interface{}) (*models.Registration, error) {
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, args...).Scan(
		&reg.ID, &reg.EventID, &reg.UserID, &reg.PaymentStatus, &reg.AmountPaidCents, &reg.PaymentReference,
		&reg.CheckedIn, &reg.CheckedInAt, &reg.CheckedInBy, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func scanAll(rows pgx.Rows) ([]models.Registration, error) {
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(
			&reg.ID, &reg.EventID, &reg.UserID, &reg.PaymentStatus, &reg.AmountPaidCents, &reg.PaymentReference,
			&reg.CheckedIn, &reg.CheckedInAt, &reg.CheckedInBy, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}
