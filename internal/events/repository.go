package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/backend/internal/models"
)

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, title, description, location, starts_at, ends_at, is_special, is_paid, price_cents, currency, created_by, created_at, updated_at`

// Create inserts an event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (id, title, description, location, starts_at, ends_at, is_special, is_paid, price_cents, currency, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt,
		e.IsSpecial, e.IsPaid, e.PriceCents, e.Currency, e.CreatedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event by ID, or nil if none exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&e.ID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt,
		&e.IsSpecial, &e.IsPaid, &e.PriceCents, &e.Currency, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns all events, soonest first.
func (r *Repository) List(ctx context.Context) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY starts_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt,
			&e.IsSpecial, &e.IsPaid, &e.PriceCents, &e.Currency, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Stats holds registration counters for one event.
type Stats struct {
	Registered   int `json:"registered"`
	Paid         int `json:"paid"`
	CheckedIn    int `json:"checked_in"`
	RevenueCents int `json:"revenue_cents"`
}

// GetStats returns registration/payment/attendance counters for an event.
func (r *Repository) GetStats(ctx context.Context, eventID uuid.UUID) (*Stats, error) {
	const q = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE payment_status = 'paid'),
		COUNT(*) FILTER (WHERE checked_in),
		COALESCE(SUM(amount_paid_cents) FILTER (WHERE payment_status = 'paid'), 0)
		FROM registrations WHERE event_id = $1`
	var s Stats
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&s.Registered, &s.Paid, &s.CheckedIn, &s.RevenueCents); err != nil {
		return nil, err
	}
	return &s, nil
}
