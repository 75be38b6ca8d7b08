package emaillogs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/backend/internal/models"
)

// Repository is the append-mostly audit trail of automation email.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record inserts one email log entry.
func (r *Repository) Record(ctx context.Context, log *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, event_id, registration_id, email_type, recipient_email, subject, status, sent_at, error_message)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q,
		log.EventID, log.RegistrationID, log.EmailType, log.RecipientEmail,
		log.Subject, log.Status, log.SentAt, log.ErrorMessage).
		Scan(&log.ID, &log.CreatedAt)
}

// ListByEvent returns an event's email log entries, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.EmailLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT id, event_id, registration_id, email_type, recipient_email, COALESCE(subject, ''), status, sent_at, COALESCE(error_message, ''), created_at
		FROM email_logs WHERE event_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EmailLog
	for rows.Next() {
		var l models.EmailLog
		if err := rows.Scan(&l.ID, &l.EventID, &l.RegistrationID, &l.EmailType, &l.RecipientEmail,
			&l.Subject, &l.Status, &l.SentAt, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
