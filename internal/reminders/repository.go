package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/backend/internal/models"
)

// Repository handles reminder job and delivery persistence. Delivery sent-state
// is written by the dispatch pipeline only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reminders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, event_id, audience, subject, body_html, send_at, completed_at, created_at, updated_at`

// CreateJob inserts a reminder job.
func (r *Repository) CreateJob(ctx context.Context, job *models.ReminderJob) error {
	const q = `INSERT INTO reminder_jobs (id, event_id, audience, subject, body_html, send_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, job.EventID, job.Audience, job.Subject, job.BodyHTML, job.SendAt).
		Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

// ListByEvent returns all reminder jobs for an event.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.ReminderJob, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM reminder_jobs WHERE event_id = $1 ORDER BY send_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ReminderJob
	for rows.Next() {
		var job models.ReminderJob
		if err := rows.Scan(&job.ID, &job.EventID, &job.Audience, &job.Subject, &job.BodyHTML,
			&job.SendAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

// ListDue returns jobs whose send time has passed and which are not completed.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]models.ReminderJob, error) {
	const q = `SELECT ` + jobColumns + ` FROM reminder_jobs WHERE send_at <= $1 AND completed_at IS NULL ORDER BY send_at ASC`
	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ReminderJob
	for rows.Next() {
		var job models.ReminderJob
		if err := rows.Scan(&job.ID, &job.EventID, &job.Audience, &job.Subject, &job.BodyHTML,
			&job.SendAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

// Recipient is one (registration, email) pair a job resolves to.
type Recipient struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	Email          string    `json:"email"`
}

// ResolveRecipients resolves the job's audience rule over the event's
// registrations.
func (r *Repository) ResolveRecipients(ctx context.Context, job models.ReminderJob) ([]Recipient, error) {
	q := `SELECT reg.id, u.email
		FROM registrations reg
		JOIN users u ON u.id = reg.user_id
		WHERE reg.event_id = $1`
	switch job.Audience {
	case models.ReminderAudiencePaid:
		q += ` AND reg.payment_status = 'paid'`
	case models.ReminderAudiencePending:
		q += ` AND reg.payment_status = 'pending'`
	case models.ReminderAudienceCheckedIn:
		q += ` AND reg.checked_in`
	}
	rows, err := r.pool.Query(ctx, q, job.EventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.RegistrationID, &rec.Email); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// ClaimDelivery reserves the (job, recipient) pair for this run. The unique
// pair plus ON CONFLICT DO NOTHING is the compare-and-set that keeps a
// concurrent run from dispatching the same notification: only one caller gets
// claimed=true.
func (r *Repository) ClaimDelivery(ctx context.Context, jobID, registrationID uuid.UUID, email string) (bool, error) {
	const q = `INSERT INTO reminder_deliveries (job_id, registration_id, recipient_email)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id, registration_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, jobID, registrationID, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDeliverySent records the authoritative sent marker, after dispatch.
func (r *Repository) MarkDeliverySent(ctx context.Context, jobID, registrationID uuid.UUID) error {
	const q = `UPDATE reminder_deliveries SET sent_at = NOW() WHERE job_id = $1 AND registration_id = $2 AND sent_at IS NULL`
	_, err := r.pool.Exec(ctx, q, jobID, registrationID)
	return err
}

// ReleaseDelivery frees a claim whose dispatch failed so a later run retries it.
func (r *Repository) ReleaseDelivery(ctx context.Context, jobID, registrationID uuid.UUID) error {
	const q = `DELETE FROM reminder_deliveries WHERE job_id = $1 AND registration_id = $2 AND sent_at IS NULL`
	_, err := r.pool.Exec(ctx, q, jobID, registrationID)
	return err
}

// ReleaseStaleClaims frees claims that never got a sent marker — a run that
// crashed between dispatch and mark. After the grace window they become
// eligible for redelivery.
func (r *Repository) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	const q = `DELETE FROM reminder_deliveries WHERE sent_at IS NULL AND claimed_at < $1`
	tag, err := r.pool.Exec(ctx, q, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkJobCompleted closes a job, guarded store-side: it only completes when no
// unsent claim remains and at least recipientCount deliveries are sent. A run
// that skipped a fresh concurrent claim, or whose peer released a failed one,
// cannot close the job early. Returns whether this call completed it.
func (r *Repository) MarkJobCompleted(ctx context.Context, jobID uuid.UUID, recipientCount int) (bool, error) {
	const q = `UPDATE reminder_jobs SET completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND completed_at IS NULL
		AND NOT EXISTS (SELECT 1 FROM reminder_deliveries WHERE job_id = $1 AND sent_at IS NULL)
		AND (SELECT COUNT(*) FROM reminder_deliveries WHERE job_id = $1 AND sent_at IS NOT NULL) >= $2`
	tag, err := r.pool.Exec(ctx, q, jobID, recipientCount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
