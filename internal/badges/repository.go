package badges

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-club/backend/internal/models"
)

// Repository handles badge catalog reads and award writes. UserBadge rows are
// written by this package only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a badges repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const badgeColumns = `id, code, name, description, criteria_type, criteria_value, is_active, sort_order, created_at`

// EarnedBadge is a member's award joined with its badge definition.
type EarnedBadge struct {
	BadgeID     uuid.UUID  `json:"badge_id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	EventID     *uuid.UUID `json:"event_id,omitempty"`
	EarnedAt    time.Time  `json:"earned_at"`
}

// ListActive returns active badge definitions in display order.
func (r *Repository) ListActive(ctx context.Context) ([]models.Badge, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+badgeColumns+` FROM badges WHERE is_active ORDER BY sort_order ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Badge
	for rows.Next() {
		var b models.Badge
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Description, &b.CriteriaType, &b.CriteriaValue,
			&b.IsActive, &b.SortOrder, &b.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// ListEarnedIDs returns the set of badge IDs a member already holds.
func (r *Repository) ListEarnedIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT badge_id FROM user_badges WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	earned := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		earned[id] = true
	}
	return earned, rows.Err()
}

// ListEarned returns a member's awards joined with their badge definitions,
// newest first.
func (r *Repository) ListEarned(ctx context.Context, userID uuid.UUID) ([]EarnedBadge, error) {
	const q = `SELECT b.id, b.code, b.name, b.description, ub.event_id, ub.earned_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = $1
		ORDER BY ub.earned_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []EarnedBadge
	for rows.Next() {
		var e EarnedBadge
		if err := rows.Scan(&e.BadgeID, &e.Code, &e.Name, &e.Description, &e.EventID, &e.EarnedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Grant awards a badge to a member. The (user, badge) primary key plus
// ON CONFLICT DO NOTHING makes the write idempotent under concurrent
// check-ins: only the call that actually inserted reports granted=true.
func (r *Repository) Grant(ctx context.Context, userID, badgeID uuid.UUID, eventID *uuid.UUID) (bool, error) {
	const q = `INSERT INTO user_badges (user_id, badge_id, event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, userID, badgeID, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
