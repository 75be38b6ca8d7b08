package badges

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/models"
)

// Store is the award persistence the evaluator needs.
type Store interface {
	ListActive(ctx context.Context) ([]models.Badge, error)
	ListEarnedIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error)
	Grant(ctx context.Context, userID, badgeID uuid.UUID, eventID *uuid.UUID) (bool, error)
}

// Evaluator grants badges a member became eligible for. Grants are
// frequency-independent: re-running evaluation never produces a second award.
type Evaluator struct {
	store  Store
	logger *zap.Logger
}

// NewEvaluator creates a badge evaluator.
func NewEvaluator(store Store, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{store: store, logger: logger}
}

// Evaluate checks every active badge against the member's attendance context
// and grants the eligible ones not already held. Returns the codes of badges
// actually granted by this call; under a concurrent duplicate evaluation the
// store's conflict-is-ignored insert decides the single winner per badge.
func (e *Evaluator) Evaluate(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID, attendance Context) ([]string, error) {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	earned, err := e.store.ListEarnedIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list earned badges: %w", err)
	}

	var granted []string
	for _, badge := range active {
		if earned[badge.ID] || !Eligible(badge, attendance) {
			continue
		}
		inserted, err := e.store.Grant(ctx, userID, badge.ID, eventID)
		if err != nil {
			// Keep going: one broken grant must not block the others.
			e.logger.Error("badge grant failed",
				zap.String("user_id", userID.String()), zap.String("badge", badge.Code), zap.Error(err))
			continue
		}
		if inserted {
			granted = append(granted, badge.Code)
			e.logger.Info("badge granted",
				zap.String("user_id", userID.String()), zap.String("badge", badge.Code))
		}
	}
	return granted, nil
}
