package badges

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/backend/internal/models"
)

type fakeBadgeStore struct {
	active   []models.Badge
	earned   map[uuid.UUID]bool
	grantErr map[string]error
	inserted map[string]bool
	grants   []string
}

func (f *fakeBadgeStore) ListActive(context.Context) ([]models.Badge, error) {
	return f.active, nil
}

func (f *fakeBadgeStore) ListEarnedIDs(context.Context, uuid.UUID) (map[uuid.UUID]bool, error) {
	if f.earned == nil {
		return map[uuid.UUID]bool{}, nil
	}
	return f.earned, nil
}

func (f *fakeBadgeStore) Grant(_ context.Context, _ uuid.UUID, badgeID uuid.UUID, _ *uuid.UUID) (bool, error) {
	var code string
	for _, b := range f.active {
		if b.ID == badgeID {
			code = b.Code
		}
	}
	if err := f.grantErr[code]; err != nil {
		return false, err
	}
	f.grants = append(f.grants, code)
	if f.inserted != nil {
		if ok, known := f.inserted[code]; known {
			return ok, nil
		}
	}
	return true, nil
}

func badgeDef(code, criteria string, value int) models.Badge {
	return models.Badge{ID: uuid.New(), Code: code, CriteriaType: criteria, CriteriaValue: value, IsActive: true}
}

func TestEvaluateGrantsEligibleBadges(t *testing.T) {
	first := badgeDef("first-event", models.BadgeCriteriaFirstCheckin, 0)
	five := badgeDef("five-events", models.BadgeCriteriaAttendanceCount, 5)
	ten := badgeDef("ten-events", models.BadgeCriteriaAttendanceCount, 10)
	store := &fakeBadgeStore{active: []models.Badge{first, five, ten}}
	eval := NewEvaluator(store, nil)

	granted, err := eval.Evaluate(context.Background(), uuid.New(), nil, Context{AttendanceCount: 5})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first-event", "five-events"}, granted)
}

func TestEvaluateSkipsAlreadyEarned(t *testing.T) {
	first := badgeDef("first-event", models.BadgeCriteriaFirstCheckin, 0)
	five := badgeDef("five-events", models.BadgeCriteriaAttendanceCount, 5)
	store := &fakeBadgeStore{
		active: []models.Badge{first, five},
		earned: map[uuid.UUID]bool{first.ID: true},
	}
	eval := NewEvaluator(store, nil)

	granted, err := eval.Evaluate(context.Background(), uuid.New(), nil, Context{AttendanceCount: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"five-events"}, granted)
}

func TestEvaluateConcurrentGrantNotDoubleReported(t *testing.T) {
	first := badgeDef("first-event", models.BadgeCriteriaFirstCheckin, 0)
	store := &fakeBadgeStore{
		active:   []models.Badge{first},
		inserted: map[string]bool{"first-event": false}, // another evaluation inserted first
	}
	eval := NewEvaluator(store, nil)

	granted, err := eval.Evaluate(context.Background(), uuid.New(), nil, Context{AttendanceCount: 1})
	require.NoError(t, err)
	assert.Empty(t, granted)
}

func TestEvaluateContinuesPastGrantFailure(t *testing.T) {
	first := badgeDef("first-event", models.BadgeCriteriaFirstCheckin, 0)
	five := badgeDef("five-events", models.BadgeCriteriaAttendanceCount, 5)
	store := &fakeBadgeStore{
		active:   []models.Badge{first, five},
		grantErr: map[string]error{"first-event": errors.New("insert failed")},
	}
	eval := NewEvaluator(store, nil)

	granted, err := eval.Evaluate(context.Background(), uuid.New(), nil, Context{AttendanceCount: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"five-events"}, granted, "one failed grant must not block the rest")
}
