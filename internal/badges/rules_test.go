package badges

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-club/backend/internal/models"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		name  string
		badge models.Badge
		ctx   Context
		want  bool
	}{
		{"first checkin on first attendance",
			models.Badge{CriteriaType: models.BadgeCriteriaFirstCheckin},
			Context{AttendanceCount: 1}, true},
		{"first checkin with zero attendance",
			models.Badge{CriteriaType: models.BadgeCriteriaFirstCheckin},
			Context{AttendanceCount: 0}, false},
		{"attendance count met exactly",
			models.Badge{CriteriaType: models.BadgeCriteriaAttendanceCount, CriteriaValue: 5},
			Context{AttendanceCount: 5}, true},
		{"attendance count exceeded",
			models.Badge{CriteriaType: models.BadgeCriteriaAttendanceCount, CriteriaValue: 5},
			Context{AttendanceCount: 9}, true},
		{"attendance count short",
			models.Badge{CriteriaType: models.BadgeCriteriaAttendanceCount, CriteriaValue: 5},
			Context{AttendanceCount: 4}, false},
		{"attendance count with zero threshold never fires",
			models.Badge{CriteriaType: models.BadgeCriteriaAttendanceCount, CriteriaValue: 0},
			Context{AttendanceCount: 100}, false},
		{"special event badge at a special event",
			models.Badge{CriteriaType: models.BadgeCriteriaSpecialEvent},
			Context{SpecialEvent: true}, true},
		{"special event badge at a regular event",
			models.Badge{CriteriaType: models.BadgeCriteriaSpecialEvent},
			Context{SpecialEvent: false}, false},
		{"unknown criteria type",
			models.Badge{CriteriaType: "moon_phase"},
			Context{AttendanceCount: 50, SpecialEvent: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(tt.badge, tt.ctx))
		})
	}
}
