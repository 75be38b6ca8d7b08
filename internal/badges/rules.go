package badges

import (
	"github.com/meridian-club/backend/internal/models"
)

// Context is the attendance snapshot a member's eligibility is evaluated
// against. AttendanceCount includes the check-in that triggered evaluation.
type Context struct {
	AttendanceCount int
	SpecialEvent    bool
}

// Eligible reports whether the context satisfies the badge's criteria.
// Unknown criteria types are never eligible, so new rule kinds can be seeded
// ahead of code that evaluates them.
func Eligible(badge models.Badge, ctx Context) bool {
	switch badge.CriteriaType {
	case models.BadgeCriteriaFirstCheckin:
		return ctx.AttendanceCount >= 1
	case models.BadgeCriteriaAttendanceCount:
		return badge.CriteriaValue > 0 && ctx.AttendanceCount >= badge.CriteriaValue
	case models.BadgeCriteriaSpecialEvent:
		return ctx.SpecialEvent
	default:
		return false
	}
}
