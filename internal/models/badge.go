package models

import (
	"time"

	"github.com/google/uuid"
)

// Badge criteria types.
const (
	BadgeCriteriaFirstCheckin    = "first_checkin"
	BadgeCriteriaAttendanceCount = "attendance_count"
	BadgeCriteriaSpecialEvent    = "special_event"
)

// Badge is one entry in the award catalog.
type Badge struct {
	ID            uuid.UUID `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	CriteriaType  string    `json:"criteria_type"`
	CriteriaValue int       `json:"criteria_value"`
	IsActive      bool      `json:"is_active"`
	SortOrder     int       `json:"sort_order"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserBadge is a member's award of one badge.
type UserBadge struct {
	UserID   uuid.UUID  `json:"user_id"`
	BadgeID  uuid.UUID  `json:"badge_id"`
	EventID  *uuid.UUID `json:"event_id,omitempty"`
	EarnedAt time.Time  `json:"earned_at"`
}
