package checkin

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/badges"
	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/errs"
)

// MemberStore resolves scannable identifiers to members.
type MemberStore interface {
	GetByQRCode(ctx context.Context, qrCode string) (*models.User, error)
}

// EventStore provides the event context badge rules evaluate against.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// RegistrationStore is the slice of the registration repository the check-in
// engine owns: check-in fields and attendance counts.
type RegistrationStore interface {
	GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	MarkCheckedIn(ctx context.Context, id uuid.UUID, staffID *uuid.UUID) (bool, error)
	CountAttended(ctx context.Context, userID uuid.UUID) (int, error)
}

// Evaluator grants whatever badges the member just became eligible for.
type Evaluator interface {
	Evaluate(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID, attendance badges.Context) ([]string, error)
}

// Result is the outcome of one check-in call.
type Result struct {
	Registration *models.Registration `json:"registration"`
	MemberName   string               `json:"member_name"`
	// AlreadyCheckedIn is true when the member was checked in before this call.
	// Scanning the same badge twice is a normal operational occurrence, not an
	// error, and it does not re-run badge evaluation.
	AlreadyCheckedIn bool     `json:"already_checked_in"`
	NewBadges        []string `json:"new_badges"`
}

// Service records attendance and triggers badge evaluation.
type Service struct {
	members   MemberStore
	events    EventStore
	regs      RegistrationStore
	evaluator Evaluator
	logger    *zap.Logger
}

// NewService creates a check-in service.
func NewService(members MemberStore, events EventStore, regs RegistrationStore, evaluator Evaluator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{members: members, events: events, regs: regs, evaluator: evaluator, logger: logger}
}

// CheckIn resolves the QR code to a member, marks their registration for the
// event as attended, and evaluates badge eligibility. staffID is nil for
// self-service scans. Attendance is the primary effect: badge evaluation
// failure is logged and isolated, never rolled into the check-in result as an
// error.
func (s *Service) CheckIn(ctx context.Context, qrCode string, eventID uuid.UUID, staffID *uuid.UUID) (*Result, error) {
	if qrCode == "" {
		return nil, errs.Validation("qr code required")
	}

	member, err := s.members.GetByQRCode(ctx, qrCode)
	if err != nil {
		return nil, errs.Upstream("resolve member", err)
	}
	if member == nil {
		return nil, errs.NotFound("member")
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, errs.Upstream("load event", err)
	}
	if event == nil {
		return nil, errs.NotFound("event")
	}

	reg, err := s.regs.GetByEventAndUser(ctx, eventID, member.ID)
	if err != nil {
		return nil, errs.Upstream("load registration", err)
	}
	if reg == nil {
		return nil, errs.NotFound("registration")
	}
	if event.IsPaid && reg.PaymentStatus != models.PaymentStatusPaid {
		return nil, errs.New(errs.CodeConflict, "registration is not paid")
	}

	if reg.CheckedIn {
		return &Result{Registration: reg, MemberName: member.FullName, AlreadyCheckedIn: true, NewBadges: []string{}}, nil
	}

	updated, err := s.regs.MarkCheckedIn(ctx, reg.ID, staffID)
	if err != nil {
		return nil, errs.Upstream("record check-in", err)
	}
	fresh, err := s.regs.GetByEventAndUser(ctx, eventID, member.ID)
	if err != nil || fresh == nil {
		return nil, errs.Upstream("reload registration", err)
	}
	if !updated {
		// A concurrent duplicate scan won the conditional write; this one
		// degrades to the idempotent path, without re-running evaluation.
		return &Result{Registration: fresh, MemberName: member.FullName, AlreadyCheckedIn: true, NewBadges: []string{}}, nil
	}
	s.logger.Info("member checked in",
		zap.String("user_id", member.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.Bool("staff_assisted", staffID != nil))

	newBadges := s.evaluate(ctx, member.ID, eventID, event.IsSpecial)
	return &Result{Registration: fresh, MemberName: member.FullName, NewBadges: newBadges}, nil
}

func (s *Service) evaluate(ctx context.Context, userID, eventID uuid.UUID, special bool) []string {
	count, err := s.regs.CountAttended(ctx, userID)
	if err != nil {
		s.logger.Error("badge evaluation skipped: attendance count failed",
			zap.String("user_id", userID.String()), zap.Error(err))
		return []string{}
	}
	granted, err := s.evaluator.Evaluate(ctx, userID, &eventID, badges.Context{
		AttendanceCount: count,
		SpecialEvent:    special,
	})
	if err != nil {
		s.logger.Error("badge evaluation failed",
			zap.String("user_id", userID.String()), zap.Error(err))
		return []string{}
	}
	if granted == nil {
		granted = []string{}
	}
	return granted
}
