package checkin

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/backend/internal/badges"
	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/errs"
)

type fakeMembers struct {
	byQR map[string]*models.User
}

func (f *fakeMembers) GetByQRCode(_ context.Context, qr string) (*models.User, error) {
	return f.byQR[qr], nil
}

type fakeEvents struct {
	byID map[uuid.UUID]*models.Event
}

func (f *fakeEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	return f.byID[id], nil
}

type fakeRegs struct {
	reg       *models.Registration
	attended  int
	markCalls int
	markOK    bool
}

func (f *fakeRegs) GetByEventAndUser(_ context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	if f.reg == nil || f.reg.EventID != eventID || f.reg.UserID != userID {
		return nil, nil
	}
	cp := *f.reg
	return &cp, nil
}

func (f *fakeRegs) MarkCheckedIn(_ context.Context, id uuid.UUID, staffID *uuid.UUID) (bool, error) {
	f.markCalls++
	if !f.markOK || f.reg.CheckedIn {
		f.reg.CheckedIn = true
		return false, nil
	}
	f.reg.CheckedIn = true
	f.reg.CheckedInBy = staffID
	return true, nil
}

func (f *fakeRegs) CountAttended(context.Context, uuid.UUID) (int, error) {
	return f.attended, nil
}

type fakeEvaluator struct {
	granted []string
	err     error
	calls   int
	lastCtx badges.Context
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ uuid.UUID, _ *uuid.UUID, attendance badges.Context) ([]string, error) {
	f.calls++
	f.lastCtx = attendance
	return f.granted, f.err
}

type fixture struct {
	member  *models.User
	event   *models.Event
	regs    *fakeRegs
	eval    *fakeEvaluator
	service *Service
}

func newFixture(t *testing.T, paid, special bool) *fixture {
	t.Helper()
	member := &models.User{ID: uuid.New(), FullName: "Ada Kim", QRCode: "QR-ADA"}
	event := &models.Event{ID: uuid.New(), Title: "Summer Gala", IsPaid: paid, IsSpecial: special}
	reg := &models.Registration{ID: uuid.New(), EventID: event.ID, UserID: member.ID,
		PaymentStatus: models.PaymentStatusPending}
	if paid {
		reg.PaymentStatus = models.PaymentStatusPaid
	}
	regs := &fakeRegs{reg: reg, attended: 1, markOK: true}
	eval := &fakeEvaluator{granted: []string{}}
	svc := NewService(
		&fakeMembers{byQR: map[string]*models.User{member.QRCode: member}},
		&fakeEvents{byID: map[uuid.UUID]*models.Event{event.ID: event}},
		regs, eval, nil)
	return &fixture{member: member, event: event, regs: regs, eval: eval, service: svc}
}

func TestCheckInGrantsBadges(t *testing.T) {
	f := newFixture(t, false, false)
	f.regs.attended = 5
	f.eval.granted = []string{"five-events"}

	result, err := f.service.CheckIn(context.Background(), "QR-ADA", f.event.ID, nil)
	require.NoError(t, err)
	assert.False(t, result.AlreadyCheckedIn)
	assert.Equal(t, "Ada Kim", result.MemberName)
	assert.True(t, result.Registration.CheckedIn)
	assert.Equal(t, []string{"five-events"}, result.NewBadges)
	assert.Equal(t, 5, f.eval.lastCtx.AttendanceCount)
}

func TestCheckInSpecialEventContext(t *testing.T) {
	f := newFixture(t, false, true)

	_, err := f.service.CheckIn(context.Background(), "QR-ADA", f.event.ID, nil)
	require.NoError(t, err)
	assert.True(t, f.eval.lastCtx.SpecialEvent)
}

func TestCheckInRepeatScanIsIdempotent(t *testing.T) {
	f := newFixture(t, false, false)
	f.regs.reg.CheckedIn = true

	result, err := f.service.CheckIn(context.Background(), "QR-ADA", f.event.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.AlreadyCheckedIn)
	assert.Empty(t, result.NewBadges)
	assert.Zero(t, f.regs.markCalls, "repeat scan must not write")
	assert.Zero(t, f.eval.calls, "repeat scan must not re-run badge evaluation")
}

func TestCheckInConcurrentScanLosesGracefully(t *testing.T) {
	f := newFixture(t, false, false)
	f.regs.markOK = false

	result, err := f.service.CheckIn(context.Background(), "QR-ADA", f.event.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.AlreadyCheckedIn)
	assert.Zero(t, f.eval.calls)
}

func TestCheckInUnpaidRegistrationRejected(t *testing.T) {
	f := newFixture(t, true, false)
	f.regs.reg.PaymentStatus = models.PaymentStatusPending

	_, err := f.service.CheckIn(context.Background(), "QR-ADA", f.event.ID, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeConflict, errs.CodeOf(err))
	assert.Zero(t, f.regs.markCalls)
}

func TestCheckInUnknownQRCode(t *testing.T) {
	f := newFixture(t, false, false)

	_, err := f.service.CheckIn(context.Background(), "QR-NOBODY", f.event.ID, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestCheckInNoRegistration(t *testing.T) {
	f := newFixture(t, false, false)
	f.regs.reg = &models.Registration{ID: uuid.New(), EventID: uuid.New(), UserID: uuid.New()}

	_, err := f.service.CheckIn(context.Background(), "QR-ADA", f.event.ID, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestCheckInEmptyQRCode(t *testing.T) {
	f := newFixture(t, false, false)

	_, err := f.service.CheckIn(context.Background(), "", f.event.ID, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
}

func TestCheckInSurvivesEvaluatorFailure(t *testing.T) {
	f := newFixture(t, false, false)
	f.eval.err = errors.New("badge store down")

	result, err := f.service.CheckIn(context.Background(), "QR-ADA", f.event.ID, nil)
	require.NoError(t, err, "badge failure must not fail the check-in")
	assert.True(t, result.Registration.CheckedIn)
	assert.Empty(t, result.NewBadges)
}

func TestCheckInRecordsStaff(t *testing.T) {
	f := newFixture(t, false, false)
	staffID := uuid.New()

	result, err := f.service.CheckIn(context.Background(), "QR-ADA", f.event.ID, &staffID)
	require.NoError(t, err)
	require.NotNil(t, f.regs.reg.CheckedInBy)
	assert.Equal(t, staffID, *f.regs.reg.CheckedInBy)
	assert.False(t, result.AlreadyCheckedIn)
}
