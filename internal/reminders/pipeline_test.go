package reminders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/backend/internal/models"
)

type claimKey struct {
	job uuid.UUID
	reg uuid.UUID
}

type fakeDispatchStore struct {
	jobs       []models.ReminderJob
	recipients map[uuid.UUID][]Recipient
	claims     map[claimKey]time.Time
	sent       map[claimKey]bool
	completed  map[uuid.UUID]bool
}

func newFakeDispatchStore() *fakeDispatchStore {
	return &fakeDispatchStore{
		recipients: make(map[uuid.UUID][]Recipient),
		claims:     make(map[claimKey]time.Time),
		sent:       make(map[claimKey]bool),
		completed:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeDispatchStore) ListDue(_ context.Context, now time.Time) ([]models.ReminderJob, error) {
	var due []models.ReminderJob
	for _, j := range f.jobs {
		if !j.SendAt.After(now) && !f.completed[j.ID] {
			due = append(due, j)
		}
	}
	return due, nil
}

func (f *fakeDispatchStore) ResolveRecipients(_ context.Context, job models.ReminderJob) ([]Recipient, error) {
	return f.recipients[job.ID], nil
}

func (f *fakeDispatchStore) ClaimDelivery(_ context.Context, jobID, regID uuid.UUID, _ string) (bool, error) {
	k := claimKey{jobID, regID}
	if _, exists := f.claims[k]; exists {
		return false, nil
	}
	f.claims[k] = time.Now()
	return true, nil
}

func (f *fakeDispatchStore) MarkDeliverySent(_ context.Context, jobID, regID uuid.UUID) error {
	f.sent[claimKey{jobID, regID}] = true
	return nil
}

func (f *fakeDispatchStore) ReleaseDelivery(_ context.Context, jobID, regID uuid.UUID) error {
	k := claimKey{jobID, regID}
	if !f.sent[k] {
		delete(f.claims, k)
	}
	return nil
}

func (f *fakeDispatchStore) ReleaseStaleClaims(_ context.Context, olderThan time.Time) (int64, error) {
	var n int64
	for k, at := range f.claims {
		if !f.sent[k] && at.Before(olderThan) {
			delete(f.claims, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeDispatchStore) MarkJobCompleted(_ context.Context, jobID uuid.UUID, recipientCount int) (bool, error) {
	if f.completed[jobID] {
		return false, nil
	}
	sentCount := 0
	for k := range f.claims {
		if k.job != jobID {
			continue
		}
		if !f.sent[k] {
			return false, nil
		}
		sentCount++
	}
	if sentCount < recipientCount {
		return false, nil
	}
	f.completed[jobID] = true
	return true, nil
}

type fakeSender struct {
	failFor map[string]error
	sentTo  []string
}

func (f *fakeSender) Send(_ context.Context, to, _, _ string) error {
	if err := f.failFor[to]; err != nil {
		return err
	}
	f.sentTo = append(f.sentTo, to)
	return nil
}

func dueJob(store *fakeDispatchStore, n int) models.ReminderJob {
	job := models.ReminderJob{
		ID:       uuid.New(),
		EventID:  uuid.New(),
		Audience: models.ReminderAudienceAll,
		Subject:  "Doors open at 7",
		SendAt:   time.Now().Add(-time.Minute),
	}
	store.jobs = append(store.jobs, job)
	for i := 0; i < n; i++ {
		store.recipients[job.ID] = append(store.recipients[job.ID], Recipient{
			RegistrationID: uuid.New(),
			Email:          fmt.Sprintf("member%d@example.com", i),
		})
	}
	return job
}

func TestProcessSendsOncePerRecipient(t *testing.T) {
	store := newFakeDispatchStore()
	job := dueJob(store, 3)
	sender := &fakeSender{}
	p := NewPipeline(store, sender, nil, 5*time.Minute, nil)

	report, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.JobsProcessed)
	assert.Equal(t, 3, report.Sent)
	assert.Empty(t, report.Failures)
	assert.True(t, store.completed[job.ID])

	// A second run finds nothing left to do: the job is completed and every
	// delivery is claimed and sent.
	report, err = p.Process(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.JobsProcessed)
	assert.Zero(t, report.Sent)
	assert.Len(t, sender.sentTo, 3)
}

func TestProcessPartialFailure(t *testing.T) {
	store := newFakeDispatchStore()
	job := dueJob(store, 3)
	bad := store.recipients[job.ID][1].Email
	sender := &fakeSender{failFor: map[string]error{bad: errors.New("mailbox full")}}
	p := NewPipeline(store, sender, nil, 5*time.Minute, nil)

	report, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad, report.Failures[0].Email)
	assert.Contains(t, report.Failures[0].Reason, "mailbox full")
	assert.False(t, store.completed[job.ID], "a job with failures stays due")

	// The failed claim was released; the next run retries only that recipient.
	sender.failFor = nil
	report, err = p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, report.Failures)
	assert.True(t, store.completed[job.ID])
}

func TestProcessOverlappingRunsDoNotDoubleSend(t *testing.T) {
	store := newFakeDispatchStore()
	job := dueJob(store, 2)
	// Another run already claimed and sent the first recipient.
	first := store.recipients[job.ID][0]
	k := claimKey{job.ID, first.RegistrationID}
	store.claims[k] = time.Now()
	store.sent[k] = true

	sender := &fakeSender{}
	p := NewPipeline(store, sender, nil, 5*time.Minute, nil)

	report, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{store.recipients[job.ID][1].Email}, sender.sentTo)
}

func TestProcessReleasesStaleClaims(t *testing.T) {
	store := newFakeDispatchStore()
	job := dueJob(store, 1)
	rec := store.recipients[job.ID][0]
	// A crashed run left a claim with no sent marker, older than the grace window.
	store.claims[claimKey{job.ID, rec.RegistrationID}] = time.Now().Add(-10 * time.Minute)

	sender := &fakeSender{}
	p := NewPipeline(store, sender, nil, 5*time.Minute, nil)

	report, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{rec.Email}, sender.sentTo)
}

func TestProcessFreshClaimNotStolen(t *testing.T) {
	store := newFakeDispatchStore()
	job := dueJob(store, 1)
	rec := store.recipients[job.ID][0]
	// A concurrent run claimed moments ago and may still be sending.
	store.claims[claimKey{job.ID, rec.RegistrationID}] = time.Now()

	sender := &fakeSender{}
	p := NewPipeline(store, sender, nil, 5*time.Minute, nil)

	report, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, sender.sentTo)
	assert.False(t, store.completed[job.ID], "job must stay due while a claim is in flight")
}

func TestProcessEmptyAudienceCompletesJob(t *testing.T) {
	store := newFakeDispatchStore()
	job := dueJob(store, 0)
	p := NewPipeline(store, &fakeSender{}, nil, 5*time.Minute, nil)

	report, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.JobsProcessed)
	assert.Equal(t, 1, report.JobsCompleted)
	assert.True(t, store.completed[job.ID])
}

func TestProcessRecordsLogbookEntries(t *testing.T) {
	store := newFakeDispatchStore()
	dueJob(store, 2)
	logbook := &fakeLogbook{}
	p := NewPipeline(store, &fakeSender{}, logbook, 5*time.Minute, nil)

	_, err := p.Process(context.Background())
	require.NoError(t, err)
	require.Len(t, logbook.entries, 2)
	for _, e := range logbook.entries {
		assert.Equal(t, models.EmailTypeReminder, e.EmailType)
		assert.Equal(t, models.EmailLogStatusSent, e.Status)
		assert.NotNil(t, e.SentAt)
	}
}

type fakeLogbook struct {
	entries []models.EmailLog
}

func (f *fakeLogbook) Record(_ context.Context, log *models.EmailLog) error {
	f.entries = append(f.entries, *log)
	return nil
}
