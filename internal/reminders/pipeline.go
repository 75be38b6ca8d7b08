package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/mailer"
)

// Store is the persistence slice the pipeline drives.
type Store interface {
	ListDue(ctx context.Context, now time.Time) ([]models.ReminderJob, error)
	ResolveRecipients(ctx context.Context, job models.ReminderJob) ([]Recipient, error)
	ClaimDelivery(ctx context.Context, jobID, registrationID uuid.UUID, email string) (bool, error)
	MarkDeliverySent(ctx context.Context, jobID, registrationID uuid.UUID) error
	ReleaseDelivery(ctx context.Context, jobID, registrationID uuid.UUID) error
	ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)
	MarkJobCompleted(ctx context.Context, jobID uuid.UUID, recipientCount int) (bool, error)
}

// Logbook records dispatch outcomes in the email audit trail. Recording is
// best-effort: a logbook error never changes dispatch behavior.
type Logbook interface {
	Record(ctx context.Context, log *models.EmailLog) error
}

// RecipientFailure is one recipient the run could not deliver to.
type RecipientFailure struct {
	JobID          uuid.UUID `json:"job_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	Email          string    `json:"email"`
	Reason         string    `json:"reason"`
}

// Report summarizes one pipeline run.
type Report struct {
	JobsProcessed int                `json:"jobs_processed"`
	JobsCompleted int                `json:"jobs_completed"`
	Sent          int                `json:"sent"`
	Skipped       int                `json:"skipped"`
	Failures      []RecipientFailure `json:"failures"`
}

// Pipeline dispatches due reminder jobs. Safe to run from overlapping
// schedules: the per-recipient claim row decides a single sender for each
// (job, recipient) pair, so concurrency costs skipped claims, not duplicate
// email.
type Pipeline struct {
	store   Store
	sender  mailer.Sender
	logbook Logbook
	grace   time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewPipeline creates a reminder dispatch pipeline. grace is how long an
// unsent claim may sit before it is presumed abandoned and released.
func NewPipeline(store Store, sender mailer.Sender, logbook Logbook, grace time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, sender: sender, logbook: logbook, grace: grace, logger: logger, now: time.Now}
}

// Process runs one dispatch pass over all due jobs. Per-recipient failures
// are collected in the report and never abort the batch; the returned error
// is reserved for failures that prevent the run itself (listing due jobs).
func (p *Pipeline) Process(ctx context.Context) (*Report, error) {
	now := p.now()
	report := &Report{Failures: []RecipientFailure{}}

	if p.grace > 0 {
		released, err := p.store.ReleaseStaleClaims(ctx, now.Add(-p.grace))
		if err != nil {
			p.logger.Error("stale claim release failed", zap.Error(err))
		} else if released > 0 {
			p.logger.Warn("released stale reminder claims", zap.Int64("count", released))
		}
	}

	jobs, err := p.store.ListDue(ctx, now)
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.JobsProcessed++
		p.processJob(ctx, job, report)
	}
	return report, nil
}

func (p *Pipeline) processJob(ctx context.Context, job models.ReminderJob, report *Report) {
	recipients, err := p.store.ResolveRecipients(ctx, job)
	if err != nil {
		p.logger.Error("recipient resolution failed",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		report.Failures = append(report.Failures, RecipientFailure{
			JobID:  job.ID,
			Reason: "resolve recipients: " + err.Error(),
		})
		return
	}

	for _, rec := range recipients {
		switch p.dispatch(ctx, job, rec, report) {
		case dispatchSent:
			report.Sent++
		case dispatchSkipped:
			report.Skipped++
		case dispatchFailed:
		}
	}

	// Completion is attempted every pass; the store-side guard refuses while
	// any recipient is unsent, so failed or in-flight deliveries keep the job
	// due for the next run.
	completed, err := p.store.MarkJobCompleted(ctx, job.ID, len(recipients))
	if err != nil {
		p.logger.Error("job completion mark failed",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	if completed {
		report.JobsCompleted++
	}
}

type dispatchOutcome int

const (
	dispatchSent dispatchOutcome = iota
	dispatchSkipped
	dispatchFailed
)

// dispatch handles one recipient: claim, send, mark sent. The claim insert is
// the only gate; whoever loses it walks away without sending.
func (p *Pipeline) dispatch(ctx context.Context, job models.ReminderJob, rec Recipient, report *Report) dispatchOutcome {
	claimed, err := p.store.ClaimDelivery(ctx, job.ID, rec.RegistrationID, rec.Email)
	if err != nil {
		report.Failures = append(report.Failures, RecipientFailure{
			JobID: job.ID, RegistrationID: rec.RegistrationID, Email: rec.Email,
			Reason: "claim: " + err.Error(),
		})
		return dispatchFailed
	}
	if !claimed {
		return dispatchSkipped
	}

	if err := p.sender.Send(ctx, rec.Email, job.Subject, job.BodyHTML); err != nil {
		p.logger.Warn("reminder send failed",
			zap.String("job_id", job.ID.String()), zap.String("to", rec.Email), zap.Error(err))
		if relErr := p.store.ReleaseDelivery(ctx, job.ID, rec.RegistrationID); relErr != nil {
			p.logger.Error("claim release failed",
				zap.String("job_id", job.ID.String()), zap.Error(relErr))
		}
		p.record(ctx, job, rec, models.EmailLogStatusFailed, err.Error())
		report.Failures = append(report.Failures, RecipientFailure{
			JobID: job.ID, RegistrationID: rec.RegistrationID, Email: rec.Email,
			Reason: "send: " + err.Error(),
		})
		return dispatchFailed
	}

	if err := p.store.MarkDeliverySent(ctx, job.ID, rec.RegistrationID); err != nil {
		// Email went out but the marker write failed. The claim stays in place
		// so nothing resends before the grace window; flag it for operators.
		p.logger.Error("sent marker write failed",
			zap.String("job_id", job.ID.String()), zap.String("to", rec.Email), zap.Error(err))
		report.Failures = append(report.Failures, RecipientFailure{
			JobID: job.ID, RegistrationID: rec.RegistrationID, Email: rec.Email,
			Reason: "mark sent: " + err.Error(),
		})
		return dispatchFailed
	}
	p.record(ctx, job, rec, models.EmailLogStatusSent, "")
	return dispatchSent
}

func (p *Pipeline) record(ctx context.Context, job models.ReminderJob, rec Recipient, status, errMsg string) {
	if p.logbook == nil {
		return
	}
	eventID := job.EventID
	regID := rec.RegistrationID
	entry := &models.EmailLog{
		EventID:        &eventID,
		RegistrationID: &regID,
		EmailType:      models.EmailTypeReminder,
		RecipientEmail: rec.Email,
		Subject:        job.Subject,
		Status:         status,
		ErrorMessage:   errMsg,
	}
	if status == models.EmailLogStatusSent {
		now := p.now()
		entry.SentAt = &now
	}
	if err := p.logbook.Record(ctx, entry); err != nil {
		p.logger.Warn("email log write failed", zap.Error(err))
	}
}
