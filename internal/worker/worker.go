package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/auth"
	"github.com/meridian-club/backend/internal/emaillogs"
	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/internal/registrations"
	"github.com/meridian-club/backend/internal/reminders"
	"github.com/meridian-club/backend/pkg/mailer"
	"github.com/meridian-club/backend/pkg/queue"
)

// EmailProcessor processes transactional email jobs: resolve recipient, send,
// write the audit log.
type EmailProcessor struct {
	queue    *queue.Queue
	sender   mailer.Sender
	logs     *emaillogs.Repository
	regRepo  *registrations.Repository
	userRepo *auth.Repository
	logger   *zap.Logger
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(q *queue.Queue, sender mailer.Sender, logs *emaillogs.Repository,
	regRepo *registrations.Repository, userRepo *auth.Repository, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{queue: q, sender: sender, logs: logs, regRepo: regRepo, userRepo: userRepo, logger: logger}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	to := payload.RecipientEmail
	if to == "" {
		// Enqueuers may omit the address; resolve it from the registration.
		resolved, err := p.resolveRecipient(ctx, payload)
		if err != nil {
			return err
		}
		to = resolved
	}

	if err := p.sender.Send(ctx, to, payload.Subject, payload.BodyHTML); err != nil {
		p.recordLog(ctx, payload, to, models.EmailLogStatusFailed, err.Error())
		return fmt.Errorf("send: %w", err)
	}
	p.recordLog(ctx, payload, to, models.EmailLogStatusSent, "")
	p.logger.Info("email sent",
		zap.String("email_type", payload.EmailType), zap.String("to", to))
	return nil
}

func (p *EmailProcessor) resolveRecipient(ctx context.Context, payload queue.EmailPayload) (string, error) {
	reg, err := p.regRepo.GetByID(ctx, payload.RegistrationID)
	if err != nil || reg == nil {
		return "", fmt.Errorf("registration not found: %s", payload.RegistrationID)
	}
	user, err := p.userRepo.GetByID(ctx, reg.UserID)
	if err != nil || user == nil {
		return "", fmt.Errorf("user not found for registration %s", payload.RegistrationID)
	}
	return user.Email, nil
}

func (p *EmailProcessor) recordLog(ctx context.Context, payload queue.EmailPayload, to, status, errMsg string) {
	eventID := payload.EventID
	regID := payload.RegistrationID
	entry := &models.EmailLog{
		EventID:        &eventID,
		RegistrationID: &regID,
		EmailType:      payload.EmailType,
		RecipientEmail: to,
		Subject:        payload.Subject,
		Status:         status,
		ErrorMessage:   errMsg,
	}
	if status == models.EmailLogStatusSent {
		now := time.Now()
		entry.SentAt = &now
	}
	if err := p.logs.Record(ctx, entry); err != nil {
		p.logger.Warn("email log write failed", zap.Error(err))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// ReminderLoop runs the dispatch pipeline on a fixed interval. Multiple
// processes may run this loop; the pipeline's delivery claims keep overlapping
// passes from double-sending.
type ReminderLoop struct {
	pipeline *reminders.Pipeline
	interval time.Duration
	logger   *zap.Logger
}

// NewReminderLoop creates a reminder scheduler loop.
func NewReminderLoop(pipeline *reminders.Pipeline, interval time.Duration, logger *zap.Logger) *ReminderLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReminderLoop{pipeline: pipeline, interval: interval, logger: logger}
}

// Run ticks until ctx is done.
func (l *ReminderLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("reminder loop stopping")
			return
		case <-ticker.C:
		}

		report, err := l.pipeline.Process(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("reminder pass failed", zap.Error(err))
			continue
		}
		if report.JobsProcessed > 0 || len(report.Failures) > 0 {
			l.logger.Info("reminder pass finished",
				zap.Int("jobs", report.JobsProcessed),
				zap.Int("completed", report.JobsCompleted),
				zap.Int("sent", report.Sent),
				zap.Int("skipped", report.Skipped),
				zap.Int("failures", len(report.Failures)))
		}
	}
}
