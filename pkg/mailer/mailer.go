// Package mailer sends portal notification emails. The concrete sender is
// AWS SES; a no-op logging sender is used when SES is not configured so
// local development never blocks on delivery.
package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// Sender delivers one email. Implementations must return an error only when
// delivery to the channel failed; acceptance by the channel counts as sent.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Config holds sender identity and SES settings.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	FromAddress     string
	FromName        string
}

// SES sends email through AWS SES.
type SES struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

// NewSES creates an SES-backed sender.
func NewSES(ctx context.Context, cfg Config, logger *zap.Logger) (*SES, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}
	return &SES{client: ses.NewFromConfig(awsCfg), from: from, logger: logger}, nil
}

// Send delivers one email via SES.
func (s *SES) Send(ctx context.Context, to, subject, htmlBody string) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.from),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body:    &types.Body{Html: &types.Content{Data: aws.String(htmlBody)}},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	s.logger.Debug("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// LogOnly logs instead of sending. Used when no email provider is configured.
type LogOnly struct {
	logger *zap.Logger
}

// NewLogOnly creates a logging sender.
func NewLogOnly(logger *zap.Logger) *LogOnly {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogOnly{logger: logger}
}

// Send logs the email instead of delivering it.
func (l *LogOnly) Send(ctx context.Context, to, subject, htmlBody string) error {
	l.logger.Info("email (log only)", zap.String("to", to), zap.String("subject", subject))
	return nil
}
