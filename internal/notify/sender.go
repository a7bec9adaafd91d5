// Package notify sends the emails of the dataset submission journey.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/digital-land/submit/internal/pkg/logger"
)

// Message is one outgoing email.
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers emails.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SESAPI is the subset of the SES v2 client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds SES settings. Empty credentials use the default chain.
type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	From      string
	Timeout   time.Duration // per message; zero means no limit
}

// SESSender sends emails via AWS SES using the SDK v2.
type SESSender struct {
	client  SESAPI
	from    string
	timeout time.Duration
}

// NewSESSender creates an SES sender.
func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("notify: from address is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	s := NewSESSenderWithClient(sesv2.NewFromConfig(awsCfg), cfg.From)
	s.timeout = cfg.Timeout
	return s, nil
}

// NewSESSenderWithClient wraps an existing client (useful for testing).
func NewSESSenderWithClient(client SESAPI, from string) *SESSender {
	return &SESSender{client: client, from: from}
}

// Send delivers a single email and returns the SES message id.
func (s *SESSender) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("notify: message has no recipients")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		logger.Error("email send failed", "to", strings.Join(msg.To, ","), "error", err)
		return "", fmt.Errorf("send email: %w", err)
	}

	id := aws.ToString(out.MessageId)
	logger.Info("email sent", "to", strings.Join(msg.To, ","), "message_id", id)
	return id, nil
}

// LogSender logs emails instead of sending them. It is used when email
// is disabled in configuration.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, msg Message) (string, error) {
	logger.Info("email not sent, delivery disabled", "to", strings.Join(msg.To, ","), "subject", msg.Subject)
	return "", nil
}
