package service

import (
	"context"
	"fmt"
	"html"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"studydash/internal/models"
)

// Notifier tells users about changes to their account
type Notifier interface {
	AccountCreated(ctx context.Context, user *models.User, temporaryPassword string) error
	PasswordChanged(ctx context.Context, user *models.User) error
}

// sesAPI is the part of the SES client the email service uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService sends account notifications via Amazon SES
type EmailService struct {
	client     sesAPI
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	log        *zap.Logger
}

// NewEmailService creates an email service. With no sender address the
// service is disabled and every send is a logged no-op.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, log *zap.Logger) (*EmailService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if fromEmail == "" {
		log.Info("email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, log: log}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("email service enabled", zap.String("from", fromEmail), zap.String("region", awsRegion))
	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL, log), nil
}

func newEmailService(client sesAPI, fromEmail, fromName, appBaseURL string, log *zap.Logger) *EmailService {
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		log:        log,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// AccountCreated sends the welcome message, including the temporary
// password when one was generated
func (s *EmailService) AccountCreated(ctx context.Context, user *models.User, temporaryPassword string) error {
	if user.Email == "" {
		return nil
	}
	if !s.enabled {
		s.log.Debug("skipping account email (service disabled)", zap.String("username", user.Username))
		return nil
	}

	subject := "Your studydash account"
	text := fmt.Sprintf("Hi %s,\n\nAn account has been created for you on studydash with the %s role.\n", user.Username, user.Role)
	body := fmt.Sprintf("<p>Hi %s,</p><p>An account has been created for you on studydash with the %s role.</p>",
		html.EscapeString(user.Username), html.EscapeString(string(user.Role)))
	if temporaryPassword != "" {
		text += fmt.Sprintf("\nYour temporary password is: %s\nPlease change it after signing in.\n", temporaryPassword)
		body += fmt.Sprintf("<p>Your temporary password is: <code>%s</code><br>Please change it after signing in.</p>",
			html.EscapeString(temporaryPassword))
	}
	text += fmt.Sprintf("\nSign in: %s/login\n", s.appBaseURL)
	body += fmt.Sprintf(`<p><a href="%s/login">Sign in</a></p>`, html.EscapeString(s.appBaseURL))

	return s.sendEmail(ctx, user.Email, subject, wrapHTML(body), text)
}

// PasswordChanged confirms a password change
func (s *EmailService) PasswordChanged(ctx context.Context, user *models.User) error {
	if user.Email == "" {
		return nil
	}
	if !s.enabled {
		s.log.Debug("skipping password email (service disabled)", zap.String("username", user.Username))
		return nil
	}

	subject := "Your studydash password was changed"
	text := fmt.Sprintf("Hi %s,\n\nThe password for your studydash account was just changed. If this was not you, contact a study administrator.\n", user.Username)
	body := fmt.Sprintf("<p>Hi %s,</p><p>The password for your studydash account was just changed. If this was not you, contact a study administrator.</p>",
		html.EscapeString(user.Username))
	return s.sendEmail(ctx, user.Email, subject, wrapHTML(body), text)
}

func wrapHTML(body string) string {
	return `<!DOCTYPE html><html><head><meta charset="UTF-8"></head><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">` +
		body +
		`<p style="font-size: 12px; color: #666;">This is an automated email from studydash. Please do not reply.</p></body></html>`
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	fields := []zap.Field{zap.String("to", toEmail), zap.String("subject", subject)}
	if result != nil && result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	s.log.Info("email sent", fields...)
	return nil
}
