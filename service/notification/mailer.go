package notification

import (
	"context"
	"fmt"

	"github.com/fingrow/service-welfare/service/models"
	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends each notification over a fresh authenticated connection.
type SMTPMailer struct {
	config SMTPConfig
	dial   func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPMailer(config SMTPConfig) (*SMTPMailer, error) {
	options := []mail.Option{mail.WithPort(config.Port)}
	if config.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password))
	}

	client, err := mail.NewClient(config.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("could not configure smtp client: %w", err)
	}

	return &SMTPMailer{
		config: config,
		dial: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, notification *models.Notification) error {
	msg, err := BuildMessage(m.config.From, notification)
	if err != nil {
		return err
	}
	return m.dial(ctx, msg)
}

// BuildMessage renders a notification as an HTML email.
func BuildMessage(from string, notification *models.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(notification.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", notification.To, err)
	}
	msg.Subject(notification.Subject)
	msg.SetBodyString(mail.TypeTextHTML, notification.Body)
	return msg, nil
}

// LogMailer stands in when no SMTP host is configured.
type LogMailer struct {
	Logger *logrus.Entry
}

func (m *LogMailer) Send(_ context.Context, notification *models.Notification) error {
	m.Logger.WithField("to", notification.To).
		WithField("subject", notification.Subject).
		Info("smtp not configured, notification logged only")
	return nil
}
