package events

import (
	"context"
	"errors"

	"github.com/fingrow/service-welfare/service/models"
)

// Mailer delivers a rendered notification.
type Mailer interface {
	Send(ctx context.Context, notification *models.Notification) error
}

// NotificationSend delivers member and administrator emails. It runs after
// the domain change has committed, so a delivery failure never undoes it.
type NotificationSend struct {
	Service Logger
	Mailer  Mailer
}

func (event *NotificationSend) Name() string {
	return "notification.send"
}

func (event *NotificationSend) PayloadType() any {
	return &models.Notification{}
}

func (event *NotificationSend) Validate(_ context.Context, payload any) error {
	notification, ok := payload.(*models.Notification)
	if !ok {
		return errors.New(" payload is not of type models.Notification")
	}

	if notification.To == "" {
		return errors.New(" notification recipient should be set ")
	}

	if notification.Subject == "" {
		return errors.New(" notification subject should be set ")
	}

	return nil
}

func (event *NotificationSend) Execute(ctx context.Context, payload any) error {
	notification := payload.(*models.Notification)

	logger := event.Service.Log(ctx).WithField("type", event.Name()).WithField("subject", notification.Subject)
	logger.Debug("handling event")

	err := event.Mailer.Send(ctx, notification)
	if err != nil {
		logger.WithError(err).Warn("could not deliver notification")
		return err
	}

	logger.Debug("notification delivered")
	return nil
}
