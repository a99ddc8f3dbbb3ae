package business

import (
	"context"

	"github.com/fingrow/service-welfare/service/events"
	"github.com/fingrow/service-welfare/service/models"
)

// Notifier queues emails through the notification.send event. Emit failures
// are logged and swallowed: by the time a notification is sent the domain
// change has already committed.
type Notifier struct {
	service      Service
	adminEmail   string
	organisation string
}

func NewNotifier(service Service, adminEmail, organisation string) *Notifier {
	return &Notifier{service: service, adminEmail: adminEmail, organisation: organisation}
}

func (n *Notifier) notify(ctx context.Context, to, subject, body string) {
	if n == nil || to == "" {
		return
	}

	event := events.NotificationSend{}
	err := n.service.Emit(ctx, event.Name(), &models.Notification{
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		n.service.Log(ctx).WithError(err).WithField("subject", subject).Warn("could not emit notification")
	}
}

func (n *Notifier) notifyMember(ctx context.Context, member *models.User, subject, body string) {
	if member == nil {
		return
	}
	n.notify(ctx, member.Email, subject, body)
}

func (n *Notifier) notifyAdmin(ctx context.Context, subject, body string) {
	if n == nil {
		return
	}
	n.notify(ctx, n.adminEmail, subject, body)
}
