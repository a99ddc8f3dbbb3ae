package events

import (
	"context"
	"testing"

	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/fingrow/service-welfare/service/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	entry *logrus.Entry
}

func (l *testLogger) Log(_ context.Context) *logrus.Entry {
	return l.entry
}

func newTestLogger() (*testLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &testLogger{entry: logrus.NewEntry(logger)}, hook
}

type recordingMailer struct {
	sent []*models.Notification
	err  error
}

func (m *recordingMailer) Send(_ context.Context, notification *models.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, notification)
	return nil
}

func TestNotificationSend_Validate(t *testing.T) {
	event := &NotificationSend{}

	tests := []struct {
		name    string
		payload any
		wantErr bool
	}{
		{"valid", &models.Notification{To: "a@example.com", Subject: "Loan Approved"}, false},
		{"wrong type", &models.ReconciliationAudit{}, true},
		{"missing recipient", &models.Notification{Subject: "Loan Approved"}, true},
		{"missing subject", &models.Notification{To: "a@example.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := event.Validate(context.Background(), tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotificationSend_Execute(t *testing.T) {
	logger, hook := newTestLogger()
	mailer := &recordingMailer{}
	event := &NotificationSend{Service: logger, Mailer: mailer}

	notification := &models.Notification{To: "member@example.com", Subject: "Deposit Received", Body: "<p>KES 500</p>"}
	require.NoError(t, event.Execute(context.Background(), notification))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "member@example.com", mailer.sent[0].To)

	mailer.err = assert.AnError
	assert.ErrorIs(t, event.Execute(context.Background(), notification), assert.AnError)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestAuditSave_Execute(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewDatastore(t)
	logger, _ := newTestLogger()
	audits := repository.NewAuditRepository(ctx, store)
	event := &AuditSave{Service: logger, Audits: audits}

	audit := &models.ReconciliationAudit{
		Kind:      models.AuditKindDisbursement,
		Outcome:   models.AuditOutcomeUnattributed,
		Reference: "AG_1",
		Detail:    "no correlation and no remarks",
	}
	assert.Error(t, event.Validate(ctx, audit), "id must be generated before emitting")

	audit.GenID(ctx)
	require.NoError(t, event.Validate(ctx, audit))
	require.NoError(t, event.Execute(ctx, audit))
	// redelivery of the same event keeps a single row
	require.NoError(t, event.Execute(ctx, audit))

	stored, err := audits.List(ctx, models.AuditOutcomeUnattributed, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "AG_1", stored[0].Reference)
}
