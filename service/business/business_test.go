package business

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/fingrow/service-welfare/service/business/mocks"
	"github.com/fingrow/service-welfare/service/coreapi"
	"github.com/fingrow/service-welfare/service/events"
	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/fingrow/service-welfare/service/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type emission struct {
	name    string
	payload any
}

type harness struct {
	ctx     context.Context
	store   *testutil.Datastore
	service *mocks.MockService
	gateway *coreapi.MockClient
	hook    *logtest.Hook

	mu      sync.Mutex
	emitted []emission
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		ctx:     context.Background(),
		store:   testutil.NewDatastore(t),
		service: mocks.NewMockService(ctrl),
		gateway: &coreapi.MockClient{},
		hook:    hook,
	}

	h.service.EXPECT().Log(gomock.Any()).Return(logrus.NewEntry(logger)).AnyTimes()
	h.service.EXPECT().Emit(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, name string, payload any) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.emitted = append(h.emitted, emission{name: name, payload: payload})
			return nil
		}).AnyTimes()

	return h
}

func (h *harness) notifier() *Notifier {
	return NewNotifier(h.service, "admin@example.com", "Fingrow Welfare")
}

func (h *harness) notifications() []*models.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*models.Notification
	for _, e := range h.emitted {
		if n, ok := e.payload.(*models.Notification); ok && e.name == (&events.NotificationSend{}).Name() {
			out = append(out, n)
		}
	}
	return out
}

func (h *harness) audits() []*models.ReconciliationAudit {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*models.ReconciliationAudit
	for _, e := range h.emitted {
		if a, ok := e.payload.(*models.ReconciliationAudit); ok && e.name == (&events.AuditSave{}).Name() {
			out = append(out, a)
		}
	}
	return out
}

func (h *harness) lastAudit(t *testing.T) *models.ReconciliationAudit {
	t.Helper()
	audits := h.audits()
	require.NotEmpty(t, audits)
	return audits[len(audits)-1]
}

func (h *harness) loggedContaining(level logrus.Level, fragment string) bool {
	for _, entry := range h.hook.AllEntries() {
		if entry.Level == level && strings.Contains(entry.Message, fragment) {
			return true
		}
	}
	return false
}

func (h *harness) member(t *testing.T, phone string) *models.User {
	t.Helper()
	user := &models.User{
		Name:  "Jane Wanjiku",
		Email: "jane." + phone + "@example.com",
		Phone: phone,
		Role:  models.RoleMember,
	}
	user.GenID(h.ctx)
	require.NoError(t, repository.NewUserRepository(h.ctx, h.store).Save(h.ctx, user))
	return user
}

func (h *harness) loan(t *testing.T, userID string, amount int64, status string) *models.Loan {
	t.Helper()
	loan := &models.Loan{
		UserID:            userID,
		Amount:            decimal.NewFromInt(amount),
		DisbursementPhone: "254701234567",
		RepaymentPeriod:   6,
		LoanPurpose:       "school fees",
		Status:            status,
	}
	loan.GenID(h.ctx)
	require.NoError(t, repository.NewLoanRepository(h.ctx, h.store).Save(h.ctx, loan))
	return loan
}

func (h *harness) reload(t *testing.T, loanID string) *models.Loan {
	t.Helper()
	loan, err := repository.NewLoanRepository(h.ctx, h.store).GetByID(h.ctx, loanID)
	require.NoError(t, err)
	return loan
}

func (h *harness) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	user, err := repository.NewUserRepository(h.ctx, h.store).GetByID(h.ctx, userID)
	require.NoError(t, err)
	return user.TotalSavings
}
