package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fingrow/service-welfare/service/business"
	"github.com/fingrow/service-welfare/service/business/mocks"
	"github.com/fingrow/service-welfare/service/coreapi"
	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/fingrow/service-welfare/service/testutil"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const testAdminKey = "admin-key"

type testServer struct {
	*WelfareServer
	store   *testutil.Datastore
	gateway *coreapi.MockClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := t.Context()

	ctrl := gomock.NewController(t)
	logger, _ := logtest.NewNullLogger()
	service := mocks.NewMockService(ctrl)
	service.EXPECT().Log(gomock.Any()).Return(logrus.NewEntry(logger)).AnyTimes()
	service.EXPECT().Emit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	store := testutil.NewDatastore(t)
	gateway := &coreapi.MockClient{}
	notifier := business.NewNotifier(service, "admin@example.com", "Fingrow Welfare")

	members, err := business.NewMemberBusiness(ctx, service, store)
	require.NoError(t, err)
	savings, err := business.NewSavingsBusiness(ctx, service, store, gateway)
	require.NoError(t, err)
	loans, err := business.NewLoanBusiness(ctx, service, store, gateway, business.NewInterestPolicy(business.DefaultInterestRate), notifier)
	require.NoError(t, err)
	reconciliation, err := business.NewReconciliationBusiness(ctx, service, store, notifier)
	require.NoError(t, err)

	return &testServer{
		WelfareServer: &WelfareServer{
			Service:        service,
			Members:        members,
			Savings:        savings,
			Loans:          loans,
			Reconciliation: reconciliation,
			Audits:         repository.NewAuditRepository(ctx, store),
			AdminAPIKey:    testAdminKey,
		},
		store:   store,
		gateway: gateway,
	}
}

func (ts *testServer) member(t *testing.T) *models.User {
	t.Helper()
	user, err := ts.Members.Register(t.Context(), &business.RegisterMember{
		Name: "Jane Wanjiku", Email: "jane@example.com", Phone: "0701234567", Password: "secret1",
	})
	require.NoError(t, err)
	return user
}

func (ts *testServer) loan(t *testing.T, userID string) *models.Loan {
	t.Helper()
	loan, err := ts.Loans.RequestLoan(t.Context(), &business.LoanRequest{
		UserID: userID, Amount: decimal.NewFromInt(1000), RepaymentPeriod: 6, LoanPurpose: "stock",
	})
	require.NoError(t, err)
	return loan
}

func newRequest(t *testing.T, method, target string, body any, vars map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func TestCallbacksAlwaysAcknowledge(t *testing.T) {
	ts := newTestServer(t)
	ts.member(t)

	deposit := `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok",` +
		`"CallbackMetadata":{"Item":[{"Name":"Amount","Value":500},{"Name":"MpesaReceiptNumber","Value":"QHX1ABC"},{"Name":"PhoneNumber","Value":254701234567}]}}}}`

	tests := []struct {
		name    string
		handler http.HandlerFunc
		body    string
	}{
		{name: "stk garbage", handler: ts.HandleStkCallback, body: "not json"},
		{name: "stk empty", handler: ts.HandleStkCallback, body: ""},
		{name: "stk deposit", handler: ts.HandleStkCallback, body: deposit},
		{name: "stk duplicate", handler: ts.HandleStkCallback, body: deposit},
		{name: "stk cancelled", handler: ts.HandleStkCallback, body: `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"cancelled"}}}`},
		{name: "b2c garbage", handler: ts.HandleB2CResult, body: "{"},
		{name: "b2c unattributed failure", handler: ts.HandleB2CResult, body: `{"Result":{"ResultCode":2001,"ConversationID":"AG_1","OriginatorConversationID":"o-1"}}`},
		{name: "queue timeout", handler: ts.HandleB2CQueueTimeout, body: `{"Result":{"ResultCode":1,"ConversationID":"AG_2"}}`},
		{name: "queue garbage", handler: ts.HandleB2CQueueTimeout, body: "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, newRequest(t, http.MethodPost, "/callback", tt.body, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			var ack models.CallbackAcknowledgement
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
			assert.Equal(t, models.Accepted(), ack)
		})
	}

	saving, err := repository.NewSavingRepository(t.Context(), ts.store).GetByReceipt(t.Context(), "QHX1ABC")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(saving.Amount))
}

func TestCreateMember(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		body       any
		adminKey   string
		wantStatus int
	}{
		{name: "created", body: memberRequest{Name: "Jane", Email: "jane@example.com", Phone: "0701234567", Password: "secret1"}, wantStatus: http.StatusCreated},
		{name: "duplicate phone", body: memberRequest{Name: "Jane", Email: "other@example.com", Phone: "+254 701 234 567", Password: "secret1"}, wantStatus: http.StatusConflict},
		{name: "invalid email", body: memberRequest{Name: "Jane", Email: "jane", Phone: "0711111111", Password: "secret1"}, wantStatus: http.StatusBadRequest},
		{name: "short password", body: memberRequest{Name: "Jane", Email: "j2@example.com", Phone: "0711111111", Password: "pw"}, wantStatus: http.StatusBadRequest},
		{name: "bad phone", body: memberRequest{Name: "Jane", Email: "j3@example.com", Phone: "0811", Password: "secret1"}, wantStatus: http.StatusBadRequest},
		{name: "not json", body: "{", wantStatus: http.StatusBadRequest},
		{name: "admin without key", body: memberRequest{Name: "Boss", Email: "boss@example.com", Phone: "0722222222", Password: "secret1", Role: models.RoleAdmin}, wantStatus: http.StatusForbidden},
		{name: "admin with key", body: memberRequest{Name: "Boss", Email: "boss@example.com", Phone: "0722222222", Password: "secret1", Role: models.RoleAdmin}, adminKey: testAdminKey, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, http.MethodPost, "/members", tt.body, nil)
			if tt.adminKey != "" {
				req.Header.Set(adminKeyHeader, tt.adminKey)
			}
			rec := httptest.NewRecorder()
			ts.CreateMember(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if rec.Code == http.StatusCreated {
				assert.NotContains(t, rec.Body.String(), "password")
				assert.Contains(t, rec.Body.String(), `"phone":"2547`)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	handler := ts.RequireAdmin(ts.ListMembers)

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{name: "missing key", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", key: "guess", wantStatus: http.StatusUnauthorized},
		{name: "valid key", key: testAdminKey, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, http.MethodGet, "/members", nil, nil)
			if tt.key != "" {
				req.Header.Set(adminKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireAdmin_UnconfiguredKeyDeniesAll(t *testing.T) {
	ts := newTestServer(t)
	ts.AdminAPIKey = ""

	req := newRequest(t, http.MethodGet, "/members", nil, nil)
	rec := httptest.NewRecorder()
	ts.RequireAdmin(ts.ListMembers)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInitiateDeposit(t *testing.T) {
	ts := newTestServer(t)
	user := ts.member(t)

	ts.gateway.On("InitiateCollection", mock.Anything, user.Phone, mock.Anything, user.Phone).
		Return(&coreapi.STKPushResponse{CheckoutRequestID: "ws_CO_9", ResponseCode: coreapi.ResponseCodeAccepted}, nil).Once()

	rec := httptest.NewRecorder()
	ts.InitiateDeposit(rec, newRequest(t, http.MethodPost, "/members/x/deposits", `{"amount":"250"}`, map[string]string{"id": user.GetID()}))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "ws_CO_9")

	rec = httptest.NewRecorder()
	ts.InitiateDeposit(rec, newRequest(t, http.MethodPost, "/members/x/deposits", `{"amount":0}`, map[string]string{"id": user.GetID()}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	ts.InitiateDeposit(rec, newRequest(t, http.MethodPost, "/members/x/deposits", `{"amount":10}`, map[string]string{"id": "missing"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateLoanStatus(t *testing.T) {
	ts := newTestServer(t)
	user := ts.member(t)

	timeout := &coreapi.GatewayRequestError{Operation: "disbursement", Err: coreapi.ErrGatewayTimeout}
	rejected := &coreapi.GatewayRequestError{Operation: "disbursement", StatusCode: 400, ResponseCode: "2001", Description: "invalid initiator"}

	tests := []struct {
		name       string
		status     string
		gatewayErr error
		loanID     func(loan *models.Loan) string
		wantStatus int
		wantLoan   string
	}{
		{name: "gateway timeout", status: models.LoanStatusApproved, gatewayErr: timeout, wantStatus: http.StatusGatewayTimeout, wantLoan: models.LoanStatusPending},
		{name: "gateway rejection", status: models.LoanStatusApproved, gatewayErr: rejected, wantStatus: http.StatusBadGateway, wantLoan: models.LoanStatusPending},
		{name: "unknown status", status: "paid", wantStatus: http.StatusBadRequest, wantLoan: models.LoanStatusPending},
		{name: "decline", status: models.LoanStatusDeclined, wantStatus: http.StatusOK, wantLoan: models.LoanStatusDeclined},
		{name: "missing loan", status: models.LoanStatusDeclined, loanID: func(*models.Loan) string { return "missing" }, wantStatus: http.StatusNotFound, wantLoan: models.LoanStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loan := ts.loan(t, user.GetID())
			id := loan.GetID()
			if tt.loanID != nil {
				id = tt.loanID(loan)
			}
			if tt.gatewayErr != nil {
				ts.gateway.On("InitiateDisbursement", mock.Anything, mock.Anything, mock.Anything, loan.GetID()).Return(nil, tt.gatewayErr).Once()
			}

			rec := httptest.NewRecorder()
			ts.UpdateLoanStatus(rec, newRequest(t, http.MethodPut, "/loans/x/status", loanStatusRequest{Status: tt.status}, map[string]string{"id": id}))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			stored, err := ts.Loans.GetLoan(t.Context(), loan.GetID())
			require.NoError(t, err)
			assert.Equal(t, tt.wantLoan, stored.Status)
			assert.False(t, stored.Disbursed)
		})
	}

	declined := ts.loan(t, user.GetID())
	_, err := ts.Loans.DecideLoan(t.Context(), declined.GetID(), models.LoanStatusDeclined)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ts.UpdateLoanStatus(rec, newRequest(t, http.MethodPut, "/loans/x/status", loanStatusRequest{Status: models.LoanStatusApproved}, map[string]string{"id": declined.GetID()}))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestLoan(t *testing.T) {
	ts := newTestServer(t)
	user := ts.member(t)

	rec := httptest.NewRecorder()
	ts.RequestLoan(rec, newRequest(t, http.MethodPost, "/members/x/loans",
		`{"amount":1000,"repayment_period":6,"loan_purpose":"school fees"}`, map[string]string{"id": user.GetID()}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var loan models.Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loan))
	assert.Equal(t, models.LoanStatusPending, loan.Status)
	assert.Equal(t, user.Phone, loan.DisbursementPhone)

	rec = httptest.NewRecorder()
	ts.RequestLoan(rec, newRequest(t, http.MethodPost, "/members/x/loans",
		`{"amount":1000,"loan_purpose":"school fees"}`, map[string]string{"id": user.GetID()}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAudits(t *testing.T) {
	ts := newTestServer(t)
	ctx := t.Context()

	for _, outcome := range []string{models.AuditOutcomeApplied, models.AuditOutcomeDuplicate, models.AuditOutcomeApplied} {
		audit := &models.ReconciliationAudit{Kind: models.AuditKindCollection, Outcome: outcome}
		audit.GenID(ctx)
		_, err := ts.Audits.Save(ctx, audit)
		require.NoError(t, err)
	}

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCount  int
	}{
		{name: "all", target: "/reconciliation/audits", wantStatus: http.StatusOK, wantCount: 3},
		{name: "by outcome", target: "/reconciliation/audits?outcome=applied", wantStatus: http.StatusOK, wantCount: 2},
		{name: "limited", target: "/reconciliation/audits?limit=1", wantStatus: http.StatusOK, wantCount: 1},
		{name: "bad limit", target: "/reconciliation/audits?limit=-3", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ts.ListAudits(rec, newRequest(t, http.MethodGet, tt.target, nil, nil))
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var audits []models.ReconciliationAudit
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audits))
			assert.Len(t, audits, tt.wantCount)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid argument", err: business.ErrInvalidAmount, want: http.StatusBadRequest},
		{name: "not found", err: business.ErrLoanNotFound, want: http.StatusNotFound},
		{name: "exists", err: business.ErrMemberExists, want: http.StatusConflict},
		{name: "bad transition", err: business.ErrInvalidTransition, want: http.StatusConflict},
		{name: "gateway auth", err: &coreapi.GatewayAuthError{StatusCode: 400}, want: http.StatusBadGateway},
		{name: "gateway timeout", err: &coreapi.GatewayRequestError{Err: coreapi.ErrGatewayTimeout}, want: http.StatusGatewayTimeout},
		{name: "gateway rejection", err: &coreapi.GatewayRequestError{ResponseCode: "1"}, want: http.StatusBadGateway},
		{name: "internal status", err: status.Error(codes.Internal, "boom"), want: http.StatusInternalServerError},
		{name: "plain error", err: assert.AnError, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := httpStatus(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}
