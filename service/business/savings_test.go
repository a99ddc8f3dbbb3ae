package business

import (
	"testing"

	"github.com/fingrow/service-welfare/service/coreapi"
	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSavingsBusiness_InitiateDeposit(t *testing.T) {
	h := newHarness(t)
	user := h.member(t, "254701234567")

	h.gateway.On("InitiateCollection", mock.Anything, "254701234567", decimal.NewFromInt(500), "254701234567").
		Return(&coreapi.STKPushResponse{
			MerchantRequestID: "29115-34620561-1",
			CheckoutRequestID: "ws_CO_191220191020363925",
			ResponseCode:      coreapi.ResponseCodeAccepted,
		}, nil).Once()

	savings, err := NewSavingsBusiness(h.ctx, h.service, h.store, h.gateway)
	require.NoError(t, err)

	request, err := savings.InitiateDeposit(h.ctx, user.GetID(), decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", request.CheckoutRequestID)
	assert.Equal(t, models.CollectionStatusPending, request.Status)

	stored, err := repository.NewCollectionRequestRepository(h.ctx, h.store).GetByCheckoutRequestID(h.ctx, request.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, user.GetID(), stored.UserID)

	assert.True(t, h.balance(t, user.GetID()).IsZero(), "balance only moves on callback")
	h.gateway.AssertExpectations(t)
}

func TestSavingsBusiness_InitiateDepositRejects(t *testing.T) {
	h := newHarness(t)
	user := h.member(t, "254701234567")

	savings, err := NewSavingsBusiness(h.ctx, h.service, h.store, h.gateway)
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  string
		amount  decimal.Decimal
		wantErr error
	}{
		{name: "zero amount", userID: user.GetID(), amount: decimal.Zero, wantErr: ErrInvalidAmount},
		{name: "negative amount", userID: user.GetID(), amount: decimal.NewFromInt(-10), wantErr: ErrInvalidAmount},
		{name: "unknown member", userID: "missing", amount: decimal.NewFromInt(10), wantErr: ErrMemberNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := savings.InitiateDeposit(h.ctx, tt.userID, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	h.gateway.AssertNotCalled(t, "InitiateCollection", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSavingsBusiness_InitiateDepositGatewayRejects(t *testing.T) {
	h := newHarness(t)
	user := h.member(t, "254701234567")

	rejection := &coreapi.GatewayRequestError{Operation: "collection", StatusCode: 400, ResponseCode: "1", Description: "Invalid amount"}
	h.gateway.On("InitiateCollection", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, rejection).Once()

	savings, err := NewSavingsBusiness(h.ctx, h.service, h.store, h.gateway)
	require.NoError(t, err)

	_, err = savings.InitiateDeposit(h.ctx, user.GetID(), decimal.NewFromInt(10))
	var requestErr *coreapi.GatewayRequestError
	require.ErrorAs(t, err, &requestErr)
	assert.Equal(t, "1", requestErr.ResponseCode)
}

func TestSavingsBusiness_ListSavings(t *testing.T) {
	h := newHarness(t)
	user := h.member(t, "254701234567")

	repo := repository.NewSavingRepository(h.ctx, h.store)
	for _, receipt := range []string{"QHX1", "QHX2"} {
		saving := &models.Saving{UserID: user.GetID(), Amount: decimal.NewFromInt(100), MpesaTransactionID: receipt, PhoneNumber: user.Phone}
		saving.GenID(h.ctx)
		require.NoError(t, repo.RecordDeposit(h.ctx, saving))
	}

	savings, err := NewSavingsBusiness(h.ctx, h.service, h.store, h.gateway)
	require.NoError(t, err)

	list, err := savings.ListSavings(h.ctx, user.GetID())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = savings.ListSavings(h.ctx, "missing")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
