package coreapi

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of GatewayClient.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetAccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockClient) InitiateCollection(ctx context.Context, phone string, amount decimal.Decimal, accountReference string) (*STKPushResponse, error) {
	args := m.Called(ctx, phone, amount, accountReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*STKPushResponse), args.Error(1)
}

func (m *MockClient) InitiateDisbursement(ctx context.Context, phone string, amount decimal.Decimal, loanID string) (*B2CResponse, error) {
	args := m.Called(ctx, phone, amount, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*B2CResponse), args.Error(1)
}
