package coreapi

import (
	"context"

	"github.com/shopspring/decimal"
)

// GatewayClient is the outbound side of the mobile-money gateway. Neither
// call touches local state.
type GatewayClient interface {
	GetAccessToken(ctx context.Context) (string, error)
	InitiateCollection(ctx context.Context, phone string, amount decimal.Decimal, accountReference string) (*STKPushResponse, error)
	InitiateDisbursement(ctx context.Context, phone string, amount decimal.Decimal, loanID string) (*B2CResponse, error)
}
