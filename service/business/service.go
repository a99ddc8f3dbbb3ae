package business

import (
	"context"

	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=service.go -destination=mocks/mock_service.go -package=mocks

// Service is the part of *frame.Service the business layer depends on.
type Service interface {
	Log(ctx context.Context) *logrus.Entry
	Emit(ctx context.Context, name string, payload any) error
}
