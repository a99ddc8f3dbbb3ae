package business

import (
	"context"

	"github.com/fingrow/service-welfare/service/coreapi"
	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/fingrow/service-welfare/service/utility"
	"github.com/shopspring/decimal"
)

type SavingsBusiness interface {
	InitiateDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*models.CollectionRequest, error)
	ListSavings(ctx context.Context, userID string) ([]*models.Saving, error)
}

func NewSavingsBusiness(ctx context.Context, service Service, store repository.Datastore, gateway coreapi.GatewayClient) (SavingsBusiness, error) {
	if service == nil || store == nil || gateway == nil {
		return nil, ErrorInitializationFail
	}
	return &savingsBusiness{
		service:  service,
		gateway:  gateway,
		users:    repository.NewUserRepository(ctx, store),
		savings:  repository.NewSavingRepository(ctx, store),
		requests: repository.NewCollectionRequestRepository(ctx, store),
	}, nil
}

type savingsBusiness struct {
	service  Service
	gateway  coreapi.GatewayClient
	users    repository.UserRepository
	savings  repository.SavingRepository
	requests repository.CollectionRequestRepository
}

// InitiateDeposit pushes an STK prompt to the member's registered phone. The
// balance only moves when the gateway confirms the payment.
func (sb *savingsBusiness) InitiateDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*models.CollectionRequest, error) {
	logger := sb.service.Log(ctx).WithField("type", "SavingsBusiness").WithField("user_id", userID)

	if !utility.IsPositive(amount) {
		return nil, ErrInvalidAmount
	}

	user, err := sb.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	response, err := sb.gateway.InitiateCollection(ctx, user.Phone, amount, user.Phone)
	if err != nil {
		logger.WithError(err).Warn("collection request was not accepted")
		return nil, err
	}

	request := &models.CollectionRequest{
		CheckoutRequestID: response.CheckoutRequestID,
		MerchantRequestID: response.MerchantRequestID,
		UserID:            user.GetID(),
		Amount:            amount,
		Phone:             user.Phone,
		AccountReference:  user.Phone,
		Status:            models.CollectionStatusPending,
	}
	request.GenID(ctx)

	// the prompt is already on the member's phone; without this record the
	// callback still correlates on the phone number
	if err = sb.requests.Save(ctx, request); err != nil {
		logger.WithError(err).WithField("checkout_request_id", response.CheckoutRequestID).
			Warn("could not record collection request")
	}

	logger.WithField("checkout_request_id", response.CheckoutRequestID).Info("collection request accepted")
	return request, nil
}

func (sb *savingsBusiness) ListSavings(ctx context.Context, userID string) ([]*models.Saving, error) {
	if _, err := sb.users.GetByID(ctx, userID); err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return sb.savings.ListByUser(ctx, userID)
}
