package repository

import (
	"context"

	"github.com/fingrow/service-welfare/service/models"
)

type CollectionRequestRepository interface {
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.CollectionRequest, error)
	Save(ctx context.Context, request *models.CollectionRequest) error
	MarkFailed(ctx context.Context, checkoutRequestID, reason string) error
}

type collectionRequestRepository struct {
	abstractRepository
}

func NewCollectionRequestRepository(_ context.Context, service Datastore) CollectionRequestRepository {
	return &collectionRequestRepository{abstractRepository{service: service}}
}

func (repo *collectionRequestRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.CollectionRequest, error) {
	request := models.CollectionRequest{}
	err := repo.readDB(ctx).First(&request, "checkout_request_id = ?", checkoutRequestID).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (repo *collectionRequestRepository) Save(ctx context.Context, request *models.CollectionRequest) error {
	return repo.writeDB(ctx).Save(request).Error
}

// MarkFailed only touches requests that are still pending so a late failure
// can never overwrite a completed deposit.
func (repo *collectionRequestRepository) MarkFailed(ctx context.Context, checkoutRequestID, reason string) error {
	return repo.writeDB(ctx).Model(&models.CollectionRequest{}).
		Where("checkout_request_id = ? AND status = ?", checkoutRequestID, models.CollectionStatusPending).
		UpdateColumns(map[string]any{
			"status":      models.CollectionStatusFailed,
			"result_desc": reason,
		}).Error
}
