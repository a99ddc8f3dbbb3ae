package repository

import (
	"context"
	"time"

	"github.com/fingrow/service-welfare/service/models"
)

type CorrelationRepository interface {
	GetByConversationID(ctx context.Context, conversationID string) (*models.DisbursementCorrelation, error)
	GetByOriginatorConversationID(ctx context.Context, originatorID string) (*models.DisbursementCorrelation, error)
	Resolve(ctx context.Context, conversationID string, resultCode int) error
}

type correlationRepository struct {
	abstractRepository
}

func NewCorrelationRepository(_ context.Context, service Datastore) CorrelationRepository {
	return &correlationRepository{abstractRepository{service: service}}
}

func (repo *correlationRepository) GetByConversationID(ctx context.Context, conversationID string) (*models.DisbursementCorrelation, error) {
	correlation := models.DisbursementCorrelation{}
	err := repo.readDB(ctx).First(&correlation, "conversation_id = ?", conversationID).Error
	if err != nil {
		return nil, err
	}
	return &correlation, nil
}

func (repo *correlationRepository) GetByOriginatorConversationID(ctx context.Context, originatorID string) (*models.DisbursementCorrelation, error) {
	correlation := models.DisbursementCorrelation{}
	err := repo.readDB(ctx).First(&correlation, "originator_conversation_id = ?", originatorID).Error
	if err != nil {
		return nil, err
	}
	return &correlation, nil
}

func (repo *correlationRepository) Resolve(ctx context.Context, conversationID string, resultCode int) error {
	now := time.Now()
	return repo.writeDB(ctx).Model(&models.DisbursementCorrelation{}).
		Where("conversation_id = ?", conversationID).
		UpdateColumns(map[string]any{
			"result_code": resultCode,
			"resolved_at": now,
		}).Error
}
