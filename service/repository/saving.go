package repository

import (
	"context"

	"github.com/fingrow/service-welfare/service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SavingRepository interface {
	RecordDeposit(ctx context.Context, saving *models.Saving) error
	GetByReceipt(ctx context.Context, receipt string) (*models.Saving, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Saving, error)
}

type savingRepository struct {
	abstractRepository
}

func NewSavingRepository(_ context.Context, service Datastore) SavingRepository {
	return &savingRepository{abstractRepository{service: service}}
}

// RecordDeposit inserts the saving and credits the member in one
// transaction. A receipt that already exists yields ErrDuplicateDeposit and
// leaves the balance untouched; a missing member rolls the saving back.
func (repo *savingRepository) RecordDeposit(ctx context.Context, saving *models.Saving) error {
	if saving.GetID() == "" {
		saving.GenID(ctx)
	}

	return repo.writeDB(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mpesa_transaction_id"}},
			DoNothing: true,
		}).Create(saving)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDuplicateDeposit
		}

		credit := tx.Model(&models.User{}).
			Where("id = ?", saving.UserID).
			UpdateColumn("total_savings", gorm.Expr("total_savings + ?", saving.Amount))
		if credit.Error != nil {
			return credit.Error
		}
		if credit.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if saving.CheckoutRequestID == "" {
			return nil
		}

		return tx.Model(&models.CollectionRequest{}).
			Where("checkout_request_id = ?", saving.CheckoutRequestID).
			UpdateColumn("status", models.CollectionStatusCompleted).Error
	})
}

func (repo *savingRepository) GetByReceipt(ctx context.Context, receipt string) (*models.Saving, error) {
	saving := models.Saving{}
	err := repo.readDB(ctx).First(&saving, "mpesa_transaction_id = ?", receipt).Error
	if err != nil {
		return nil, err
	}
	return &saving, nil
}

func (repo *savingRepository) ListByUser(ctx context.Context, userID string) ([]*models.Saving, error) {
	var savings []*models.Saving
	err := repo.readDB(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&savings).Error
	if err != nil {
		return nil, err
	}
	return savings, nil
}
