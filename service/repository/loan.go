package repository

import (
	"context"
	"errors"

	"github.com/fingrow/service-welfare/service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoanMutation applies a status change to a loan that is held locked for
// the duration of the call. A non-nil correlation is persisted with the
// loan. Returning ErrNoChange releases the lock without writing.
type LoanMutation func(loan *models.Loan) (*models.DisbursementCorrelation, error)

type LoanRepository interface {
	GetByID(ctx context.Context, id string) (*models.Loan, error)
	List(ctx context.Context) ([]*models.Loan, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Loan, error)
	Save(ctx context.Context, loan *models.Loan) error
	Transition(ctx context.Context, id string, mutate LoanMutation) (*models.Loan, error)
}

type loanRepository struct {
	abstractRepository
}

func NewLoanRepository(_ context.Context, service Datastore) LoanRepository {
	return &loanRepository{abstractRepository{service: service}}
}

func (repo *loanRepository) GetByID(ctx context.Context, id string) (*models.Loan, error) {
	loan := models.Loan{}
	err := repo.readDB(ctx).First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (repo *loanRepository) List(ctx context.Context) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := repo.readDB(ctx).Order("created_at desc").Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (repo *loanRepository) ListByUser(ctx context.Context, userID string) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := repo.readDB(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (repo *loanRepository) Save(ctx context.Context, loan *models.Loan) error {
	return repo.writeDB(ctx).Save(loan).Error
}

// Transition locks the loan row (SELECT ... FOR UPDATE), hands it to mutate
// and persists the result in the same transaction. Any error from mutate
// rolls back, so the stored loan is exactly as it was before the call.
func (repo *loanRepository) Transition(ctx context.Context, id string, mutate LoanMutation) (*models.Loan, error) {
	loan := models.Loan{}

	err := repo.writeDB(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&loan, "id = ?", id).Error
		if err != nil {
			return err
		}

		correlation, err := mutate(&loan)
		if err != nil {
			return err
		}

		err = tx.Save(&loan).Error
		if err != nil {
			return err
		}

		if correlation == nil {
			return nil
		}
		if correlation.GetID() == "" {
			correlation.GenID(ctx)
		}
		correlation.LoanID = loan.GetID()
		return tx.Create(correlation).Error
	})

	if err != nil {
		if errors.Is(err, ErrNoChange) {
			return &loan, err
		}
		return nil, err
	}
	return &loan, nil
}
