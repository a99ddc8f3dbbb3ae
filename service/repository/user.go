package repository

import (
	"context"

	"github.com/fingrow/service-welfare/service/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByPhone(ctx context.Context, canonicalPhone string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Save(ctx context.Context, user *models.User) error
}

type userRepository struct {
	abstractRepository
}

func NewUserRepository(_ context.Context, service Datastore) UserRepository {
	return &userRepository{abstractRepository{service: service}}
}

func (repo *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := models.User{}
	err := repo.readDB(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (repo *userRepository) GetByPhone(ctx context.Context, canonicalPhone string) (*models.User, error) {
	user := models.User{}
	err := repo.readDB(ctx).First(&user, "phone = ?", canonicalPhone).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (repo *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := models.User{}
	err := repo.readDB(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (repo *userRepository) List(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := repo.readDB(ctx).Order("created_at desc").Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Save never writes TotalSavings; the balance only moves through
// SavingRepository.RecordDeposit.
func (repo *userRepository) Save(ctx context.Context, user *models.User) error {
	return repo.writeDB(ctx).Omit("total_savings").Save(user).Error
}
