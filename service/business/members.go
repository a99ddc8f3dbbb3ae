package business

import (
	"context"
	"errors"
	"strings"

	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/fingrow/service-welfare/service/utility"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterMember struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     string
}

type MemberBusiness interface {
	Register(ctx context.Context, request *RegisterMember) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
}

func NewMemberBusiness(ctx context.Context, service Service, store repository.Datastore) (MemberBusiness, error) {
	if service == nil || store == nil {
		return nil, ErrorInitializationFail
	}
	return &memberBusiness{
		service: service,
		users:   repository.NewUserRepository(ctx, store),
	}, nil
}

type memberBusiness struct {
	service Service
	users   repository.UserRepository
}

// Register stores the member with the phone in canonical form, which is
// what lets deposit callbacks match on an exact phone value.
func (mb *memberBusiness) Register(ctx context.Context, request *RegisterMember) (*models.User, error) {
	logger := mb.service.Log(ctx).WithField("type", "MemberBusiness")

	if request == nil || strings.TrimSpace(request.Name) == "" || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		return nil, ErrInvalidRequest
	}

	phone, err := utility.NormalizePhone(request.Phone)
	if err != nil {
		return nil, ErrInvalidPhone
	}

	role := request.Role
	switch role {
	case "":
		role = models.RoleMember
	case models.RoleMember, models.RoleAdmin:
	default:
		return nil, ErrInvalidRequest
	}

	email := strings.ToLower(strings.TrimSpace(request.Email))

	if err = mb.checkAvailable(ctx, email, phone); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:         strings.TrimSpace(request.Name),
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		Role:         role,
	}
	user.GenID(ctx)

	if err = mb.users.Save(ctx, user); err != nil {
		// A concurrent registration can pass the lookups above and win the insert.
		if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(mb.checkAvailable(ctx, email, phone), ErrMemberExists) {
			logger.WithError(err).Debug("member registered concurrently")
			return nil, ErrMemberExists
		}
		logger.WithError(err).Error("could not save member")
		return nil, err
	}

	logger.WithField("user_id", user.GetID()).Info("member registered")
	return user, nil
}

func (mb *memberBusiness) checkAvailable(ctx context.Context, email, phone string) error {
	if _, err := mb.users.GetByEmail(ctx, email); err == nil {
		return ErrMemberExists
	} else if !repository.IsNotFound(err) {
		return err
	}
	if _, err := mb.users.GetByPhone(ctx, phone); err == nil {
		return ErrMemberExists
	} else if !repository.IsNotFound(err) {
		return err
	}
	return nil
}

func (mb *memberBusiness) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := mb.users.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return user, nil
}

func (mb *memberBusiness) List(ctx context.Context) ([]*models.User, error) {
	return mb.users.List(ctx)
}
