package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Datastore is the slice of *frame.Service the repositories need.
type Datastore interface {
	DB(ctx context.Context, readOnly bool) *gorm.DB
}

var (
	ErrDuplicateDeposit = errors.New("deposit receipt has already been recorded")
	ErrNoChange         = errors.New("transition left the record unchanged")
)

type abstractRepository struct {
	service Datastore
}

func (ar *abstractRepository) readDB(ctx context.Context) *gorm.DB {
	return ar.service.DB(ctx, true)
}

func (ar *abstractRepository) writeDB(ctx context.Context) *gorm.DB {
	return ar.service.DB(ctx, false)
}

// IsNotFound reports whether err is a missing-row error from any repository.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
