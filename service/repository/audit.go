package repository

import (
	"context"

	"github.com/fingrow/service-welfare/service/models"
	"gorm.io/gorm/clause"
)

type AuditRepository interface {
	Save(ctx context.Context, audit *models.ReconciliationAudit) (int64, error)
	List(ctx context.Context, outcome string, limit int) ([]*models.ReconciliationAudit, error)
}

type auditRepository struct {
	abstractRepository
}

func NewAuditRepository(_ context.Context, service Datastore) AuditRepository {
	return &auditRepository{abstractRepository{service: service}}
}

// Save upserts on id so a redelivered audit event stays a single row.
func (repo *auditRepository) Save(ctx context.Context, audit *models.ReconciliationAudit) (int64, error) {
	result := repo.writeDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(audit)
	return result.RowsAffected, result.Error
}

func (repo *auditRepository) List(ctx context.Context, outcome string, limit int) ([]*models.ReconciliationAudit, error) {
	var audits []*models.ReconciliationAudit
	query := repo.readDB(ctx).Order("created_at desc")
	if outcome != "" {
		query = query.Where("outcome = ?", outcome)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&audits).Error
	if err != nil {
		return nil, err
	}
	return audits, nil
}
