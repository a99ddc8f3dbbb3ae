package events

import (
	"context"
	"errors"

	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
)

type AuditSave struct {
	Service Logger
	Audits  repository.AuditRepository
}

func (event *AuditSave) Name() string {
	return "reconciliation.audit.save"
}

func (event *AuditSave) PayloadType() any {
	return &models.ReconciliationAudit{}
}

func (event *AuditSave) Validate(_ context.Context, payload any) error {
	audit, ok := payload.(*models.ReconciliationAudit)
	if !ok {
		return errors.New(" payload is not of type models.ReconciliationAudit")
	}

	if audit.GetID() == "" {
		return errors.New(" audit Id should already have been set ")
	}

	return nil
}

func (event *AuditSave) Execute(ctx context.Context, payload any) error {
	audit := payload.(*models.ReconciliationAudit)

	logger := event.Service.Log(ctx).WithField("type", event.Name())
	logger.WithField("payload", audit).Debug("handling event")

	rows, err := event.Audits.Save(ctx, audit)
	if err != nil {
		logger.WithError(err).Warn("could not save to db")
		return err
	}
	logger.WithField("rows affected", rows).Debug("successfully saved record to db")

	return nil
}
