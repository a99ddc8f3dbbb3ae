package main

import (
	"context"
	"fmt"

	"github.com/fingrow/service-welfare/config"
	"github.com/fingrow/service-welfare/service/business"
	"github.com/fingrow/service-welfare/service/coreapi"
	"github.com/fingrow/service-welfare/service/events"
	"github.com/fingrow/service-welfare/service/handlers"
	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/notification"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/fingrow/service-welfare/service/router"
	"github.com/pitabwire/frame"
)

func main() {
	serviceName := "service_welfare"
	ctx := context.Background()
	welfareConfig, err := frame.ConfigFromEnv[config.WelfareConfig]()
	if err != nil {
		fmt.Printf("could not load config: %v\n", err)
	}
	ctx, service := frame.NewServiceWithContext(ctx, serviceName, frame.WithConfig(&welfareConfig))
	defer service.Stop(ctx)

	logger := service.Log(ctx).WithField("type", "main")
	logger.Info("starting service...")

	service.Init(ctx, frame.WithDatastore())

	if welfareConfig.DoDatabaseMigrate() {
		err = service.MigrateDatastore(ctx, welfareConfig.GetDatabaseMigrationPath(), models.Migratable()...)
		if err != nil {
			logger.WithError(err).Fatal("could not migrate successfully")
		}
		return
	}

	gateway := coreapi.New(coreapi.Config{
		BaseURL:            welfareConfig.BaseURL(),
		ConsumerKey:        welfareConfig.DarajaConsumerKey,
		ConsumerSecret:     welfareConfig.DarajaConsumerSecret,
		ShortCode:          welfareConfig.DarajaShortCode,
		PassKey:            welfareConfig.DarajaPassKey,
		TransactionType:    welfareConfig.DarajaTransactionType,
		CallbackURL:        welfareConfig.StkCallbackURL,
		InitiatorName:      welfareConfig.B2CInitiatorName,
		SecurityCredential: welfareConfig.B2CSecurityCredential,
		B2CShortCode:       welfareConfig.B2CShortCode,
		CommandID:          welfareConfig.B2CCommandID,
		ResultURL:          welfareConfig.B2CResultURL,
		QueueTimeoutURL:    welfareConfig.B2CQueueTimeoutURL,
		Organisation:       welfareConfig.OrganisationName,
		Timeout:            welfareConfig.GatewayTimeout,
		MaxRetries:         welfareConfig.GatewayMaxRetries,
	}, service.Log(ctx).WithField("type", "DarajaClient"))

	var mailer events.Mailer = &notification.LogMailer{Logger: service.Log(ctx).WithField("type", "LogMailer")}
	if welfareConfig.MailEnabled() {
		mailer, err = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     welfareConfig.SMTPHost,
			Port:     welfareConfig.SMTPPort,
			Username: welfareConfig.SMTPUsername,
			Password: welfareConfig.SMTPPassword,
			From:     welfareConfig.EmailFrom,
		})
		if err != nil {
			logger.WithError(err).Fatal("could not setup smtp mailer")
		}
	} else {
		logger.Warn("SMTP_HOST is not set: notifications are logged only")
	}

	if welfareConfig.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY is not set: administrator routes are disabled")
	}

	notifier := business.NewNotifier(service, welfareConfig.AdminEmail, welfareConfig.OrganisationName)
	policy := business.NewInterestPolicy(welfareConfig.LoanInterestRate)

	members, err := business.NewMemberBusiness(ctx, service, service)
	if err != nil {
		logger.WithError(err).Fatal("could not setup member business")
	}
	savings, err := business.NewSavingsBusiness(ctx, service, service, gateway)
	if err != nil {
		logger.WithError(err).Fatal("could not setup savings business")
	}
	loans, err := business.NewLoanBusiness(ctx, service, service, gateway, policy, notifier)
	if err != nil {
		logger.WithError(err).Fatal("could not setup loan business")
	}
	reconciliation, err := business.NewReconciliationBusiness(ctx, service, service, notifier)
	if err != nil {
		logger.WithError(err).Fatal("could not setup reconciliation business")
	}

	audits := repository.NewAuditRepository(ctx, service)

	implementation := &handlers.WelfareServer{
		Service:        service,
		Members:        members,
		Savings:        savings,
		Loans:          loans,
		Reconciliation: reconciliation,
		Audits:         audits,
		AdminAPIKey:    welfareConfig.AdminAPIKey,
	}

	eventHandlers := []frame.EventI{
		&events.NotificationSend{Service: service, Mailer: mailer},
		&events.AuditSave{Service: service, Audits: audits},
	}

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(router.NewRouter(implementation)),
		frame.WithRegisterEvents(eventHandlers...),
	}

	service.Init(ctx, serviceOptions...)

	logger.WithField("environment", welfareConfig.DarajaEnv).
		WithField("gateway", welfareConfig.BaseURL()).
		Info("Initiating server operations")

	err = service.Run(ctx, ":8080")
	if err != nil {
		logger.WithError(err).Fatal("could not run Server")
	}
}
