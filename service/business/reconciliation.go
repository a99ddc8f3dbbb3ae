package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"time"

	"github.com/fingrow/service-welfare/service/events"
	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/fingrow/service-welfare/service/utility"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var remarksLoanID = regexp.MustCompile(`\(ID:\s*([^)\s]+)\s*\)`)

var reconciliationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "welfare",
	Subsystem: "reconciliation",
	Name:      "outcomes_total",
	Help:      "Gateway callbacks by kind and reconciliation outcome.",
}, []string{"kind", "outcome"})

// ReconciliationBusiness applies gateway callbacks. Every handler returns
// the reconciliation outcome for logging only; the HTTP layer acknowledges
// the gateway regardless.
type ReconciliationBusiness interface {
	HandleCollectionResult(ctx context.Context, payload []byte) error
	HandleDisbursementResult(ctx context.Context, payload []byte) error
	HandleDisbursementTimeout(ctx context.Context, payload []byte) error
}

func NewReconciliationBusiness(ctx context.Context, service Service, store repository.Datastore, notifier *Notifier) (ReconciliationBusiness, error) {
	if service == nil || store == nil {
		return nil, ErrorInitializationFail
	}
	return &reconciliationBusiness{
		service:      service,
		notifier:     notifier,
		validate:     validator.New(),
		users:        repository.NewUserRepository(ctx, store),
		savings:      repository.NewSavingRepository(ctx, store),
		requests:     repository.NewCollectionRequestRepository(ctx, store),
		loans:        repository.NewLoanRepository(ctx, store),
		correlations: repository.NewCorrelationRepository(ctx, store),
	}, nil
}

type reconciliationBusiness struct {
	service      Service
	notifier     *Notifier
	validate     *validator.Validate
	users        repository.UserRepository
	savings      repository.SavingRepository
	requests     repository.CollectionRequestRepository
	loans        repository.LoanRepository
	correlations repository.CorrelationRepository
}

type auditEntry struct {
	kind      string
	outcome   string
	reference string
	entityID  string
	detail    string
}

func (rb *reconciliationBusiness) HandleCollectionResult(ctx context.Context, payload []byte) error {
	logger := rb.service.Log(ctx).WithField("type", "CollectionReconciliation")

	var envelope models.STKCallbackEnvelope
	if err := rb.decode(payload, &envelope); err != nil {
		logger.WithError(err).Warn("malformed collection callback")
		rb.record(ctx, payload, auditEntry{kind: models.AuditKindCollection, outcome: models.AuditOutcomeMalformed, detail: err.Error()})
		return ErrMalformedPayload
	}

	callback := envelope.Body.StkCallback
	entry := auditEntry{kind: models.AuditKindCollection, reference: callback.CheckoutRequestID}
	logger = logger.WithField("checkout_request_id", callback.CheckoutRequestID).WithField("result_code", *callback.ResultCode)

	if *callback.ResultCode != 0 {
		if err := rb.requests.MarkFailed(ctx, callback.CheckoutRequestID, callback.ResultDesc); err != nil {
			logger.WithError(err).Warn("could not mark collection request failed")
		}
		logger.WithField("result_desc", callback.ResultDesc).Info("collection request failed at the gateway")
		entry.outcome, entry.detail = models.AuditOutcomeGatewayFailure, callback.ResultDesc
		rb.record(ctx, payload, entry)
		return ErrAsyncOutcomeFailure
	}

	amountText, hasAmount := callback.CallbackMetadata.Lookup("Amount")
	receipt, hasReceipt := callback.CallbackMetadata.Lookup("MpesaReceiptNumber")
	phone, hasPhone := callback.CallbackMetadata.Lookup("PhoneNumber")
	amount, amountErr := decimal.NewFromString(amountText)
	if !hasAmount || !hasReceipt || !hasPhone || receipt == "" || amountErr != nil || !utility.IsPositive(amount) {
		logger.Warn("successful collection callback is missing Amount, MpesaReceiptNumber or PhoneNumber")
		entry.outcome, entry.detail = models.AuditOutcomeMalformed, "metadata incomplete"
		rb.record(ctx, payload, entry)
		return ErrMalformedPayload
	}

	logger = logger.WithField("receipt", receipt).WithField("amount", amount.String())

	user, err := rb.correlatePayer(ctx, callback.CheckoutRequestID, phone)
	if err != nil {
		if errors.Is(err, ErrCorrelationFailure) {
			logger.WithField("phone", phone).Warn("deposit could not be attributed to a member; manual reconciliation required")
			entry.outcome, entry.detail = models.AuditOutcomeCorrelationFailure, fmt.Sprintf("no member for phone %s", phone)
			rb.record(ctx, payload, entry)
			return ErrCorrelationFailure
		}
		logger.WithError(err).Error("could not look up payer")
		entry.outcome, entry.detail = models.AuditOutcomeInternalError, err.Error()
		rb.record(ctx, payload, entry)
		return err
	}

	entry.entityID = user.GetID()
	logger = logger.WithField("user_id", user.GetID())

	saving := &models.Saving{
		UserID:             user.GetID(),
		Amount:             utility.CleanDecimal(amount),
		MpesaTransactionID: receipt,
		CheckoutRequestID:  callback.CheckoutRequestID,
		PhoneNumber:        phone,
	}

	err = rb.savings.RecordDeposit(ctx, saving)
	switch {
	case errors.Is(err, repository.ErrDuplicateDeposit):
		logger.Info("duplicate collection callback ignored")
		entry.outcome, entry.detail = models.AuditOutcomeDuplicate, "receipt already recorded"
		rb.record(ctx, payload, entry)
		return ErrDuplicateDelivery
	case repository.IsNotFound(err):
		logger.Warn("member disappeared before the deposit was recorded; manual reconciliation required")
		entry.outcome, entry.detail = models.AuditOutcomeCorrelationFailure, "member no longer exists"
		rb.record(ctx, payload, entry)
		return ErrCorrelationFailure
	case err != nil:
		logger.WithError(err).Error("could not record deposit; manual reconciliation required")
		entry.outcome, entry.detail = models.AuditOutcomeInternalError, err.Error()
		rb.record(ctx, payload, entry)
		return err
	}

	logger.Info("deposit recorded")
	entry.outcome = models.AuditOutcomeApplied
	rb.record(ctx, payload, entry)

	rb.notifier.notifyMember(ctx, user, "Deposit Received",
		fmt.Sprintf("<p>Dear %s,</p><p>Your deposit of KES %s (receipt %s) has been added to your savings.</p>",
			html.EscapeString(user.Name), saving.Amount.StringFixed(2), html.EscapeString(receipt)))

	return nil
}

// correlatePayer prefers the member recorded when the STK push was sent and
// falls back to the payer phone, which is matched in canonical form.
func (rb *reconciliationBusiness) correlatePayer(ctx context.Context, checkoutRequestID, phone string) (*models.User, error) {
	request, err := rb.requests.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err == nil {
		user, userErr := rb.users.GetByID(ctx, request.UserID)
		if userErr == nil {
			return user, nil
		}
		if !repository.IsNotFound(userErr) {
			return nil, userErr
		}
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	canonical, err := utility.NormalizePhone(phone)
	if err != nil {
		return nil, ErrCorrelationFailure
	}

	user, err := rb.users.GetByPhone(ctx, canonical)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrCorrelationFailure
		}
		return nil, err
	}
	return user, nil
}

func (rb *reconciliationBusiness) HandleDisbursementResult(ctx context.Context, payload []byte) error {
	logger := rb.service.Log(ctx).WithField("type", "DisbursementReconciliation")

	var envelope models.B2CResultEnvelope
	if err := rb.decode(payload, &envelope); err != nil {
		logger.WithError(err).Warn("malformed disbursement result")
		rb.record(ctx, payload, auditEntry{kind: models.AuditKindDisbursement, outcome: models.AuditOutcomeMalformed, detail: err.Error()})
		return ErrMalformedPayload
	}

	result := envelope.Result
	succeeded := *result.ResultCode == 0
	entry := auditEntry{kind: models.AuditKindDisbursement, reference: result.ConversationID}
	logger = logger.WithField("conversation_id", result.ConversationID).
		WithField("originator_conversation_id", result.OriginatorConversationID).
		WithField("result_code", *result.ResultCode)

	loanID, correlation := rb.correlateLoan(ctx, logger, result)
	if loanID == "" {
		entry.outcome, entry.detail = models.AuditOutcomeCorrelationFailure, "no correlation record and no loan id in remarks"
		if !succeeded {
			entry.outcome = models.AuditOutcomeUnattributed
			entry.detail = result.ResultDesc
		}
		logger.WithField("outcome", entry.outcome).
			Error("unattributed disbursement result; manual reconciliation required")
		rb.record(ctx, payload, entry)
		return ErrCorrelationFailure
	}

	entry.entityID = loanID
	logger = logger.WithField("loan_id", loanID)

	if succeeded {
		return rb.applyDisbursementSuccess(ctx, logger, payload, entry, result)
	}
	return rb.applyDisbursementFailure(ctx, logger, payload, entry, result, correlation)
}

// correlateLoan looks up the loan through the correlation table and falls
// back to the "(ID: <loanId>)" convention in the Remarks parameter.
func (rb *reconciliationBusiness) correlateLoan(ctx context.Context, logger *logrus.Entry, result *models.B2CResult) (string, *models.DisbursementCorrelation) {
	lookups := []struct {
		key   string
		fetch func(context.Context, string) (*models.DisbursementCorrelation, error)
	}{
		{result.ConversationID, rb.correlations.GetByConversationID},
		{result.OriginatorConversationID, rb.correlations.GetByOriginatorConversationID},
	}
	for _, lookup := range lookups {
		if lookup.key == "" {
			continue
		}
		correlation, err := lookup.fetch(ctx, lookup.key)
		if err == nil {
			return correlation.LoanID, correlation
		}
		if !repository.IsNotFound(err) {
			logger.WithError(err).Warn("correlation lookup failed, trying remarks")
		}
	}

	remarks, ok := result.Lookup("Remarks")
	if !ok {
		return "", nil
	}
	match := remarksLoanID.FindStringSubmatch(remarks)
	if len(match) != 2 {
		return "", nil
	}
	logger.WithField("remarks", remarks).Info("disbursement correlated through remarks")
	return match[1], nil
}

func (rb *reconciliationBusiness) applyDisbursementSuccess(ctx context.Context, logger *logrus.Entry, payload []byte,
	entry auditEntry, result *models.B2CResult) error {
	transactionID := result.TransactionID
	if transactionID == "" {
		transactionID, _ = result.Lookup("TransactionID")
	}

	loan, err := rb.loans.Transition(ctx, entry.entityID, func(loan *models.Loan) (*models.DisbursementCorrelation, error) {
		if loan.Disbursed {
			return nil, repository.ErrNoChange
		}
		if loan.Status != models.LoanStatusApproved && loan.Status != models.LoanStatusDisbursementFailed {
			return nil, ErrInvalidTransition
		}
		now := time.Now()
		loan.Status = models.LoanStatusApproved
		loan.Disbursed = true
		loan.DisbursementTransactionID = transactionID
		loan.DisbursedAt = &now
		return nil, nil
	})

	switch {
	case errors.Is(err, repository.ErrNoChange):
		logger.Info("duplicate disbursement result ignored")
		entry.outcome, entry.detail = models.AuditOutcomeDuplicate, "loan already disbursed"
		rb.record(ctx, payload, entry)
		return ErrDuplicateDelivery
	case repository.IsNotFound(err), errors.Is(err, ErrInvalidTransition):
		logger.WithError(err).Warn("successful disbursement does not match a loan awaiting payout; manual reconciliation required")
		entry.outcome, entry.detail = models.AuditOutcomeCorrelationFailure, err.Error()
		rb.record(ctx, payload, entry)
		return ErrCorrelationFailure
	case err != nil:
		logger.WithError(err).Error("could not mark loan disbursed; manual reconciliation required")
		entry.outcome, entry.detail = models.AuditOutcomeInternalError, err.Error()
		rb.record(ctx, payload, entry)
		return err
	}

	rb.resolveCorrelation(ctx, logger, result)

	logger.WithField("transaction_id", transactionID).Info("loan disbursed")
	entry.outcome, entry.detail = models.AuditOutcomeApplied, transactionID
	rb.record(ctx, payload, entry)

	user, err := rb.users.GetByID(ctx, loan.UserID)
	if err != nil {
		logger.WithError(err).Warn("could not load member for disbursement notification")
		return nil
	}
	rb.notifier.notifyMember(ctx, user, "Loan Disbursed",
		fmt.Sprintf("<p>Dear %s,</p><p>KES %s has been sent to %s (transaction %s). Total owed: KES %s.</p>",
			html.EscapeString(user.Name), loan.Amount.StringFixed(2), loan.DisbursementPhone,
			html.EscapeString(transactionID), loan.TotalOwed.StringFixed(2)))

	return nil
}

// applyDisbursementFailure moves an approved, undisbursed loan to
// disbursement_failed so an administrator can approve it again.
func (rb *reconciliationBusiness) applyDisbursementFailure(ctx context.Context, logger *logrus.Entry, payload []byte,
	entry auditEntry, result *models.B2CResult, correlation *models.DisbursementCorrelation) error {
	entry.detail = result.ResultDesc

	if correlation != nil && correlation.ResolvedAt != nil {
		logger.Info("duplicate disbursement failure ignored")
		entry.outcome = models.AuditOutcomeDuplicate
		rb.record(ctx, payload, entry)
		return ErrDuplicateDelivery
	}

	loan, err := rb.loans.Transition(ctx, entry.entityID, func(loan *models.Loan) (*models.DisbursementCorrelation, error) {
		if loan.Disbursed || loan.Status != models.LoanStatusApproved {
			return nil, repository.ErrNoChange
		}
		loan.Status = models.LoanStatusDisbursementFailed
		return nil, nil
	})

	switch {
	case errors.Is(err, repository.ErrNoChange):
		logger.WithField("result_desc", result.ResultDesc).
			Warn("disbursement failure reported for a loan that is not awaiting payout")
		entry.outcome = models.AuditOutcomeGatewayFailure
		rb.record(ctx, payload, entry)
		return ErrAsyncOutcomeFailure
	case repository.IsNotFound(err):
		logger.Error("disbursement failure names an unknown loan; manual reconciliation required")
		entry.outcome = models.AuditOutcomeUnattributed
		rb.record(ctx, payload, entry)
		return ErrCorrelationFailure
	case err != nil:
		logger.WithError(err).Error("could not mark disbursement failed; manual reconciliation required")
		entry.outcome, entry.detail = models.AuditOutcomeInternalError, err.Error()
		rb.record(ctx, payload, entry)
		return err
	}

	rb.resolveCorrelation(ctx, logger, result)

	logger.WithField("result_desc", result.ResultDesc).Warn("loan disbursement failed")
	entry.outcome = models.AuditOutcomeGatewayFailure
	rb.record(ctx, payload, entry)

	rb.notifier.notifyAdmin(ctx, "Loan Disbursement Failed",
		fmt.Sprintf("<p>The payout for loan %s failed: %s.</p><p>The loan can be approved again once the cause is fixed.</p>",
			html.EscapeString(entry.entityID), html.EscapeString(result.ResultDesc)))

	member, err := rb.users.GetByID(ctx, loan.UserID)
	if err != nil {
		logger.WithError(err).Warn("could not load member for disbursement failure notification")
		return ErrAsyncOutcomeFailure
	}
	rb.notifier.notifyMember(ctx, member, "Loan Disbursement Failed",
		fmt.Sprintf("<p>Dear %s,</p><p>The disbursement of your loan of KES %s failed. Please contact support.</p>",
			html.EscapeString(member.Name), loan.Amount.StringFixed(2)))

	return ErrAsyncOutcomeFailure
}

// HandleDisbursementTimeout records a payout that expired in the gateway
// queue. The loan is left as it is; the final result, if any, still arrives
// on the result URL.
func (rb *reconciliationBusiness) HandleDisbursementTimeout(ctx context.Context, payload []byte) error {
	logger := rb.service.Log(ctx).WithField("type", "DisbursementQueueTimeout")

	var envelope models.B2CResultEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Result == nil {
		logger.Warn("malformed queue timeout notification")
		rb.record(ctx, payload, auditEntry{kind: models.AuditKindQueueTimeout, outcome: models.AuditOutcomeMalformed})
		return ErrMalformedPayload
	}

	result := envelope.Result
	loanID, _ := rb.correlateLoan(ctx, logger, result)

	logger.WithField("conversation_id", result.ConversationID).
		WithField("originator_conversation_id", result.OriginatorConversationID).
		WithField("loan_id", loanID).
		Warn("disbursement request timed out in the gateway queue")

	rb.record(ctx, payload, auditEntry{
		kind:      models.AuditKindQueueTimeout,
		outcome:   models.AuditOutcomeGatewayFailure,
		reference: result.ConversationID,
		entityID:  loanID,
		detail:    result.ResultDesc,
	})
	return ErrAsyncOutcomeFailure
}

func (rb *reconciliationBusiness) resolveCorrelation(ctx context.Context, logger *logrus.Entry, result *models.B2CResult) {
	if result.ConversationID == "" {
		return
	}
	if err := rb.correlations.Resolve(ctx, result.ConversationID, *result.ResultCode); err != nil {
		logger.WithError(err).Warn("could not resolve disbursement correlation")
	}
}

func (rb *reconciliationBusiness) decode(payload []byte, target any) error {
	if err := json.Unmarshal(payload, target); err != nil {
		return err
	}
	return rb.validate.Struct(target)
}

// record counts the outcome and queues the operator audit row.
func (rb *reconciliationBusiness) record(ctx context.Context, payload []byte, entry auditEntry) {
	emitAudit(ctx, rb.service, payload, entry)
}

func emitAudit(ctx context.Context, service Service, payload []byte, entry auditEntry) {
	reconciliationOutcomes.WithLabelValues(entry.kind, entry.outcome).Inc()

	audit := &models.ReconciliationAudit{
		Kind:      entry.kind,
		Outcome:   entry.outcome,
		Reference: entry.reference,
		EntityID:  entry.entityID,
		Detail:    entry.detail,
	}
	if json.Valid(payload) {
		audit.Payload = datatypes.JSON(payload)
	}
	audit.GenID(ctx)

	event := events.AuditSave{}
	if err := service.Emit(ctx, event.Name(), audit); err != nil {
		service.Log(ctx).WithError(err).WithField("outcome", entry.outcome).Warn("could not emit reconciliation audit")
	}
}
