package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"slices"

	"github.com/fingrow/service-welfare/service/coreapi"
	"github.com/fingrow/service-welfare/service/models"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/fingrow/service-welfare/service/utility"
	"github.com/shopspring/decimal"
)

type LoanRequest struct {
	UserID            string
	Amount            decimal.Decimal
	DisbursementPhone string
	RepaymentPeriod   int
	LoanPurpose       string
}

type LoanBusiness interface {
	RequestLoan(ctx context.Context, request *LoanRequest) (*models.Loan, error)
	DecideLoan(ctx context.Context, loanID string, status string) (*models.Loan, error)
	GetLoan(ctx context.Context, loanID string) (*models.Loan, error)
	ListLoans(ctx context.Context) ([]*models.Loan, error)
	ListMemberLoans(ctx context.Context, userID string) ([]*models.Loan, error)
}

// Statuses a loan may leave for each administrator decision.
var decisionSources = map[string][]string{
	models.LoanStatusApproved:    {models.LoanStatusPending, models.LoanStatusUnderReview, models.LoanStatusDisbursementFailed},
	models.LoanStatusDeclined:    {models.LoanStatusPending, models.LoanStatusUnderReview},
	models.LoanStatusUnderReview: {models.LoanStatusPending, models.LoanStatusUnderReview, models.LoanStatusDeclined, models.LoanStatusDisbursementFailed},
}

func NewLoanBusiness(ctx context.Context, service Service, store repository.Datastore, gateway coreapi.GatewayClient,
	policy InterestPolicy, notifier *Notifier) (LoanBusiness, error) {
	if service == nil || store == nil || gateway == nil {
		return nil, ErrorInitializationFail
	}
	return &loanBusiness{
		service:  service,
		gateway:  gateway,
		policy:   policy,
		notifier: notifier,
		users:    repository.NewUserRepository(ctx, store),
		loans:    repository.NewLoanRepository(ctx, store),
	}, nil
}

type loanBusiness struct {
	service  Service
	gateway  coreapi.GatewayClient
	policy   InterestPolicy
	notifier *Notifier
	users    repository.UserRepository
	loans    repository.LoanRepository
}

func (lb *loanBusiness) RequestLoan(ctx context.Context, request *LoanRequest) (*models.Loan, error) {
	logger := lb.service.Log(ctx).WithField("type", "LoanBusiness")

	if request == nil || request.RepaymentPeriod <= 0 {
		return nil, ErrInvalidRequest
	}
	if !utility.IsPositive(request.Amount) {
		return nil, ErrInvalidAmount
	}

	user, err := lb.users.GetByID(ctx, request.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	phone := user.Phone
	if request.DisbursementPhone != "" {
		phone, err = utility.NormalizePhone(request.DisbursementPhone)
		if err != nil {
			return nil, ErrInvalidPhone
		}
	}

	loan := &models.Loan{
		UserID:            user.GetID(),
		Amount:            utility.CleanDecimal(request.Amount),
		DisbursementPhone: phone,
		RepaymentPeriod:   request.RepaymentPeriod,
		LoanPurpose:       request.LoanPurpose,
		Status:            models.LoanStatusPending,
	}
	loan.GenID(ctx)

	if err = lb.loans.Save(ctx, loan); err != nil {
		logger.WithError(err).Error("could not save loan request")
		return nil, err
	}

	logger.WithField("loan_id", loan.GetID()).WithField("user_id", user.GetID()).Info("loan requested")

	lb.notifier.notifyMember(ctx, user, "Loan Application Received",
		fmt.Sprintf("<p>Dear %s,</p><p>Your loan application of KES %s has been received and is pending review.</p>",
			html.EscapeString(user.Name), loan.Amount.StringFixed(2)))
	lb.notifier.notifyAdmin(ctx, "New Loan Application",
		fmt.Sprintf("<p>%s applied for a loan of KES %s for %d months.</p><p>Purpose: %s</p>",
			html.EscapeString(user.Name), loan.Amount.StringFixed(2), loan.RepaymentPeriod, html.EscapeString(loan.LoanPurpose)))

	return loan, nil
}

// DecideLoan applies an administrator decision. Approval initiates the
// payout while the loan row is locked; if the gateway does not accept the
// payout the loan keeps its previous status, interest and total owed.
// Approval never marks the loan disbursed.
//
// Only the gateway call is bound to the caller's context. Once the payout
// is accepted the commit and notifications run to completion even if the
// caller goes away.
func (lb *loanBusiness) DecideLoan(ctx context.Context, loanID string, status string) (*models.Loan, error) {
	logger := lb.service.Log(ctx).WithField("type", "LoanBusiness").WithField("loan_id", loanID).WithField("decision", status)

	sources, ok := decisionSources[status]
	if !ok {
		return nil, ErrInvalidRequest
	}

	commitCtx := context.WithoutCancel(ctx)
	var accepted *coreapi.B2CResponse

	loan, err := lb.loans.Transition(commitCtx, loanID, func(loan *models.Loan) (*models.DisbursementCorrelation, error) {
		if loan.Status == status && status == models.LoanStatusUnderReview {
			return nil, repository.ErrNoChange
		}
		if !slices.Contains(sources, loan.Status) {
			return nil, ErrInvalidTransition
		}

		if status != models.LoanStatusApproved {
			loan.Status = status
			loan.Interest = decimal.Zero
			loan.TotalOwed = decimal.Zero
			return nil, nil
		}

		interest, totalOwed := lb.policy.Calculate(loan.Amount)

		response, initErr := lb.gateway.InitiateDisbursement(ctx, loan.DisbursementPhone, loan.Amount, loan.GetID())
		if initErr != nil {
			return nil, initErr
		}
		accepted = response

		loan.Status = models.LoanStatusApproved
		loan.Interest = interest
		loan.TotalOwed = totalOwed

		return &models.DisbursementCorrelation{
			ConversationID:           response.ConversationID,
			OriginatorConversationID: response.OriginatorConversationID,
			Amount:                   loan.Amount,
			Phone:                    loan.DisbursementPhone,
		}, nil
	})

	switch {
	case errors.Is(err, repository.ErrNoChange):
		return loan, nil
	case repository.IsNotFound(err):
		return nil, ErrLoanNotFound
	case err != nil && accepted != nil:
		lb.untrackedPayout(commitCtx, loanID, accepted, err)
		return nil, err
	case err != nil:
		logger.WithError(err).Warn("loan decision was not applied")
		return nil, err
	}

	logger.Info("loan decision applied")

	user, userErr := lb.users.GetByID(commitCtx, loan.UserID)
	if userErr != nil {
		logger.WithError(userErr).Warn("could not load member for decision notification")
		return loan, nil
	}

	body := fmt.Sprintf("<p>Dear %s,</p><p>Your loan application of KES %s is now <b>%s</b>.</p>",
		html.EscapeString(user.Name), loan.Amount.StringFixed(2), loan.Status)
	if loan.IsApproved() {
		body += fmt.Sprintf("<p>Interest: KES %s. Total owed: KES %s over %d months. The funds are on their way to %s.</p>",
			loan.Interest.StringFixed(2), loan.TotalOwed.StringFixed(2), loan.RepaymentPeriod, loan.DisbursementPhone)
	}
	lb.notifier.notifyMember(commitCtx, user, "Loan Application Update", body)

	return loan, nil
}

// untrackedPayout reports a payout the gateway accepted for a loan whose
// approval could not be stored. The money may still move, so the loan
// must be reconciled by hand before anyone approves it again.
func (lb *loanBusiness) untrackedPayout(ctx context.Context, loanID string, response *coreapi.B2CResponse, err error) {
	lb.service.Log(ctx).WithError(err).
		WithField("type", "LoanBusiness").
		WithField("loan_id", loanID).
		WithField("conversation_id", response.ConversationID).
		WithField("originator_conversation_id", response.OriginatorConversationID).
		Error("payout accepted but loan approval was not stored; manual reconciliation required")

	payload, _ := json.Marshal(response)
	emitAudit(ctx, lb.service, payload, auditEntry{
		kind:      models.AuditKindDisbursement,
		outcome:   models.AuditOutcomeInternalError,
		reference: response.ConversationID,
		entityID:  loanID,
		detail:    err.Error(),
	})

	lb.notifier.notifyAdmin(ctx, "Untracked Loan Payout",
		fmt.Sprintf("<p>The payout for loan %s (conversation %s) was accepted by the gateway but the approval could not be stored.</p>"+
			"<p>Reconcile it manually before approving the loan again.</p>",
			html.EscapeString(loanID), html.EscapeString(response.ConversationID)))
}

func (lb *loanBusiness) GetLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	loan, err := lb.loans.GetByID(ctx, loanID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

func (lb *loanBusiness) ListLoans(ctx context.Context) ([]*models.Loan, error) {
	return lb.loans.List(ctx)
}

func (lb *loanBusiness) ListMemberLoans(ctx context.Context, userID string) ([]*models.Loan, error) {
	if _, err := lb.users.GetByID(ctx, userID); err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return lb.loans.ListByUser(ctx, userID)
}
