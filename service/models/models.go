package models

import (
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"

	LoanStatusPending            = "pending"
	LoanStatusApproved           = "approved"
	LoanStatusDeclined           = "declined"
	LoanStatusUnderReview        = "under review"
	LoanStatusDisbursementFailed = "disbursement_failed"

	CollectionStatusPending   = "pending"
	CollectionStatusCompleted = "completed"
	CollectionStatusFailed    = "failed"
)

// User is a cooperative member. Phone is always stored in canonical
// 2547XXXXXXXX form so deposit callbacks can be matched exactly.
type User struct {
	frame.BaseModel

	Name         string          `gorm:"type:varchar(250)" json:"name"`
	Email        string          `gorm:"type:varchar(250);uniqueIndex" json:"email"`
	Phone        string          `gorm:"type:varchar(20);uniqueIndex" json:"phone"`
	PasswordHash string          `gorm:"type:varchar(100)" json:"-"`
	Role         string          `gorm:"type:varchar(20)" json:"role"`
	TotalSavings decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_savings"`
}

func (model *User) IsAdmin() bool {
	return model.Role == RoleAdmin
}

type Loan struct {
	frame.BaseModel

	UserID                    string          `gorm:"type:varchar(50);index" json:"user_id"`
	Amount                    decimal.Decimal `gorm:"type:numeric" json:"amount"`
	DisbursementPhone         string          `gorm:"type:varchar(20)" json:"disbursement_phone"`
	RepaymentPeriod           int             `json:"repayment_period"`
	LoanPurpose               string          `gorm:"type:text" json:"loan_purpose"`
	Status                    string          `gorm:"type:varchar(30);index" json:"status"`
	Interest                  decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"interest"`
	TotalOwed                 decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"total_owed"`
	Disbursed                 bool            `json:"disbursed"`
	DisbursementTransactionID string          `gorm:"type:varchar(50)" json:"disbursement_transaction_id,omitempty"`
	DisbursedAt               *time.Time      `json:"disbursed_at,omitempty"`
}

func (model *Loan) IsApproved() bool {
	return model.Status == LoanStatusApproved
}

// Saving is an immutable deposit record. MpesaTransactionID is the
// deposit idempotency key.
type Saving struct {
	frame.BaseModel

	UserID             string          `gorm:"type:varchar(50);index" json:"user_id"`
	Amount             decimal.Decimal `gorm:"type:numeric" json:"amount"`
	MpesaTransactionID string          `gorm:"type:varchar(50);uniqueIndex" json:"mpesa_transaction_id"`
	CheckoutRequestID  string          `gorm:"type:varchar(100)" json:"checkout_request_id,omitempty"`
	PhoneNumber        string          `gorm:"type:varchar(20)" json:"phone_number"`
}

// CollectionRequest records an accepted STK push so that its callback can be
// attributed through the checkout id instead of the payer phone.
type CollectionRequest struct {
	frame.BaseModel

	CheckoutRequestID string          `gorm:"type:varchar(100);uniqueIndex" json:"checkout_request_id"`
	MerchantRequestID string          `gorm:"type:varchar(100)" json:"merchant_request_id"`
	UserID            string          `gorm:"type:varchar(50);index" json:"user_id"`
	Amount            decimal.Decimal `gorm:"type:numeric" json:"amount"`
	Phone             string          `gorm:"type:varchar(20)" json:"phone"`
	AccountReference  string          `gorm:"type:varchar(50)" json:"account_reference"`
	Status            string          `gorm:"type:varchar(20)" json:"status"`
	ResultDesc        string          `gorm:"type:text" json:"result_desc,omitempty"`
}

// DisbursementCorrelation maps the gateway conversation id of a B2C payout
// to the loan it pays out. It is written in the same transaction as the
// approval.
type DisbursementCorrelation struct {
	frame.BaseModel

	ConversationID           string          `gorm:"type:varchar(100);uniqueIndex" json:"conversation_id"`
	OriginatorConversationID string          `gorm:"type:varchar(100);index" json:"originator_conversation_id"`
	LoanID                   string          `gorm:"type:varchar(50);index" json:"loan_id"`
	Amount                   decimal.Decimal `gorm:"type:numeric" json:"amount"`
	Phone                    string          `gorm:"type:varchar(20)" json:"phone"`
	ResultCode               *int            `json:"result_code,omitempty"`
	ResolvedAt               *time.Time      `json:"resolved_at,omitempty"`
}

const (
	AuditKindCollection   = "collection"
	AuditKindDisbursement = "disbursement"
	AuditKindQueueTimeout = "queue_timeout"

	AuditOutcomeApplied            = "applied"
	AuditOutcomeDuplicate          = "duplicate"
	AuditOutcomeMalformed          = "malformed"
	AuditOutcomeCorrelationFailure = "correlation_failure"
	AuditOutcomeGatewayFailure     = "gateway_failure"
	AuditOutcomeUnattributed       = "unattributed_failure"
	AuditOutcomeInternalError      = "internal_error"
)

// ReconciliationAudit is the operator-facing record of every callback outcome.
type ReconciliationAudit struct {
	frame.BaseModel

	Kind      string         `gorm:"type:varchar(30);index" json:"kind"`
	Outcome   string         `gorm:"type:varchar(30);index" json:"outcome"`
	Reference string         `gorm:"type:varchar(100);index" json:"reference"`
	EntityID  string         `gorm:"type:varchar(50)" json:"entity_id,omitempty"`
	Detail    string         `gorm:"type:text" json:"detail"`
	Payload   datatypes.JSON `json:"payload,omitempty"`
}

// Notification is the payload of the notification.send event.
type Notification struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Migratable lists every table the service owns, in migration order.
func Migratable() []any {
	return []any{
		&User{},
		&Loan{},
		&Saving{},
		&CollectionRequest{},
		&DisbursementCorrelation{},
		&ReconciliationAudit{},
	}
}
