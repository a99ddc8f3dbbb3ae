package handlers

import (
	"net/http"

	"github.com/fingrow/service-welfare/service/business"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type loanRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	DisbursementPhone string          `json:"disbursement_phone"`
	RepaymentPeriod   int             `json:"repayment_period" validate:"required,gt=0"`
	LoanPurpose       string          `json:"loan_purpose" validate:"required"`
}

type loanStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (ws *WelfareServer) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := ws.decode(r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}

	loan, err := ws.Loans.RequestLoan(r.Context(), &business.LoanRequest{
		UserID:            mux.Vars(r)["id"],
		Amount:            req.Amount,
		DisbursementPhone: req.DisbursementPhone,
		RepaymentPeriod:   req.RepaymentPeriod,
		LoanPurpose:       req.LoanPurpose,
	})
	if err != nil {
		ws.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (ws *WelfareServer) ListMemberLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := ws.Loans.ListMemberLoans(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (ws *WelfareServer) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := ws.Loans.ListLoans(r.Context())
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (ws *WelfareServer) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := ws.Loans.GetLoan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// UpdateLoanStatus applies an administrator decision. Approval answers only
// after the gateway has accepted the payout.
func (ws *WelfareServer) UpdateLoanStatus(w http.ResponseWriter, r *http.Request) {
	var req loanStatusRequest
	if err := ws.decode(r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}

	loan, err := ws.Loans.DecideLoan(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}
