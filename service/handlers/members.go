package handlers

import (
	"net/http"

	"github.com/fingrow/service-welfare/service/business"
	"github.com/fingrow/service-welfare/service/models"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type memberRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=member admin"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (ws *WelfareServer) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := ws.decode(r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}

	if req.Role == models.RoleAdmin && !ws.isAdmin(r) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "only administrators can create administrators"})
		return
	}

	user, err := ws.Members.Register(r.Context(), &business.RegisterMember{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		ws.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (ws *WelfareServer) ListMembers(w http.ResponseWriter, r *http.Request) {
	users, err := ws.Members.List(r.Context())
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (ws *WelfareServer) GetMember(w http.ResponseWriter, r *http.Request) {
	user, err := ws.Members.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// InitiateDeposit sends the STK prompt. The response only means the gateway
// accepted the request; the balance moves when the callback arrives.
func (ws *WelfareServer) InitiateDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := ws.decode(r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}

	request, err := ws.Savings.InitiateDeposit(r.Context(), mux.Vars(r)["id"], req.Amount)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, request)
}

func (ws *WelfareServer) ListSavings(w http.ResponseWriter, r *http.Request) {
	savings, err := ws.Savings.ListSavings(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, savings)
}
