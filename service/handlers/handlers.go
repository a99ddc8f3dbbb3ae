package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fingrow/service-welfare/service/business"
	"github.com/fingrow/service-welfare/service/coreapi"
	"github.com/fingrow/service-welfare/service/repository"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	adminKeyHeader  = "X-Api-Key"
	maxRequestBytes = 1 << 20
)

type WelfareServer struct {
	Service        business.Service
	Members        business.MemberBusiness
	Savings        business.SavingsBusiness
	Loans          business.LoanBusiness
	Reconciliation business.ReconciliationBusiness
	Audits         repository.AuditRepository
	AdminAPIKey    string
}

var validate = validator.New()

type errorResponse struct {
	Error string `json:"error"`
}

// decode reads a JSON body into dst and validates its struct tags.
func (ws *WelfareServer) decode(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		return business.ErrInvalidRequest
	}
	if err := validate.Struct(dst); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func (ws *WelfareServer) isAdmin(r *http.Request) bool {
	provided := r.Header.Get(adminKeyHeader)
	if ws.AdminAPIKey == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(ws.AdminAPIKey)) == 1
}

// RequireAdmin guards administrator routes with the shared API key.
func (ws *WelfareServer) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ws.isAdmin(r) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "administrator key required"})
			return
		}
		next(w, r)
	}
}

func (ws *WelfareServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := httpStatus(err)

	logger := ws.Service.Log(r.Context()).WithField("type", "HTTPHandler").
		WithField("path", r.URL.Path).WithField("status", code)
	if code >= http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
	} else {
		logger.WithError(err).Debug("request rejected")
	}

	writeJSON(w, code, errorResponse{Error: message})
}

func httpStatus(err error) (int, string) {
	var authErr *coreapi.GatewayAuthError
	if errors.As(err, &authErr) {
		return http.StatusBadGateway, "payment gateway authentication failed"
	}

	var requestErr *coreapi.GatewayRequestError
	if errors.As(err, &requestErr) {
		if requestErr.Timeout() {
			return http.StatusGatewayTimeout, requestErr.Error()
		}
		return http.StatusBadGateway, requestErr.Error()
	}

	st, ok := status.FromError(err)
	if !ok {
		return http.StatusInternalServerError, "internal error"
	}

	switch st.Code() {
	case codes.InvalidArgument:
		return http.StatusBadRequest, st.Message()
	case codes.NotFound:
		return http.StatusNotFound, st.Message()
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict, st.Message()
	case codes.PermissionDenied:
		return http.StatusForbidden, st.Message()
	case codes.Unauthenticated:
		return http.StatusUnauthorized, st.Message()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
