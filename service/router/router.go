package router

import (
	"net/http"

	"github.com/fingrow/service-welfare/service/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(ws *handlers.WelfareServer) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	// Health and metrics
	router.HandleFunc("/healthz", handlers.HealthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Gateway callbacks
	router.HandleFunc("/mpesa/stk/callback", ws.HandleStkCallback).Methods(http.MethodPost)
	router.HandleFunc("/mpesa/b2c/result", ws.HandleB2CResult).Methods(http.MethodPost)
	router.HandleFunc("/mpesa/b2c/queue", ws.HandleB2CQueueTimeout).Methods(http.MethodPost)

	// Members and savings
	router.HandleFunc("/members", ws.CreateMember).Methods(http.MethodPost)
	router.HandleFunc("/members", ws.RequireAdmin(ws.ListMembers)).Methods(http.MethodGet)
	router.HandleFunc("/members/{id}", ws.GetMember).Methods(http.MethodGet)
	router.HandleFunc("/members/{id}/deposits", ws.InitiateDeposit).Methods(http.MethodPost)
	router.HandleFunc("/members/{id}/savings", ws.ListSavings).Methods(http.MethodGet)

	// Loans
	router.HandleFunc("/members/{id}/loans", ws.RequestLoan).Methods(http.MethodPost)
	router.HandleFunc("/members/{id}/loans", ws.ListMemberLoans).Methods(http.MethodGet)
	router.HandleFunc("/loans", ws.RequireAdmin(ws.ListLoans)).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}", ws.GetLoan).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}/status", ws.RequireAdmin(ws.UpdateLoanStatus)).Methods(http.MethodPut)

	// Operator audit log
	router.HandleFunc("/reconciliation/audits", ws.RequireAdmin(ws.ListAudits)).Methods(http.MethodGet)

	return router
}
