package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/fingrow/service-welfare/service/models"
)

// Gateway callbacks are always acknowledged with 200; the reconciliation
// outcome is only logged and audited.

func (ws *WelfareServer) HandleStkCallback(w http.ResponseWriter, r *http.Request) {
	ws.acknowledge(w, r, "StkCallbackHandler", ws.Reconciliation.HandleCollectionResult)
}

func (ws *WelfareServer) HandleB2CResult(w http.ResponseWriter, r *http.Request) {
	ws.acknowledge(w, r, "B2CResultHandler", ws.Reconciliation.HandleDisbursementResult)
}

func (ws *WelfareServer) HandleB2CQueueTimeout(w http.ResponseWriter, r *http.Request) {
	ws.acknowledge(w, r, "B2CQueueTimeoutHandler", ws.Reconciliation.HandleDisbursementTimeout)
}

func (ws *WelfareServer) acknowledge(w http.ResponseWriter, r *http.Request, handler string,
	reconcile func(ctx context.Context, payload []byte) error) {
	ctx := r.Context()
	logger := ws.Service.Log(ctx).WithField("type", handler)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		logger.WithError(err).Warn("could not read callback body")
	}

	if err = reconcile(ctx, payload); err != nil {
		logger.WithError(err).Debug("callback reconciled with outcome")
	} else {
		logger.Debug("callback applied")
	}

	writeJSON(w, http.StatusOK, models.Accepted())
}
