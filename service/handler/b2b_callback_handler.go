package handler

import (
	"encoding/json"
	"net/http"

	"github.com/nyumbani/service-rentpay/service/models"
)

// HandleB2BResult receives the provider's disbursement result. Same ack
// contract as the collection callback: always 200 with the fixed body.
func (rs *RentPayServer) HandleB2BResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := rs.Service.L(ctx).WithField("type", "B2BResultHandler")

	var envelope models.B2BResultEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		logger.WithError(err).Error("failed to decode b2b result")
		writeJSON(w, http.StatusOK, models.AckSuccess())
		return
	}

	result := envelope.Result
	if result == nil {
		logger.Warn("b2b result missing body, acknowledging anyway")
		writeJSON(w, http.StatusOK, models.AckSuccess())
		return
	}

	logger = logger.WithField("conversation_id", result.ConversationID).
		WithField("result_code", result.ResultCode)
	logger.Info("received disbursement result")

	if err := rs.Disbursements.ProcessResultCallback(ctx, result); err != nil {
		logger.WithError(err).Error("disbursement result processing failed")
	}

	writeJSON(w, http.StatusOK, models.AckSuccess())
}

// HandleB2BTimeout receives the provider's queue-timeout notification. The
// record stays in processing until a result arrives or an operator retries.
func (rs *RentPayServer) HandleB2BTimeout(w http.ResponseWriter, r *http.Request) {
	rs.Service.L(r.Context()).WithField("type", "B2BTimeoutHandler").
		Warn("received disbursement queue timeout")
	writeJSON(w, http.StatusOK, models.AckSuccess())
}
