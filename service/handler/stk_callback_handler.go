package handler

import (
	"encoding/json"
	"net/http"

	"github.com/nyumbani/service-rentpay/service/models"
)

// HandleStkCallback receives the provider's collection result. The provider
// retries until it receives the fixed acknowledgement, so this handler
// always answers 200 with the ack body no matter what happens internally.
func (rs *RentPayServer) HandleStkCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := rs.Service.L(ctx).WithField("type", "StkCallbackHandler")

	var envelope models.StkCallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		logger.WithError(err).Error("failed to decode stk callback")
		writeJSON(w, http.StatusOK, models.AckSuccess())
		return
	}

	callback := envelope.Body.StkCallback
	if callback == nil {
		logger.Warn("stk callback missing body, acknowledging anyway")
		writeJSON(w, http.StatusOK, models.AckSuccess())
		return
	}

	logger = logger.WithField("checkout_request_id", callback.CheckoutRequestID).
		WithField("result_code", callback.ResultCode)
	logger.Info("received collection callback")

	if err := rs.Collections.ProcessCallback(ctx, callback); err != nil {
		// internal failures never leak to the provider
		logger.WithError(err).Error("collection callback processing failed")
	}

	writeJSON(w, http.StatusOK, models.AckSuccess())
}
