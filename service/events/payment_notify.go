package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nyumbani/service-rentpay/service/models"
	"github.com/pitabwire/frame"
)

// PaymentNotify dispatches push notifications raised by the payment flows.
// Delivery is fire and forget: a lost notification never blocks or fails a
// payment.
type PaymentNotify struct {
	Service *frame.Service
	Topic   string
}

func (event *PaymentNotify) Name() string {
	return "rentpay.payment.notify"
}

func (event *PaymentNotify) PayloadType() any {
	return &models.Notification{}
}

func (event *PaymentNotify) Validate(_ context.Context, payload any) error {
	notification, ok := payload.(*models.Notification)
	if !ok {
		return errors.New("payload is not of type Notification")
	}
	if notification.UserID == "" {
		return errors.New("notification recipient is required")
	}
	return nil
}

func (event *PaymentNotify) Execute(ctx context.Context, payload any) error {
	notification, ok := payload.(*models.Notification)
	if !ok {
		return errors.New("payload is not of type Notification")
	}

	logger := event.Service.L(ctx).
		WithField("type", event.Name()).
		WithField("user_id", notification.UserID)

	message, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	if err = event.Service.Publish(ctx, event.Topic, message); err != nil {
		// notification delivery must never fail the emitting payment flow
		logger.WithError(err).Warn("could not publish notification")
		return nil
	}

	logger.WithField("title", notification.Title).Debug("notification queued for delivery")
	return nil
}
