package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"

	"github.com/nyumbani/service-rentpay/config"
	"github.com/nyumbani/service-rentpay/service/coreapi"
	"github.com/nyumbani/service-rentpay/service/events"
	"github.com/nyumbani/service-rentpay/service/models"
	"github.com/nyumbani/service-rentpay/service/repository"
)

// RetryOutcome is the per-record result of a batch retry attempt.
type RetryOutcome struct {
	PaymentID string `json:"payment_id"`
	Retried   bool   `json:"retried"`
	Reason    string `json:"reason,omitempty"`
}

// RetryResult aggregates a batch retry run. One record failing never aborts
// the rest of the batch.
type RetryResult struct {
	Attempted  int            `json:"attempted"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Outcomes   []RetryOutcome `json:"outcomes"`
}

// OwnerDisbursementSummary aggregates an owner's payout position across all
// successfully collected payments.
type OwnerDisbursementSummary struct {
	TotalCollected decimal.Decimal         `json:"total_collected"`
	TotalFees      decimal.Decimal         `json:"total_fees"`
	TotalDisbursed decimal.Decimal         `json:"total_disbursed"`
	StatusCounts   map[string]int          `json:"status_counts"`
	Payments       []*models.PaymentRecord `json:"payments"`
}

// DisbursementBusiness drives the platform-pays-owner-out leg. Initiation is
// guarded by the collection's success and made idempotent through
// conditional state updates, never through locks.
type DisbursementBusiness interface {
	Initiate(ctx context.Context, record *models.PaymentRecord) error
	AutoInitiate(ctx context.Context, record *models.PaymentRecord)
	InitiateByID(ctx context.Context, principal Principal, paymentID string) (*models.PaymentRecord, error)
	ProcessResultCallback(ctx context.Context, result *models.B2BResult) error
	RetryFailed(ctx context.Context, limit int) (*RetryResult, error)
	Status(ctx context.Context, principal Principal, paymentID string) (*models.PaymentRecord, error)
	ListByOwner(ctx context.Context, ownerID string) (*OwnerDisbursementSummary, error)
}

type disbursementBusiness struct {
	service  *frame.Service
	cfg      *config.RentPayConfig
	gateway  coreapi.MpesaApiClient
	payments repository.PaymentRepository
}

func NewDisbursementBusiness(_ context.Context, service *frame.Service, cfg *config.RentPayConfig,
	gateway coreapi.MpesaApiClient, payments repository.PaymentRepository) DisbursementBusiness {
	return &disbursementBusiness{
		service:  service,
		cfg:      cfg,
		gateway:  gateway,
		payments: payments,
	}
}

func (db *disbursementBusiness) Initiate(ctx context.Context, record *models.PaymentRecord) error {
	logger := db.service.L(ctx).WithField("type", "DisbursementInitiate").
		WithField("payment_id", record.GetID())

	if record.Status != models.CollectionStatusSuccess {
		return ErrCollectionNotSettled
	}

	// duplicate triggers are a silent no-op, never a double spend
	if record.DisbursementInFlightOrDone() {
		logger.Info("disbursement already in flight or completed, skipping")
		return nil
	}

	moved, err := db.payments.UpdateDisbursementState(ctx, record.GetID(),
		[]string{models.DisbursementStatusPending, models.DisbursementStatusFailed},
		map[string]any{
			"disbursement_status":         models.DisbursementStatusProcessing,
			"disbursement_failure_reason": "",
		})
	if err != nil {
		return err
	}
	if !moved {
		// a concurrent trigger won the transition
		logger.Info("lost disbursement initiation race, skipping")
		return nil
	}

	amount := record.DisbursementAmount.Decimal
	response, err := db.gateway.InitiateB2B(ctx, record.OwnerPaybill, amount,
		record.OwnerAccountNumber, fmt.Sprintf("Rent disbursement for %s", record.PropertyName))
	if err != nil {
		logger.WithError(err).Error("b2b initiation failed")
		if _, updateErr := db.payments.UpdateDisbursementState(ctx, record.GetID(),
			[]string{models.DisbursementStatusProcessing},
			map[string]any{
				"disbursement_status":         models.DisbursementStatusFailed,
				"disbursement_failure_reason": err.Error(),
			}); updateErr != nil {
			logger.WithError(updateErr).Error("could not persist failed disbursement state")
		}
		return err
	}

	_, err = db.payments.UpdateDisbursementState(ctx, record.GetID(),
		[]string{models.DisbursementStatusProcessing},
		map[string]any{
			"disbursement_conversation_id":            response.ConversationID,
			"disbursement_originator_conversation_id": response.OriginatorConversationID,
		})
	if err != nil {
		return err
	}

	logger.WithField("conversation_id", response.ConversationID).Info("disbursement accepted for processing")
	return nil
}

// AutoInitiate is the post-webhook trigger. Failures are logged and
// swallowed so a failed payout can never mask an already successful tenant
// collection; the record stays eligible for manual or batch retry.
func (db *disbursementBusiness) AutoInitiate(ctx context.Context, record *models.PaymentRecord) {
	if err := db.Initiate(ctx, record); err != nil {
		db.service.L(ctx).WithError(err).
			WithField("payment_id", record.GetID()).
			Warn("automatic disbursement failed, record remains eligible for retry")
	}
}

func (db *disbursementBusiness) InitiateByID(ctx context.Context, principal Principal, paymentID string) (*models.PaymentRecord, error) {
	record, err := db.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if !principal.IsAdmin() && record.OwnerID != principal.ID {
		return nil, ErrNotAuthorized
	}

	if err = db.Initiate(ctx, record); err != nil {
		return record, err
	}

	return db.payments.GetByID(ctx, paymentID)
}

func (db *disbursementBusiness) ProcessResultCallback(ctx context.Context, result *models.B2BResult) error {
	logger := db.service.L(ctx).WithField("type", "DisbursementCallback").
		WithField("conversation_id", result.ConversationID)

	record, err := db.payments.GetByConversationID(ctx, result.ConversationID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			// unknown or late delivery, ack and drop
			logger.Warn("result for unknown conversation id")
			return nil
		}
		return err
	}

	if result.ResultCode != models.ResultCodeSuccess {
		moved, err := db.payments.UpdateDisbursementState(ctx, record.GetID(),
			[]string{models.DisbursementStatusProcessing},
			map[string]any{
				"disbursement_status":         models.DisbursementStatusFailed,
				"disbursement_failure_reason": result.ResultDesc,
			})
		if err != nil {
			return err
		}
		if moved {
			logger.WithField("result_desc", result.ResultDesc).Warn("disbursement failed, awaiting operator retry")
		}
		return nil
	}

	transactionID := result.SettledTransactionID()
	if transactionID == "" {
		transactionID = result.ConversationID
	}

	now := time.Now()
	moved, err := db.payments.UpdateDisbursementState(ctx, record.GetID(),
		[]string{models.DisbursementStatusProcessing},
		map[string]any{
			"disbursement_status":         models.DisbursementStatusCompleted,
			"disbursement_transaction_id": transactionID,
			"disbursement_date":           now,
		})
	if err != nil {
		return err
	}
	if !moved {
		logger.Info("disbursement already settled, dropping duplicate result")
		return nil
	}

	logger.WithField("transaction_id", transactionID).Info("disbursement completed")

	db.notifyCompleted(ctx, record, transactionID)
	return nil
}

func (db *disbursementBusiness) notifyCompleted(ctx context.Context, record *models.PaymentRecord, transactionID string) {
	event := events.PaymentNotify{}
	note := &models.Notification{
		UserID: record.OwnerID,
		Title:  "Disbursement Completed",
		Body: fmt.Sprintf("Your payout of %s %s for %s has been sent", record.Currency,
			record.DisbursementAmount.Decimal.StringFixed(2), record.PropertyName),
		Data: map[string]string{
			"type":           "disbursement_completed",
			"payment_id":     record.GetID(),
			"transaction_id": transactionID,
		},
	}
	if err := db.service.Emit(ctx, event.Name(), note); err != nil {
		db.service.L(ctx).WithError(err).Warn("could not emit disbursement notification")
	}
}

func (db *disbursementBusiness) RetryFailed(ctx context.Context, limit int) (*RetryResult, error) {
	if limit <= 0 {
		limit = db.cfg.DisburseRetryBatch
	}

	records, err := db.payments.FailedDisbursements(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &RetryResult{Attempted: len(records)}
	for _, record := range records {
		outcome := RetryOutcome{PaymentID: record.GetID(), Retried: true}
		if err := db.Initiate(ctx, record); err != nil {
			outcome.Retried = false
			outcome.Reason = err.Error()
			result.Failed++
		} else {
			result.Successful++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

func (db *disbursementBusiness) Status(ctx context.Context, principal Principal, paymentID string) (*models.PaymentRecord, error) {
	record, err := db.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if !principal.IsAdmin() && record.OwnerID != principal.ID && record.TenantUserID != principal.ID {
		return nil, ErrNotAuthorized
	}
	return record, nil
}

func (db *disbursementBusiness) ListByOwner(ctx context.Context, ownerID string) (*OwnerDisbursementSummary, error) {
	records, err := db.payments.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summary := &OwnerDisbursementSummary{
		TotalCollected: decimal.Zero,
		TotalFees:      decimal.Zero,
		TotalDisbursed: decimal.Zero,
		StatusCounts:   map[string]int{},
		Payments:       records,
	}
	for _, record := range records {
		if record.Amount.Valid {
			summary.TotalCollected = summary.TotalCollected.Add(record.Amount.Decimal)
		}
		if record.PlatformFee.Valid {
			summary.TotalFees = summary.TotalFees.Add(record.PlatformFee.Decimal)
		}
		if record.DisbursementStatus == models.DisbursementStatusCompleted && record.DisbursementAmount.Valid {
			summary.TotalDisbursed = summary.TotalDisbursed.Add(record.DisbursementAmount.Decimal)
		}
		summary.StatusCounts[record.DisbursementStatus]++
	}
	return summary, nil
}
