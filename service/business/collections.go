package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/nyumbani/service-rentpay/config"
	"github.com/nyumbani/service-rentpay/service/coreapi"
	"github.com/nyumbani/service-rentpay/service/events"
	"github.com/nyumbani/service-rentpay/service/models"
	"github.com/nyumbani/service-rentpay/service/repository"
	"github.com/nyumbani/service-rentpay/service/utility"
)

var (
	minCollectionAmount = decimal.NewFromInt(1)
	maxCollectionAmount = decimal.NewFromInt(150000)
)

// CollectionBusiness drives the tenant-pays-in leg: it creates the pending
// record, dispatches the push prompt and settles the record when the
// provider reports back on the webhook.
type CollectionBusiness interface {
	Initiate(ctx context.Context, principal Principal, propertyID string, amount decimal.Decimal, phoneNumber string) (*models.PaymentRecord, error)
	ProcessCallback(ctx context.Context, callback *models.StkCallback) error
	History(ctx context.Context, principal Principal, tenantUserID string) ([]*models.PaymentRecord, error)
	ListByProperty(ctx context.Context, principal Principal, propertyID string) ([]*models.PaymentRecord, error)
}

type collectionBusiness struct {
	service       *frame.Service
	cfg           *config.RentPayConfig
	gateway       coreapi.MpesaApiClient
	payments      repository.PaymentRepository
	properties    repository.PropertyRepository
	disbursements DisbursementBusiness
	feePercent    decimal.Decimal
}

func NewCollectionBusiness(_ context.Context, service *frame.Service, cfg *config.RentPayConfig,
	gateway coreapi.MpesaApiClient, payments repository.PaymentRepository,
	properties repository.PropertyRepository, disbursements DisbursementBusiness) (CollectionBusiness, error) {

	feePercent, err := decimal.NewFromString(cfg.PlatformFeePercent)
	if err != nil || feePercent.IsNegative() {
		return nil, fmt.Errorf("invalid platform fee percent %q", cfg.PlatformFeePercent)
	}

	return &collectionBusiness{
		service:       service,
		cfg:           cfg,
		gateway:       gateway,
		payments:      payments,
		properties:    properties,
		disbursements: disbursements,
		feePercent:    feePercent,
	}, nil
}

// newTransactionRef generates the internal transaction reference assigned at
// creation time. The provider's receipt number supersedes it on success.
func newTransactionRef() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("TXN%d%s", time.Now().UnixMilli(), strings.ToUpper(suffix))
}

func (cb *collectionBusiness) Initiate(ctx context.Context, principal Principal, propertyID string, amount decimal.Decimal, phoneNumber string) (*models.PaymentRecord, error) {
	logger := cb.service.L(ctx).WithField("type", "CollectionInitiate").
		WithField("tenant_id", principal.ID).
		WithField("property_id", propertyID)

	if amount.LessThan(minCollectionAmount) || amount.GreaterThan(maxCollectionAmount) {
		return nil, ErrInvalidAmount
	}

	property, err := cb.properties.GetByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, repository.ErrPropertyNotFound) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}

	if principal.LinkedPropertyID != propertyID {
		return nil, ErrTenantNotLinked
	}

	formattedPhone, err := utility.NormalizePhoneNumber(phoneNumber)
	if err != nil {
		return nil, err
	}

	fee, net := utility.SplitForDisbursement(amount, cb.feePercent)

	record := &models.PaymentRecord{
		TenantUserID: principal.ID,
		TenantName:   principal.Name,
		PropertyID:   property.GetID(),
		PropertyName: property.Name,
		OwnerID:      property.OwnerID,

		Amount:             decimal.NullDecimal{Valid: true, Decimal: amount},
		PlatformFee:        decimal.NullDecimal{Valid: true, Decimal: fee},
		DisbursementAmount: decimal.NullDecimal{Valid: true, Decimal: net},
		Currency:           cb.cfg.Currency,

		PaymentMethod:  models.PaymentMethodMpesa,
		PhoneNumber:    formattedPhone,
		TransactionRef: newTransactionRef(),
		Status:         models.CollectionStatusPending,

		// routing snapshot, a later property edit cannot redirect the payout
		OwnerPaybill:       property.Paybill,
		OwnerAccountNumber: property.AccountNumber,
		DisbursementStatus: models.DisbursementStatusPending,
	}
	record.GenID(ctx)

	if err = cb.payments.Create(ctx, record); err != nil {
		return nil, err
	}

	stkResponse, err := cb.gateway.InitiateSTKPush(ctx, formattedPhone, amount,
		property.Code, fmt.Sprintf("Rent payment for %s", property.Name))
	if err != nil {
		// the failed attempt stays on file as an audit trail
		logger.WithError(err).Error("stk push initiation failed")
		record.Status = models.CollectionStatusFailed
		record.FailureReason = err.Error()
		if _, updateErr := cb.payments.UpdateCollectionState(ctx, record.GetID(),
			[]string{models.CollectionStatusPending},
			map[string]any{"status": models.CollectionStatusFailed, "failure_reason": err.Error()}); updateErr != nil {
			logger.WithError(updateErr).Error("could not persist failed collection state")
		}
		return record, err
	}

	record.CheckoutRequestID = stkResponse.CheckoutRequestID
	record.MerchantRequestID = stkResponse.MerchantRequestID
	if err = cb.payments.Save(ctx, record); err != nil {
		return nil, err
	}

	logger.WithField("checkout_request_id", record.CheckoutRequestID).Info("stk push dispatched")
	return record, nil
}

func (cb *collectionBusiness) ProcessCallback(ctx context.Context, callback *models.StkCallback) error {
	logger := cb.service.L(ctx).WithField("type", "CollectionCallback").
		WithField("checkout_request_id", callback.CheckoutRequestID)

	record, err := cb.payments.GetByCheckoutRequestID(ctx, callback.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			// unknown or late delivery, ack and drop
			logger.Warn("callback for unknown checkout request id")
			return nil
		}
		return err
	}

	if callback.ResultCode != models.ResultCodeSuccess {
		moved, err := cb.payments.UpdateCollectionState(ctx, record.GetID(),
			[]string{models.CollectionStatusPending},
			map[string]any{
				"status":         models.CollectionStatusFailed,
				"failure_reason": callback.ResultDesc,
			})
		if err != nil {
			return err
		}
		if moved {
			logger.WithField("result_desc", callback.ResultDesc).Info("collection failed")
		}
		return nil
	}

	fields := map[string]any{"status": models.CollectionStatusSuccess}
	if receipt := callback.ReceiptNumber(); receipt != "" {
		fields["transaction_ref"] = receipt
	}
	if len(callback.CallbackMetadata.Item) > 0 {
		extra := datatypes.JSONMap{}
		for _, item := range callback.CallbackMetadata.Item {
			extra[item.Name] = item.Value
		}
		fields["extra"] = extra
	}

	moved, err := cb.payments.UpdateCollectionState(ctx, record.GetID(),
		[]string{models.CollectionStatusPending}, fields)
	if err != nil {
		return err
	}
	if !moved {
		// duplicate delivery after settlement, nothing to do
		logger.Info("collection already settled, dropping duplicate callback")
		return nil
	}

	logger.WithField("payment_id", record.GetID()).Info("collection settled successfully")

	cb.notifySettled(ctx, record)

	if cb.cfg.DisburseAutomatically {
		settled, err := cb.payments.GetByID(ctx, record.GetID())
		if err != nil {
			logger.WithError(err).Warn("could not reload record for auto disbursement")
			return nil
		}
		// a failed auto disbursement never disturbs the collection ack
		cb.disbursements.AutoInitiate(ctx, settled)
	}

	return nil
}

func (cb *collectionBusiness) notifySettled(ctx context.Context, record *models.PaymentRecord) {
	event := events.PaymentNotify{}
	amount := record.Amount.Decimal.StringFixed(2)

	tenantNote := &models.Notification{
		UserID: record.TenantUserID,
		Title:  "Payment Successful",
		Body:   fmt.Sprintf("Your payment of %s %s has been received successfully", record.Currency, amount),
		Data:   map[string]string{"type": "payment_success", "payment_id": record.GetID()},
	}
	if err := cb.service.Emit(ctx, event.Name(), tenantNote); err != nil {
		cb.service.L(ctx).WithError(err).Warn("could not emit tenant notification")
	}

	ownerNote := &models.Notification{
		UserID: record.OwnerID,
		Title:  "Payment Received",
		Body:   fmt.Sprintf("%s paid %s %s for %s", record.TenantName, record.Currency, amount, record.PropertyName),
		Data:   map[string]string{"type": "payment_received", "payment_id": record.GetID(), "tenant_id": record.TenantUserID},
	}
	if err := cb.service.Emit(ctx, event.Name(), ownerNote); err != nil {
		cb.service.L(ctx).WithError(err).Warn("could not emit owner notification")
	}
}

func (cb *collectionBusiness) History(ctx context.Context, principal Principal, tenantUserID string) ([]*models.PaymentRecord, error) {
	if principal.Role == RoleTenant && principal.ID != tenantUserID {
		return nil, ErrNotAuthorized
	}
	return cb.payments.ListByTenant(ctx, tenantUserID)
}

func (cb *collectionBusiness) ListByProperty(ctx context.Context, principal Principal, propertyID string) ([]*models.PaymentRecord, error) {
	property, err := cb.properties.GetByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, repository.ErrPropertyNotFound) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}
	if !principal.IsAdmin() && property.OwnerID != principal.ID {
		return nil, ErrNotAuthorized
	}
	return cb.payments.ListByProperty(ctx, propertyID)
}
