package models

import (
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	CollectionStatusPending = "pending"
	CollectionStatusSuccess = "success"
	CollectionStatusFailed  = "failed"

	DisbursementStatusPending     = "pending"
	DisbursementStatusProcessing  = "processing"
	DisbursementStatusCompleted   = "completed"
	DisbursementStatusFailed      = "failed"
	DisbursementStatusNotRequired = "not_required"

	PaymentMethodMpesa = "mpesa"
	PaymentMethodCash  = "cash"
	PaymentMethodBank  = "bank"
)

// PaymentRecord holds one rent collection attempt together with its
// disbursement sub-state. Party and routing details are snapshotted at
// creation time so a later property edit cannot redirect an in-flight
// disbursement. Records are an audit trail and are never deleted.
type PaymentRecord struct {
	frame.BaseModel

	TenantUserID string `gorm:"type:varchar(50);index:idx_payment_tenant"`
	TenantName   string `gorm:"type:varchar(250)"`
	PropertyID   string `gorm:"type:varchar(50);index:idx_payment_property"`
	PropertyName string `gorm:"type:varchar(250)"`
	OwnerID      string `gorm:"type:varchar(50);index:idx_payment_owner"`

	Amount             decimal.NullDecimal `gorm:"type:numeric" json:"amount"`
	PlatformFee        decimal.NullDecimal `gorm:"type:numeric" json:"platformFee"`
	DisbursementAmount decimal.NullDecimal `gorm:"type:numeric" json:"disbursementAmount"`
	Currency           string              `gorm:"type:varchar(10)"`

	PaymentMethod  string `gorm:"type:varchar(10)"`
	PhoneNumber    string `gorm:"type:varchar(20)"`
	TransactionRef string `gorm:"type:varchar(50);uniqueIndex"`

	Status            string `gorm:"type:varchar(10)"`
	FailureReason     string `gorm:"type:text"`
	CheckoutRequestID string `gorm:"type:varchar(100);index:idx_payment_checkout"`
	MerchantRequestID string `gorm:"type:varchar(100)"`

	OwnerPaybill       string `gorm:"type:varchar(20)"`
	OwnerAccountNumber string `gorm:"type:varchar(50)"`

	DisbursementStatus                   string `gorm:"type:varchar(15)"`
	DisbursementTransactionID            string `gorm:"type:varchar(100)"`
	DisbursementConversationID           string `gorm:"type:varchar(100);index:idx_payment_conversation"`
	DisbursementOriginatorConversationID string `gorm:"type:varchar(100)"`
	DisbursementDate                     *time.Time
	DisbursementFailureReason            string `gorm:"type:text"`

	Extra datatypes.JSONMap `gorm:"index:,type:gin,option:jsonb_path_ops" json:"extra"`
}

// CollectionSettled reports whether the collection leg has reached a
// terminal state.
func (model *PaymentRecord) CollectionSettled() bool {
	return model.Status == CollectionStatusSuccess || model.Status == CollectionStatusFailed
}

// DisbursementInFlightOrDone reports whether a further initiation attempt
// must be treated as an idempotent no-op.
func (model *PaymentRecord) DisbursementInFlightOrDone() bool {
	return model.DisbursementStatus == DisbursementStatusProcessing ||
		model.DisbursementStatus == DisbursementStatusCompleted
}

// Property is the owning entity the core reads rent and routing details
// from. It is maintained by the external property service; the payment core
// never mutates it.
type Property struct {
	frame.BaseModel

	Name          string              `gorm:"type:varchar(250)"`
	Code          string              `gorm:"type:varchar(50);index"`
	RentAmount    decimal.NullDecimal `gorm:"type:numeric" json:"rentAmount"`
	Paybill       string              `gorm:"type:varchar(20)"`
	AccountNumber string              `gorm:"type:varchar(50)"`
	OwnerID       string              `gorm:"type:varchar(50);index"`
}

// Notification is the payload dispatched through the notification event.
// Delivery is fire and forget, failure never blocks a payment flow.
type Notification struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
}
