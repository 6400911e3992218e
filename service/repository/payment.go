package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nyumbani/service-rentpay/service/models"
	"github.com/pitabwire/frame"
)

// ErrRecordNotFound is surfaced instead of the driver error so callers can
// branch without importing gorm.
var ErrRecordNotFound = errors.New("payment record not found")

// PaymentRepository persists rent collection attempts. The conditional
// update methods are the only mutation path for state transitions: they
// apply the change with the prior state in the WHERE clause and report
// whether a row actually moved, which is what closes the check-then-set
// race between concurrent webhook and retry triggers.
type PaymentRepository interface {
	Create(ctx context.Context, record *models.PaymentRecord) error
	Save(ctx context.Context, record *models.PaymentRecord) error
	GetByID(ctx context.Context, id string) (*models.PaymentRecord, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentRecord, error)
	GetByConversationID(ctx context.Context, conversationID string) (*models.PaymentRecord, error)

	UpdateCollectionState(ctx context.Context, id string, fromStates []string, fields map[string]any) (bool, error)
	UpdateDisbursementState(ctx context.Context, id string, fromStates []string, fields map[string]any) (bool, error)

	RecentSuccessful(ctx context.Context, tenantUserID, propertyID string, limit int) ([]*models.PaymentRecord, error)
	ListByTenant(ctx context.Context, tenantUserID string) ([]*models.PaymentRecord, error)
	ListByProperty(ctx context.Context, propertyID string) ([]*models.PaymentRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.PaymentRecord, error)
	FailedDisbursements(ctx context.Context, limit int) ([]*models.PaymentRecord, error)
}

type paymentRepository struct {
	abstractRepository
}

func NewPaymentRepository(_ context.Context, service *frame.Service) PaymentRepository {
	return &paymentRepository{abstractRepository{service: service}}
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func (repo *paymentRepository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return repo.writeDb(ctx).Create(record).Error
}

func (repo *paymentRepository) Save(ctx context.Context, record *models.PaymentRecord) error {
	return repo.writeDb(ctx).Save(record).Error
}

func (repo *paymentRepository) GetByID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	record := models.PaymentRecord{}
	err := repo.readDb(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &record, nil
}

func (repo *paymentRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentRecord, error) {
	record := models.PaymentRecord{}
	err := repo.readDb(ctx).First(&record, "checkout_request_id = ?", checkoutRequestID).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &record, nil
}

func (repo *paymentRepository) GetByConversationID(ctx context.Context, conversationID string) (*models.PaymentRecord, error) {
	record := models.PaymentRecord{}
	err := repo.readDb(ctx).First(&record, "disbursement_conversation_id = ?", conversationID).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &record, nil
}

func (repo *paymentRepository) UpdateCollectionState(ctx context.Context, id string, fromStates []string, fields map[string]any) (bool, error) {
	result := repo.writeDb(ctx).Model(&models.PaymentRecord{}).
		Where("id = ? AND status IN ?", id, fromStates).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo *paymentRepository) UpdateDisbursementState(ctx context.Context, id string, fromStates []string, fields map[string]any) (bool, error) {
	result := repo.writeDb(ctx).Model(&models.PaymentRecord{}).
		Where("id = ? AND disbursement_status IN ?", id, fromStates).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (repo *paymentRepository) RecentSuccessful(ctx context.Context, tenantUserID, propertyID string, limit int) ([]*models.PaymentRecord, error) {
	var records []*models.PaymentRecord
	err := repo.readDb(ctx).
		Where("tenant_user_id = ? AND property_id = ? AND status = ?",
			tenantUserID, propertyID, models.CollectionStatusSuccess).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (repo *paymentRepository) ListByTenant(ctx context.Context, tenantUserID string) ([]*models.PaymentRecord, error) {
	var records []*models.PaymentRecord
	err := repo.readDb(ctx).
		Where("tenant_user_id = ?", tenantUserID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (repo *paymentRepository) ListByProperty(ctx context.Context, propertyID string) ([]*models.PaymentRecord, error) {
	var records []*models.PaymentRecord
	err := repo.readDb(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (repo *paymentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.PaymentRecord, error) {
	var records []*models.PaymentRecord
	err := repo.readDb(ctx).
		Where("owner_id = ? AND status = ?", ownerID, models.CollectionStatusSuccess).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (repo *paymentRepository) FailedDisbursements(ctx context.Context, limit int) ([]*models.PaymentRecord, error) {
	var records []*models.PaymentRecord
	err := repo.readDb(ctx).
		Where("status = ? AND disbursement_status = ?",
			models.CollectionStatusSuccess, models.DisbursementStatusFailed).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
