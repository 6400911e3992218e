package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nyumbani/service-rentpay/service/models"
	"github.com/pitabwire/frame"
)

var ErrPropertyNotFound = errors.New("property not found")

// PropertyRepository is the read-only boundary to property data. Property
// CRUD belongs to the external property service; the payment core only ever
// looks a property up by id at collection time.
type PropertyRepository interface {
	GetByID(ctx context.Context, id string) (*models.Property, error)
}

type propertyRepository struct {
	abstractRepository
}

func NewPropertyRepository(_ context.Context, service *frame.Service) PropertyRepository {
	return &propertyRepository{abstractRepository{service: service}}
}

func (repo *propertyRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	property := models.Property{}
	err := repo.readDb(ctx).First(&property, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}
	return &property, nil
}
