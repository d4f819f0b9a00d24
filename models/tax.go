package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

// Tax is a catalog entry for a named percentage levy. Documents snapshot the
// name and rate into their own tax lines, so later catalog edits never
// change an issued document.
type Tax struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id" binding:"required"`
	Name       string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Rate       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate" binding:"required"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTax struct {
	Name string          `json:"name" binding:"required"`
	Rate decimal.Decimal `json:"rate" binding:"required"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewTax) validate(ctx context.Context, businessId string, id int) error {
	if input.Rate.IsNegative() || input.Rate.GreaterThan(decimalOneHundred) {
		return utils.NewValidationError("rate", "must be within [0, 100]")
	}
	// name
	if err := utils.ValidateUnique[Tax](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateTax(ctx context.Context, input *NewTax) (*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	tax := Tax{
		BusinessId: businessId,
		Name:       input.Name,
		Rate:       input.Rate,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&tax).Error; err != nil {
		return nil, err
	}
	return &tax, nil
}

func UpdateTax(ctx context.Context, id int, input *NewTax) (*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	tax, err := utils.FetchModel[Tax](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(tax).Updates(map[string]interface{}{
		"Name": input.Name,
		"Rate": input.Rate,
	}).Error
	if err != nil {
		return nil, err
	}
	return tax, nil
}

func GetTax(ctx context.Context, id int) (*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Tax](ctx, businessId, id)
}

func GetTaxes(ctx context.Context) ([]*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Tax](ctx, businessId)
}
