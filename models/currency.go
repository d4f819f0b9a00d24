package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

type Currency struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id" binding:"required"`
	Symbol        string    `gorm:"index;size:3;not null" json:"symbol" binding:"required"`
	Name          string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	DecimalPlaces int       `gorm:"default:2;not null" json:"decimal_places"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCurrency struct {
	Symbol        string `json:"symbol" binding:"required"`
	Name          string `json:"name" binding:"required"`
	DecimalPlaces int    `json:"decimal_places"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewCurrency) validate(ctx context.Context, businessId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Currency](ctx, businessId, id); err != nil {
			return err
		}
	}
	// name
	if err := utils.ValidateUnique[Currency](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	// symbol
	if err := utils.ValidateUnique[Currency](ctx, businessId, "symbol", input.Symbol, id); err != nil {
		return err
	}
	return nil
}

func CreateCurrency(ctx context.Context, input *NewCurrency) (*Currency, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	currency := Currency{
		BusinessId:    businessId,
		Symbol:        input.Symbol,
		Name:          input.Name,
		DecimalPlaces: input.DecimalPlaces,
	}
	if currency.DecimalPlaces == 0 {
		currency.DecimalPlaces = 2
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&currency).Error; err != nil {
		return nil, err
	}
	return &currency, nil
}

func UpdateCurrency(ctx context.Context, id int, input *NewCurrency) (*Currency, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	currency, err := utils.FetchModel[Currency](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(currency).Updates(map[string]interface{}{
		"Symbol": input.Symbol,
		"Name":   input.Name,
	}).Error
	if err != nil {
		return nil, err
	}
	return currency, nil
}

func GetCurrency(ctx context.Context, id int) (*Currency, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Currency](ctx, businessId, id)
}

func GetCurrencies(ctx context.Context) ([]*Currency, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Currency](ctx, businessId)
}

// GetBaseCurrency resolves the business's reporting currency.
func GetBaseCurrency(ctx context.Context, businessId string) (*Currency, error) {
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Currency](ctx, businessId, business.BaseCurrencyId)
}
