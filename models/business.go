package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Business struct {
	ID             uuid.UUID `gorm:"primary_key" json:"id"`
	Name           string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName    string    `gorm:"size:100" json:"contact_name"`
	Email          string    `gorm:"size:255" json:"email"`
	Phone          string    `gorm:"size:20" json:"phone"`
	Address        string    `gorm:"type:text" json:"address"`
	Country        string    `gorm:"size:100" json:"country"`
	BaseCurrencyId int       `json:"base_currency_id"`
	Timezone       string    `gorm:"size:50" json:"timezone"`
	TaxId          string    `gorm:"size:100" json:"tax_id"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name         string `json:"name" binding:"required"`
	ContactName  string `json:"contact_name"`
	Email        string `json:"email" binding:"required"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Country      string `json:"country"`
	Timezone     string `json:"timezone"`
	// Optional; defaults to MMK when omitted.
	BaseCurrency *NewCurrency `json:"base_currency"`
}

// CreateBusiness provisions a tenant: the business row, its base currency,
// the system chart of accounts and the document number series, all in one
// transaction.
func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()

	business := Business{
		ID:          uuid.New(),
		Name:        input.Name,
		ContactName: input.ContactName,
		Email:       input.Email,
		Phone:       input.Phone,
		Address:     input.Address,
		Country:     input.Country,
		Timezone:    input.Timezone,
	}

	// Tenant provisioning runs before any business id exists in context.
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}

	baseCurrency := Currency{
		BusinessId:    business.ID.String(),
		Symbol:        "MMK",
		Name:          "Myanmar Kyat",
		DecimalPlaces: 2,
	}
	if input.BaseCurrency != nil {
		baseCurrency.Symbol = input.BaseCurrency.Symbol
		baseCurrency.Name = input.BaseCurrency.Name
	}
	if err := tx.WithContext(ctx).Create(&baseCurrency).Error; err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(&business).Update("base_currency_id", baseCurrency.ID).Error; err != nil {
		return nil, err
	}
	business.BaseCurrencyId = baseCurrency.ID

	if err := createSystemAccounts(tx.WithContext(ctx), business.ID.String()); err != nil {
		return nil, err
	}
	if err := createDefaultNumberSeries(tx.WithContext(ctx), business.ID.String()); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusiness(ctx context.Context) (*Business, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return GetBusinessById(ctx, businessId)
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	db := config.GetDB()
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &business, nil
}

// GetBusinessById2 is the worker-side variant that runs on the caller's tx.
func GetBusinessById2(tx *gorm.DB, businessId string) (*Business, error) {
	var business Business
	if err := tx.Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &business, nil
}
