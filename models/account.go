package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"gorm.io/gorm"
)

type Account struct {
	ID          int         `gorm:"primary_key" json:"id"`
	BusinessId  string      `gorm:"index;not null" json:"business_id" binding:"required"`
	Name        string      `gorm:"size:100;not null" json:"name" binding:"required"`
	Code        string      `gorm:"size:20;not null;index" json:"code"`
	AccountType AccountType `gorm:"type:enum('Asset','Liability','Income','Expense');not null" json:"account_type"`
	IsSystem    *bool       `gorm:"not null;default:false" json:"is_system"`
	IsActive    *bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// System account codes used by the posting workflows.
const (
	AccountCodeCash               = "1000"
	AccountCodeAccountsReceivable = "1100"
	AccountCodeTaxReceivable      = "1200"
	AccountCodeAccountsPayable    = "2100"
	AccountCodeTaxPayable         = "2200"
	AccountCodeSales              = "4000"
	AccountCodePurchases          = "5000"
)

var systemAccountSeed = []Account{
	{Code: AccountCodeCash, Name: "Cash", AccountType: AccountTypeAsset},
	{Code: AccountCodeAccountsReceivable, Name: "Accounts Receivable", AccountType: AccountTypeAsset},
	{Code: AccountCodeTaxReceivable, Name: "Tax Receivable", AccountType: AccountTypeAsset},
	{Code: AccountCodeAccountsPayable, Name: "Accounts Payable", AccountType: AccountTypeLiability},
	{Code: AccountCodeTaxPayable, Name: "Tax Payable", AccountType: AccountTypeLiability},
	{Code: AccountCodeSales, Name: "Sales", AccountType: AccountTypeIncome},
	{Code: AccountCodePurchases, Name: "Purchases", AccountType: AccountTypeExpense},
}

func createSystemAccounts(tx *gorm.DB, businessId string) error {
	yes := true
	for _, seed := range systemAccountSeed {
		account := seed
		account.BusinessId = businessId
		account.IsSystem = &yes
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetSystemAccounts maps system account codes to account ids for a tenant.
// Called from posting workflows, so it runs on the worker's transaction.
func GetSystemAccounts(tx *gorm.DB, businessId string) (map[string]int, error) {
	var accounts []Account
	if err := tx.Where("business_id = ? AND is_system = ?", businessId, true).Find(&accounts).Error; err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, errors.New("system accounts not provisioned for business " + businessId)
	}
	result := make(map[string]int, len(accounts))
	for _, a := range accounts {
		result[a.Code] = a.ID
	}
	return result, nil
}

func GetAccounts(ctx context.Context) ([]*Account, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Account](ctx, businessId)
}
