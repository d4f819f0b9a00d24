package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"gorm.io/gorm"
)

// TransactionNumberSeries maps a document module to its number prefix, e.g.
// Invoice -> "INV-" so the first invoice becomes INV-1.
type TransactionNumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id" binding:"required"`
	ModuleName string    `gorm:"size:50;not null" json:"module_name" binding:"required"`
	Prefix     string    `gorm:"size:10" json:"prefix"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransactionNumberSeries struct {
	ModuleName string `json:"module_name" binding:"required"`
	Prefix     string `json:"prefix"`
}

var defaultNumberSeries = []TransactionNumberSeries{
	{ModuleName: "Invoice", Prefix: "INV-"},
	{ModuleName: "Bill", Prefix: "BILL-"},
	{ModuleName: "InvoicePayment", Prefix: "IVP-"},
	{ModuleName: "BillPayment", Prefix: "BLP-"},
}

// called inside the business provisioning transaction
func createDefaultNumberSeries(tx *gorm.DB, businessId string) error {
	series := make([]TransactionNumberSeries, 0, len(defaultNumberSeries))
	for _, s := range defaultNumberSeries {
		s.BusinessId = businessId
		series = append(series, s)
	}
	return tx.Create(&series).Error
}

func UpdateTransactionNumberSeries(ctx context.Context, id int, input *NewTransactionNumberSeries) (*TransactionNumberSeries, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	series, err := utils.FetchModel[TransactionNumberSeries](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(series).Updates(map[string]interface{}{
		"Prefix": input.Prefix,
	}).Error
	if err != nil {
		return nil, err
	}

	// invalidate the cached prefix map
	if err := config.RemoveRedisKey("tnsPrefixMap:" + businessId); err != nil {
		return nil, err
	}
	return series, nil
}

func GetTransactionNumberSeriesAll(ctx context.Context) ([]*TransactionNumberSeries, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[TransactionNumberSeries](ctx, businessId)
}

// getTransactionPrefix resolves the prefix for a module, caching the whole
// moduleName => prefix map of the business in redis.
func getTransactionPrefix(ctx context.Context, businessId string, moduleName string) (string, error) {
	transactionPrefixes := make(map[string]string, 0)
	redisKey := "tnsPrefixMap:" + businessId
	exists, err := config.GetRedisObject(redisKey, &transactionPrefixes)
	if err != nil {
		return "", err
	}
	if !exists {
		db := config.GetDB()
		var series []*TransactionNumberSeries
		if err := db.WithContext(ctx).Model(&TransactionNumberSeries{}).
			Where("business_id = ?", businessId).Find(&series).Error; err != nil {
			return "", err
		}
		for _, s := range series {
			transactionPrefixes[s.ModuleName] = s.Prefix
		}
		if err := config.SetRedisObject(redisKey, &transactionPrefixes, 0); err != nil {
			return "", err
		}
	}
	return transactionPrefixes[moduleName], nil
}
