package models

import (
	"time"

	"gorm.io/gorm"
)

// PostResult reports the outcome of posting a document to the ledger.
// A duplicate posting attempt is a soft success: AlreadyPosted is set and no
// new journal is written.
type PostResult struct {
	Success       bool `json:"success"`
	AlreadyPosted bool `json:"already_posted"`
	JournalId     int  `json:"journal_id"`
}

// MarkInvoicePosted flips posted_to_ledger with a conditional update so that
// concurrent or replayed posting attempts cannot both win. Returns
// alreadyPosted=true when another attempt got there first.
func MarkInvoicePosted(tx *gorm.DB, businessId string, invoiceId int) (alreadyPosted bool, err error) {
	now := time.Now()
	result := tx.Model(&Invoice{}).
		Where("business_id = ? AND id = ? AND posted_to_ledger = false", businessId, invoiceId).
		Updates(map[string]interface{}{
			"posted_to_ledger": true,
			"posted_at":        &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}

func MarkBillPosted(tx *gorm.DB, businessId string, billId int) (alreadyPosted bool, err error) {
	now := time.Now()
	result := tx.Model(&Bill{}).
		Where("business_id = ? AND id = ? AND posted_to_ledger = false", businessId, billId).
		Updates(map[string]interface{}{
			"posted_to_ledger": true,
			"posted_at":        &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}

// MarkInvoiceUnposted is the reversal-side counterpart used when a posted
// document is voided and its journal reversed.
func MarkInvoiceUnposted(tx *gorm.DB, businessId string, invoiceId int) (notPosted bool, err error) {
	result := tx.Model(&Invoice{}).
		Where("business_id = ? AND id = ? AND posted_to_ledger = true", businessId, invoiceId).
		Updates(map[string]interface{}{
			"posted_to_ledger": false,
			"posted_at":        nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}

func MarkBillUnposted(tx *gorm.DB, businessId string, billId int) (notPosted bool, err error) {
	result := tx.Model(&Bill{}).
		Where("business_id = ? AND id = ? AND posted_to_ledger = true", businessId, billId).
		Updates(map[string]interface{}{
			"posted_to_ledger": false,
			"posted_at":        nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}
