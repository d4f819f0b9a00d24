package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/models"
	"gorm.io/gorm"
)

// ReverseAccountJournal creates a reversal journal that negates the original
// journal's transactions.
//
// Design:
// - Posted journals are never deleted.
// - A reversal journal (is_reversal=true) is inserted and the original marked
//   with reversed_by_journal_id=<reversal>.
func ReverseAccountJournal(tx *gorm.DB, original *models.AccountJournal, reason string) (reversalJournalID int, err error) {
	if tx == nil || original == nil {
		return 0, fmt.Errorf("reverse journal: tx/original is nil")
	}

	// Idempotent behavior: if already reversed, return existing reversal id.
	if original.ReversedByJournalId != nil && *original.ReversedByJournalId > 0 {
		return *original.ReversedByJournalId, nil
	}

	if original.AccountTransactions == nil {
		var loaded models.AccountJournal
		if err := tx.Preload("AccountTransactions").Where("id = ?", original.ID).First(&loaded).Error; err != nil {
			return 0, err
		}
		original = &loaded
	}

	reasonCopy := reason
	now := time.Now().UTC()

	reversedTxs := make([]models.AccountTransaction, 0, len(original.AccountTransactions))
	for _, t := range original.AccountTransactions {
		reversedTxs = append(reversedTxs, models.AccountTransaction{
			BusinessId:          t.BusinessId,
			AccountId:           t.AccountId,
			TransactionDateTime: t.TransactionDateTime,
			Description:         t.Description,
			BaseCurrencyId:      t.BaseCurrencyId,
			BaseDebit:           t.BaseCredit,
			BaseCredit:          t.BaseDebit,
			ForeignCurrencyId:   t.ForeignCurrencyId,
			ForeignDebit:        t.ForeignCredit,
			ForeignCredit:       t.ForeignDebit,
			ExchangeRate:        t.ExchangeRate,
		})
	}

	reversal := models.AccountJournal{
		BusinessId:          original.BusinessId,
		TransactionDateTime: original.TransactionDateTime,
		TransactionNumber:   "REV-" + original.TransactionNumber,
		TransactionDetails:  "Reversal: " + reasonCopy,
		ReferenceNumber:     original.ReferenceNumber,
		CustomerId:          original.CustomerId,
		SupplierId:          original.SupplierId,
		ReferenceId:         original.ReferenceId,
		ReferenceType:       original.ReferenceType,
		IsReversal:          true,
		ReversesJournalId:   &original.ID,
		ReversalReason:      &reasonCopy,
		AccountTransactions: reversedTxs,
	}

	if err := tx.Create(&reversal).Error; err != nil {
		return 0, err
	}

	// Mark original as reversed (metadata-only update).
	if err := tx.Model(&models.AccountJournal{}).
		Where("id = ?", original.ID).
		Updates(map[string]interface{}{
			"reversed_by_journal_id": reversal.ID,
			"reversal_reason":        &reasonCopy,
			"reversed_at":            &now,
		}).Error; err != nil {
		return 0, err
	}

	return reversal.ID, nil
}
