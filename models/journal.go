package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountJournal struct {
	ID                  int                  `gorm:"primary_key" json:"id"`
	BusinessId          string               `gorm:"index;not null;index:idx_aj_biz_ref,priority:1" json:"business_id"`
	TransactionDateTime time.Time            `gorm:"index;not null" json:"transaction_date_time"`
	TransactionNumber   string               `gorm:"size:255" json:"transaction_number"`
	TransactionDetails  string               `gorm:"type:text" json:"transaction_details"`
	ReferenceNumber     string               `gorm:"size:255" json:"reference_number"`
	CustomerId          int                  `gorm:"index" json:"customer_id"`
	SupplierId          int                  `gorm:"index" json:"supplier_id"`
	ReferenceId         int                  `gorm:"index:idx_aj_biz_ref,priority:3" json:"reference_id"`
	ReferenceType       AccountReferenceType `gorm:"type:enum('IV','BL','IVP','BLP');index:idx_aj_biz_ref,priority:2" json:"reference_type"`
	// Posted journals are never deleted; changes are made by inserting a
	// reversal journal. For a given (reference_type, reference_id) there is
	// at most one active journal: is_reversal = false AND
	// reversed_by_journal_id IS NULL.
	IsReversal          bool                 `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesJournalId   *int                 `gorm:"index" json:"reverses_journal_id"`
	ReversedByJournalId *int                 `gorm:"index" json:"reversed_by_journal_id"`
	ReversalReason      *string              `gorm:"type:text" json:"reversal_reason"`
	ReversedAt          *time.Time           `gorm:"index" json:"reversed_at"`
	AccountTransactions []AccountTransaction `gorm:"foreignKey:JournalId" json:"account_transactions"`
	CreatedAt           time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type AccountTransaction struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	BusinessId          string          `gorm:"index;index:idx_at_biz_acct_date,priority:1" json:"business_id"`
	JournalId           int             `gorm:"index;not null" json:"journal_id" binding:"required"`
	AccountId           int             `gorm:"index;not null;index:idx_at_biz_acct_date,priority:2" json:"account_id" binding:"required"`
	TransactionDateTime time.Time       `gorm:"index;not null;index:idx_at_biz_acct_date,priority:3" json:"transaction_date_time"`
	Description         string          `gorm:"size:255" json:"description"`
	BaseCurrencyId      int             `gorm:"index;not null" json:"base_currency_id" binding:"required"`
	BaseDebit           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_debit"`
	BaseCredit          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_credit"`
	ForeignCurrencyId   int             `gorm:"index;not null" json:"foreign_currency_id" binding:"required"`
	ForeignDebit        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"foreign_debit"`
	ForeignCredit       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"foreign_credit"`
	ExchangeRate        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"exchange_rate"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Ledger immutability guardrails:
// - account_transactions are append-only (no updates/deletes).
// - account_journals are never deleted; only reversal linkage fields may change.

func (t *AccountTransaction) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable ledger: account_transactions cannot be updated")
}

func (t *AccountTransaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: account_transactions cannot be deleted")
}

func (j *AccountJournal) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: account_journals cannot be deleted")
}

func (j *AccountJournal) BeforeUpdate(tx *gorm.DB) error {
	allowed := map[string]bool{
		"IsReversal":          true,
		"ReversesJournalId":   true,
		"ReversedByJournalId": true,
		"ReversalReason":      true,
		"ReversedAt":          true,
		"UpdatedAt":           true,
	}
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable ledger: only reversal linkage fields may be updated on account_journals")
		}
	}
	return nil
}

// GetActiveJournal returns the single unreversed journal for a document, or
// ErrorRecordNotFound when the document was never posted (or fully reversed).
func GetActiveJournal(ctx context.Context, tx *gorm.DB, businessId string, refType AccountReferenceType, refId int) (*AccountJournal, error) {
	var journal AccountJournal
	err := tx.WithContext(ctx).
		Preload("AccountTransactions").
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, refType, refId).
		Where("is_reversal = false AND reversed_by_journal_id IS NULL").
		First(&journal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &journal, nil
}

func GetJournal(ctx context.Context, id int) (*AccountJournal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[AccountJournal](ctx, businessId, id, "AccountTransactions")
}

func GetJournals(ctx context.Context, refType *AccountReferenceType) ([]*AccountJournal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*AccountJournal
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if refType != nil {
		dbCtx = dbCtx.Where("reference_type = ?", *refType)
	}
	err := dbCtx.Preload("AccountTransactions").
		Order("transaction_date_time desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// AccountBalance sums debits minus credits for one account in base currency.
func AccountBalance(ctx context.Context, accountId int) (decimal.Decimal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return decimal.Zero, errors.New("business id is required")
	}

	db := config.GetDB()
	var result struct {
		Balance decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&AccountTransaction{}).
		Select("COALESCE(SUM(base_debit - base_credit), 0) as balance").
		Where("business_id = ? AND account_id = ?", businessId, accountId).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Balance, nil
}
