package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

type Bill struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	BusinessId             string          `gorm:"index;not null" json:"business_id" binding:"required"`
	SupplierId             int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	SequenceNo             decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	BillNumber             string          `gorm:"size:255;not null" json:"bill_number" binding:"required"`
	ReferenceNumber        string          `gorm:"size:255;default:null" json:"reference_number"`
	BillDate               time.Time       `gorm:"not null" json:"bill_date" binding:"required"`
	PaymentTerms           PaymentTerms    `gorm:"type:enum('Net15','Net30','Net60','DueOnReceipt','Custom');not null" json:"payment_terms" binding:"required"`
	PaymentTermsCustomDays int             `gorm:"default:0" json:"payment_terms_custom_days"`
	BillDueDate            *time.Time      `gorm:"not null" json:"bill_due_date" binding:"required"`
	Notes                  string          `gorm:"type:text;default:null" json:"notes"`
	CurrencyId             int             `gorm:"not null" json:"currency_id" binding:"required"`
	ExchangeRate           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"exchange_rate"`
	CurrentStatus          BillStatus      `gorm:"type:enum('Draft','Pending','Approved','Partial Paid','Paid','Void');not null" json:"current_status" binding:"required"`
	Details                []BillDetail    `gorm:"foreignKey:BillId" json:"details"`
	TaxLines               []BillTaxLine   `gorm:"foreignKey:BillId" json:"tax_lines"`
	BillSubtotal           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"bill_subtotal"`
	BillTotalTaxAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"bill_total_tax_amount"`
	BillTotalAmount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"bill_total_amount"`
	BillTotalPaidAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"bill_total_paid_amount"`
	RemainingBalance       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_balance"`
	PostedToLedger         bool            `gorm:"not null;default:false;index" json:"posted_to_ledger"`
	PostedAt               *time.Time      `json:"posted_at"`
	DisplayStatus          string          `gorm:"-" json:"display_status"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type BillDetail struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BillId         int             `gorm:"index;not null" json:"bill_id" binding:"required"`
	Name           string          `gorm:"size:100" json:"name" binding:"required"`
	Description    string          `gorm:"size:255;default:null" json:"description"`
	DetailQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_qty" binding:"required"`
	DetailUnitRate decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_unit_rate" binding:"required"`
	DetailAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type BillTaxLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BillId        int             `gorm:"index;not null" json:"bill_id" binding:"required"`
	TaxId         int             `gorm:"default:null" json:"tax_id"`
	TaxName       string          `gorm:"size:100;not null" json:"tax_name" binding:"required"`
	TaxPercentage decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_percentage"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBill struct {
	SupplierId             int                  `json:"supplier_id" binding:"required"`
	ReferenceNumber        string               `json:"reference_number"`
	BillDate               time.Time            `json:"bill_date" binding:"required"`
	PaymentTerms           PaymentTerms         `json:"payment_terms" binding:"required"`
	PaymentTermsCustomDays int                  `json:"payment_terms_custom_days"`
	Notes                  string               `json:"notes"`
	CurrencyId             int                  `json:"currency_id"`
	ExchangeRate           decimal.Decimal      `json:"exchange_rate"`
	Details                []NewBillDetail      `json:"details"`
	TaxLines               []NewDocumentTaxLine `json:"tax_lines"`
}

type NewBillDetail struct {
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	DetailQty      decimal.Decimal `json:"detail_qty" binding:"required"`
	DetailUnitRate decimal.Decimal `json:"detail_unit_rate" binding:"required"`
}

func (input *NewBill) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return err
	}
	if input.CurrencyId != 0 {
		if err := utils.ValidateResourceId[Currency](ctx, businessId, input.CurrencyId); err != nil {
			return err
		}
	}
	switch input.PaymentTerms {
	case PaymentTermsNet15, PaymentTermsNet30, PaymentTermsNet60, PaymentTermsDueOnReceipt:
	case PaymentTermsCustom:
		if input.PaymentTermsCustomDays < 0 {
			return utils.NewValidationError("payment_terms_custom_days", "must not be negative")
		}
	default:
		return utils.NewValidationError("payment_terms", "unknown payment terms")
	}
	for i, t := range input.TaxLines {
		if t.TaxId != 0 {
			if err := utils.ValidateResourceId[Tax](ctx, businessId, t.TaxId); err != nil {
				return err
			}
		} else if t.TaxName == "" {
			return utils.NewValidationErrorAt("tax_name", i, "required when tax_id is not given")
		}
	}
	return nil
}

func billLineItemInputs(details []NewBillDetail) []LineItemInput {
	items := make([]LineItemInput, 0, len(details))
	for _, d := range details {
		items = append(items, LineItemInput{
			Name:        d.Name,
			Description: d.Description,
			DetailQty:   d.DetailQty,
			UnitRate:    d.DetailUnitRate,
		})
	}
	return items
}

func CreateBill(ctx context.Context, input *NewBill) (*Bill, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	currencyId := input.CurrencyId
	exchangeRate := input.ExchangeRate
	baseCurrency, err := GetBaseCurrency(ctx, businessId)
	if err != nil {
		return nil, err
	}
	if currencyId == 0 {
		currencyId = baseCurrency.ID
	}
	if currencyId == baseCurrency.ID {
		exchangeRate = decimal.NewFromInt(1)
	} else if !exchangeRate.IsPositive() {
		return nil, utils.NewValidationError("exchange_rate", "must be positive for foreign currency documents")
	}

	taxInputs, err := resolveTaxLines(ctx, businessId, input.TaxLines)
	if err != nil {
		return nil, err
	}

	items := billLineItemInputs(input.Details)
	amounts, err := NormalizeLineItems(items)
	if err != nil {
		return nil, err
	}
	totals, err := ComputeTotals(items, taxInputs)
	if err != nil {
		return nil, err
	}
	taxAmounts, _, err := AggregateTaxes(totals.Subtotal, taxInputs)
	if err != nil {
		return nil, err
	}

	details := make([]BillDetail, 0, len(input.Details))
	for i, d := range input.Details {
		details = append(details, BillDetail{
			Name:           d.Name,
			Description:    d.Description,
			DetailQty:      d.DetailQty,
			DetailUnitRate: d.DetailUnitRate,
			DetailAmount:   amounts[i],
		})
	}
	taxLines := make([]BillTaxLine, 0, len(taxInputs))
	for i, t := range taxInputs {
		taxLines = append(taxLines, BillTaxLine{
			TaxId:         input.TaxLines[i].TaxId,
			TaxName:       t.TaxName,
			TaxPercentage: t.TaxPercentage,
			TaxAmount:     taxAmounts[i],
		})
	}

	dueDate := DueDateFromTerms(input.BillDate, input.PaymentTerms, input.PaymentTermsCustomDays)

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	bill := Bill{
		BusinessId:             businessId,
		SupplierId:             input.SupplierId,
		ReferenceNumber:        input.ReferenceNumber,
		BillDate:               input.BillDate,
		PaymentTerms:           input.PaymentTerms,
		PaymentTermsCustomDays: input.PaymentTermsCustomDays,
		BillDueDate:            &dueDate,
		Notes:                  input.Notes,
		CurrencyId:             currencyId,
		ExchangeRate:           exchangeRate,
		CurrentStatus:          BillStatusDraft,
		Details:                details,
		TaxLines:               taxLines,
		BillSubtotal:           totals.Subtotal,
		BillTotalTaxAmount:     totals.TaxAmount,
		BillTotalAmount:        totals.Total,
		RemainingBalance:       totals.Total,
	}

	seqNo, err := utils.GetSequence[Bill](ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "Bill")
	if err != nil {
		return nil, err
	}
	bill.SequenceNo = decimal.NewFromInt(seqNo)
	bill.BillNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&bill).Error; err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &bill, nil
}

func UpdateBill(ctx context.Context, billId int, input *NewBill) (*Bill, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	bill, err := utils.FetchModel[Bill](ctx, businessId, billId, "Details", "TaxLines")
	if err != nil {
		return nil, err
	}
	if err := ensureBillEditable(bill.CurrentStatus, "edit"); err != nil {
		return nil, err
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	currencyId := input.CurrencyId
	exchangeRate := input.ExchangeRate
	baseCurrency, err := GetBaseCurrency(ctx, businessId)
	if err != nil {
		return nil, err
	}
	if currencyId == 0 {
		currencyId = baseCurrency.ID
	}
	if currencyId == baseCurrency.ID {
		exchangeRate = decimal.NewFromInt(1)
	} else if !exchangeRate.IsPositive() {
		return nil, utils.NewValidationError("exchange_rate", "must be positive for foreign currency documents")
	}

	taxInputs, err := resolveTaxLines(ctx, businessId, input.TaxLines)
	if err != nil {
		return nil, err
	}
	items := billLineItemInputs(input.Details)
	amounts, err := NormalizeLineItems(items)
	if err != nil {
		return nil, err
	}
	totals, err := ComputeTotals(items, taxInputs)
	if err != nil {
		return nil, err
	}
	taxAmounts, _, err := AggregateTaxes(totals.Subtotal, taxInputs)
	if err != nil {
		return nil, err
	}

	details := make([]BillDetail, 0, len(input.Details))
	for i, d := range input.Details {
		details = append(details, BillDetail{
			BillId:         bill.ID,
			Name:           d.Name,
			Description:    d.Description,
			DetailQty:      d.DetailQty,
			DetailUnitRate: d.DetailUnitRate,
			DetailAmount:   amounts[i],
		})
	}
	taxLines := make([]BillTaxLine, 0, len(taxInputs))
	for i, t := range taxInputs {
		taxLines = append(taxLines, BillTaxLine{
			BillId:        bill.ID,
			TaxId:         input.TaxLines[i].TaxId,
			TaxName:       t.TaxName,
			TaxPercentage: t.TaxPercentage,
			TaxAmount:     taxAmounts[i],
		})
	}

	dueDate := DueDateFromTerms(input.BillDate, input.PaymentTerms, input.PaymentTermsCustomDays)

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Model(bill).Updates(map[string]interface{}{
		"SupplierId":             input.SupplierId,
		"ReferenceNumber":        input.ReferenceNumber,
		"BillDate":               input.BillDate,
		"PaymentTerms":           input.PaymentTerms,
		"PaymentTermsCustomDays": input.PaymentTermsCustomDays,
		"BillDueDate":            &dueDate,
		"Notes":                  input.Notes,
		"CurrencyId":             currencyId,
		"ExchangeRate":           exchangeRate,
		"BillSubtotal":           totals.Subtotal,
		"BillTotalTaxAmount":     totals.TaxAmount,
		"BillTotalAmount":        totals.Total,
		"RemainingBalance":       totals.Total.Sub(bill.BillTotalPaidAmount),
	}).Error; err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(bill).Association("Details").Unscoped().Replace(&details); err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(bill).Association("TaxLines").Unscoped().Replace(&taxLines); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[Bill](ctx, businessId, bill.ID, "Details", "TaxLines")
}

func DeleteBill(ctx context.Context, id int) (*Bill, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	result, err := utils.FetchModel[Bill](ctx, businessId, id, "Details", "TaxLines")
	if err != nil {
		return nil, err
	}
	if result.CurrentStatus != BillStatusDraft {
		return nil, utils.NewInvalidStateError(string(result.CurrentStatus), "delete")
	}
	if result.PostedToLedger {
		return nil, utils.NewInvalidStateError(string(result.CurrentStatus), "delete posted bill")
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Model(&result).Association("Details").Unscoped().Clear(); err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(&result).Association("TaxLines").Unscoped().Clear(); err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

func UpdateStatusBill(ctx context.Context, id int, status string) (*Bill, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	next, err := ParseBillStatus(status)
	if err != nil {
		return nil, utils.NewValidationError("status", err.Error())
	}
	if err := ensureManualBillStatus(next); err != nil {
		return nil, err
	}

	bill, err := utils.FetchModel[Bill](ctx, businessId, id, "Details", "TaxLines")
	if err != nil {
		return nil, err
	}

	oldStatus := bill.CurrentStatus
	if !oldStatus.CanTransitionTo(next) {
		return nil, utils.NewInvalidStateError(string(oldStatus), string(next))
	}
	if next == BillStatusApproved {
		if len(bill.Details) == 0 {
			return nil, utils.NewValidationError("details", "cannot approve a bill with no line items")
		}
		if !bill.BillTotalAmount.IsPositive() {
			return nil, utils.NewValidationError("bill_total_amount", "cannot approve a bill with a non-positive total")
		}
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Model(&bill).Updates(map[string]interface{}{
		"CurrentStatus": next,
	}).Error; err != nil {
		return nil, err
	}

	if next == BillStatusApproved {
		err := PublishToPosting(ctx, tx, businessId, bill.BillDate, bill.ID, AccountReferenceTypeBill, bill, nil, PubSubMessageActionCreate)
		if err != nil {
			return nil, err
		}
	} else if next == BillStatusVoid && bill.PostedToLedger {
		err := PublishToPosting(ctx, tx, businessId, bill.BillDate, bill.ID, AccountReferenceTypeBill, nil, bill, PubSubMessageActionDelete)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	bill.CurrentStatus = next
	return bill, nil
}

func GetBill(ctx context.Context, id int) (*Bill, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	bill, err := utils.FetchModel[Bill](ctx, businessId, id, "Details", "TaxLines")
	if err != nil {
		return nil, err
	}
	bill.DisplayStatus = DeriveBillDisplayStatus(bill.CurrentStatus, bill.BillDueDate, time.Now())
	return bill, nil
}

func GetBills(ctx context.Context, supplierId *int, status *string) ([]*Bill, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Bill
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if supplierId != nil {
		dbCtx = dbCtx.Where("supplier_id = ?", *supplierId)
	}
	if status != nil && len(*status) > 0 {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	err := dbCtx.Preload("Details").Preload("TaxLines").
		Order("bill_date desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, b := range results {
		b.DisplayStatus = DeriveBillDisplayStatus(b.CurrentStatus, b.BillDueDate, now)
	}
	return results, nil
}
