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

type Invoice struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	BusinessId             string          `gorm:"index;not null" json:"business_id" binding:"required"`
	CustomerId             int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	SequenceNo             decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	InvoiceNumber          string          `gorm:"size:255;not null" json:"invoice_number" binding:"required"`
	ReferenceNumber        string          `gorm:"size:255;default:null" json:"reference_number"`
	InvoiceDate            time.Time       `gorm:"not null" json:"invoice_date" binding:"required"`
	PaymentTerms           PaymentTerms    `gorm:"type:enum('Net15','Net30','Net60','DueOnReceipt','Custom');not null" json:"payment_terms" binding:"required"`
	PaymentTermsCustomDays int             `gorm:"default:0" json:"payment_terms_custom_days"`
	InvoiceDueDate         *time.Time      `gorm:"not null" json:"invoice_due_date" binding:"required"`
	Notes                  string          `gorm:"type:text;default:null" json:"notes"`
	CurrencyId             int             `gorm:"not null" json:"currency_id" binding:"required"`
	ExchangeRate           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"exchange_rate"`
	CurrentStatus          InvoiceStatus   `gorm:"type:enum('Draft','Sent','Partial Paid','Paid','Void');not null" json:"current_status" binding:"required"`
	Details                []InvoiceDetail `gorm:"foreignKey:InvoiceId" json:"details"`
	TaxLines               []InvoiceTaxLine `gorm:"foreignKey:InvoiceId" json:"tax_lines"`
	InvoiceSubtotal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoice_subtotal"`
	InvoiceTotalTaxAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoice_total_tax_amount"`
	InvoiceTotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoice_total_amount"`
	InvoiceTotalPaidAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"invoice_total_paid_amount"`
	RemainingBalance       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_balance"`
	PostedToLedger         bool            `gorm:"not null;default:false;index" json:"posted_to_ledger"`
	PostedAt               *time.Time      `json:"posted_at"`
	DisplayStatus          string          `gorm:"-" json:"display_status"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceDetail struct {
	ID             int             `gorm:"primary_key" json:"id"`
	InvoiceId      int             `gorm:"index;not null" json:"invoice_id" binding:"required"`
	Name           string          `gorm:"size:100" json:"name" binding:"required"`
	Description    string          `gorm:"size:255;default:null" json:"description"`
	DetailQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_qty" binding:"required"`
	DetailUnitRate decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_unit_rate" binding:"required"`
	DetailAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceTaxLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	InvoiceId     int             `gorm:"index;not null" json:"invoice_id" binding:"required"`
	TaxId         int             `gorm:"default:null" json:"tax_id"`
	TaxName       string          `gorm:"size:100;not null" json:"tax_name" binding:"required"`
	TaxPercentage decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_percentage"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoice struct {
	CustomerId             int                `json:"customer_id" binding:"required"`
	ReferenceNumber        string             `json:"reference_number"`
	InvoiceDate            time.Time          `json:"invoice_date" binding:"required"`
	PaymentTerms           PaymentTerms       `json:"payment_terms" binding:"required"`
	PaymentTermsCustomDays int                `json:"payment_terms_custom_days"`
	Notes                  string             `json:"notes"`
	CurrencyId             int                `json:"currency_id"`
	ExchangeRate           decimal.Decimal    `json:"exchange_rate"`
	Details                []NewInvoiceDetail `json:"details"`
	TaxLines               []NewDocumentTaxLine `json:"tax_lines"`
}

type NewInvoiceDetail struct {
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	DetailQty      decimal.Decimal `json:"detail_qty" binding:"required"`
	DetailUnitRate decimal.Decimal `json:"detail_unit_rate" binding:"required"`
}

// NewDocumentTaxLine is shared by invoices and bills. TaxId is optional; when
// given, name and percentage are snapshotted from the tax catalog.
type NewDocumentTaxLine struct {
	TaxId         int             `json:"tax_id"`
	TaxName       string          `json:"tax_name"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
}

func (input *NewInvoice) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Customer](ctx, businessId, input.CustomerId); err != nil {
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

// resolveTaxLines snapshots catalog name/rate for lines given by TaxId and
// returns the inputs for the totals calculation.
func resolveTaxLines(ctx context.Context, businessId string, lines []NewDocumentTaxLine) ([]TaxLineInput, error) {
	resolved := make([]TaxLineInput, 0, len(lines))
	for _, line := range lines {
		name := line.TaxName
		pct := line.TaxPercentage
		if line.TaxId != 0 {
			tax, err := utils.FetchModel[Tax](ctx, businessId, line.TaxId)
			if err != nil {
				return nil, err
			}
			name = tax.Name
			pct = tax.Rate
		}
		resolved = append(resolved, TaxLineInput{TaxName: name, TaxPercentage: pct})
	}
	return resolved, nil
}

func lineItemInputs(details []NewInvoiceDetail) []LineItemInput {
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

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
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

	items := lineItemInputs(input.Details)
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

	details := make([]InvoiceDetail, 0, len(input.Details))
	for i, d := range input.Details {
		details = append(details, InvoiceDetail{
			Name:           d.Name,
			Description:    d.Description,
			DetailQty:      d.DetailQty,
			DetailUnitRate: d.DetailUnitRate,
			DetailAmount:   amounts[i],
		})
	}
	taxLines := make([]InvoiceTaxLine, 0, len(taxInputs))
	for i, t := range taxInputs {
		taxLines = append(taxLines, InvoiceTaxLine{
			TaxId:         input.TaxLines[i].TaxId,
			TaxName:       t.TaxName,
			TaxPercentage: t.TaxPercentage,
			TaxAmount:     taxAmounts[i],
		})
	}

	dueDate := DueDateFromTerms(input.InvoiceDate, input.PaymentTerms, input.PaymentTermsCustomDays)

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	invoice := Invoice{
		BusinessId:             businessId,
		CustomerId:             input.CustomerId,
		ReferenceNumber:        input.ReferenceNumber,
		InvoiceDate:            input.InvoiceDate,
		PaymentTerms:           input.PaymentTerms,
		PaymentTermsCustomDays: input.PaymentTermsCustomDays,
		InvoiceDueDate:         &dueDate,
		Notes:                  input.Notes,
		CurrencyId:             currencyId,
		ExchangeRate:           exchangeRate,
		CurrentStatus:          InvoiceStatusDraft,
		Details:                details,
		TaxLines:               taxLines,
		InvoiceSubtotal:        totals.Subtotal,
		InvoiceTotalTaxAmount:  totals.TaxAmount,
		InvoiceTotalAmount:     totals.Total,
		RemainingBalance:       totals.Total,
	}

	seqNo, err := utils.GetSequence[Invoice](ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "Invoice")
	if err != nil {
		return nil, err
	}
	invoice.SequenceNo = decimal.NewFromInt(seqNo)
	invoice.InvoiceNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func UpdateInvoice(ctx context.Context, invoiceId int, input *NewInvoice) (*Invoice, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, invoiceId, "Details", "TaxLines")
	if err != nil {
		return nil, err
	}
	if err := ensureInvoiceEditable(invoice.CurrentStatus, "edit"); err != nil {
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
	items := lineItemInputs(input.Details)
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

	details := make([]InvoiceDetail, 0, len(input.Details))
	for i, d := range input.Details {
		details = append(details, InvoiceDetail{
			InvoiceId:      invoice.ID,
			Name:           d.Name,
			Description:    d.Description,
			DetailQty:      d.DetailQty,
			DetailUnitRate: d.DetailUnitRate,
			DetailAmount:   amounts[i],
		})
	}
	taxLines := make([]InvoiceTaxLine, 0, len(taxInputs))
	for i, t := range taxInputs {
		taxLines = append(taxLines, InvoiceTaxLine{
			InvoiceId:     invoice.ID,
			TaxId:         input.TaxLines[i].TaxId,
			TaxName:       t.TaxName,
			TaxPercentage: t.TaxPercentage,
			TaxAmount:     taxAmounts[i],
		})
	}

	dueDate := DueDateFromTerms(input.InvoiceDate, input.PaymentTerms, input.PaymentTermsCustomDays)

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Model(invoice).Updates(map[string]interface{}{
		"CustomerId":             input.CustomerId,
		"ReferenceNumber":        input.ReferenceNumber,
		"InvoiceDate":            input.InvoiceDate,
		"PaymentTerms":           input.PaymentTerms,
		"PaymentTermsCustomDays": input.PaymentTermsCustomDays,
		"InvoiceDueDate":         &dueDate,
		"Notes":                  input.Notes,
		"CurrencyId":             currencyId,
		"ExchangeRate":           exchangeRate,
		"InvoiceSubtotal":        totals.Subtotal,
		"InvoiceTotalTaxAmount":  totals.TaxAmount,
		"InvoiceTotalAmount":     totals.Total,
		"RemainingBalance":       totals.Total.Sub(invoice.InvoiceTotalPaidAmount),
	}).Error; err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(invoice).Association("Details").Unscoped().Replace(&details); err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(invoice).Association("TaxLines").Unscoped().Replace(&taxLines); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[Invoice](ctx, businessId, invoice.ID, "Details", "TaxLines")
}

func DeleteInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	result, err := utils.FetchModel[Invoice](ctx, businessId, id, "Details", "TaxLines")
	if err != nil {
		return nil, err
	}
	if result.CurrentStatus != InvoiceStatusDraft {
		return nil, utils.NewInvalidStateError(string(result.CurrentStatus), "delete")
	}
	if result.PostedToLedger {
		return nil, utils.NewInvalidStateError(string(result.CurrentStatus), "delete posted invoice")
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

func UpdateStatusInvoice(ctx context.Context, id int, status string) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	next, err := ParseInvoiceStatus(status)
	if err != nil {
		return nil, utils.NewValidationError("status", err.Error())
	}
	if err := ensureManualInvoiceStatus(next); err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Details", "TaxLines")
	if err != nil {
		return nil, err
	}

	oldStatus := invoice.CurrentStatus
	if !oldStatus.CanTransitionTo(next) {
		return nil, utils.NewInvalidStateError(string(oldStatus), string(next))
	}
	if oldStatus == InvoiceStatusDraft && next == InvoiceStatusSent {
		if len(invoice.Details) == 0 {
			return nil, utils.NewValidationError("details", "cannot send an invoice with no line items")
		}
		if !invoice.InvoiceTotalAmount.IsPositive() {
			return nil, utils.NewValidationError("invoice_total_amount", "cannot send an invoice with a non-positive total")
		}
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Model(&invoice).Updates(map[string]interface{}{
		"CurrentStatus": next,
	}).Error; err != nil {
		return nil, err
	}

	if oldStatus == InvoiceStatusDraft && next == InvoiceStatusSent {
		err := PublishToPosting(ctx, tx, businessId, invoice.InvoiceDate, invoice.ID, AccountReferenceTypeInvoice, invoice, nil, PubSubMessageActionCreate)
		if err != nil {
			return nil, err
		}
	} else if next == InvoiceStatusVoid && invoice.PostedToLedger {
		err := PublishToPosting(ctx, tx, businessId, invoice.InvoiceDate, invoice.ID, AccountReferenceTypeInvoice, nil, invoice, PubSubMessageActionDelete)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	invoice.CurrentStatus = next
	return invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Details", "TaxLines")
	if err != nil {
		return nil, err
	}
	invoice.DisplayStatus = DeriveInvoiceDisplayStatus(invoice.CurrentStatus, invoice.InvoiceDueDate, time.Now())
	return invoice, nil
}

func GetInvoices(ctx context.Context, customerId *int, status *string) ([]*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Invoice
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if customerId != nil {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	if status != nil && len(*status) > 0 {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	err := dbCtx.Preload("Details").Preload("TaxLines").
		Order("invoice_date desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, inv := range results {
		inv.DisplayStatus = DeriveInvoiceDisplayStatus(inv.CurrentStatus, inv.InvoiceDueDate, now)
	}
	return results, nil
}
