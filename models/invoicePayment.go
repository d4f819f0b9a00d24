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

type InvoicePayment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	InvoiceId       int             `gorm:"index;not null" json:"invoice_id" binding:"required"`
	CustomerId      int             `gorm:"index;not null" json:"customer_id"`
	SequenceNo      decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	PaymentNumber   string          `gorm:"size:255;not null" json:"payment_number"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date" binding:"required"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount" binding:"required"`
	CurrencyId      int             `gorm:"not null" json:"currency_id"`
	ExchangeRate    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"exchange_rate"`
	ReferenceNumber string          `gorm:"size:255;default:null" json:"reference_number"`
	Notes           string          `gorm:"type:text;default:null" json:"notes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoicePayment struct {
	InvoiceId       int             `json:"invoice_id"`
	PaymentDate     time.Time       `json:"payment_date" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
}

// CreateInvoicePayment applies a payment to an invoice. The payment row, the
// invoice's paid/remaining amounts and its status all change in one DB
// transaction, and the IVP outbox record rides in the same transaction.
func CreateInvoicePayment(ctx context.Context, input *NewInvoicePayment) (*InvoicePayment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if !input.Amount.IsPositive() {
		return nil, utils.NewValidationError("amount", "must be positive")
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, input.InvoiceId)
	if err != nil {
		return nil, err
	}
	switch invoice.CurrentStatus {
	case InvoiceStatusSent, InvoiceStatusPartialPaid:
	default:
		return nil, utils.NewInvalidStateError(string(invoice.CurrentStatus), "apply payment")
	}
	if input.Amount.GreaterThan(invoice.RemainingBalance) {
		return nil, utils.NewValidationError("amount", "exceeds remaining balance")
	}

	newPaid := invoice.InvoiceTotalPaidAmount.Add(input.Amount)
	newRemaining := AmountDue(invoice.InvoiceTotalAmount, newPaid)
	newStatus := PaymentDrivenInvoiceStatus(invoice.InvoiceTotalAmount, newPaid)

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	payment := InvoicePayment{
		BusinessId:      businessId,
		InvoiceId:       invoice.ID,
		CustomerId:      invoice.CustomerId,
		PaymentDate:     input.PaymentDate,
		Amount:          input.Amount,
		CurrencyId:      invoice.CurrencyId,
		ExchangeRate:    invoice.ExchangeRate,
		ReferenceNumber: input.ReferenceNumber,
		Notes:           input.Notes,
	}

	seqNo, err := utils.GetSequence[InvoicePayment](ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "InvoicePayment")
	if err != nil {
		return nil, err
	}
	payment.SequenceNo = decimal.NewFromInt(seqNo)
	payment.PaymentNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(&invoice).Updates(map[string]interface{}{
		"InvoiceTotalPaidAmount": newPaid,
		"RemainingBalance":       newRemaining,
		"CurrentStatus":          newStatus,
	}).Error; err != nil {
		return nil, err
	}

	err = PublishToPosting(ctx, tx, businessId, payment.PaymentDate, payment.ID, AccountReferenceTypeInvoicePayment, payment, nil, PubSubMessageActionCreate)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func GetInvoicePayment(ctx context.Context, id int) (*InvoicePayment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[InvoicePayment](ctx, businessId, id)
}

func GetInvoicePayments(ctx context.Context, invoiceId int) ([]*InvoicePayment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*InvoicePayment
	err := db.WithContext(ctx).
		Where("business_id = ? AND invoice_id = ?", businessId, invoiceId).
		Order("payment_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
