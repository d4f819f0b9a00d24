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

type BillPayment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	BillId          int             `gorm:"index;not null" json:"bill_id" binding:"required"`
	SupplierId      int             `gorm:"index;not null" json:"supplier_id"`
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

type NewBillPayment struct {
	BillId          int             `json:"bill_id"`
	PaymentDate     time.Time       `json:"payment_date" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
}

func CreateBillPayment(ctx context.Context, input *NewBillPayment) (*BillPayment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if !input.Amount.IsPositive() {
		return nil, utils.NewValidationError("amount", "must be positive")
	}

	bill, err := utils.FetchModel[Bill](ctx, businessId, input.BillId)
	if err != nil {
		return nil, err
	}
	switch bill.CurrentStatus {
	case BillStatusApproved, BillStatusPartialPaid:
	default:
		return nil, utils.NewInvalidStateError(string(bill.CurrentStatus), "apply payment")
	}
	if input.Amount.GreaterThan(bill.RemainingBalance) {
		return nil, utils.NewValidationError("amount", "exceeds remaining balance")
	}

	newPaid := bill.BillTotalPaidAmount.Add(input.Amount)
	newRemaining := AmountDue(bill.BillTotalAmount, newPaid)
	newStatus := PaymentDrivenBillStatus(bill.BillTotalAmount, newPaid)

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	payment := BillPayment{
		BusinessId:      businessId,
		BillId:          bill.ID,
		SupplierId:      bill.SupplierId,
		PaymentDate:     input.PaymentDate,
		Amount:          input.Amount,
		CurrencyId:      bill.CurrencyId,
		ExchangeRate:    bill.ExchangeRate,
		ReferenceNumber: input.ReferenceNumber,
		Notes:           input.Notes,
	}

	seqNo, err := utils.GetSequence[BillPayment](ctx, businessId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, businessId, "BillPayment")
	if err != nil {
		return nil, err
	}
	payment.SequenceNo = decimal.NewFromInt(seqNo)
	payment.PaymentNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(&bill).Updates(map[string]interface{}{
		"BillTotalPaidAmount": newPaid,
		"RemainingBalance":    newRemaining,
		"CurrentStatus":       newStatus,
	}).Error; err != nil {
		return nil, err
	}

	err = PublishToPosting(ctx, tx, businessId, payment.PaymentDate, payment.ID, AccountReferenceTypeBillPayment, payment, nil, PubSubMessageActionCreate)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func GetBillPayment(ctx context.Context, id int) (*BillPayment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[BillPayment](ctx, businessId, id)
}

func GetBillPayments(ctx context.Context, billId int) ([]*BillPayment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*BillPayment
	err := db.WithContext(ctx).
		Where("business_id = ? AND bill_id = ?", businessId, billId).
		Order("payment_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
