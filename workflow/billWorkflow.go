package workflow

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func ProcessBillWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	business, err := models.GetBusinessById2(tx, msg.BusinessId)
	if err != nil {
		config.LogError(logger, "billWorkflow.go", "ProcessBillWorkflow", "GetBusiness", msg.BusinessId, err)
		return err
	}

	if msg.Action == string(models.PubSubMessageActionCreate) {
		var bill models.Bill
		if err := json.Unmarshal(msg.NewObj, &bill); err != nil {
			config.LogError(logger, "billWorkflow.go", "ProcessBillWorkflow > Create", "Unmarshal msg.NewObj", msg.NewObj, err)
			return err
		}
		result, err := PostBill(tx, logger, msg.BusinessId, *business, bill)
		if err != nil {
			config.LogError(logger, "billWorkflow.go", "ProcessBillWorkflow > Create", "PostBill", bill.ID, err)
			return err
		}
		if result.AlreadyPosted {
			logger.WithFields(logrus.Fields{
				"business_id": msg.BusinessId,
				"bill_id":     bill.ID,
			}).Info("bill already posted, skipping")
		}
	} else if msg.Action == string(models.PubSubMessageActionDelete) {
		var oldBill models.Bill
		if err := json.Unmarshal(msg.OldObj, &oldBill); err != nil {
			config.LogError(logger, "billWorkflow.go", "ProcessBillWorkflow > Delete", "Unmarshal msg.OldObj", msg.OldObj, err)
			return err
		}
		if err := UnpostBill(tx, logger, msg.BusinessId, oldBill); err != nil {
			config.LogError(logger, "billWorkflow.go", "ProcessBillWorkflow > Delete", "UnpostBill", oldBill.ID, err)
			return err
		}
	}

	return models.MarkOutboxProcessed(tx, msg.ID)
}

// PostBill writes the bill journal:
//
//	debit  Purchases         subtotal
//	debit  Tax Receivable    tax
//	credit Accounts Payable  total
func PostBill(tx *gorm.DB, logger *logrus.Logger, businessId string, business models.Business, bill models.Bill) (*models.PostResult, error) {
	alreadyPosted, err := models.MarkBillPosted(tx, businessId, bill.ID)
	if err != nil {
		return nil, err
	}
	if alreadyPosted {
		return &models.PostResult{Success: true, AlreadyPosted: true}, nil
	}

	accounts, err := models.GetSystemAccounts(tx, businessId)
	if err != nil {
		return nil, err
	}

	rate := bill.ExchangeRate
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}

	journal := models.AccountJournal{
		BusinessId:          businessId,
		TransactionDateTime: bill.BillDate,
		TransactionNumber:   bill.BillNumber,
		TransactionDetails:  "Bill " + bill.BillNumber,
		ReferenceNumber:     bill.ReferenceNumber,
		SupplierId:          bill.SupplierId,
		ReferenceId:         bill.ID,
		ReferenceType:       models.AccountReferenceTypeBill,
	}

	transactions := []models.AccountTransaction{
		{
			BusinessId:          businessId,
			AccountId:           accounts[models.AccountCodePurchases],
			TransactionDateTime: bill.BillDate,
			Description:         "Bill " + bill.BillNumber,
			BaseCurrencyId:      business.BaseCurrencyId,
			BaseDebit:           bill.BillSubtotal.Mul(rate),
			ForeignCurrencyId:   bill.CurrencyId,
			ForeignDebit:        bill.BillSubtotal,
			ExchangeRate:        rate,
		},
		{
			BusinessId:          businessId,
			AccountId:           accounts[models.AccountCodeAccountsPayable],
			TransactionDateTime: bill.BillDate,
			Description:         "Bill " + bill.BillNumber,
			BaseCurrencyId:      business.BaseCurrencyId,
			BaseCredit:          bill.BillTotalAmount.Mul(rate),
			ForeignCurrencyId:   bill.CurrencyId,
			ForeignCredit:       bill.BillTotalAmount,
			ExchangeRate:        rate,
		},
	}
	if !bill.BillTotalTaxAmount.IsZero() {
		transactions = append(transactions, models.AccountTransaction{
			BusinessId:          businessId,
			AccountId:           accounts[models.AccountCodeTaxReceivable],
			TransactionDateTime: bill.BillDate,
			Description:         "Bill " + bill.BillNumber + " tax",
			BaseCurrencyId:      business.BaseCurrencyId,
			BaseDebit:           bill.BillTotalTaxAmount.Mul(rate),
			ForeignCurrencyId:   bill.CurrencyId,
			ForeignDebit:        bill.BillTotalTaxAmount,
			ExchangeRate:        rate,
		})
	}
	journal.AccountTransactions = transactions

	if err := tx.Create(&journal).Error; err != nil {
		return nil, err
	}

	return &models.PostResult{Success: true, JournalId: journal.ID}, nil
}

func UnpostBill(tx *gorm.DB, logger *logrus.Logger, businessId string, bill models.Bill) error {
	journal, err := models.GetActiveJournal(context.Background(), tx, businessId, models.AccountReferenceTypeBill, bill.ID)
	if err != nil {
		return err
	}
	if _, err := ReverseAccountJournal(tx, journal, "Bill "+bill.BillNumber+" voided"); err != nil {
		return err
	}
	_, err = models.MarkBillUnposted(tx, businessId, bill.ID)
	return err
}
