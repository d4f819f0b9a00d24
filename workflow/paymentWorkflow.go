package workflow

import (
	"encoding/json"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Payments are never voided in place, so the payment workflows only handle the
// create action:
//
//	invoice payment:  debit Cash, credit Accounts Receivable
//	bill payment:     debit Accounts Payable, credit Cash

func ProcessInvoicePaymentWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	business, err := models.GetBusinessById2(tx, msg.BusinessId)
	if err != nil {
		config.LogError(logger, "paymentWorkflow.go", "ProcessInvoicePaymentWorkflow", "GetBusiness", msg.BusinessId, err)
		return err
	}

	if msg.Action == string(models.PubSubMessageActionCreate) {
		var payment models.InvoicePayment
		if err := json.Unmarshal(msg.NewObj, &payment); err != nil {
			config.LogError(logger, "paymentWorkflow.go", "ProcessInvoicePaymentWorkflow > Create", "Unmarshal msg.NewObj", msg.NewObj, err)
			return err
		}

		accounts, err := models.GetSystemAccounts(tx, msg.BusinessId)
		if err != nil {
			config.LogError(logger, "paymentWorkflow.go", "ProcessInvoicePaymentWorkflow > Create", "GetSystemAccounts", msg.BusinessId, err)
			return err
		}

		rate := payment.ExchangeRate
		if !rate.IsPositive() {
			rate = decimal.NewFromInt(1)
		}

		journal := models.AccountJournal{
			BusinessId:          msg.BusinessId,
			TransactionDateTime: payment.PaymentDate,
			TransactionNumber:   payment.PaymentNumber,
			TransactionDetails:  "Invoice payment " + payment.PaymentNumber,
			ReferenceNumber:     payment.ReferenceNumber,
			CustomerId:          payment.CustomerId,
			ReferenceId:         payment.ID,
			ReferenceType:       models.AccountReferenceTypeInvoicePayment,
			AccountTransactions: []models.AccountTransaction{
				{
					BusinessId:          msg.BusinessId,
					AccountId:           accounts[models.AccountCodeCash],
					TransactionDateTime: payment.PaymentDate,
					Description:         "Invoice payment " + payment.PaymentNumber,
					BaseCurrencyId:      business.BaseCurrencyId,
					BaseDebit:           payment.Amount.Mul(rate),
					ForeignCurrencyId:   payment.CurrencyId,
					ForeignDebit:        payment.Amount,
					ExchangeRate:        rate,
				},
				{
					BusinessId:          msg.BusinessId,
					AccountId:           accounts[models.AccountCodeAccountsReceivable],
					TransactionDateTime: payment.PaymentDate,
					Description:         "Invoice payment " + payment.PaymentNumber,
					BaseCurrencyId:      business.BaseCurrencyId,
					BaseCredit:          payment.Amount.Mul(rate),
					ForeignCurrencyId:   payment.CurrencyId,
					ForeignCredit:       payment.Amount,
					ExchangeRate:        rate,
				},
			},
		}

		if err := tx.Create(&journal).Error; err != nil {
			config.LogError(logger, "paymentWorkflow.go", "ProcessInvoicePaymentWorkflow > Create", "Create journal", payment.ID, err)
			return err
		}
	}

	return models.MarkOutboxProcessed(tx, msg.ID)
}

func ProcessBillPaymentWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	business, err := models.GetBusinessById2(tx, msg.BusinessId)
	if err != nil {
		config.LogError(logger, "paymentWorkflow.go", "ProcessBillPaymentWorkflow", "GetBusiness", msg.BusinessId, err)
		return err
	}

	if msg.Action == string(models.PubSubMessageActionCreate) {
		var payment models.BillPayment
		if err := json.Unmarshal(msg.NewObj, &payment); err != nil {
			config.LogError(logger, "paymentWorkflow.go", "ProcessBillPaymentWorkflow > Create", "Unmarshal msg.NewObj", msg.NewObj, err)
			return err
		}

		accounts, err := models.GetSystemAccounts(tx, msg.BusinessId)
		if err != nil {
			config.LogError(logger, "paymentWorkflow.go", "ProcessBillPaymentWorkflow > Create", "GetSystemAccounts", msg.BusinessId, err)
			return err
		}

		rate := payment.ExchangeRate
		if !rate.IsPositive() {
			rate = decimal.NewFromInt(1)
		}

		journal := models.AccountJournal{
			BusinessId:          msg.BusinessId,
			TransactionDateTime: payment.PaymentDate,
			TransactionNumber:   payment.PaymentNumber,
			TransactionDetails:  "Bill payment " + payment.PaymentNumber,
			ReferenceNumber:     payment.ReferenceNumber,
			SupplierId:          payment.SupplierId,
			ReferenceId:         payment.ID,
			ReferenceType:       models.AccountReferenceTypeBillPayment,
			AccountTransactions: []models.AccountTransaction{
				{
					BusinessId:          msg.BusinessId,
					AccountId:           accounts[models.AccountCodeAccountsPayable],
					TransactionDateTime: payment.PaymentDate,
					Description:         "Bill payment " + payment.PaymentNumber,
					BaseCurrencyId:      business.BaseCurrencyId,
					BaseDebit:           payment.Amount.Mul(rate),
					ForeignCurrencyId:   payment.CurrencyId,
					ForeignDebit:        payment.Amount,
					ExchangeRate:        rate,
				},
				{
					BusinessId:          msg.BusinessId,
					AccountId:           accounts[models.AccountCodeCash],
					TransactionDateTime: payment.PaymentDate,
					Description:         "Bill payment " + payment.PaymentNumber,
					BaseCurrencyId:      business.BaseCurrencyId,
					BaseCredit:          payment.Amount.Mul(rate),
					ForeignCurrencyId:   payment.CurrencyId,
					ForeignCredit:       payment.Amount,
					ExchangeRate:        rate,
				},
			},
		}

		if err := tx.Create(&journal).Error; err != nil {
			config.LogError(logger, "paymentWorkflow.go", "ProcessBillPaymentWorkflow > Create", "Create journal", payment.ID, err)
			return err
		}
	}

	return models.MarkOutboxProcessed(tx, msg.ID)
}
