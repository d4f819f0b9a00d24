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

func ProcessInvoiceWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	business, err := models.GetBusinessById2(tx, msg.BusinessId)
	if err != nil {
		config.LogError(logger, "invoiceWorkflow.go", "ProcessInvoiceWorkflow", "GetBusiness", msg.BusinessId, err)
		return err
	}

	if msg.Action == string(models.PubSubMessageActionCreate) {
		var invoice models.Invoice
		if err := json.Unmarshal(msg.NewObj, &invoice); err != nil {
			config.LogError(logger, "invoiceWorkflow.go", "ProcessInvoiceWorkflow > Create", "Unmarshal msg.NewObj", msg.NewObj, err)
			return err
		}
		result, err := PostInvoice(tx, logger, msg.BusinessId, *business, invoice)
		if err != nil {
			config.LogError(logger, "invoiceWorkflow.go", "ProcessInvoiceWorkflow > Create", "PostInvoice", invoice.ID, err)
			return err
		}
		if result.AlreadyPosted {
			logger.WithFields(logrus.Fields{
				"business_id": msg.BusinessId,
				"invoice_id":  invoice.ID,
			}).Info("invoice already posted, skipping")
		}
	} else if msg.Action == string(models.PubSubMessageActionDelete) {
		var oldInvoice models.Invoice
		if err := json.Unmarshal(msg.OldObj, &oldInvoice); err != nil {
			config.LogError(logger, "invoiceWorkflow.go", "ProcessInvoiceWorkflow > Delete", "Unmarshal msg.OldObj", msg.OldObj, err)
			return err
		}
		if err := UnpostInvoice(tx, logger, msg.BusinessId, oldInvoice); err != nil {
			config.LogError(logger, "invoiceWorkflow.go", "ProcessInvoiceWorkflow > Delete", "UnpostInvoice", oldInvoice.ID, err)
			return err
		}
	}

	return models.MarkOutboxProcessed(tx, msg.ID)
}

// PostInvoice writes the invoice journal:
//
//	debit  Accounts Receivable  total
//	credit Sales                subtotal
//	credit Tax Payable          tax
//
// The posted flag is flipped with a conditional update first, so a duplicate
// delivery or concurrent worker finds the flag already set and exits without
// writing a second journal.
func PostInvoice(tx *gorm.DB, logger *logrus.Logger, businessId string, business models.Business, invoice models.Invoice) (*models.PostResult, error) {
	alreadyPosted, err := models.MarkInvoicePosted(tx, businessId, invoice.ID)
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

	rate := invoice.ExchangeRate
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}

	journal := models.AccountJournal{
		BusinessId:          businessId,
		TransactionDateTime: invoice.InvoiceDate,
		TransactionNumber:   invoice.InvoiceNumber,
		TransactionDetails:  "Invoice " + invoice.InvoiceNumber,
		ReferenceNumber:     invoice.ReferenceNumber,
		CustomerId:          invoice.CustomerId,
		ReferenceId:         invoice.ID,
		ReferenceType:       models.AccountReferenceTypeInvoice,
	}

	transactions := []models.AccountTransaction{
		{
			BusinessId:          businessId,
			AccountId:           accounts[models.AccountCodeAccountsReceivable],
			TransactionDateTime: invoice.InvoiceDate,
			Description:         "Invoice " + invoice.InvoiceNumber,
			BaseCurrencyId:      business.BaseCurrencyId,
			BaseDebit:           invoice.InvoiceTotalAmount.Mul(rate),
			ForeignCurrencyId:   invoice.CurrencyId,
			ForeignDebit:        invoice.InvoiceTotalAmount,
			ExchangeRate:        rate,
		},
		{
			BusinessId:          businessId,
			AccountId:           accounts[models.AccountCodeSales],
			TransactionDateTime: invoice.InvoiceDate,
			Description:         "Invoice " + invoice.InvoiceNumber,
			BaseCurrencyId:      business.BaseCurrencyId,
			BaseCredit:          invoice.InvoiceSubtotal.Mul(rate),
			ForeignCurrencyId:   invoice.CurrencyId,
			ForeignCredit:       invoice.InvoiceSubtotal,
			ExchangeRate:        rate,
		},
	}
	if !invoice.InvoiceTotalTaxAmount.IsZero() {
		transactions = append(transactions, models.AccountTransaction{
			BusinessId:          businessId,
			AccountId:           accounts[models.AccountCodeTaxPayable],
			TransactionDateTime: invoice.InvoiceDate,
			Description:         "Invoice " + invoice.InvoiceNumber + " tax",
			BaseCurrencyId:      business.BaseCurrencyId,
			BaseCredit:          invoice.InvoiceTotalTaxAmount.Mul(rate),
			ForeignCurrencyId:   invoice.CurrencyId,
			ForeignCredit:       invoice.InvoiceTotalTaxAmount,
			ExchangeRate:        rate,
		})
	}
	journal.AccountTransactions = transactions

	if err := tx.Create(&journal).Error; err != nil {
		return nil, err
	}

	return &models.PostResult{Success: true, JournalId: journal.ID}, nil
}

// UnpostInvoice reverses the invoice's active journal when a posted invoice
// is voided. Reversal is idempotent: an already-reversed journal is left
// alone.
func UnpostInvoice(tx *gorm.DB, logger *logrus.Logger, businessId string, invoice models.Invoice) error {
	journal, err := models.GetActiveJournal(context.Background(), tx, businessId, models.AccountReferenceTypeInvoice, invoice.ID)
	if err != nil {
		return err
	}
	if _, err := ReverseAccountJournal(tx, journal, "Invoice "+invoice.InvoiceNumber+" voided"); err != nil {
		return err
	}
	_, err = models.MarkInvoiceUnposted(tx, businessId, invoice.ID)
	return err
}
