package models

import (
	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Currency{}, &Account{}, &Tax{},
		&Customer{}, &Supplier{}, &User{},
		&TransactionNumberSeries{},
		&Invoice{}, &InvoiceDetail{}, &InvoiceTaxLine{},
		&Bill{}, &BillDetail{}, &BillTaxLine{},
		&InvoicePayment{}, &BillPayment{},
		&AccountJournal{}, &AccountTransaction{},
		&PostingOutboxRecord{}, &IdempotencyKey{},
	)
	utils.ErrorPanic(err)
}
