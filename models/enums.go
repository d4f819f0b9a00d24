package models

import "errors"

type InvoiceStatus string

const (
	InvoiceStatusDraft       InvoiceStatus = "Draft"
	InvoiceStatusSent        InvoiceStatus = "Sent"
	InvoiceStatusPartialPaid InvoiceStatus = "Partial Paid"
	InvoiceStatusPaid        InvoiceStatus = "Paid"
	InvoiceStatusVoid        InvoiceStatus = "Void"
)

func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch InvoiceStatus(s) {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartialPaid, InvoiceStatusPaid, InvoiceStatusVoid:
		return InvoiceStatus(s), nil
	}
	return "", errors.New("unknown invoice status: " + s)
}

type BillStatus string

const (
	BillStatusDraft       BillStatus = "Draft"
	BillStatusPending     BillStatus = "Pending"
	BillStatusApproved    BillStatus = "Approved"
	BillStatusPartialPaid BillStatus = "Partial Paid"
	BillStatusPaid        BillStatus = "Paid"
	BillStatusVoid        BillStatus = "Void"
)

func ParseBillStatus(s string) (BillStatus, error) {
	switch BillStatus(s) {
	case BillStatusDraft, BillStatusPending, BillStatusApproved, BillStatusPartialPaid, BillStatusPaid, BillStatusVoid:
		return BillStatus(s), nil
	}
	return "", errors.New("unknown bill status: " + s)
}

// DisplayStatusOverdue is a read-time projection, never persisted.
// See DeriveInvoiceDisplayStatus / DeriveBillDisplayStatus.
const DisplayStatusOverdue = "Overdue"

type PaymentTerms string

const (
	PaymentTermsNet15        PaymentTerms = "Net15"
	PaymentTermsNet30        PaymentTerms = "Net30"
	PaymentTermsNet60        PaymentTerms = "Net60"
	PaymentTermsDueOnReceipt PaymentTerms = "DueOnReceipt"
	PaymentTermsCustom       PaymentTerms = "Custom"
)

type AccountReferenceType string

const (
	AccountReferenceTypeInvoice         AccountReferenceType = "IV"
	AccountReferenceTypeBill            AccountReferenceType = "BL"
	AccountReferenceTypeInvoicePayment  AccountReferenceType = "IVP"
	AccountReferenceTypeBillPayment     AccountReferenceType = "BLP"
)

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "C"
	PubSubMessageActionDelete PubSubMessageAction = "D"
)

type AccountType string

const (
	AccountTypeAsset     AccountType = "Asset"
	AccountTypeLiability AccountType = "Liability"
	AccountTypeIncome    AccountType = "Income"
	AccountTypeExpense   AccountType = "Expense"
)
