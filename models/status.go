package models

import (
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

// Posting state machines. Paid and Void are terminal; Overdue is never a
// stored state (derived at read time so it can't go stale).

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:       {InvoiceStatusSent, InvoiceStatusVoid},
	InvoiceStatusSent:        {InvoiceStatusPartialPaid, InvoiceStatusPaid, InvoiceStatusVoid},
	InvoiceStatusPartialPaid: {InvoiceStatusPartialPaid, InvoiceStatusPaid, InvoiceStatusVoid},
	InvoiceStatusPaid:        {},
	InvoiceStatusVoid:        {},
}

var billTransitions = map[BillStatus][]BillStatus{
	BillStatusDraft:       {BillStatusPending, BillStatusApproved, BillStatusVoid},
	BillStatusPending:     {BillStatusApproved, BillStatusVoid},
	BillStatusApproved:    {BillStatusPartialPaid, BillStatusPaid, BillStatusVoid},
	BillStatusPartialPaid: {BillStatusPartialPaid, BillStatusPaid, BillStatusVoid},
	BillStatusPaid:        {},
	BillStatusVoid:        {},
}

func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

func (s BillStatus) CanTransitionTo(next BillStatus) bool {
	for _, allowed := range billTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BillStatus) IsTerminal() bool {
	return s == BillStatusPaid || s == BillStatusVoid
}

// PaymentDrivenInvoiceStatus resolves the status a payment application lands
// on: Paid once paid covers total, Partial Paid while something is owed.
func PaymentDrivenInvoiceStatus(total decimal.Decimal, paid decimal.Decimal) InvoiceStatus {
	if paid.Cmp(total) >= 0 {
		return InvoiceStatusPaid
	}
	return InvoiceStatusPartialPaid
}

func PaymentDrivenBillStatus(total decimal.Decimal, paid decimal.Decimal) BillStatus {
	if paid.Cmp(total) >= 0 {
		return BillStatusPaid
	}
	return BillStatusPartialPaid
}

// DeriveInvoiceDisplayStatus projects Overdue at read time. Persisting
// Overdue would go stale the moment a due date passes without a write, so
// the stored status is left untouched.
func DeriveInvoiceDisplayStatus(status InvoiceStatus, dueDate *time.Time, now time.Time) string {
	if status.IsTerminal() || status == InvoiceStatusDraft {
		return string(status)
	}
	if dueDate != nil && dueDate.Before(now) {
		return DisplayStatusOverdue
	}
	return string(status)
}

func DeriveBillDisplayStatus(status BillStatus, dueDate *time.Time, now time.Time) string {
	if status.IsTerminal() || status == BillStatusDraft {
		return string(status)
	}
	if dueDate != nil && dueDate.Before(now) {
		return DisplayStatusOverdue
	}
	return string(status)
}

// DueDateFromTerms resolves a document due date from its payment terms.
func DueDateFromTerms(issueDate time.Time, terms PaymentTerms, customDays int) time.Time {
	switch terms {
	case PaymentTermsNet15:
		return issueDate.AddDate(0, 0, 15)
	case PaymentTermsNet30:
		return issueDate.AddDate(0, 0, 30)
	case PaymentTermsNet60:
		return issueDate.AddDate(0, 0, 60)
	case PaymentTermsCustom:
		return issueDate.AddDate(0, 0, customDays)
	default:
		return issueDate
	}
}

// Paid and Partial Paid are derived from recorded payments; the manual status
// endpoint must not set them, or a document with nothing paid could land in a
// terminal Paid state.
func ensureManualInvoiceStatus(next InvoiceStatus) error {
	switch next {
	case InvoiceStatusPaid, InvoiceStatusPartialPaid:
		return utils.NewValidationError("status", "payment statuses are set by recording payments")
	}
	return nil
}

func ensureManualBillStatus(next BillStatus) error {
	switch next {
	case BillStatusPaid, BillStatusPartialPaid:
		return utils.NewValidationError("status", "payment statuses are set by recording payments")
	}
	return nil
}

func ensureInvoiceEditable(status InvoiceStatus, attempted string) error {
	if status != InvoiceStatusDraft {
		return utils.NewInvalidStateError(string(status), attempted)
	}
	return nil
}

func ensureBillEditable(status BillStatus, attempted string) error {
	if status != BillStatusDraft {
		return utils.NewInvalidStateError(string(status), attempted)
	}
	return nil
}
