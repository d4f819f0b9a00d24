package models

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

func TestInvoiceStatusTransitions(t *testing.T) {
	all := []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartialPaid, InvoiceStatusPaid, InvoiceStatusVoid}

	allowed := map[InvoiceStatus][]InvoiceStatus{
		InvoiceStatusDraft:       {InvoiceStatusSent, InvoiceStatusVoid},
		InvoiceStatusSent:        {InvoiceStatusPartialPaid, InvoiceStatusPaid, InvoiceStatusVoid},
		InvoiceStatusPartialPaid: {InvoiceStatusPartialPaid, InvoiceStatusPaid, InvoiceStatusVoid},
		InvoiceStatusPaid:        {},
		InvoiceStatusVoid:        {},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestBillStatusTransitions(t *testing.T) {
	all := []BillStatus{BillStatusDraft, BillStatusPending, BillStatusApproved, BillStatusPartialPaid, BillStatusPaid, BillStatusVoid}

	allowed := map[BillStatus][]BillStatus{
		BillStatusDraft:       {BillStatusPending, BillStatusApproved, BillStatusVoid},
		BillStatusPending:     {BillStatusApproved, BillStatusVoid},
		BillStatusApproved:    {BillStatusPartialPaid, BillStatusPaid, BillStatusVoid},
		BillStatusPartialPaid: {BillStatusPartialPaid, BillStatusPaid, BillStatusVoid},
		BillStatusPaid:        {},
		BillStatusVoid:        {},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !InvoiceStatusPaid.IsTerminal() || !InvoiceStatusVoid.IsTerminal() {
		t.Error("Paid and Void invoices must be terminal")
	}
	if InvoiceStatusDraft.IsTerminal() || InvoiceStatusSent.IsTerminal() || InvoiceStatusPartialPaid.IsTerminal() {
		t.Error("Draft/Sent/Partial Paid invoices must not be terminal")
	}
	if !BillStatusPaid.IsTerminal() || !BillStatusVoid.IsTerminal() {
		t.Error("Paid and Void bills must be terminal")
	}
}

func TestEnsureEditable(t *testing.T) {
	if err := ensureInvoiceEditable(InvoiceStatusDraft, "update line items"); err != nil {
		t.Errorf("draft invoice must be editable, got %v", err)
	}
	for _, s := range []InvoiceStatus{InvoiceStatusSent, InvoiceStatusPartialPaid, InvoiceStatusPaid, InvoiceStatusVoid} {
		if err := ensureInvoiceEditable(s, "update line items"); err == nil {
			t.Errorf("%s invoice must not be editable", s)
		}
	}
	if err := ensureBillEditable(BillStatusApproved, "update line items"); err == nil {
		t.Error("approved bill must not be editable")
	}
}

func TestManualStatusRejectsPaymentStatuses(t *testing.T) {
	// The transition map allows Sent -> Paid so recorded payments can move a
	// document there, but the manual endpoint must never: a Sent invoice with
	// nothing paid would become terminal Paid while its full balance remains.
	for _, s := range []InvoiceStatus{InvoiceStatusPaid, InvoiceStatusPartialPaid} {
		err := ensureManualInvoiceStatus(s)
		if !utils.IsValidationError(err) {
			t.Errorf("manual invoice status %s: want validation error, got %v", s, err)
		}
	}
	for _, s := range []InvoiceStatus{InvoiceStatusSent, InvoiceStatusVoid} {
		if err := ensureManualInvoiceStatus(s); err != nil {
			t.Errorf("manual invoice status %s: want nil, got %v", s, err)
		}
	}
	for _, s := range []BillStatus{BillStatusPaid, BillStatusPartialPaid} {
		err := ensureManualBillStatus(s)
		if !utils.IsValidationError(err) {
			t.Errorf("manual bill status %s: want validation error, got %v", s, err)
		}
	}
	for _, s := range []BillStatus{BillStatusPending, BillStatusApproved, BillStatusVoid} {
		if err := ensureManualBillStatus(s); err != nil {
			t.Errorf("manual bill status %s: want nil, got %v", s, err)
		}
	}
}

func TestPaymentDrivenStatus(t *testing.T) {
	total := dec("100")

	if got := PaymentDrivenInvoiceStatus(total, dec("40")); got != InvoiceStatusPartialPaid {
		t.Errorf("partial payment: got %s", got)
	}
	if got := PaymentDrivenInvoiceStatus(total, dec("100")); got != InvoiceStatusPaid {
		t.Errorf("exact payment: got %s", got)
	}
	if got := PaymentDrivenInvoiceStatus(total, dec("150")); got != InvoiceStatusPaid {
		t.Errorf("overpayment: got %s", got)
	}
	if got := PaymentDrivenBillStatus(total, dec("99.99")); got != BillStatusPartialPaid {
		t.Errorf("bill one cent short: got %s", got)
	}
}

func TestDeriveDisplayStatus(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	if got := DeriveInvoiceDisplayStatus(InvoiceStatusSent, &past, now); got != DisplayStatusOverdue {
		t.Errorf("sent past due: got %s, want Overdue", got)
	}
	if got := DeriveInvoiceDisplayStatus(InvoiceStatusPartialPaid, &past, now); got != DisplayStatusOverdue {
		t.Errorf("partial paid past due: got %s, want Overdue", got)
	}
	if got := DeriveInvoiceDisplayStatus(InvoiceStatusSent, &future, now); got != string(InvoiceStatusSent) {
		t.Errorf("sent not yet due: got %s", got)
	}

	// Terminal and Draft documents never display Overdue.
	for _, s := range []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusPaid, InvoiceStatusVoid} {
		if got := DeriveInvoiceDisplayStatus(s, &past, now); got != string(s) {
			t.Errorf("%s past due: got %s, want %s", s, got, s)
		}
	}

	if got := DeriveInvoiceDisplayStatus(InvoiceStatusSent, nil, now); got != string(InvoiceStatusSent) {
		t.Errorf("nil due date: got %s", got)
	}

	if got := DeriveBillDisplayStatus(BillStatusApproved, &past, now); got != DisplayStatusOverdue {
		t.Errorf("approved bill past due: got %s, want Overdue", got)
	}
	if got := DeriveBillDisplayStatus(BillStatusVoid, &past, now); got != string(BillStatusVoid) {
		t.Errorf("void bill past due: got %s", got)
	}
}

func TestDueDateFromTerms(t *testing.T) {
	issue := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		terms      PaymentTerms
		customDays int
		want       time.Time
	}{
		{PaymentTermsNet15, 0, issue.AddDate(0, 0, 15)},
		{PaymentTermsNet30, 0, issue.AddDate(0, 0, 30)},
		{PaymentTermsNet60, 0, issue.AddDate(0, 0, 60)},
		{PaymentTermsDueOnReceipt, 0, issue},
		{PaymentTermsCustom, 45, issue.AddDate(0, 0, 45)},
		{PaymentTermsCustom, 0, issue},
	}
	for _, tc := range tests {
		if got := DueDateFromTerms(issue, tc.terms, tc.customDays); !got.Equal(tc.want) {
			t.Errorf("%s(%d) = %s, want %s", tc.terms, tc.customDays, got, tc.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseInvoiceStatus("Sent"); err != nil {
		t.Errorf("Sent must parse: %v", err)
	}
	if _, err := ParseInvoiceStatus("Overdue"); err == nil {
		t.Error("Overdue is a display projection and must not parse as a stored status")
	}
	if _, err := ParseBillStatus("Approved"); err != nil {
		t.Errorf("Approved must parse: %v", err)
	}
	if _, err := ParseBillStatus("approved"); err == nil {
		t.Error("statuses are case sensitive")
	}
}
