package models

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func line(qty, rate string) LineItemInput {
	return LineItemInput{DetailQty: dec(qty), UnitRate: dec(rate)}
}

func taxLine(name, pct string) TaxLineInput {
	return TaxLineInput{TaxName: name, TaxPercentage: dec(pct)}
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []LineItemInput
		taxes    []TaxLineInput
		subtotal string
		tax      string
		total    string
	}{
		{
			name:     "two lines no tax",
			items:    []LineItemInput{line("2", "5000"), line("1", "10000")},
			subtotal: "20000",
			tax:      "0",
			total:    "20000",
		},
		{
			name:     "single tax",
			items:    []LineItemInput{line("1", "100000")},
			taxes:    []TaxLineInput{taxLine("Commercial Tax", "7.5")},
			subtotal: "100000",
			tax:      "7500",
			total:    "107500",
		},
		{
			name:     "two taxes off the same subtotal",
			items:    []LineItemInput{line("10", "1000")},
			taxes:    []TaxLineInput{taxLine("Commercial Tax", "7.5"), taxLine("Service Tax", "2.5")},
			subtotal: "10000",
			tax:      "1000",
			total:    "11000",
		},
		{
			// 3 x 33.33 = 99.99; 7.5% of 99.99 = 7.49925, rounds to 7.50.
			name:     "fractional amounts round once",
			items:    []LineItemInput{line("3", "33.33")},
			taxes:    []TaxLineInput{taxLine("Commercial Tax", "7.5")},
			subtotal: "99.99",
			tax:      "7.5",
			total:    "107.49",
		},
		{
			name:     "zero quantity line contributes nothing",
			items:    []LineItemInput{line("0", "500"), line("1", "500")},
			subtotal: "500",
			tax:      "0",
			total:    "500",
		},
		{
			name:     "empty document",
			items:    nil,
			subtotal: "0",
			tax:      "0",
			total:    "0",
		},
		{
			name:     "zero percent tax",
			items:    []LineItemInput{line("1", "1000")},
			taxes:    []TaxLineInput{taxLine("Exempt", "0")},
			subtotal: "1000",
			tax:      "0",
			total:    "1000",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeTotals(tc.items, tc.taxes)
			if err != nil {
				t.Fatalf("ComputeTotals: %v", err)
			}
			if !got.Subtotal.Equal(dec(tc.subtotal)) {
				t.Errorf("subtotal = %s, want %s", got.Subtotal, tc.subtotal)
			}
			if !got.TaxAmount.Equal(dec(tc.tax)) {
				t.Errorf("tax = %s, want %s", got.TaxAmount, tc.tax)
			}
			if !got.Total.Equal(dec(tc.total)) {
				t.Errorf("total = %s, want %s", got.Total, tc.total)
			}
		})
	}
}

func TestComputeTotals_TaxAggregateRoundedOnce(t *testing.T) {
	// Each tax alone yields 0.005 -> rounds to 0.01 per line (0.02 summed),
	// but the aggregate 0.01 rounds to 0.01. The aggregate policy wins.
	items := []LineItemInput{line("1", "1")}
	taxes := []TaxLineInput{taxLine("A", "0.5"), taxLine("B", "0.5")}

	got, err := ComputeTotals(items, taxes)
	if err != nil {
		t.Fatalf("ComputeTotals: %v", err)
	}
	if !got.TaxAmount.Equal(dec("0.01")) {
		t.Errorf("tax = %s, want 0.01 (aggregate rounded once)", got.TaxAmount)
	}
}

func TestComputeTotals_Deterministic(t *testing.T) {
	items := []LineItemInput{line("3", "33.33"), line("7", "19.99")}
	taxes := []TaxLineInput{taxLine("Commercial Tax", "7.5")}

	first, err := ComputeTotals(items, taxes)
	if err != nil {
		t.Fatalf("ComputeTotals: %v", err)
	}
	for i := 0; i < 100; i++ {
		again, err := ComputeTotals(items, taxes)
		if err != nil {
			t.Fatalf("ComputeTotals: %v", err)
		}
		if !again.Subtotal.Equal(first.Subtotal) || !again.TaxAmount.Equal(first.TaxAmount) || !again.Total.Equal(first.Total) {
			t.Fatalf("run %d: totals changed: %+v vs %+v", i, again, first)
		}
	}
}

func TestComputeTotals_LineOrderIrrelevant(t *testing.T) {
	a := []LineItemInput{line("3", "33.33"), line("1", "0.01"), line("2", "99.99")}
	b := []LineItemInput{line("2", "99.99"), line("3", "33.33"), line("1", "0.01")}
	taxes := []TaxLineInput{taxLine("Commercial Tax", "7.5")}

	ta, err := ComputeTotals(a, taxes)
	if err != nil {
		t.Fatalf("ComputeTotals(a): %v", err)
	}
	tb, err := ComputeTotals(b, taxes)
	if err != nil {
		t.Fatalf("ComputeTotals(b): %v", err)
	}
	if !ta.Total.Equal(tb.Total) || !ta.TaxAmount.Equal(tb.TaxAmount) {
		t.Errorf("totals depend on line order: %+v vs %+v", ta, tb)
	}
}

func TestNormalizeLineItems_RejectsNegatives(t *testing.T) {
	_, err := NormalizeLineItems([]LineItemInput{line("1", "100"), line("-2", "50")})
	var ve *utils.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Index != 1 || ve.Field != "detail_qty" {
		t.Errorf("got field=%s index=%d, want detail_qty index=1", ve.Field, ve.Index)
	}

	_, err = NormalizeLineItems([]LineItemInput{line("1", "-0.01")})
	if !utils.IsValidationError(err) {
		t.Fatalf("expected ValidationError for negative rate, got %v", err)
	}
}

func TestAggregateTaxes_RejectsPercentageOutOfRange(t *testing.T) {
	for _, pct := range []string{"-1", "100.01", "250"} {
		_, _, err := AggregateTaxes(dec("1000"), []TaxLineInput{taxLine("Bad", pct)})
		if !utils.IsValidationError(err) {
			t.Errorf("pct=%s: expected ValidationError, got %v", pct, err)
		}
	}

	// Boundary values are valid.
	for _, pct := range []string{"0", "100"} {
		if _, _, err := AggregateTaxes(dec("1000"), []TaxLineInput{taxLine("Edge", pct)}); err != nil {
			t.Errorf("pct=%s: unexpected error %v", pct, err)
		}
	}
}

func TestAmountDue(t *testing.T) {
	if got := AmountDue(dec("100"), dec("40")); !got.Equal(dec("60")) {
		t.Errorf("AmountDue = %s, want 60", got)
	}
	// Overpayment stays negative in storage but displays as zero.
	if got := AmountDue(dec("100"), dec("120")); !got.Equal(dec("-20")) {
		t.Errorf("AmountDue = %s, want -20", got)
	}
	if got := DisplayAmountDue(dec("100"), dec("120")); !got.Equal(decimal.Zero) {
		t.Errorf("DisplayAmountDue = %s, want 0", got)
	}
}
