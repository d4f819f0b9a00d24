package models

import (
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

// Pure document amount engine. No DB access here: invoice/bill code calls
// into these before persisting, and the workflow re-derives nothing (posted
// documents carry their stored totals).

type LineItemInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	DetailQty   decimal.Decimal `json:"detail_qty"`
	UnitRate    decimal.Decimal `json:"unit_rate"`
}

type TaxLineInput struct {
	TaxName       string          `json:"tax_name"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
}

type DocumentTotals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
}

var decimalOneHundred = decimal.NewFromInt(100)

// round2 is the single rounding policy for currency amounts: half-up to
// 2 decimal places. Applying it twice never moves a value (idempotent).
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NormalizeLineItems derives amount = qty x unit rate for each line without
// mutating the input. Negative quantities or rates are rejected, never
// clamped.
func NormalizeLineItems(items []LineItemInput) ([]decimal.Decimal, error) {
	amounts := make([]decimal.Decimal, 0, len(items))
	for i, item := range items {
		if item.DetailQty.IsNegative() {
			return nil, utils.NewValidationErrorAt("detail_qty", i, "must not be negative")
		}
		if item.UnitRate.IsNegative() {
			return nil, utils.NewValidationErrorAt("unit_rate", i, "must not be negative")
		}
		amounts = append(amounts, item.DetailQty.Mul(item.UnitRate))
	}
	return amounts, nil
}

// AggregateTaxes computes each tax amount = subtotal x pct / 100 off the
// untaxed subtotal. Taxes are independent of each other: no compounding, no
// ordering dependency. Returns per-line amounts plus the unrounded aggregate.
func AggregateTaxes(subtotal decimal.Decimal, taxes []TaxLineInput) ([]decimal.Decimal, decimal.Decimal, error) {
	amounts := make([]decimal.Decimal, 0, len(taxes))
	aggregate := decimal.Zero
	for i, t := range taxes {
		if t.TaxPercentage.IsNegative() || t.TaxPercentage.GreaterThan(decimalOneHundred) {
			return nil, decimal.Zero, utils.NewValidationErrorAt("tax_percentage", i, "must be within [0, 100]")
		}
		amount := subtotal.Mul(t.TaxPercentage).Div(decimalOneHundred)
		amounts = append(amounts, amount)
		aggregate = aggregate.Add(amount)
	}
	return amounts, aggregate, nil
}

// ComputeTotals derives subtotal / tax / total for a document.
//
// Rounding policy: subtotal is rounded once after summing line amounts; the
// tax aggregate is rounded once after summing per-tax amounts (NOT per tax
// line; multi-tax documents can differ by a cent between the two policies).
// Totals are fully derived from input, so calling twice on identical input
// yields identical output. No partial result is ever returned.
func ComputeTotals(items []LineItemInput, taxes []TaxLineInput) (DocumentTotals, error) {
	lineAmounts, err := NormalizeLineItems(items)
	if err != nil {
		return DocumentTotals{}, err
	}

	subtotal := decimal.Zero
	for _, amount := range lineAmounts {
		subtotal = subtotal.Add(amount)
	}
	subtotal = round2(subtotal)

	_, taxAggregate, err := AggregateTaxes(subtotal, taxes)
	if err != nil {
		return DocumentTotals{}, err
	}
	taxAmount := round2(taxAggregate)

	return DocumentTotals{
		Subtotal:  subtotal,
		TaxAmount: taxAmount,
		Total:     round2(subtotal.Add(taxAmount)),
	}, nil
}

// AmountDue is total minus paid. The stored value may go negative when a
// document is overpaid; use DisplayAmountDue for rendering.
func AmountDue(total decimal.Decimal, paid decimal.Decimal) decimal.Decimal {
	return total.Sub(paid)
}

// DisplayAmountDue clamps overpayment to zero for display.
func DisplayAmountDue(total decimal.Decimal, paid decimal.Decimal) decimal.Decimal {
	due := AmountDue(total, paid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}
