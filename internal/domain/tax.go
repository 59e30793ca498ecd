package domain

import "math"

// TaxRatePercent is the flat GST applied to every invoice, charged as
// CGST 9% plus SGST 9%.
const TaxRatePercent = 18.0

// ApplyTaxCents returns the grand total for a pre-tax subtotal. The single
// rounding step happens here so every caller agrees on the final amount.
func ApplyTaxCents(subtotalCents int64) int64 {
	return int64(math.Round(float64(subtotalCents) * (1 + TaxRatePercent/100)))
}

// SplitGSTCents halves the tax portion of a total into its CGST and SGST
// components for receipt display. The two halves always sum back to
// total minus subtotal.
func SplitGSTCents(subtotalCents, totalCents int64) (cgst, sgst int64) {
	tax := totalCents - subtotalCents
	cgst = tax / 2
	sgst = tax - cgst
	return cgst, sgst
}
