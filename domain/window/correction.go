package window

import (
	"fmt"
	"math"
	"sort"
)

// Correction identifies the multiple-comparison correction applied to one
// family of window tests. The method is always explicit on the report;
// CorrectionNone is a declared choice, not an omission.
type Correction string

const (
	// CorrectionBH is Benjamini-Hochberg false discovery rate control.
	CorrectionBH Correction = "bh"
	// CorrectionHolm is Holm's step-down familywise error control.
	CorrectionHolm Correction = "holm"
	// CorrectionBonferroni is the Bonferroni bound.
	CorrectionBonferroni Correction = "bonferroni"
	// CorrectionNone leaves p-values unadjusted.
	CorrectionNone Correction = "none"
)

// ParseCorrection maps a configuration string onto a correction method.
func ParseCorrection(s string) (Correction, error) {
	switch Correction(s) {
	case CorrectionBH, CorrectionHolm, CorrectionBonferroni, CorrectionNone:
		return Correction(s), nil
	default:
		return "", fmt.Errorf("unknown correction method %q (want bh, holm, bonferroni, or none)", s)
	}
}

// AdjustPValues returns adjusted p-values (q-values) for one family, in the
// input order. Every p must lie in [0, 1]; the family is adjusted as a
// whole, never cell by cell.
func AdjustPValues(pvalues []float64, method Correction) ([]float64, error) {
	for i, p := range pvalues {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("p-value %d out of range: %v", i, p)
		}
	}
	m := len(pvalues)
	if m == 0 {
		return []float64{}, nil
	}

	switch method {
	case CorrectionNone:
		q := make([]float64, m)
		copy(q, pvalues)
		return q, nil
	case CorrectionBonferroni:
		q := make([]float64, m)
		for i, p := range pvalues {
			q[i] = math.Min(1, p*float64(m))
		}
		return q, nil
	case CorrectionHolm:
		return adjustHolm(pvalues), nil
	case CorrectionBH:
		return adjustBH(pvalues), nil
	default:
		return nil, fmt.Errorf("unknown correction method %q", method)
	}
}

// adjustHolm applies the step-down adjustment: sorted ascending, the i-th
// smallest p is scaled by (m-i) and a running maximum keeps the sequence
// non-decreasing.
func adjustHolm(pvalues []float64) []float64 {
	m := len(pvalues)
	order := sortedOrder(pvalues)
	q := make([]float64, m)
	runMax := 0.0
	for rank, idx := range order {
		adj := math.Min(1, float64(m-rank)*pvalues[idx])
		runMax = math.Max(runMax, adj)
		q[idx] = runMax
	}
	return q
}

// adjustBH applies Benjamini-Hochberg: sorted ascending, the i-th smallest
// p is scaled by m/i, then a backward pass takes cumulative minima so
// q-values are monotone in p.
func adjustBH(pvalues []float64) []float64 {
	m := len(pvalues)
	order := sortedOrder(pvalues)
	raw := make([]float64, m)
	for rank, idx := range order {
		raw[rank] = math.Min(1, pvalues[idx]*float64(m)/float64(rank+1))
	}
	for rank := m - 2; rank >= 0; rank-- {
		raw[rank] = math.Min(raw[rank], raw[rank+1])
	}
	q := make([]float64, m)
	for rank, idx := range order {
		q[idx] = raw[rank]
	}
	return q
}

// sortedOrder returns indices of pvalues sorted ascending, stable for ties.
func sortedOrder(pvalues []float64) []int {
	order := make([]int, len(pvalues))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return pvalues[order[a]] < pvalues[order[b]] })
	return order
}
