package solve

import (
	"math"
	"math/rand"
	"testing"

	"rerp/domain/design"
)

func matrixFromRows(rows [][]float64, names ...string) *design.Matrix {
	terms := make([]design.Term, len(names))
	for i, n := range names {
		terms[i] = design.Term{Name: n}
	}
	return &design.Matrix{Data: rows, Terms: terms}
}

// TestSolveKnownCoefficients tests an exactly solvable system
func TestSolveKnownCoefficients(t *testing.T) {
	m := matrixFromRows([][]float64{
		{1, 0}, {1, 1}, {1, 2}, {1, 3},
	}, "(Intercept)", "x")
	// y = 1 + 2x exactly.
	y := []float64{1, 3, 5, 7}

	for _, method := range []Method{MethodSVD, MethodQR} {
		t.Run(string(method), func(t *testing.T) {
			solver := MustNewGonumSolver(Options{Method: method})
			dec, err := solver.Decompose(m)
			if err != nil {
				t.Fatalf("Decompose failed: %v", err)
			}
			beta, err := dec.Solve(y)
			if err != nil {
				t.Fatalf("Solve failed: %v", err)
			}
			if math.Abs(beta[0]-1.0) > 1e-10 || math.Abs(beta[1]-2.0) > 1e-10 {
				t.Errorf("expected coefficients [1 2], got %v", beta)
			}

			fitted, err := dec.Fitted(beta)
			if err != nil {
				t.Fatalf("Fitted failed: %v", err)
			}
			for i := range y {
				if math.Abs(fitted[i]-y[i]) > 1e-10 {
					t.Errorf("fitted[%d] = %v, want %v", i, fitted[i], y[i])
				}
			}
		})
	}
}

// TestSolveNormalEquations tests X'X beta = X'y on seeded random data
func TestSolveNormalEquations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n, p = 60, 4

	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, p)
		row[0] = 1
		for j := 1; j < p; j++ {
			row[j] = rng.NormFloat64()
		}
		rows[i] = row
	}
	y := make([]float64, n)
	for i := range y {
		y[i] = rng.NormFloat64() * 3.0
	}

	names := []string{"(Intercept)", "a", "b", "c"}
	dec, err := MustNewGonumSolver(Options{}).Decompose(matrixFromRows(rows, names...))
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	beta, err := dec.Solve(y)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	// Residuals must be orthogonal to every design column.
	fitted, err := dec.Fitted(beta)
	if err != nil {
		t.Fatalf("Fitted failed: %v", err)
	}
	for j := 0; j < p; j++ {
		dot := 0.0
		for i := 0; i < n; i++ {
			dot += rows[i][j] * (y[i] - fitted[i])
		}
		if math.Abs(dot) > 1e-8 {
			t.Errorf("column %d: X'(y - X beta) = %v, want 0", j, dot)
		}
	}
}

// TestSolveDeterminism tests that repeated runs are bit-identical
func TestSolveDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n, p = 40, 3
	rows := make([][]float64, n)
	y := make([]float64, n)
	for i := range rows {
		rows[i] = []float64{1, rng.NormFloat64(), rng.Float64() * 10}
		y[i] = rng.NormFloat64()
	}
	m := matrixFromRows(rows, "(Intercept)", "a", "b")

	for _, method := range []Method{MethodSVD, MethodQR} {
		t.Run(string(method), func(t *testing.T) {
			solver := MustNewGonumSolver(Options{Method: method})
			dec1, err := solver.Decompose(m)
			if err != nil {
				t.Fatalf("first Decompose failed: %v", err)
			}
			dec2, err := solver.Decompose(m)
			if err != nil {
				t.Fatalf("second Decompose failed: %v", err)
			}
			b1, _ := dec1.Solve(y)
			b2, _ := dec2.Solve(y)
			for j := range b1 {
				if b1[j] != b2[j] {
					t.Errorf("coefficient %d differs across runs: %v vs %v", j, b1[j], b2[j])
				}
			}
		})
	}
}

// TestDecomposeIllConditioned tests the condition number guard
func TestDecomposeIllConditioned(t *testing.T) {
	// Second and third columns differ by 1e-12: numerically singular at
	// any practical limit.
	rows := [][]float64{
		{1, 1.0, 1.0 + 1e-12},
		{1, 2.0, 2.0 + 1e-12},
		{1, 3.0, 3.0},
		{1, 4.0, 4.0},
	}
	m := matrixFromRows(rows, "(Intercept)", "x", "xShadow")

	_, err := MustNewGonumSolver(Options{}).Decompose(m)
	if err == nil {
		t.Fatal("expected IllConditionedDesignError")
	}
	if !IsIllConditionedDesignError(err) {
		t.Fatalf("expected IllConditionedDesignError, got %T: %v", err, err)
	}
}

// TestConditionLimitConfigurable tests that the limit is honored
func TestConditionLimitConfigurable(t *testing.T) {
	rows := [][]float64{
		{1, 0.001}, {1, 0.002}, {1, 0.003}, {1, 0.004},
	}
	m := matrixFromRows(rows, "(Intercept)", "tiny")

	// Permissive limit accepts the design.
	if _, err := MustNewGonumSolver(Options{}).Decompose(m); err != nil {
		t.Fatalf("default limit should accept this design: %v", err)
	}
	// A very strict limit rejects it.
	_, err := MustNewGonumSolver(Options{ConditionLimit: 2}).Decompose(m)
	if err == nil {
		t.Fatal("expected rejection under a strict condition limit")
	}
	if !IsIllConditionedDesignError(err) {
		t.Fatalf("expected IllConditionedDesignError, got %T: %v", err, err)
	}
}

// TestExcludingRows tests adjusted decompositions and receiver isolation
func TestExcludingRows(t *testing.T) {
	rows := [][]float64{
		{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 4},
	}
	m := matrixFromRows(rows, "(Intercept)", "x")
	y := []float64{1, 3, 5, 7, 9}

	dec, err := MustNewGonumSolver(Options{}).Decompose(m)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	before, _ := dec.Solve(y)

	adj, err := dec.ExcludingRows([]int{1, 3})
	if err != nil {
		t.Fatalf("ExcludingRows failed: %v", err)
	}
	if adj.Rows() != 3 {
		t.Errorf("adjusted decomposition should cover 3 rows, got %d", adj.Rows())
	}
	betaAdj, err := adj.Solve([]float64{1, 5, 9})
	if err != nil {
		t.Fatalf("adjusted Solve failed: %v", err)
	}
	// The relationship is exact, so the subset recovers the same line.
	if math.Abs(betaAdj[0]-1.0) > 1e-10 || math.Abs(betaAdj[1]-2.0) > 1e-10 {
		t.Errorf("adjusted fit should recover [1 2], got %v", betaAdj)
	}

	// The shared decomposition is unchanged.
	after, _ := dec.Solve(y)
	for j := range before {
		if before[j] != after[j] {
			t.Errorf("shared decomposition mutated by ExcludingRows: %v vs %v", before, after)
		}
	}
}

// TestExcludingRowsRankLoss tests exclusion that destroys identifiability
func TestExcludingRowsRankLoss(t *testing.T) {
	// The indicator column is nonzero only in row 2.
	rows := [][]float64{
		{1, 0}, {1, 0}, {1, 1}, {1, 0},
	}
	m := matrixFromRows(rows, "(Intercept)", "rare")

	dec, err := MustNewGonumSolver(Options{}).Decompose(m)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	_, err = dec.ExcludingRows([]int{2})
	if err == nil {
		t.Fatal("expected failure when exclusion removes the only informative row")
	}
	if !IsIllConditionedDesignError(err) {
		t.Fatalf("expected IllConditionedDesignError, got %T: %v", err, err)
	}
}

// TestContrastVariance tests the quadratic form against a hand computation
func TestContrastVariance(t *testing.T) {
	// X'X = [[2 1] [1 1]], inv = [[1 -1] [-1 2]].
	rows := [][]float64{{1, 0}, {1, 1}}
	m := matrixFromRows(rows, "(Intercept)", "x")

	dec, err := MustNewGonumSolver(Options{}).Decompose(m)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	tests := []struct {
		c    []float64
		want float64
	}{
		{[]float64{1, 0}, 1},
		{[]float64{0, 1}, 2},
		{[]float64{1, 1}, 1},
	}
	for _, tt := range tests {
		got, err := dec.ContrastVariance(tt.c)
		if err != nil {
			t.Fatalf("ContrastVariance(%v) failed: %v", tt.c, err)
		}
		if math.Abs(got-tt.want) > 1e-10 {
			t.Errorf("ContrastVariance(%v) = %v, want %v", tt.c, got, tt.want)
		}
	}
}

// TestSolveRejectsNonFinite tests the NaN guard on responses
func TestSolveRejectsNonFinite(t *testing.T) {
	m := matrixFromRows([][]float64{{1, 0}, {1, 1}, {1, 2}}, "(Intercept)", "x")
	dec, err := MustNewGonumSolver(Options{}).Decompose(m)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if _, err := dec.Solve([]float64{1, math.NaN(), 3}); err == nil {
		t.Fatal("expected error for NaN response; exclusion is the engine's job")
	}
	if _, err := dec.Solve([]float64{1, 2}); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}
