package ports

import (
	"rerp/domain/design"
)

// Decomposition is one factorization of a design matrix, computed once per
// run and shared read-only by every per-(timepoint, channel) fit.
// Implementations must be safe for concurrent use after construction.
type Decomposition interface {
	// Solve returns the least-squares coefficients for one response vector
	// of length Rows().
	Solve(y []float64) ([]float64, error)

	// Fitted returns the model-predicted responses X*beta over the
	// decomposition's rows.
	Fitted(beta []float64) ([]float64, error)

	// ContrastVariance returns the unscaled sampling variance of a term
	// contrast under the design, c' inv(X'X) c. Multiplying by a fit's
	// residual variance gives the contrast's variance for that fit.
	ContrastVariance(c []float64) (float64, error)

	// Covariance returns a copy of the unscaled coefficient covariance
	// inv(X'X), one row per term.
	Covariance() [][]float64

	// ConditionNumber returns the ratio of the largest to the smallest
	// singular value of the factorized matrix.
	ConditionNumber() float64

	// Rank returns the numeric rank.
	Rank() int

	// Rows returns the number of trials covered by this decomposition.
	Rows() int

	// Terms returns the number of model terms.
	Terms() int

	// ExcludingRows builds an adjusted decomposition over the rows that
	// survive excluding the given trial indices. The receiver is unchanged.
	ExcludingRows(exclude []int) (Decomposition, error)
}

// SolverPort factorizes design matrices for the regression engine.
type SolverPort interface {
	Decompose(m *design.Matrix) (Decomposition, error)

	// Name identifies the factorization method for run manifests.
	Name() string
}
