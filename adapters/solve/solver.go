// Package solve provides the gonum-backed least-squares machinery behind the
// regression engine. A design matrix is factorized once, the solve operator
// is materialized as a dense pseudoinverse, and every per-(timepoint,
// channel) fit reduces to one matrix-vector product against shared read-only
// state.
package solve

import (
	"fmt"
	"math"

	"rerp/domain/core"
	"rerp/domain/design"
	interrors "rerp/internal/errors"
	"rerp/ports"

	"gonum.org/v1/gonum/mat"
)

// Method selects the factorization used for the shared decomposition.
type Method string

const (
	// MethodSVD factorizes by singular value decomposition. Default.
	MethodSVD Method = "svd"
	// MethodQR factorizes by Householder QR.
	MethodQR Method = "qr"
)

// DefaultConditionLimit is the condition number beyond which a design is
// rejected as numerically unstable.
const DefaultConditionLimit = 1e8

// Options configures the solver.
type Options struct {
	// Method selects SVD or QR. Empty selects SVD.
	Method Method
	// ConditionLimit rejects designs whose condition number exceeds it.
	// Zero selects DefaultConditionLimit.
	ConditionLimit float64
}

// GonumSolver implements ports.SolverPort on gonum/mat.
type GonumSolver struct {
	opts Options
}

// NewGonumSolver validates the options and returns a solver.
func NewGonumSolver(opts Options) (*GonumSolver, error) {
	switch opts.Method {
	case "":
		opts.Method = MethodSVD
	case MethodSVD, MethodQR:
	default:
		return nil, interrors.InvalidInput(fmt.Sprintf("unknown solver method %q", opts.Method))
	}
	if opts.ConditionLimit < 0 {
		return nil, interrors.InvalidInput("condition limit must not be negative")
	}
	if opts.ConditionLimit == 0 {
		opts.ConditionLimit = DefaultConditionLimit
	}
	return &GonumSolver{opts: opts}, nil
}

// MustNewGonumSolver panics on invalid options. Intended for tests.
func MustNewGonumSolver(opts Options) *GonumSolver {
	s, err := NewGonumSolver(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Name identifies the configured factorization method.
func (s *GonumSolver) Name() string {
	return string(s.opts.Method)
}

// Decompose factorizes the design matrix once for reuse across all fits.
func (s *GonumSolver) Decompose(m *design.Matrix) (ports.Decomposition, error) {
	if m == nil || m.RowCount() == 0 || m.TermCount() == 0 {
		return nil, interrors.InvalidInput("empty design matrix")
	}
	n, p := m.RowCount(), m.TermCount()
	flat := make([]float64, 0, n*p)
	for _, row := range m.Data {
		if len(row) != p {
			return nil, interrors.InvalidInput("ragged design matrix row")
		}
		flat = append(flat, row...)
	}
	return s.decompose(mat.NewDense(n, p, flat))
}

func (s *GonumSolver) decompose(X *mat.Dense) (*Decomposition, error) {
	n, p := X.Dims()
	if n < p {
		return nil, fmt.Errorf("%w: %d rows cannot identify %d terms", core.ErrInsufficientData, n, p)
	}

	d := &Decomposition{
		opts:  s.opts,
		x:     mat.DenseCopyOf(X),
		rows:  n,
		terms: p,
	}

	var err error
	switch s.opts.Method {
	case MethodQR:
		err = d.factorizeQR(X)
	default:
		err = d.factorizeSVD(X)
	}
	if err != nil {
		return nil, err
	}

	if d.rank < p {
		return nil, &IllConditionedDesignError{
			ConditionNumber: d.cond,
			Limit:           s.opts.ConditionLimit,
			Detail:          fmt.Sprintf("numeric rank %d below %d terms", d.rank, p),
		}
	}
	if d.cond > s.opts.ConditionLimit {
		return nil, &IllConditionedDesignError{
			ConditionNumber: d.cond,
			Limit:           s.opts.ConditionLimit,
		}
	}
	return d, nil
}

// Decomposition holds the factorization products: the solve operator
// pinv = inv(X'X) X' and the unscaled coefficient covariance inv(X'X).
// All fields are written during construction and read-only afterwards, so
// the value is safe for concurrent fits.
type Decomposition struct {
	opts  Options
	x     *mat.Dense // rows × terms
	pinv  *mat.Dense // terms × rows
	cov   *mat.Dense // terms × terms
	cond  float64
	rank  int
	rows  int
	terms int
}

func (d *Decomposition) factorizeSVD(X *mat.Dense) error {
	n, p := X.Dims()

	var svd mat.SVD
	if !svd.Factorize(X, mat.SVDThin) {
		return interrors.SolverFailure("SVD factorization did not converge", nil)
	}
	values := svd.Values(nil)

	eps := math.Nextafter(1, 2) - 1
	tol := float64(n) * eps * values[0]
	d.rank = 0
	for _, sv := range values {
		if sv > tol {
			d.rank++
		}
	}
	d.cond = math.Inf(1)
	if values[p-1] > 0 {
		d.cond = values[0] / values[p-1]
	}
	if d.rank < p {
		// Rejected by the caller; skip building operators.
		return nil
	}

	var u, v mat.Dense
	svd.UTo(&u) // n × p
	svd.VTo(&v) // p × p

	// vs holds V with each column scaled by 1/sigma.
	vs := mat.NewDense(p, p, nil)
	for j := 0; j < p; j++ {
		for i := 0; i < p; i++ {
			vs.Set(i, j, v.At(i, j)/values[j])
		}
	}
	d.pinv = mat.NewDense(p, n, nil)
	d.pinv.Mul(vs, u.T())
	d.cov = mat.NewDense(p, p, nil)
	d.cov.Mul(vs, vs.T())
	return nil
}

func (d *Decomposition) factorizeQR(X *mat.Dense) error {
	n, p := X.Dims()

	var qr mat.QR
	qr.Factorize(X)
	var qfull, rfull mat.Dense
	qr.QTo(&qfull) // n × n
	qr.RTo(&rfull) // n × p
	r := rfull.Slice(0, p, 0, p)

	eps := math.Nextafter(1, 2) - 1
	maxDiag := 0.0
	for i := 0; i < p; i++ {
		if a := math.Abs(r.At(i, i)); a > maxDiag {
			maxDiag = a
		}
	}
	tol := float64(n) * eps * maxDiag
	d.rank = 0
	minDiag := math.Inf(1)
	for i := 0; i < p; i++ {
		a := math.Abs(r.At(i, i))
		if a > tol {
			d.rank++
		}
		if a < minDiag {
			minDiag = a
		}
	}
	d.cond = math.Inf(1)
	if minDiag > 0 {
		d.cond = mat.Cond(r, 2)
	}
	if d.rank < p {
		return nil
	}

	eye := mat.NewDense(p, p, nil)
	for i := 0; i < p; i++ {
		eye.Set(i, i, 1)
	}
	var rinv mat.Dense
	if err := rinv.Solve(r, eye); err != nil {
		return interrors.SolverFailure("inverting the R factor failed", err)
	}
	q1 := qfull.Slice(0, n, 0, p)
	d.pinv = mat.NewDense(p, n, nil)
	d.pinv.Mul(&rinv, q1.T())
	d.cov = mat.NewDense(p, p, nil)
	d.cov.Mul(&rinv, rinv.T())
	return nil
}

// Solve returns the least-squares coefficients for one response vector.
func (d *Decomposition) Solve(y []float64) ([]float64, error) {
	if len(y) != d.rows {
		return nil, interrors.InvalidInput(fmt.Sprintf("response length %d does not match %d rows", len(y), d.rows))
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, interrors.InvalidInput(fmt.Sprintf("response contains non-finite value at trial %d", i))
		}
	}
	var beta mat.VecDense
	beta.MulVec(d.pinv, mat.NewVecDense(len(y), y))
	out := make([]float64, d.terms)
	copy(out, beta.RawVector().Data)
	return out, nil
}

// Fitted returns X*beta over the decomposition's rows.
func (d *Decomposition) Fitted(beta []float64) ([]float64, error) {
	if len(beta) != d.terms {
		return nil, interrors.InvalidInput(fmt.Sprintf("coefficient length %d does not match %d terms", len(beta), d.terms))
	}
	var f mat.VecDense
	f.MulVec(d.x, mat.NewVecDense(len(beta), beta))
	out := make([]float64, d.rows)
	copy(out, f.RawVector().Data)
	return out, nil
}

// ContrastVariance returns c' inv(X'X) c.
func (d *Decomposition) ContrastVariance(c []float64) (float64, error) {
	if len(c) != d.terms {
		return 0, interrors.InvalidInput(fmt.Sprintf("contrast length %d does not match %d terms", len(c), d.terms))
	}
	v := mat.NewVecDense(len(c), c)
	return mat.Inner(v, d.cov, v), nil
}

// Covariance returns a copy of the unscaled coefficient covariance inv(X'X).
func (d *Decomposition) Covariance() [][]float64 {
	out := make([][]float64, d.terms)
	for i := range out {
		out[i] = make([]float64, d.terms)
		for j := range out[i] {
			out[i][j] = d.cov.At(i, j)
		}
	}
	return out
}

// ConditionNumber returns the condition number of the factorized matrix.
func (d *Decomposition) ConditionNumber() float64 { return d.cond }

// Rank returns the numeric rank.
func (d *Decomposition) Rank() int { return d.rank }

// Rows returns the number of rows covered.
func (d *Decomposition) Rows() int { return d.rows }

// Terms returns the number of model terms.
func (d *Decomposition) Terms() int { return d.terms }

// ExcludingRows builds an adjusted decomposition over the surviving rows.
// The receiver is unchanged, so fits at other timepoints keep using it.
func (d *Decomposition) ExcludingRows(exclude []int) (ports.Decomposition, error) {
	if len(exclude) == 0 {
		return d, nil
	}
	drop := make(map[int]bool, len(exclude))
	for _, idx := range exclude {
		if idx < 0 || idx >= d.rows {
			return nil, interrors.InvalidInput(fmt.Sprintf("excluded trial index %d out of range", idx))
		}
		drop[idx] = true
	}
	surviving := d.rows - len(drop)
	if surviving < d.terms {
		return nil, fmt.Errorf("%w: %d surviving trials cannot identify %d terms", core.ErrInsufficientData, surviving, d.terms)
	}

	kept := make([]int, 0, surviving)
	for i := 0; i < d.rows; i++ {
		if !drop[i] {
			kept = append(kept, i)
		}
	}

	sub := mat.NewDense(surviving, d.terms, nil)
	for si, ri := range kept {
		for j := 0; j < d.terms; j++ {
			sub.Set(si, j, d.x.At(ri, j))
		}
	}
	solver := &GonumSolver{opts: d.opts}
	return solver.decompose(sub)
}
