package design

import (
	"fmt"
	"math"

	"rerp/domain/core"
	"rerp/domain/trial"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Build encodes a trial table's predictors into one design matrix following
// the model specification. Row order matches trial order. Pure function of
// (table, spec); trial voltages are never consulted.
func Build(table *trial.Table, spec ModelSpec) (*Matrix, error) {
	if table == nil || table.TrialCount() == 0 {
		return nil, core.ErrEmptyTable
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	n := table.TrialCount()
	m := &Matrix{
		Transforms: make(map[string]Transform),
		Levels:     make(map[string][]string),
		Baselines:  make(map[string]string),
	}

	intercept := make([]float64, n)
	for i := range intercept {
		intercept[i] = 1
	}
	m.Terms = append(m.Terms, Term{Name: InterceptTerm, Kind: TermIntercept})
	columns := [][]float64{intercept}

	// Column indexes of each predictor's main-effect block, for interactions.
	mainIdx := make(map[string][]int, len(spec.Predictors))

	for _, p := range spec.Predictors {
		switch p.Role {
		case RoleCategorical:
			cols, err := encodeCategorical(table, p, m)
			if err != nil {
				return nil, err
			}
			for _, col := range cols {
				mainIdx[p.Name] = append(mainIdx[p.Name], len(columns))
				columns = append(columns, col)
			}
		case RoleContinuous:
			col, err := encodeContinuous(table, p, m)
			if err != nil {
				return nil, err
			}
			mainIdx[p.Name] = append(mainIdx[p.Name], len(columns))
			columns = append(columns, col)
		}
	}

	for _, ia := range spec.Interactions {
		for _, ai := range mainIdx[ia.A] {
			for _, bi := range mainIdx[ia.B] {
				col := make([]float64, n)
				for i := range col {
					col[i] = columns[ai][i] * columns[bi][i]
				}
				m.Terms = append(m.Terms, Term{
					Name:    m.Terms[ai].Name + ":" + m.Terms[bi].Name,
					Kind:    TermInteraction,
					Parents: [2]string{m.Terms[ai].Name, m.Terms[bi].Name},
				})
				columns = append(columns, col)
			}
		}
	}

	p := len(columns)
	if n < p {
		return nil, &DesignSpecificationError{
			Reason: fmt.Sprintf("%d trials cannot identify %d model terms", n, p),
		}
	}
	if err := checkColumnRank(columns, m.Terms); err != nil {
		return nil, err
	}

	m.Data = make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, p)
		for j := 0; j < p; j++ {
			row[j] = columns[j][i]
		}
		m.Data[i] = row
	}
	m.Fingerprint = core.ComputeDesignFingerprint(m.TermNames(), m.Data)
	return m, nil
}

// MustBuild panics on build failure. Intended for tests and fixtures.
func MustBuild(table *trial.Table, spec ModelSpec) *Matrix {
	m, err := Build(table, spec)
	if err != nil {
		panic(err)
	}
	return m
}

func encodeCategorical(table *trial.Table, p PredictorSpec, m *Matrix) ([][]float64, error) {
	if !table.HasCategorical(p.Name) {
		reason := "absent from trial data"
		if table.HasContinuous(p.Name) {
			reason = "declared categorical but recorded as continuous"
		}
		return nil, &DesignSpecificationError{Predictor: p.Name, Reason: reason}
	}
	levels := table.Levels(p.Name)
	baselineSeen := false
	for _, lvl := range levels {
		if lvl == p.Baseline {
			baselineSeen = true
			break
		}
	}
	if !baselineSeen {
		return nil, &DesignSpecificationError{
			Predictor: p.Name,
			Reason:    fmt.Sprintf("baseline level %q never occurs in the data", p.Baseline),
		}
	}
	m.Levels[p.Name] = levels
	m.Baselines[p.Name] = p.Baseline

	n := table.TrialCount()
	var cols [][]float64
	for _, lvl := range levels {
		if lvl == p.Baseline {
			continue
		}
		col := make([]float64, n)
		for i, tr := range table.Trials {
			if tr.Categorical[p.Name] == lvl {
				col[i] = 1
			}
		}
		m.Terms = append(m.Terms, Term{
			Name:      fmt.Sprintf("%s[%s]", p.Name, lvl),
			Kind:      TermCategorical,
			Predictor: p.Name,
			Level:     lvl,
		})
		cols = append(cols, col)
	}
	return cols, nil
}

func encodeContinuous(table *trial.Table, p PredictorSpec, m *Matrix) ([]float64, error) {
	if !table.HasContinuous(p.Name) {
		reason := "absent from trial data"
		if table.HasCategorical(p.Name) {
			reason = "declared continuous but recorded as categorical"
		}
		return nil, &DesignSpecificationError{Predictor: p.Name, Reason: reason}
	}
	raw, err := table.ContinuousValues(p.Name)
	if err != nil {
		return nil, &DesignSpecificationError{Predictor: p.Name, Reason: err.Error()}
	}

	tr := IdentityTransform(p.Name)
	if p.Invert {
		tr.Inverted = true
		tr.Anchor = p.Anchor
	}
	inverted := make([]float64, len(raw))
	for i, v := range raw {
		if p.Invert {
			v = p.Anchor - v
		}
		inverted[i] = v
	}

	switch p.Center {
	case CenterMean:
		tr.Offset = stat.Mean(inverted, nil)
	case CenterZScore:
		mean, sd := stat.MeanStdDev(inverted, nil)
		if sd == 0 || math.IsNaN(sd) {
			return nil, &DesignSpecificationError{Predictor: p.Name, Reason: "zero variance under zscore centering"}
		}
		tr.Offset = mean
		tr.Scale = sd
	}

	col := make([]float64, len(raw))
	for i, v := range raw {
		col[i] = tr.Apply(v)
	}
	m.Transforms[p.Name] = tr
	m.Terms = append(m.Terms, Term{Name: p.Name, Kind: TermContinuous, Predictor: p.Name})
	return col, nil
}

// checkColumnRank rejects duplicate columns by name and rank deficiency by
// numeric rank, so collinear specifications fail at build time rather than
// producing a degenerate fit.
func checkColumnRank(columns [][]float64, terms []Term) error {
	for j := 0; j < len(columns); j++ {
		for k := j + 1; k < len(columns); k++ {
			if equalColumns(columns[j], columns[k]) {
				return &DesignSpecificationError{
					Predictor: terms[k].Name,
					Reason:    fmt.Sprintf("column duplicates term %q", terms[j].Name),
				}
			}
		}
	}

	n := len(columns[0])
	p := len(columns)
	flat := make([]float64, 0, n*p)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			flat = append(flat, columns[j][i])
		}
	}
	X := mat.NewDense(n, p, flat)

	var svd mat.SVD
	if !svd.Factorize(X, mat.SVDNone) {
		return &DesignSpecificationError{Reason: "singular value decomposition of the design failed"}
	}
	values := svd.Values(nil)
	eps := math.Nextafter(1, 2) - 1
	tol := float64(n) * eps * values[0]
	if p > n {
		tol = float64(p) * eps * values[0]
	}
	rank := 0
	for _, s := range values {
		if s > tol {
			rank++
		}
	}
	if rank < p {
		return &DesignSpecificationError{
			Reason: fmt.Sprintf("design matrix is rank deficient: rank %d for %d terms (collinear specification)", rank, p),
		}
	}
	return nil
}

func equalColumns(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
