package design

import (
	"rerp/domain/core"
)

// InterceptTerm is the name of the leading intercept column.
const InterceptTerm = "(Intercept)"

// TermKind distinguishes the column families of a design matrix.
type TermKind string

const (
	TermIntercept   TermKind = "intercept"
	TermCategorical TermKind = "categorical"
	TermContinuous  TermKind = "continuous"
	TermInteraction TermKind = "interaction"
)

// Term describes one design matrix column.
type Term struct {
	// Name is the column label, e.g. "(Intercept)", "condition[related]",
	// "cloze", or "condition[related]:cloze".
	Name string
	Kind TermKind
	// Predictor is the owning predictor for main-effect terms.
	Predictor string
	// Level is the encoded non-baseline level for categorical terms.
	Level string
	// Parents holds the two parent term names for interaction columns.
	Parents [2]string
}

// Matrix is the built design: one row per trial, one column per term,
// shared read-only by every per-(timepoint, channel) fit of a run. Time and
// channel enter regression only through the response, never through the
// matrix.
type Matrix struct {
	// Data holds the encoded predictor values, row-major.
	Data  [][]float64
	Terms []Term

	// Transforms records the applied continuous transforms by predictor.
	Transforms map[string]Transform
	// Levels records each categorical predictor's fitted levels, sorted,
	// baseline included.
	Levels map[string][]string
	// Baselines records each categorical predictor's declared baseline.
	Baselines map[string]string

	Fingerprint core.DesignFingerprint
}

// RowCount returns the number of trials.
func (m *Matrix) RowCount() int {
	return len(m.Data)
}

// TermCount returns the number of model terms.
func (m *Matrix) TermCount() int {
	return len(m.Terms)
}

// TermNames returns the column labels in order.
func (m *Matrix) TermNames() []string {
	names := make([]string, len(m.Terms))
	for i, t := range m.Terms {
		names[i] = t.Name
	}
	return names
}

// TermIndex resolves a term name to its column index.
func (m *Matrix) TermIndex(name string) (int, bool) {
	for i, t := range m.Terms {
		if t.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Condition assigns raw predictor values for reconstruction or contrast
// definition. Categorical predictors are assigned level names; continuous
// predictors are assigned values on their original scale. Predictors left
// out fall back to the model reference point: the baseline level, or the
// recorded center.
type Condition struct {
	Label       string
	Categorical map[string]string
	Continuous  map[string]float64
}

// Encode maps a condition into the model's term vector, applying the
// recorded coding and transforms. The reference condition encodes to the
// intercept alone.
func (m *Matrix) Encode(cond Condition) ([]float64, error) {
	for name := range cond.Categorical {
		if _, ok := m.Levels[name]; !ok {
			return nil, &DesignSpecificationError{Predictor: name, Reason: "not a categorical predictor of the fitted model"}
		}
	}
	for name := range cond.Continuous {
		if _, ok := m.Transforms[name]; !ok {
			return nil, &DesignSpecificationError{Predictor: name, Reason: "not a continuous predictor of the fitted model"}
		}
	}

	x := make([]float64, len(m.Terms))
	for j, term := range m.Terms {
		switch term.Kind {
		case TermIntercept:
			x[j] = 1
		case TermCategorical:
			level, ok := cond.Categorical[term.Predictor]
			if !ok {
				// Baseline: all indicators stay zero.
				continue
			}
			if !m.hasLevel(term.Predictor, level) {
				return nil, &UnsupportedConditionError{
					Predictor: term.Predictor,
					Level:     level,
					Known:     m.Levels[term.Predictor],
				}
			}
			if level == term.Level {
				x[j] = 1
			}
		case TermContinuous:
			raw, ok := cond.Continuous[term.Predictor]
			if !ok {
				// Model center: zero in encoded space.
				continue
			}
			x[j] = m.Transforms[term.Predictor].Apply(raw)
		}
	}

	// Interaction columns multiply their already-encoded parents.
	for j, term := range m.Terms {
		if term.Kind != TermInteraction {
			continue
		}
		a, okA := m.TermIndex(term.Parents[0])
		b, okB := m.TermIndex(term.Parents[1])
		if !okA || !okB {
			return nil, &DesignSpecificationError{Predictor: term.Name, Reason: "interaction parent term missing"}
		}
		x[j] = x[a] * x[b]
	}
	return x, nil
}

func (m *Matrix) hasLevel(predictor, level string) bool {
	for _, lvl := range m.Levels[predictor] {
		if lvl == level {
			return true
		}
	}
	return false
}
