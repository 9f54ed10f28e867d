package design

import (
	"fmt"
)

// Role declares how a predictor enters the model.
type Role string

const (
	RoleCategorical Role = "categorical"
	RoleContinuous  Role = "continuous"
)

// CenterPolicy declares the centering applied to a continuous predictor.
type CenterPolicy string

const (
	// CenterNone leaves values as supplied.
	CenterNone CenterPolicy = "none"
	// CenterMean subtracts the sample mean.
	CenterMean CenterPolicy = "center"
	// CenterZScore subtracts the sample mean and divides by the sample
	// standard deviation.
	CenterZScore CenterPolicy = "zscore"
)

// PredictorSpec declares one predictor term.
//
// Categorical predictors use treatment coding against the declared Baseline
// level: one indicator column per remaining level, in lexical order, so the
// column layout is stable across runs. The baseline is never inferred.
//
// Continuous predictors may be inverted around an anchor before centering,
// mirroring scales where low raw values mean a stronger manipulation
// (plausibility and cloze ratings are recorded this way).
type PredictorSpec struct {
	Name string
	Role Role

	// Baseline is the reference level for a categorical predictor. Required.
	Baseline string

	// Center is the centering policy for a continuous predictor.
	Center CenterPolicy
	// Invert replaces each raw value v with Anchor - v before centering.
	Invert bool
	// Anchor is the inversion anchor, typically the scale maximum.
	Anchor float64
}

// Interaction declares a two-way product term between two declared
// predictors. Categorical parents contribute one product column per encoded
// level.
type Interaction struct {
	A string
	B string
}

// ModelSpec is the analyst's declarative model description: which predictors
// enter, how each is coded, and which interactions are included. An
// intercept column is always present.
type ModelSpec struct {
	Predictors   []PredictorSpec
	Interactions []Interaction
}

// Predictor returns the spec for a named predictor.
func (s ModelSpec) Predictor(name string) (PredictorSpec, bool) {
	for _, p := range s.Predictors {
		if p.Name == name {
			return p, true
		}
	}
	return PredictorSpec{}, false
}

// Validate checks internal consistency of the specification.
func (s ModelSpec) Validate() error {
	if len(s.Predictors) == 0 {
		return &DesignSpecificationError{Reason: "at least one predictor is required"}
	}
	seen := make(map[string]bool, len(s.Predictors))
	for _, p := range s.Predictors {
		if p.Name == "" {
			return &DesignSpecificationError{Reason: "predictor with empty name"}
		}
		if seen[p.Name] {
			return &DesignSpecificationError{Predictor: p.Name, Reason: "declared more than once"}
		}
		seen[p.Name] = true

		switch p.Role {
		case RoleCategorical:
			if p.Baseline == "" {
				return &DesignSpecificationError{Predictor: p.Name, Reason: "categorical predictor requires an explicit baseline level"}
			}
			if p.Invert || p.Center != "" && p.Center != CenterNone {
				return &DesignSpecificationError{Predictor: p.Name, Reason: "centering and inversion apply to continuous predictors only"}
			}
		case RoleContinuous:
			switch p.Center {
			case "", CenterNone, CenterMean, CenterZScore:
			default:
				return &DesignSpecificationError{Predictor: p.Name, Reason: fmt.Sprintf("unknown centering policy %q", p.Center)}
			}
			if p.Baseline != "" {
				return &DesignSpecificationError{Predictor: p.Name, Reason: "baseline levels apply to categorical predictors only"}
			}
		default:
			return &DesignSpecificationError{Predictor: p.Name, Reason: fmt.Sprintf("unknown role %q", p.Role)}
		}
	}

	interSeen := make(map[string]bool, len(s.Interactions))
	for _, ia := range s.Interactions {
		if ia.A == ia.B {
			return &DesignSpecificationError{Predictor: ia.A, Reason: "interaction requires two distinct predictors"}
		}
		if !seen[ia.A] {
			return &DesignSpecificationError{Predictor: ia.A, Reason: "interaction references undeclared predictor"}
		}
		if !seen[ia.B] {
			return &DesignSpecificationError{Predictor: ia.B, Reason: "interaction references undeclared predictor"}
		}
		key := ia.A + ":" + ia.B
		if ia.B < ia.A {
			key = ia.B + ":" + ia.A
		}
		if interSeen[key] {
			return &DesignSpecificationError{Predictor: key, Reason: "interaction declared more than once"}
		}
		interSeen[key] = true
	}
	return nil
}
