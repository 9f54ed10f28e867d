package window

import (
	"math"
	"testing"

	"rerp/domain/design"
	"rerp/domain/trial"
)

func testMatrix(t *testing.T) *design.Matrix {
	t.Helper()
	mk := func(cond string, cloze float64) trial.Trial {
		return trial.Trial{
			Categorical: map[string]string{"condition": cond},
			Continuous:  map[string]float64{"cloze": cloze},
			Samples:     [][]float64{{0, 0}},
		}
	}
	table := trial.MustNewTable([]string{"Pz"}, 2, []trial.Trial{
		mk("related", 0.9), mk("unrelated", 0.1),
		mk("related", 0.7), mk("unrelated", 0.3),
	})
	spec := design.ModelSpec{Predictors: []design.PredictorSpec{
		{Name: "condition", Role: design.RoleCategorical, Baseline: "related"},
		{Name: "cloze", Role: design.RoleContinuous, Center: design.CenterMean},
	}}
	return design.MustBuild(table, spec)
}

// TestContrastWeights tests resolving explicit term weights
func TestContrastWeights(t *testing.T) {
	m := testMatrix(t)
	c := Contrast{Name: "condition effect", Weights: map[string]float64{"condition[unrelated]": 1}}

	vec, err := c.Vector(m)
	if err != nil {
		t.Fatalf("Vector failed: %v", err)
	}
	want := []float64{0, 1, 0}
	for j, v := range want {
		if vec[j] != v {
			t.Errorf("weight %d: expected %v, got %v", j, v, vec[j])
		}
	}
}

// TestContrastBetweenConditions tests encode(Plus) - encode(Minus)
func TestContrastBetweenConditions(t *testing.T) {
	m := testMatrix(t)
	c := Contrast{
		Name: "unrelated minus related",
		Between: &ConditionDifference{
			Plus:  design.Condition{Categorical: map[string]string{"condition": "unrelated"}},
			Minus: design.Condition{Categorical: map[string]string{"condition": "related"}},
		},
	}

	vec, err := c.Vector(m)
	if err != nil {
		t.Fatalf("Vector failed: %v", err)
	}
	// Intercept and the centered cloze column cancel in the difference.
	want := []float64{0, 1, 0}
	for j, v := range want {
		if math.Abs(vec[j]-v) > 1e-12 {
			t.Errorf("weight %d: expected %v, got %v", j, v, vec[j])
		}
	}
}

// TestContrastErrors tests the undefined-contrast failure modes
func TestContrastErrors(t *testing.T) {
	m := testMatrix(t)
	tests := []struct {
		name     string
		contrast Contrast
	}{
		{"unknown term", Contrast{Name: "bad", Weights: map[string]float64{"condition[banana]": 1}}},
		{"non-finite weight", Contrast{Name: "bad", Weights: map[string]float64{"cloze": math.NaN()}}},
		{"no definition", Contrast{Name: "bad"}},
		{"unnamed", Contrast{Weights: map[string]float64{"cloze": 1}}},
		{
			"both definitions",
			Contrast{
				Name:    "bad",
				Weights: map[string]float64{"cloze": 1},
				Between: &ConditionDifference{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.contrast.Vector(m)
			if !IsUndefinedContrastError(err) {
				t.Errorf("expected UndefinedContrastError, got %v", err)
			}
		})
	}
}

// TestContrastUnsupportedLevel tests that encoding errors pass through
func TestContrastUnsupportedLevel(t *testing.T) {
	m := testMatrix(t)
	c := Contrast{
		Name: "bad",
		Between: &ConditionDifference{
			Plus:  design.Condition{Categorical: map[string]string{"condition": "neutral"}},
			Minus: design.Condition{Categorical: map[string]string{"condition": "related"}},
		},
	}
	_, err := c.Vector(m)
	if !design.IsUnsupportedConditionError(err) {
		t.Fatalf("expected UnsupportedConditionError, got %v", err)
	}
}

// TestIsNullVector tests all-zero detection
func TestIsNullVector(t *testing.T) {
	if !IsNullVector([]float64{0, 0, 0}) {
		t.Error("expected all-zero vector to be null")
	}
	if IsNullVector([]float64{0, 1e-300, 0}) {
		t.Error("expected tiny nonzero weight to be non-null")
	}
}

// TestTimeWindowValidate tests window geometry checks
func TestTimeWindowValidate(t *testing.T) {
	channels := []string{"Pz", "Cz"}
	tests := []struct {
		name    string
		w       TimeWindow
		wantErr bool
	}{
		{"valid", TimeWindow{Label: "n400", Start: 10, End: 30, Channels: []string{"Pz"}}, false},
		{"single timepoint", TimeWindow{Label: "peak", Start: 5, End: 5, Channels: []string{"Cz"}}, false},
		{"unlabeled", TimeWindow{Start: 0, End: 1, Channels: []string{"Pz"}}, true},
		{"negative start", TimeWindow{Label: "w", Start: -1, End: 3, Channels: []string{"Pz"}}, true},
		{"end past epoch", TimeWindow{Label: "w", Start: 10, End: 50, Channels: []string{"Pz"}}, true},
		{"inverted range", TimeWindow{Label: "w", Start: 30, End: 10, Channels: []string{"Pz"}}, true},
		{"no channels", TimeWindow{Label: "w", Start: 0, End: 1}, true},
		{"unknown channel", TimeWindow{Label: "w", Start: 0, End: 1, Channels: []string{"Oz"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate(50, channels)
			if tt.wantErr {
				if !IsEmptyWindowError(err) {
					t.Errorf("expected EmptyWindowError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("expected valid window, got %v", err)
			}
		})
	}

	w := TimeWindow{Label: "n400", Start: 10, End: 30, Channels: []string{"Pz"}}
	if w.Length() != 21 {
		t.Errorf("expected length 21, got %d", w.Length())
	}
	if !w.Contains(10) || !w.Contains(30) || w.Contains(31) {
		t.Error("inclusive bounds are wrong")
	}
}
