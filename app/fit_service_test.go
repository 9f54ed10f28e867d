package app_test

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"rerp/adapters/solve"
	"rerp/app"
	"rerp/domain/core"
	"rerp/domain/design"
	"rerp/domain/trial"
	"rerp/internal/testkit"
	"rerp/ports"
)

func generate(t *testing.T, config testkit.EpochGeneratorConfig) *trial.Table {
	t.Helper()
	table, err := testkit.NewEpochGenerator(config).GenerateTable()
	if err != nil {
		t.Fatalf("generate table: %v", err)
	}
	return table
}

func conditionMatrix(t *testing.T, table *trial.Table) *design.Matrix {
	t.Helper()
	m, err := design.Build(table, design.ModelSpec{
		Predictors: []design.PredictorSpec{
			{Name: "condition", Role: design.RoleCategorical, Baseline: "A"},
		},
	})
	if err != nil {
		t.Fatalf("build design: %v", err)
	}
	return m
}

// The canonical recovery scenario: 100 trials split between conditions A
// and B, where B adds 2 microvolts over timepoints 10 to 30. The fitted
// condition coefficient should track the boxcar and the intercept should
// track the shared background wave.
func TestFitService_RecoversKnownEffect(t *testing.T) {
	config := testkit.DefaultEpochConfig()
	generator := testkit.NewEpochGenerator(config)
	table, err := generator.GenerateTable()
	if err != nil {
		t.Fatalf("generate table: %v", err)
	}
	matrix := conditionMatrix(t, table)

	service := testkit.NewTestKit().FitService(4)
	result, err := service.Fit(context.Background(), app.FitRequest{Table: table, Matrix: matrix})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	assert.True(t, result.Estimates.Complete(), "all cells should be fitted")
	assert.Equal(t, 50, result.Manifest.TotalFits)
	assert.Equal(t, 0, result.Manifest.AdjustedFits)
	assert.Equal(t, 0, result.Manifest.SkippedFits)
	assert.False(t, result.Manifest.Cancelled)
	assert.False(t, result.Manifest.Finished.IsZero(), "manifest should be finished")

	effect, err := result.Estimates.CoefficientCurve("condition[B]", "Cz")
	if err != nil {
		t.Fatalf("coefficient curve: %v", err)
	}
	windowSum := 0.0
	for tp, beta := range effect {
		if tp >= 10 && tp <= 30 {
			windowSum += beta
			assert.InDelta(t, 2.0, beta, 1.0, "effect coefficient at timepoint %d", tp)
		} else {
			assert.InDelta(t, 0.0, beta, 1.0, "null coefficient at timepoint %d", tp)
		}
	}
	assert.InDelta(t, 2.0, windowSum/21, 0.25, "mean effect over the boxcar window")

	intercept, err := result.Estimates.CoefficientCurve(design.InterceptTerm, "Cz")
	if err != nil {
		t.Fatalf("intercept curve: %v", err)
	}
	background := generator.TrueWaveform("A", "Cz")
	for _, tp := range []int{0, 12, 25, 37, 49} {
		assert.InDelta(t, background[tp], intercept[tp], 0.8, "intercept at timepoint %d", tp)
	}

	se, err := result.Estimates.StandardErrorCurve("condition[B]", "Cz")
	if err != nil {
		t.Fatalf("standard error curve: %v", err)
	}
	for tp, s := range se {
		assert.Greater(t, s, 0.0, "standard error at timepoint %d", tp)
		assert.Less(t, s, 1.0, "standard error at timepoint %d", tp)
	}

	residuals, err := result.Estimates.ResidualCurve("Cz")
	if err != nil {
		t.Fatalf("residual curve: %v", err)
	}
	for tp, r := range residuals {
		assert.InDelta(t, 1.0, r, 0.4, "residual level should track the noise sd at timepoint %d", tp)
	}
}

// Estimation error against the known truth shrinks as trials accumulate.
func TestFitService_RecoveryImprovesWithTrials(t *testing.T) {
	mse := func(trials int) float64 {
		config := testkit.DefaultEpochConfig()
		config.TrialCount = trials
		generator := testkit.NewEpochGenerator(config)
		table, err := generator.GenerateTable()
		if err != nil {
			t.Fatalf("generate table: %v", err)
		}
		result, err := testkit.NewTestKit().FitService(4).Fit(context.Background(),
			app.FitRequest{Table: table, Matrix: conditionMatrix(t, table)})
		if err != nil {
			t.Fatalf("fit %d trials: %v", trials, err)
		}
		effect, err := result.Estimates.CoefficientCurve("condition[B]", "Cz")
		if err != nil {
			t.Fatalf("coefficient curve: %v", err)
		}
		truthA := generator.TrueWaveform("A", "Cz")
		truthB := generator.TrueWaveform("B", "Cz")
		sum := 0.0
		for tp := range effect {
			d := effect[tp] - (truthB[tp] - truthA[tp])
			sum += d * d
		}
		return sum / float64(len(effect))
	}

	small := mse(20)
	large := mse(400)
	if large >= small {
		t.Fatalf("mean squared error should shrink with more trials: %v at 20 vs %v at 400", small, large)
	}
}

// Worker count is a throughput knob. Estimates must be bit-identical
// across runs and across pool sizes.
func TestFitService_DeterministicAcrossWorkerCounts(t *testing.T) {
	config := testkit.DefaultEpochConfig()
	config.TrialCount = 30
	config.Timepoints = 15

	curves := make([][]float64, 0, 3)
	intercepts := make([][]float64, 0, 3)
	for _, workers := range []int{1, 4, 8} {
		table := generate(t, config)
		matrix := conditionMatrix(t, table)
		service := testkit.NewTestKit().FitService(workers)
		result, err := service.Fit(context.Background(), app.FitRequest{Table: table, Matrix: matrix})
		if err != nil {
			t.Fatalf("fit with %d workers: %v", workers, err)
		}
		effect, err := result.Estimates.CoefficientCurve("condition[B]", "Cz")
		if err != nil {
			t.Fatalf("coefficient curve: %v", err)
		}
		intercept, err := result.Estimates.CoefficientCurve(design.InterceptTerm, "Cz")
		if err != nil {
			t.Fatalf("intercept curve: %v", err)
		}
		curves = append(curves, effect)
		intercepts = append(intercepts, intercept)
	}

	for i := 1; i < len(curves); i++ {
		for tp := range curves[0] {
			if curves[i][tp] != curves[0][tp] {
				t.Fatalf("effect coefficient differs at timepoint %d: %v vs %v", tp, curves[i][tp], curves[0][tp])
			}
			if intercepts[i][tp] != intercepts[0][tp] {
				t.Fatalf("intercept differs at timepoint %d: %v vs %v", tp, intercepts[i][tp], intercepts[0][tp])
			}
		}
	}
}

// A rejected sample affects its own timepoint only. Every other timepoint
// must produce exactly the same estimates as a fully clean run.
func TestFitService_MissingDataIsolation(t *testing.T) {
	config := testkit.DefaultEpochConfig()
	config.TrialCount = 20
	config.Timepoints = 10
	config.NoiseSD = 0.5
	config.Seed = 7

	clean := generate(t, config)
	dirty := generate(t, config)
	dirty.Trials[4].Samples[0][3] = math.NaN()

	service := testkit.NewTestKit().FitService(2)
	cleanResult, err := service.Fit(context.Background(), app.FitRequest{Table: clean, Matrix: conditionMatrix(t, clean)})
	if err != nil {
		t.Fatalf("clean fit: %v", err)
	}
	dirtyResult, err := service.Fit(context.Background(), app.FitRequest{Table: dirty, Matrix: conditionMatrix(t, dirty)})
	if err != nil {
		t.Fatalf("dirty fit: %v", err)
	}

	assert.Equal(t, 9, dirtyResult.Manifest.TotalFits)
	assert.Equal(t, 1, dirtyResult.Manifest.AdjustedFits)
	assert.Equal(t, 1, dirtyResult.Manifest.ExcludedSamples)
	assert.True(t, dirtyResult.Estimates.Complete())

	for tp := 0; tp < 10; tp++ {
		cleanEst, err := cleanResult.Estimates.At(tp, "Cz")
		if err != nil {
			t.Fatalf("clean estimate at %d: %v", tp, err)
		}
		dirtyEst, err := dirtyResult.Estimates.At(tp, "Cz")
		if err != nil {
			t.Fatalf("dirty estimate at %d: %v", tp, err)
		}
		if tp == 3 {
			assert.Equal(t, []int{4}, dirtyEst.Excluded, "adjusted timepoint should record the dropped trial")
			assert.Equal(t, 17, dirtyEst.DF, "degrees of freedom after one exclusion")
			continue
		}
		assert.Empty(t, dirtyEst.Excluded, "timepoint %d should not exclude trials", tp)
		for j := range cleanEst.Beta {
			if dirtyEst.Beta[j] != cleanEst.Beta[j] {
				t.Fatalf("coefficient %d at timepoint %d changed: %v vs %v", j, tp, dirtyEst.Beta[j], cleanEst.Beta[j])
			}
		}
	}
}

func TestFitService_ValidatesRequest(t *testing.T) {
	ctx := context.Background()
	service := testkit.NewTestKit().FitService(1)

	_, err := service.Fit(ctx, app.FitRequest{})
	assert.ErrorIs(t, err, core.ErrEmptyTable)

	config := testkit.DefaultEpochConfig()
	config.TrialCount = 10
	config.Timepoints = 5
	table := generate(t, config)

	_, err = service.Fit(ctx, app.FitRequest{Table: table})
	assert.Error(t, err, "missing design matrix must be rejected")

	config.TrialCount = 8
	smaller := generate(t, config)
	_, err = service.Fit(ctx, app.FitRequest{Table: table, Matrix: conditionMatrix(t, smaller)})
	assert.Error(t, err, "row count mismatch must be rejected")
	assert.Contains(t, err.Error(), "design rows")
}

func TestFitService_IllConditionedDesign(t *testing.T) {
	config := testkit.DefaultEpochConfig()
	config.TrialCount = 20
	config.Timepoints = 5
	table := generate(t, config)
	matrix := conditionMatrix(t, table)

	solver := solve.MustNewGonumSolver(solve.Options{ConditionLimit: 1.5})
	service := app.NewFitService(solver, 1)

	_, err := service.Fit(context.Background(), app.FitRequest{Table: table, Matrix: matrix})
	if !solve.IsIllConditionedDesignError(err) {
		t.Fatalf("expected ill-conditioned design error, got %v", err)
	}
}

// countingSolver wraps a solver to observe factorization calls.
type countingSolver struct {
	inner      ports.SolverPort
	decomposed int32
	adjusted   int32
}

func (c *countingSolver) Decompose(m *design.Matrix) (ports.Decomposition, error) {
	atomic.AddInt32(&c.decomposed, 1)
	dec, err := c.inner.Decompose(m)
	if err != nil {
		return nil, err
	}
	return &countingDecomposition{Decomposition: dec, solver: c}, nil
}

func (c *countingSolver) Name() string { return c.inner.Name() }

type countingDecomposition struct {
	ports.Decomposition
	solver *countingSolver
}

func (d *countingDecomposition) ExcludingRows(exclude []int) (ports.Decomposition, error) {
	atomic.AddInt32(&d.solver.adjusted, 1)
	return d.Decomposition.ExcludingRows(exclude)
}

// The design is factorized once per run no matter how many cells are fitted,
// and repeated exclusion patterns reuse one adjusted decomposition.
func TestFitService_SharesOneDecomposition(t *testing.T) {
	config := testkit.DefaultEpochConfig()
	config.TrialCount = 10
	config.Timepoints = 12
	config.Channels = []string{"Cz", "Pz"}
	table := generate(t, config)

	// Both channels reject the same trial at the same timepoint
	table.Trials[3].Samples[0][5] = math.NaN()
	table.Trials[3].Samples[1][5] = math.NaN()

	counter := &countingSolver{inner: solve.MustNewGonumSolver(solve.Options{})}
	service := app.NewFitService(counter, 1)

	result, err := service.Fit(context.Background(), app.FitRequest{Table: table, Matrix: conditionMatrix(t, table)})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&counter.decomposed), "base decomposition count")
	assert.Equal(t, int32(1), atomic.LoadInt32(&counter.adjusted), "shared exclusion pattern should factorize once")
	assert.Equal(t, 22, result.Manifest.TotalFits)
	assert.Equal(t, 2, result.Manifest.AdjustedFits)
	assert.Equal(t, 2, result.Manifest.ExcludedSamples)
}

func TestFitService_CancelledBeforeStart(t *testing.T) {
	config := testkit.DefaultEpochConfig()
	config.TrialCount = 12
	config.Timepoints = 8
	table := generate(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	service := testkit.NewTestKit().FitService(2)
	result, err := service.Fit(ctx, app.FitRequest{Table: table, Matrix: conditionMatrix(t, table)})

	assert.ErrorIs(t, err, context.Canceled)
	if result == nil {
		t.Fatal("cancelled run should still return partial results")
	}
	assert.True(t, result.Manifest.Cancelled)
	assert.Equal(t, 0, result.Estimates.FittedCells())
}

// cancellingSolver cancels the run's context from inside the first cell
// fit, simulating cancellation while a timepoint is in flight.
type cancellingSolver struct {
	inner  ports.SolverPort
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancellingSolver) Decompose(m *design.Matrix) (ports.Decomposition, error) {
	dec, err := c.inner.Decompose(m)
	if err != nil {
		return nil, err
	}
	return &cancellingDecomposition{Decomposition: dec, solver: c}, nil
}

func (c *cancellingSolver) Name() string { return c.inner.Name() }

type cancellingDecomposition struct {
	ports.Decomposition
	solver *cancellingSolver
}

func (d *cancellingDecomposition) Solve(y []float64) ([]float64, error) {
	d.solver.once.Do(d.solver.cancel)
	return d.Decomposition.Solve(y)
}

func TestFitService_CancelledMidRun(t *testing.T) {
	config := testkit.DefaultEpochConfig()
	config.TrialCount = 40
	config.Timepoints = 30
	table := generate(t, config)
	matrix := conditionMatrix(t, table)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	solver := &cancellingSolver{inner: solve.MustNewGonumSolver(solve.Options{}), cancel: cancel}
	service := app.NewFitService(solver, 1)

	result, err := service.Fit(ctx, app.FitRequest{Table: table, Matrix: matrix})

	assert.ErrorIs(t, err, context.Canceled)
	if result == nil {
		t.Fatal("cancelled run should still return partial results")
	}
	assert.True(t, result.Manifest.Cancelled)

	fitted := result.Estimates.FittedCells()
	assert.GreaterOrEqual(t, fitted, 1, "cells in flight at cancellation must complete")
	assert.Less(t, fitted, 30, "cancellation must stop later timepoints")

	// Completed cells stay readable and carry full coefficient vectors
	readable := 0
	for tp := 0; tp < 30; tp++ {
		est, err := result.Estimates.At(tp, "Cz")
		if err != nil {
			continue
		}
		readable++
		assert.Len(t, est.Beta, 2)
	}
	assert.Equal(t, fitted, readable)
}
