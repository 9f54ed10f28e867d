// Package testkit provides seeded generators and deterministic adapters
// shared by service and integration tests.
package testkit

import (
	"context"
	"fmt"
	"math/rand"

	"rerp/adapters/solve"
	"rerp/app"
	"rerp/domain/trial"
	"rerp/ports"
)

// TestKit bundles the adapters service tests need
type TestKit struct {
	solver *solve.GonumSolver
	rng    *RNGAdapter
}

// NewTestKit creates a test kit with deterministic defaults
func NewTestKit() *TestKit {
	return &TestKit{
		solver: solve.MustNewGonumSolver(solve.Options{}),
		rng:    &RNGAdapter{},
	}
}

// SolverAdapter returns the shared solver adapter
func (t *TestKit) SolverAdapter() ports.SolverPort {
	return t.solver
}

// RNGAdapter returns an RNG adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return t.rng
}

// FitService returns a fit service wired to the kit's solver
func (t *TestKit) FitService(workers int) *app.FitService {
	return app.NewFitService(t.solver, workers)
}

// ReconstructService returns a reconstruction service
func (t *TestKit) ReconstructService() *app.ReconstructService {
	return app.NewReconstructService()
}

// WindowService returns a window service with the given options
func (t *TestKit) WindowService(opts app.WindowOptions) (*app.WindowService, error) {
	return app.NewWindowService(opts)
}

// CreateTestTable generates the default two-condition table
func (t *TestKit) CreateTestTable() (*trial.Table, error) {
	return NewEpochGenerator(DefaultEpochConfig()).GenerateTable()
}

// RNGAdapter implements the RNGPort interface for testing
type RNGAdapter struct{}

// SeededStream creates a deterministic random number generator
func (r *RNGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed)), nil
}

// Stream derives a deterministic stream for one (run, component, cell).
// Repeated calls with the same identifiers return identical streams.
func (r *RNGAdapter) Stream(ctx context.Context, runID, component, cellKey string, baseSeed int64) (*rand.Rand, error) {
	seed := baseSeed
	for _, part := range []string{runID, component, cellKey} {
		if part != "" {
			seed += int64(hashString(part))
		}
	}
	return rand.New(rand.NewSource(seed)), nil
}

// ValidateSeed checks that a seed reproduces the expected draw sequence
func (r *RNGAdapter) ValidateSeed(ctx context.Context, name string, seed int64, expected []float64) error {
	rng := rand.New(rand.NewSource(seed))
	for i, want := range expected {
		got := rng.Float64()
		if got != want {
			return fmt.Errorf("seed %d for %s diverged at draw %d: got %v, want %v", seed, name, i, got, want)
		}
	}
	return nil
}

// hashString produces a deterministic hash of a string
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c)
	}
	return hash
}
