package app

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"rerp/domain/core"
	"rerp/domain/design"
	"rerp/domain/estimate"
	"rerp/domain/run"
	"rerp/domain/trial"
	"rerp/internal"
	"rerp/ports"
)

// FitService runs the regression over every (timepoint, channel) cell of a
// trial table. The design matrix is factorized exactly once; each cell's
// fit reuses that shared decomposition, so per-cell cost is a matrix-vector
// product.
type FitService struct {
	solver  ports.SolverPort
	workers int
	logger  *internal.Logger
}

// FitRequest defines the inputs for one fitting run.
type FitRequest struct {
	Table  *trial.Table
	Matrix *design.Matrix
	RunID  core.RunID // optional, will be generated if empty
}

// FitResult contains the complete output of a fitting run.
type FitResult struct {
	Estimates *estimate.Set
	Manifest  *run.Manifest
}

// NewFitService creates a fit service. Workers bounds the number of
// concurrent cell fits; zero means GOMAXPROCS.
func NewFitService(solver ports.SolverPort, workers int) *FitService {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &FitService{
		solver:  solver,
		workers: workers,
		logger:  internal.DefaultLogger.Component("FitService"),
	}
}

// Fit estimates coefficients for every cell. On cancellation it stops
// launching new timepoints, waits for in-flight fits, and returns the
// partial estimate set together with the context error; completed cells
// stay valid.
func (s *FitService) Fit(ctx context.Context, req FitRequest) (*FitResult, error) {
	if req.Table == nil || req.Table.TrialCount() == 0 {
		return nil, core.ErrEmptyTable
	}
	if req.Matrix == nil {
		return nil, core.NewValidationError("matrix", "design matrix is required")
	}
	if req.Matrix.RowCount() != req.Table.TrialCount() {
		return nil, core.NewValidationError("matrix",
			fmt.Sprintf("%d design rows for %d trials", req.Matrix.RowCount(), req.Table.TrialCount()))
	}

	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}

	base, err := s.solver.Decompose(req.Matrix)
	if err != nil {
		return nil, err
	}
	s.logger.Info("run %s: decomposed %dx%d design (solver %s, cond %.3g, rank %d)",
		runID, base.Rows(), base.Terms(), s.solver.Name(), base.ConditionNumber(), base.Rank())

	set, err := estimate.NewSet(runID, req.Matrix, req.Table.Channels, req.Table.Timepoints)
	if err != nil {
		return nil, err
	}

	manifest := run.NewManifest(runID, req.Matrix.Fingerprint, s.solver.Name(),
		base.ConditionNumber(), base.Rank(),
		req.Table.TrialCount(), req.Table.ChannelCount(), req.Table.Timepoints, s.workers)

	fit := &fitRun{
		service:  s,
		table:    req.Table,
		base:     base,
		set:      set,
		adjusted: make(map[string]ports.Decomposition),
	}

	sem := semaphore.NewWeighted(int64(s.workers))
	var wg sync.WaitGroup

	cancelled := false
	for t := 0; t < req.Table.Timepoints && !cancelled; t++ {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		for ch := 0; ch < req.Table.ChannelCount(); ch++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				cancelled = true
				break
			}
			wg.Add(1)
			go func(t, ch int) {
				defer wg.Done()
				defer sem.Release(1)
				fit.fitCell(t, ch)
			}(t, ch)
		}
	}
	wg.Wait()

	manifest.TotalFits = fit.totalFits
	manifest.AdjustedFits = fit.adjustedFits
	manifest.SkippedFits = fit.skippedFits
	manifest.ExcludedSamples = fit.excludedSamples
	manifest.Cancelled = cancelled
	manifest.Finish()

	if cancelled {
		s.logger.Warn("run %s cancelled after %d of %d cells", runID,
			manifest.FittedCells(), req.Table.Timepoints*req.Table.ChannelCount())
		return &FitResult{Estimates: set, Manifest: manifest}, ctx.Err()
	}

	s.logger.Info("%s", manifest.Summary())
	return &FitResult{Estimates: set, Manifest: manifest}, nil
}

// fitRun carries the shared state of one Fit call. The adjusted map caches
// row-excluded decompositions by exclusion pattern, so channels rejecting
// the same trials at a timepoint factorize once.
type fitRun struct {
	service *FitService
	table   *trial.Table
	base    ports.Decomposition
	set     *estimate.Set

	mu              sync.Mutex
	adjusted        map[string]ports.Decomposition
	totalFits       int
	adjustedFits    int
	skippedFits     int
	excludedSamples int
}

func (f *fitRun) fitCell(t, ch int) {
	y := f.table.Response(ch, t)

	var excluded []int
	for i, v := range y {
		if math.IsNaN(v) {
			excluded = append(excluded, i)
		}
	}

	dec := f.base
	if len(excluded) > 0 {
		var err error
		dec, err = f.adjustedFor(excluded)
		if err != nil {
			f.skip(t, ch, err.Error())
			return
		}
		kept := make([]float64, 0, len(y)-len(excluded))
		for _, v := range y {
			if !math.IsNaN(v) {
				kept = append(kept, v)
			}
		}
		y = kept
	}

	beta, err := dec.Solve(y)
	if err != nil {
		f.skip(t, ch, err.Error())
		return
	}
	fitted, err := dec.Fitted(beta)
	if err != nil {
		f.skip(t, ch, err.Error())
		return
	}

	rss := 0.0
	for i := range y {
		r := y[i] - fitted[i]
		rss += r * r
	}
	df := dec.Rows() - dec.Terms()

	channel := f.table.Channels[ch]
	est, err := estimate.NewCoefficientEstimate(t, channel, beta, rss, df, excluded, dec.Covariance())
	if err != nil {
		f.skip(t, ch, err.Error())
		return
	}
	if err := f.set.Put(ch, est); err != nil {
		f.service.logger.Error("cell (%d, %s): %v", t, channel, err)
		f.skip(t, ch, err.Error())
		return
	}

	f.mu.Lock()
	if len(excluded) == 0 {
		f.totalFits++
	} else {
		f.adjustedFits++
		f.excludedSamples += len(excluded)
	}
	f.mu.Unlock()
}

// adjustedFor returns the decomposition over the rows surviving the given
// exclusions, reusing a cached one when the pattern repeats.
func (f *fitRun) adjustedFor(excluded []int) (ports.Decomposition, error) {
	key := exclusionKey(excluded)

	f.mu.Lock()
	dec, ok := f.adjusted[key]
	f.mu.Unlock()
	if ok {
		return dec, nil
	}

	dec, err := f.base.ExcludingRows(excluded)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if cached, ok := f.adjusted[key]; ok {
		dec = cached
	} else {
		f.adjusted[key] = dec
	}
	f.mu.Unlock()
	return dec, nil
}

func (f *fitRun) skip(t, ch int, reason string) {
	channel := f.table.Channels[ch]
	f.service.logger.Debug("skipping cell (%d, %s): %s", t, channel, reason)
	f.set.AddSkipped(estimate.SkippedFit{Timepoint: t, Channel: channel, Reason: reason})
	f.mu.Lock()
	f.skippedFits++
	f.mu.Unlock()
}

func exclusionKey(excluded []int) string {
	parts := make([]string, len(excluded))
	for i, idx := range excluded {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}
