package container

import (
	"fmt"

	"rerp/adapters/solve"
	"rerp/app"
	"rerp/domain/window"
	"rerp/internal/config"
)

// Container holds all engine dependencies and manages their wiring
type Container struct {
	Config *config.Config

	// Infrastructure
	Solver *solve.GonumSolver

	// Analysis services
	FitService         *app.FitService
	ReconstructService *app.ReconstructService
	WindowService      *app.WindowService
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	solver, err := solve.NewGonumSolver(solve.Options{
		Method:         solve.Method(cfg.Solver.Method),
		ConditionLimit: cfg.Solver.ConditionLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize solver: %w", err)
	}

	windowService, err := app.NewWindowService(app.WindowOptions{
		Correction: window.Correction(cfg.Window.Correction),
		Alpha:      cfg.Window.Alpha,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize window service: %w", err)
	}

	return &Container{
		Config:             cfg,
		Solver:             solver,
		FitService:         app.NewFitService(solver, cfg.Fit.Workers),
		ReconstructService: app.NewReconstructService(),
		WindowService:      windowService,
	}, nil
}

// NewFromEnvironment loads configuration from the environment and wires a
// complete container
func NewFromEnvironment() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}
