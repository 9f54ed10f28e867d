package estimate

import (
	"fmt"
	"math"

	"rerp/domain/core"
)

// CoefficientEstimate holds one fitted (timepoint, channel) cell: the
// least-squares coefficients, the residual scale, and the trials excluded
// from that fit. Produced exactly once per cell and immutable afterwards.
type CoefficientEstimate struct {
	Timepoint int       `json:"timepoint"`
	Channel   string    `json:"channel"`
	Beta      []float64 `json:"beta"`
	// RSS is the residual sum of squares.
	RSS float64 `json:"rss"`
	// ResidualVariance is RSS divided by DF.
	ResidualVariance float64 `json:"residual_variance"`
	// DF is rows used minus model terms.
	DF int `json:"df"`
	// StdErr holds the per-coefficient standard errors.
	StdErr []float64 `json:"std_err"`
	// Excluded lists trial indices dropped from this fit, in trial order.
	// Empty for fits over the full design.
	Excluded []int `json:"excluded,omitempty"`

	// cov is the unscaled coefficient covariance inv(X'X) for the rows
	// this cell was fitted on.
	cov [][]float64
}

// NewCoefficientEstimate validates and assembles one fitted cell.
func NewCoefficientEstimate(timepoint int, channel string, beta []float64, rss float64, df int, excluded []int, cov [][]float64) (*CoefficientEstimate, error) {
	if timepoint < 0 {
		return nil, core.NewValidationError("timepoint", "must not be negative")
	}
	if channel == "" {
		return nil, core.NewValidationError("channel", "must not be empty")
	}
	if len(beta) == 0 {
		return nil, core.NewValidationError("beta", "must not be empty")
	}
	for j, b := range beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, core.NewValidationError("beta", fmt.Sprintf("coefficient %d is not finite", j))
		}
	}
	if rss < 0 {
		if rss < -1e-9 {
			return nil, core.NewValidationError("rss", "must not be negative")
		}
		rss = 0
	}
	if df < 1 {
		return nil, fmt.Errorf("%w: %d degrees of freedom", core.ErrInsufficientData, df)
	}
	if len(cov) != len(beta) {
		return nil, core.NewValidationError("cov", "dimension does not match coefficients")
	}
	for _, row := range cov {
		if len(row) != len(beta) {
			return nil, core.NewValidationError("cov", "covariance matrix is not square")
		}
	}

	variance := rss / float64(df)
	stderr := make([]float64, len(beta))
	for j := range beta {
		stderr[j] = math.Sqrt(variance * cov[j][j])
	}
	return &CoefficientEstimate{
		Timepoint:        timepoint,
		Channel:          channel,
		Beta:             beta,
		RSS:              rss,
		ResidualVariance: variance,
		DF:               df,
		StdErr:           stderr,
		Excluded:         excluded,
		cov:              cov,
	}, nil
}

// ContrastVariance returns the sampling variance of the contrast c for this
// cell: residual variance times c' inv(X'X) c over the rows it was fitted
// on.
func (e *CoefficientEstimate) ContrastVariance(c []float64) (float64, error) {
	if len(c) != len(e.Beta) {
		return 0, core.NewValidationError("contrast", fmt.Sprintf("length %d does not match %d terms", len(c), len(e.Beta)))
	}
	quad := 0.0
	for i := range c {
		for j := range c {
			quad += c[i] * e.cov[i][j] * c[j]
		}
	}
	return e.ResidualVariance * quad, nil
}

// ContrastAmplitude returns c' beta for this cell.
func (e *CoefficientEstimate) ContrastAmplitude(c []float64) (float64, error) {
	if len(c) != len(e.Beta) {
		return 0, core.NewValidationError("contrast", fmt.Sprintf("length %d does not match %d terms", len(c), len(e.Beta)))
	}
	amp := 0.0
	for j := range c {
		amp += c[j] * e.Beta[j]
	}
	return amp, nil
}
