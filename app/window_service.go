package app

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"rerp/domain/core"
	"rerp/domain/estimate"
	"rerp/domain/window"
	"rerp/internal"
)

// WindowOptions configure window analysis.
type WindowOptions struct {
	// Correction is the multiple-comparison method. Empty means
	// Benjamini-Hochberg.
	Correction window.Correction
	// Alpha is the significance level. Zero means 0.05.
	Alpha float64
}

// WindowService computes window-level contrast statistics over a fitted
// estimate set. Every cell of one Analyze call is corrected as a single
// family; the method is always recorded on the report.
type WindowService struct {
	correction window.Correction
	alpha      float64
	logger     *internal.Logger
}

// NewWindowService validates the options and returns a window service.
func NewWindowService(opts WindowOptions) (*WindowService, error) {
	if opts.Correction == "" {
		opts.Correction = window.CorrectionBH
	}
	if _, err := window.ParseCorrection(string(opts.Correction)); err != nil {
		return nil, err
	}
	if opts.Alpha == 0 {
		opts.Alpha = 0.05
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		return nil, fmt.Errorf("alpha %v outside (0, 1)", opts.Alpha)
	}
	return &WindowService{
		correction: opts.Correction,
		alpha:      opts.Alpha,
		logger:     internal.DefaultLogger.Component("WindowService"),
	}, nil
}

// Analyze tests every (window, contrast, channel) cell: per-timepoint
// contrast amplitudes, the window mean, and a two-sided t test against
// zero, then adjusts all p-values together.
func (s *WindowService) Analyze(set *estimate.Set, windows []window.TimeWindow, contrasts []window.Contrast) (*window.Report, error) {
	if set == nil {
		return nil, core.NewValidationError("set", "estimate set is required")
	}
	if len(windows) == 0 {
		return nil, core.NewValidationError("windows", "at least one window is required")
	}
	if len(contrasts) == 0 {
		return nil, core.NewValidationError("contrasts", "at least one contrast is required")
	}

	channels := set.Channels()
	windowLabels := make([]string, 0, len(windows))
	seenWindows := make(map[string]bool, len(windows))
	channelSet := make(map[string]bool)
	for _, w := range windows {
		if err := w.Validate(set.Timepoints(), channels); err != nil {
			return nil, err
		}
		if seenWindows[w.Label] {
			return nil, core.NewValidationError("windows", fmt.Sprintf("duplicate window label %q", w.Label))
		}
		seenWindows[w.Label] = true
		windowLabels = append(windowLabels, w.Label)
		for _, ch := range w.Channels {
			channelSet[ch] = true
		}
	}

	matrix := set.Design()
	vectors := make([][]float64, len(contrasts))
	contrastNames := make([]string, 0, len(contrasts))
	seenContrasts := make(map[string]bool, len(contrasts))
	for i, c := range contrasts {
		vec, err := c.Vector(matrix)
		if err != nil {
			return nil, err
		}
		if window.IsNullVector(vec) {
			return nil, &window.UndefinedContrastError{Contrast: c.Name, Reason: "all weights are zero"}
		}
		if seenContrasts[c.Name] {
			return nil, core.NewValidationError("contrasts", fmt.Sprintf("duplicate contrast name %q", c.Name))
		}
		seenContrasts[c.Name] = true
		vectors[i] = vec
		contrastNames = append(contrastNames, c.Name)
	}

	var results []window.WindowStatistic
	for _, w := range windows {
		for i, c := range contrasts {
			for _, channel := range w.Channels {
				stat, err := s.testCell(set, w, c.Name, vectors[i], channel)
				if err != nil {
					return nil, err
				}
				results = append(results, stat)
			}
		}
	}

	pvalues := make([]float64, len(results))
	for i, r := range results {
		pvalues[i] = r.P
	}
	qvalues, err := window.AdjustPValues(pvalues, s.correction)
	if err != nil {
		return nil, err
	}
	significant := 0
	for i := range results {
		results[i].Q = qvalues[i]
		results[i].Significant = qvalues[i] < s.alpha
		if results[i].Significant {
			significant++
		}
	}

	familyChannels := make([]string, 0, len(channelSet))
	for ch := range channelSet {
		familyChannels = append(familyChannels, ch)
	}

	report := &window.Report{
		ReportID:   core.NewReportID(),
		RunID:      set.RunID(),
		FamilyID:   core.ComputeFamilyID(windowLabels, contrastNames, familyChannels, string(s.correction)),
		Method:     s.correction,
		Alpha:      s.alpha,
		FamilySize: len(results),
		Results:    results,
		CreatedAt:  core.Now(),
	}
	s.logger.Info("family %s: %d cells, %d significant at alpha %v (%s)",
		report.FamilyID, report.FamilySize, significant, s.alpha, s.correction)
	return report, nil
}

// testCell computes one window statistic. The standard error pools the
// per-timepoint contrast variances across the window, and the degrees of
// freedom are the smallest in the window, conservative when exclusions
// vary by timepoint.
func (s *WindowService) testCell(set *estimate.Set, w window.TimeWindow, contrast string, vec []float64, channel string) (window.WindowStatistic, error) {
	chIdx, err := set.ChannelIndex(channel)
	if err != nil {
		return window.WindowStatistic{}, err
	}

	length := w.Length()
	amplitudes := make([]float64, 0, length)
	sumAmp := 0.0
	sumVar := 0.0
	minDF := 0
	for t := w.Start; t <= w.End; t++ {
		est, err := set.AtIndex(t, chIdx)
		if err != nil {
			return window.WindowStatistic{}, err
		}
		amp, err := est.ContrastAmplitude(vec)
		if err != nil {
			return window.WindowStatistic{}, err
		}
		v, err := est.ContrastVariance(vec)
		if err != nil {
			return window.WindowStatistic{}, err
		}
		amplitudes = append(amplitudes, amp)
		sumAmp += amp
		sumVar += v
		if minDF == 0 || est.DF < minDF {
			minDF = est.DF
		}
	}

	mean := sumAmp / float64(length)
	se := math.Sqrt(sumVar / float64(length))

	var tstat, p float64
	switch {
	case se > 0:
		tstat = mean / se
		tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(minDF)}
		p = 2 * (1 - tDist.CDF(math.Abs(tstat)))
	case mean == 0:
		tstat = 0
		p = 1
	default:
		tstat = math.Inf(sign(mean))
		p = 0
	}

	return window.WindowStatistic{
		Window:     w.Label,
		Contrast:   contrast,
		Channel:    channel,
		Start:      w.Start,
		End:        w.End,
		Amplitudes: amplitudes,
		Mean:       mean,
		StdErr:     se,
		DF:         minDF,
		T:          tstat,
		P:          p,
	}, nil
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
