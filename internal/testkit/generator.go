package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"rerp/domain/core"
	"rerp/domain/trial"
)

// BoxcarEffect adds a constant voltage shift for one condition level
// inside a timepoint window. An empty channel applies to every channel.
type BoxcarEffect struct {
	Level     string  `json:"level"`
	Channel   string  `json:"channel,omitempty"`
	Start     int     `json:"start"`
	End       int     `json:"end"`
	Amplitude float64 `json:"amplitude"`
}

// SlopeEffect adds a linear dependence on a continuous predictor inside a
// timepoint window. The predictor value is drawn uniformly from [Min, Max]
// once per trial.
type SlopeEffect struct {
	Predictor string  `json:"predictor"`
	Channel   string  `json:"channel,omitempty"`
	Start     int     `json:"start"`
	End       int     `json:"end"`
	Slope     float64 `json:"slope"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// EpochGeneratorConfig configures the synthetic epoch generator
type EpochGeneratorConfig struct {
	TrialCount          int            `json:"trial_count"`
	Channels            []string       `json:"channels"`
	Timepoints          int            `json:"timepoints"`
	ConditionPredictor  string         `json:"condition_predictor"`
	Levels              []string       `json:"levels"`
	Effects             []BoxcarEffect `json:"effects"`
	Slopes              []SlopeEffect  `json:"slopes,omitempty"`
	BackgroundAmplitude float64        `json:"background_amplitude"`
	NoiseSD             float64        `json:"noise_sd"`
	MissingRate         float64        `json:"missing_rate"`
	Seed                int64          `json:"seed"`
}

// DefaultEpochConfig returns sensible defaults: a balanced two-condition
// experiment where condition B adds 2 microvolts over timepoints 10 to 30
func DefaultEpochConfig() EpochGeneratorConfig {
	return EpochGeneratorConfig{
		TrialCount:         100,
		Channels:           []string{"Cz"},
		Timepoints:         50,
		ConditionPredictor: "condition",
		Levels:             []string{"A", "B"},
		Effects: []BoxcarEffect{
			{Level: "B", Start: 10, End: 30, Amplitude: 2.0},
		},
		BackgroundAmplitude: 1.0,
		NoiseSD:             1.0,
		Seed:                42,
	}
}

// EpochGenerator generates synthetic EEG epochs with known ground truth
type EpochGenerator struct {
	config EpochGeneratorConfig
	rng    *rand.Rand
}

// NewEpochGenerator creates a new epoch generator
func NewEpochGenerator(config EpochGeneratorConfig) *EpochGenerator {
	return &EpochGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// GenerateTable generates a complete trial table. Levels are assigned
// round-robin so the design stays balanced at any trial count.
func (g *EpochGenerator) GenerateTable() (*trial.Table, error) {
	if err := g.validateConfig(); err != nil {
		return nil, err
	}

	trials := make([]trial.Trial, 0, g.config.TrialCount)
	for i := 0; i < g.config.TrialCount; i++ {
		level := g.config.Levels[i%len(g.config.Levels)]
		trials = append(trials, g.generateTrial(i, level))
	}

	return trial.NewTable(g.config.Channels, g.config.Timepoints, trials)
}

// TrueWaveform returns the noiseless expected waveform for one condition
// level, with continuous covariates held at zero
func (g *EpochGenerator) TrueWaveform(level, channel string) []float64 {
	wave := make([]float64, g.config.Timepoints)
	for t := range wave {
		wave[t] = g.trueValue(level, channel, t, nil)
	}
	return wave
}

// generateTrial generates one epoch across all channels
func (g *EpochGenerator) generateTrial(index int, level string) trial.Trial {
	tr := trial.Trial{
		Item:        fmt.Sprintf("item_%04d", index+1),
		Categorical: map[string]string{g.config.ConditionPredictor: level},
		Samples:     make([][]float64, len(g.config.Channels)),
	}

	// Covariates are drawn before samples so the draw order is stable
	if len(g.config.Slopes) > 0 {
		tr.Continuous = make(map[string]float64)
		for _, s := range g.config.Slopes {
			if _, drawn := tr.Continuous[s.Predictor]; drawn {
				continue
			}
			tr.Continuous[s.Predictor] = s.Min + g.rng.Float64()*(s.Max-s.Min)
		}
	}

	for ch, channel := range g.config.Channels {
		row := make([]float64, g.config.Timepoints)
		for t := 0; t < g.config.Timepoints; t++ {
			v := g.trueValue(level, channel, t, tr.Continuous)
			v += g.rng.NormFloat64() * g.config.NoiseSD
			if g.config.MissingRate > 0 && g.rng.Float64() < g.config.MissingRate {
				v = math.NaN()
			}
			row[t] = v
		}
		tr.Samples[ch] = row
	}

	return tr
}

// trueValue returns the noiseless voltage for one cell of the ground truth
func (g *EpochGenerator) trueValue(level, channel string, timepoint int, covariates map[string]float64) float64 {
	v := g.background(timepoint)
	for _, e := range g.config.Effects {
		if e.Level != level {
			continue
		}
		if e.Channel != "" && e.Channel != channel {
			continue
		}
		if timepoint >= e.Start && timepoint <= e.End {
			v += e.Amplitude
		}
	}
	for _, s := range g.config.Slopes {
		if s.Channel != "" && s.Channel != channel {
			continue
		}
		if timepoint >= s.Start && timepoint <= s.End {
			v += s.Slope * covariates[s.Predictor]
		}
	}
	return v
}

// background is the condition-independent waveform shared by every trial
func (g *EpochGenerator) background(timepoint int) float64 {
	if g.config.BackgroundAmplitude == 0 {
		return 0
	}
	return g.config.BackgroundAmplitude * math.Sin(2*math.Pi*float64(timepoint)/float64(g.config.Timepoints))
}

func (g *EpochGenerator) validateConfig() error {
	c := g.config
	if c.TrialCount <= 0 {
		return core.NewValidationError("trial_count", "must be positive")
	}
	if c.Timepoints <= 0 {
		return core.NewValidationError("timepoints", "must be positive")
	}
	if len(c.Channels) == 0 {
		return core.NewValidationError("channels", "at least one channel is required")
	}
	if c.ConditionPredictor == "" {
		return core.NewValidationError("condition_predictor", "predictor name is required")
	}
	if len(c.Levels) == 0 {
		return core.NewValidationError("levels", "at least one level is required")
	}
	if c.NoiseSD < 0 {
		return core.NewValidationError("noise_sd", "must not be negative")
	}
	if c.MissingRate < 0 || c.MissingRate >= 1 {
		return core.NewValidationError("missing_rate", "must be in [0, 1)")
	}
	for _, e := range c.Effects {
		if !containsString(c.Levels, e.Level) {
			return core.NewValidationError("effects", fmt.Sprintf("effect references unknown level %q", e.Level))
		}
		if e.Channel != "" && !containsString(c.Channels, e.Channel) {
			return core.NewValidationError("effects", fmt.Sprintf("effect references unknown channel %q", e.Channel))
		}
		if e.Start < 0 || e.End >= c.Timepoints || e.Start > e.End {
			return core.NewValidationError("effects", fmt.Sprintf("effect window [%d, %d] is outside the epoch", e.Start, e.End))
		}
	}
	for _, s := range c.Slopes {
		if s.Predictor == "" {
			return core.NewValidationError("slopes", "slope predictor name is required")
		}
		if s.Channel != "" && !containsString(c.Channels, s.Channel) {
			return core.NewValidationError("slopes", fmt.Sprintf("slope references unknown channel %q", s.Channel))
		}
		if s.Start < 0 || s.End >= c.Timepoints || s.Start > s.End {
			return core.NewValidationError("slopes", fmt.Sprintf("slope window [%d, %d] is outside the epoch", s.Start, s.End))
		}
		if s.Min > s.Max {
			return core.NewValidationError("slopes", "slope range min exceeds max")
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
