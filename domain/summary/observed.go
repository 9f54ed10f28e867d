// Package summary computes classical per-condition averages from the raw
// trial data. The observed waveforms are the traditional ERP view; plotting
// them next to model reconstructions shows what the regression adds.
package summary

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"rerp/domain/design"
	"rerp/domain/trial"
)

// Observed is the classical average waveform for one condition level on one
// channel: per-timepoint mean voltage, standard error of the mean, and the
// number of contributing trials after missing samples are skipped.
type Observed struct {
	Predictor string    `json:"predictor"`
	Level     string    `json:"level"`
	Channel   string    `json:"channel"`
	N         []int     `json:"n"`
	Mean      []float64 `json:"mean"`
	SEM       []float64 `json:"sem"`
}

// Summarizer averages trials by categorical level.
type Summarizer struct{}

// NewSummarizer creates a new summarizer
func NewSummarizer() *Summarizer {
	return &Summarizer{}
}

// ByLevel computes one observed average per (level, channel) for a
// categorical predictor, levels and channels in sorted table order. A
// timepoint with no surviving samples gets NaN mean and SEM; a single
// surviving sample gets its value with NaN SEM.
func (s *Summarizer) ByLevel(table *trial.Table, predictor string) ([]Observed, error) {
	if table == nil || table.TrialCount() == 0 {
		return nil, &design.DesignSpecificationError{Predictor: predictor, Reason: "trial table is empty"}
	}
	if !table.HasCategorical(predictor) {
		return nil, &design.DesignSpecificationError{Predictor: predictor, Reason: "not a categorical predictor of every trial"}
	}

	levels := table.Levels(predictor)
	sort.Strings(levels)

	var out []Observed
	for _, level := range levels {
		for ch, channel := range table.Channels {
			obs, err := s.average(table, predictor, level, ch, channel)
			if err != nil {
				return nil, err
			}
			out = append(out, obs)
		}
	}
	return out, nil
}

func (s *Summarizer) average(table *trial.Table, predictor, level string, ch int, channel string) (Observed, error) {
	obs := Observed{
		Predictor: predictor,
		Level:     level,
		Channel:   channel,
		N:         make([]int, table.Timepoints),
		Mean:      make([]float64, table.Timepoints),
		SEM:       make([]float64, table.Timepoints),
	}

	for t := 0; t < table.Timepoints; t++ {
		var samples []float64
		for _, tr := range table.Trials {
			if tr.Categorical[predictor] != level {
				continue
			}
			v := tr.Samples[ch][t]
			if math.IsNaN(v) {
				continue
			}
			samples = append(samples, v)
		}

		obs.N[t] = len(samples)
		switch len(samples) {
		case 0:
			obs.Mean[t] = math.NaN()
			obs.SEM[t] = math.NaN()
		case 1:
			obs.Mean[t] = samples[0]
			obs.SEM[t] = math.NaN()
		default:
			mean, err := stats.Mean(samples)
			if err != nil {
				return Observed{}, err
			}
			sd, err := stats.StandardDeviationSample(samples)
			if err != nil {
				return Observed{}, err
			}
			obs.Mean[t] = mean
			obs.SEM[t] = sd / math.Sqrt(float64(len(samples)))
		}
	}
	return obs, nil
}
