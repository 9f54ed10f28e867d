package estimate

import (
	"rerp/domain/core"
)

// Waveform is a reconstructed rERP curve: the model-predicted voltage at
// every timepoint of one channel, for one requested condition.
type Waveform struct {
	Channel string `json:"channel"`
	// Label describes the condition the waveform was evaluated at.
	Label    string    `json:"label"`
	Voltages []float64 `json:"voltages"`
}

// Difference returns a - b pointwise: the estimated effect waveform between
// two conditions on the same channel.
func Difference(a, b *Waveform) (*Waveform, error) {
	if a == nil || b == nil {
		return nil, core.NewValidationError("waveform", "both operands are required")
	}
	if a.Channel != b.Channel {
		return nil, core.NewValidationError("channel", "waveforms come from different channels")
	}
	if len(a.Voltages) != len(b.Voltages) {
		return nil, core.NewValidationError("voltages", "waveform lengths differ")
	}
	diff := make([]float64, len(a.Voltages))
	for i := range diff {
		diff[i] = a.Voltages[i] - b.Voltages[i]
	}
	label := a.Label + " - " + b.Label
	return &Waveform{Channel: a.Channel, Label: label, Voltages: diff}, nil
}
