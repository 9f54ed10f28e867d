package design

// Transform records the mapping applied to one continuous predictor when the
// design matrix was built. Reconstruction uses it to project raw predictor
// values into model space, so requested conditions keep the originally
// specified semantics.
type Transform struct {
	Predictor string
	// Inverted reports that raw values were replaced with Anchor - v.
	Inverted bool
	Anchor   float64
	// Offset is subtracted after any inversion. Zero when uncentered.
	Offset float64
	// Scale divides after the offset. One when unscaled.
	Scale float64
}

// IdentityTransform returns the transform that leaves values untouched.
func IdentityTransform(predictor string) Transform {
	return Transform{Predictor: predictor, Scale: 1}
}

// Apply maps a raw predictor value into model space.
func (tr Transform) Apply(raw float64) float64 {
	v := raw
	if tr.Inverted {
		v = tr.Anchor - v
	}
	return (v - tr.Offset) / tr.Scale
}

// Invert maps a model-space value back to the raw predictor scale.
func (tr Transform) Invert(encoded float64) float64 {
	v := encoded*tr.Scale + tr.Offset
	if tr.Inverted {
		v = tr.Anchor - v
	}
	return v
}
