package fusion

import "math"

// Offset tracks a slowly varying gyroscope offset. Whenever the body has been
// near-stationary for long enough, the observed angular rate is low-pass
// filtered into the offset estimate. The current estimate is subtracted from
// every sample, moving or not.
type Offset struct {
	settings OffsetSettings

	offset     Vector  // Current offset estimate (rad/s)
	mean       float64 // Rolling mean of the corrected rate magnitude (rad/s)
	timer      float64 // Time spent stationary so far (s)
	stationary bool
}

// NewOffset returns an offset estimator with a zero initial offset.
func NewOffset(settings OffsetSettings) *Offset {
	return &Offset{settings: settings}
}

// Correct removes the current offset from gyro and advances the estimator by dt seconds.
func (o *Offset) Correct(gyro Vector, dt float64) Vector {
	corrected := gyro.Sub(o.offset)

	// Update the rolling mean of the rate magnitude (exponentially weighted over the window)
	if dt > 0 {
		alpha := dt / (o.settings.Window + dt)
		o.mean += alpha * (corrected.Norm() - o.mean)
	}

	// Any axis above the threshold means the body is moving
	if corrected.maxAbs() > o.settings.Threshold || o.mean > o.settings.Threshold {
		o.timer = 0
		o.stationary = false
		return corrected
	}
	o.stationary = true

	// Wait for the body to settle before learning anything
	if o.timer < o.settings.SettleTime {
		o.timer += dt
		return corrected
	}

	k := 2 * math.Pi * o.settings.CutoffFrequency * dt
	if k > 1 {
		k = 1
	}
	maxStep := o.settings.MaxRate * dt
	o.offset = Vector{
		X: clamp(o.offset.X+clamp(k*corrected.X, -maxStep, maxStep), -o.settings.MaxOffset, o.settings.MaxOffset),
		Y: clamp(o.offset.Y+clamp(k*corrected.Y, -maxStep, maxStep), -o.settings.MaxOffset, o.settings.MaxOffset),
		Z: clamp(o.offset.Z+clamp(k*corrected.Z, -maxStep, maxStep), -o.settings.MaxOffset, o.settings.MaxOffset),
	}

	return corrected
}

// Value returns the current offset estimate in rad/s.
func (o *Offset) Value() Vector {
	return o.offset
}

// Stationary reports whether the last sample was inside a stationary window.
func (o *Offset) Stationary() bool {
	return o.stationary
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
