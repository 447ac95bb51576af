package fusion

// GyroscopeOffset returns the current gyroscope offset estimate (rad/s).
func (a *AHRS) GyroscopeOffset() Vector {
	return a.offset.Value()
}

// Stationary reports whether the offset estimator considered the last sample stationary.
func (a *AHRS) Stationary() bool {
	return a.offset.Stationary()
}
