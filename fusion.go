package fusion

import (
	"math"
	"sync"

	"go.uber.org/zap"
)

// Fusion owns one AHRS and makes it safe for concurrent use. Updates are
// serialised; queries run concurrently with each other and observe the state
// after the last completed update.
type Fusion struct {
	logger  *zap.SugaredLogger
	gravity float64 // Standard gravity in m/s^2, used by the SI conversions

	mu     sync.RWMutex
	ahrs   *AHRS
	closed bool
}

// New returns a Fusion filter. gravity (m/s^2) scales the SI update and query
// variants and must be positive. A nil logger disables logging.
func New(gravity float64, settings Settings, logger *zap.SugaredLogger) (*Fusion, error) {
	if !isFinite(gravity) || gravity <= 0 {
		return nil, newConfigurationError("gravity", "must be finite and positive, got %v", gravity)
	}
	ahrs, err := NewAHRS(settings)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Debugw("fusion filter created",
		"convention", settings.Convention,
		"gain", settings.Gain,
		"initialization_period", settings.InitializationPeriod,
		"gravity", gravity)
	return &Fusion{logger: logger, gravity: gravity, ahrs: ahrs}, nil
}

// Update advances the filter. gyro is in rad/s, accel in g and mag, which may
// be nil, in any self-consistent units.
func (f *Fusion) Update(dt float64, gyro, accel [3]float64, mag *[3]float64) error {
	var m *Vector
	if mag != nil {
		v := VectorFrom(*mag)
		m = &v
	}
	return f.update(dt, func(a *AHRS) {
		a.Update(dt, VectorFrom(gyro), VectorFrom(accel), m)
	})
}

// UpdateNoMagnetometer advances the filter without a magnetometer reading.
// gyro is in rad/s and accel in g.
func (f *Fusion) UpdateNoMagnetometer(dt float64, gyro, accel [3]float64) error {
	return f.update(dt, func(a *AHRS) {
		a.UpdateNoMagnetometer(dt, VectorFrom(gyro), VectorFrom(accel))
	})
}

// UpdateExternalHeading advances the filter using heading (radians) in place
// of a magnetometer. gyro is in rad/s and accel in g.
func (f *Fusion) UpdateExternalHeading(dt float64, gyro, accel [3]float64, heading float64) error {
	return f.update(dt, func(a *AHRS) {
		a.UpdateExternalHeading(dt, VectorFrom(gyro), VectorFrom(accel), heading)
	})
}

// UpdateSI advances the filter with gyro in rad/s and accel in m/s^2.
func (f *Fusion) UpdateSI(dt float64, gyro, accel [3]float64, mag *[3]float64) error {
	return f.Update(dt, gyro, VectorFrom(accel).Scale(1/f.gravity).Array(), mag)
}

// UpdateDegrees advances the filter with gyro in deg/s and accel in g.
func (f *Fusion) UpdateDegrees(dt float64, gyro, accel [3]float64, mag *[3]float64) error {
	return f.Update(dt, VectorFrom(gyro).Scale(math.Pi/180).Array(), accel, mag)
}

func (f *Fusion) update(dt float64, step func(a *AHRS)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if !isFinite(dt) || dt < 0 {
		return ErrInvalidDeltaTime
	}

	wasInitializing := f.ahrs.state == StateInitializing
	wasRecovering := f.ahrs.angularRateRecovery

	step(f.ahrs)

	if wasInitializing && f.ahrs.state == StateSteady {
		f.logger.Debugw("fusion filter initialized", "elapsed", f.ahrs.elapsed)
	}
	if !wasRecovering && f.ahrs.angularRateRecovery {
		f.logger.Infow("gyroscope saturated, restarting gain ramp",
			"elapsed", f.ahrs.elapsed, "range", f.ahrs.settings.GyroscopeRange)
	}
	return nil
}

// view runs fn on the filter under the read lock.
func (f *Fusion) view(fn func(a *AHRS)) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}
	fn(f.ahrs)
	return nil
}

// Orientation returns the orientation quaternion as (w,x,y,z).
func (f *Fusion) Orientation() ([4]float64, error) {
	var q [4]float64
	err := f.view(func(a *AHRS) { q = a.Orientation() })
	return q, err
}

// LinearAcceleration returns the sensor frame acceleration with gravity removed, in g.
func (f *Fusion) LinearAcceleration() ([3]float64, error) {
	var v [3]float64
	err := f.view(func(a *AHRS) { v = a.LinearAcceleration().Array() })
	return v, err
}

// LinearAccelerationSI returns the sensor frame acceleration with gravity removed, in m/s^2.
func (f *Fusion) LinearAccelerationSI() ([3]float64, error) {
	var v [3]float64
	err := f.view(func(a *AHRS) { v = a.LinearAcceleration().Scale(f.gravity).Array() })
	return v, err
}

// EarthAcceleration returns the earth frame acceleration with gravity removed, in g.
func (f *Fusion) EarthAcceleration() ([3]float64, error) {
	var v [3]float64
	err := f.view(func(a *AHRS) { v = a.EarthAcceleration().Array() })
	return v, err
}

// Euler returns the ZYX Euler angles of the current estimate.
func (f *Fusion) Euler() (EulerAngles, error) {
	var e EulerAngles
	err := f.view(func(a *AHRS) { e = a.Euler() })
	return e, err
}

// Fused returns the fused angles of the current estimate.
func (f *Fusion) Fused() (FusedAngles, error) {
	var fa FusedAngles
	err := f.view(func(a *AHRS) { fa = a.Fused() })
	return fa, err
}

// Flags returns the current mode flags.
func (f *Fusion) Flags() (Flags, error) {
	var fl Flags
	err := f.view(func(a *AHRS) { fl = a.Flags() })
	return fl, err
}

// InternalStates returns the feedback bookkeeping of the last update.
func (f *Fusion) InternalStates() (InternalStates, error) {
	var s InternalStates
	err := f.view(func(a *AHRS) { s = a.InternalStates() })
	return s, err
}

// GyroscopeOffset returns the current gyroscope offset estimate in rad/s.
func (f *Fusion) GyroscopeOffset() ([3]float64, error) {
	var v [3]float64
	err := f.view(func(a *AHRS) { v = a.GyroscopeOffset().Array() })
	return v, err
}

// State returns the phase of the filter.
func (f *Fusion) State() (State, error) {
	var s State
	err := f.view(func(a *AHRS) { s = a.State() })
	return s, err
}

// Gravity returns the gravity magnitude the filter was constructed with, in m/s^2.
func (f *Fusion) Gravity() float64 {
	return f.gravity
}

// Close releases the filter. Every later call returns ErrClosed, except Close itself.
func (f *Fusion) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.ahrs = nil
	f.logger.Debug("fusion filter closed")
	return nil
}
