package fusion

import (
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Convention is the earth axes convention of the orientation estimate.
type Convention int

const (
	// ConventionNWU is North-West-Up (default).
	ConventionNWU Convention = iota
	// ConventionENU is East-North-Up.
	ConventionENU
	// ConventionNED is North-East-Down.
	ConventionNED

	conventionCount
)

func (c Convention) String() string {
	switch c {
	case ConventionNWU:
		return "nwu"
	case ConventionENU:
		return "enu"
	case ConventionNED:
		return "ned"
	default:
		return "unknown"
	}
}

// ParseConvention parses "nwu", "enu" or "ned" (case insensitive).
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nwu", "":
		return ConventionNWU, nil
	case "enu":
		return ConventionENU, nil
	case "ned":
		return ConventionNED, nil
	}
	return ConventionNWU, errors.Errorf("unknown axes convention %q", s)
}

// OffsetSettings configures the gyroscope offset estimator. Rates are in rad/s and times in s.
type OffsetSettings struct {
	Threshold       float64 `json:"threshold"`        // Per-axis rate below which the body may be stationary
	SettleTime      float64 `json:"settle_time"`      // How long the body must stay stationary before the offset is learnt
	Window          float64 `json:"window"`           // Time constant of the rolling mean of the rate magnitude
	CutoffFrequency float64 `json:"cutoff_frequency"` // Cutoff of the low-pass filter blending rates into the offset (Hz)
	MaxRate         float64 `json:"max_rate"`         // Largest per-axis change of the offset per second (rad/s^2)
	MaxOffset       float64 `json:"max_offset"`       // Largest per-axis magnitude of the offset
}

// Settings configures an AHRS. Angles are in radians, angular rates in rad/s and
// times in seconds. Settings are copied into the filter at construction and
// cannot be changed afterwards.
//
// A zero GyroscopeRange, AccelerationTolerance, AccelerationRejection,
// MagneticRejection or RecoveryTriggerPeriod, or a zero MagneticFieldMin and
// MagneticFieldMax pair, switches that check off rather than failing Validate.
// Any other empty or inverted range is a ConfigurationError.
type Settings struct {
	Convention Convention `json:"convention"`

	Gain                 float64 `json:"gain"`                  // Accelerometer feedback gain in steady operation
	MagnetometerGain     float64 `json:"magnetometer_gain"`     // Magnetometer feedback gain in steady operation
	InitialGain          float64 `json:"initial_gain"`          // Feedback gain at construction, faded out over InitializationPeriod
	InitializationPeriod float64 `json:"initialization_period"` // Duration of the fast-convergence ramp

	GyroscopeRange        float64 `json:"gyroscope_range"`        // Gyro saturation level, zero disables angular rate recovery
	AccelerationTolerance float64 `json:"acceleration_tolerance"` // Allowed | |acc| - 1g |, zero disables
	AccelerationRejection float64 `json:"acceleration_rejection"` // Largest accepted gravity error angle, zero disables
	MagneticRejection     float64 `json:"magnetic_rejection"`     // Largest accepted heading error angle, zero disables
	MagneticFieldMin      float64 `json:"magnetic_field_min"`     // Accepted field magnitude range, both zero disables
	MagneticFieldMax      float64 `json:"magnetic_field_max"`
	RecoveryTriggerPeriod float64 `json:"recovery_trigger_period"` // Rejection time after which feedback is forced back on, zero disables rejection

	Offset OffsetSettings `json:"offset"`
}

// DefaultSettings returns the settings the filter is tuned for.
func DefaultSettings() Settings {
	return Settings{
		Convention:            ConventionNWU,
		Gain:                  0.5,
		MagnetometerGain:      0.5,
		InitialGain:           10,
		InitializationPeriod:  3,
		GyroscopeRange:        degToRad(2000),
		AccelerationTolerance: 0.5,
		AccelerationRejection: degToRad(10),
		MagneticRejection:     degToRad(10),
		RecoveryTriggerPeriod: 5,
		Offset: OffsetSettings{
			Threshold:       degToRad(3),
			SettleTime:      5,
			Window:          1,
			CutoffFrequency: 0.02,
			MaxRate:         0.01,
			MaxOffset:       degToRad(10),
		},
	}
}

// Validate checks every field and returns all problems found, combined with
// multierr. Each individual error is a *ConfigurationError.
func (s Settings) Validate() error {
	var err error

	if s.Convention < 0 || s.Convention >= conventionCount {
		err = multierr.Append(err, newConfigurationError("convention", "unknown convention %d", int(s.Convention)))
	}

	nonNegative := []struct {
		field string
		value float64
	}{
		{"gain", s.Gain},
		{"magnetometer_gain", s.MagnetometerGain},
		{"initial_gain", s.InitialGain},
		{"initialization_period", s.InitializationPeriod},
		{"gyroscope_range", s.GyroscopeRange},
		{"acceleration_tolerance", s.AccelerationTolerance},
		{"magnetic_field_min", s.MagneticFieldMin},
		{"magnetic_field_max", s.MagneticFieldMax},
		{"recovery_trigger_period", s.RecoveryTriggerPeriod},
		{"offset.settle_time", s.Offset.SettleTime},
		{"offset.cutoff_frequency", s.Offset.CutoffFrequency},
	}
	for _, f := range nonNegative {
		if !isFinite(f.value) || f.value < 0 {
			err = multierr.Append(err, newConfigurationError(f.field, "must be finite and non-negative, got %v", f.value))
		}
	}

	positive := []struct {
		field string
		value float64
	}{
		{"offset.threshold", s.Offset.Threshold},
		{"offset.window", s.Offset.Window},
		{"offset.max_rate", s.Offset.MaxRate},
		{"offset.max_offset", s.Offset.MaxOffset},
	}
	for _, f := range positive {
		if !isFinite(f.value) || f.value <= 0 {
			err = multierr.Append(err, newConfigurationError(f.field, "must be finite and positive, got %v", f.value))
		}
	}

	for _, f := range []struct {
		field string
		value float64
	}{
		{"acceleration_rejection", s.AccelerationRejection},
		{"magnetic_rejection", s.MagneticRejection},
	} {
		if !isFinite(f.value) || f.value < 0 || f.value > math.Pi/2 {
			err = multierr.Append(err, newConfigurationError(f.field, "must be an angle in [0, pi/2] rad, got %v", f.value))
		}
	}

	if (s.MagneticFieldMin != 0 || s.MagneticFieldMax != 0) && !(s.MagneticFieldMax > s.MagneticFieldMin) {
		err = multierr.Append(err, newConfigurationError("magnetic_field_max",
			"field range [%v, %v] is empty", s.MagneticFieldMin, s.MagneticFieldMax))
	}

	return err
}

// settingsFile is the YAML layout of Settings. Angles are written in degrees
// and angular rates in degrees per second.
type settingsFile struct {
	Convention string `yaml:"convention"`

	Gain                 float64 `yaml:"gain"`
	MagnetometerGain     float64 `yaml:"magnetometer_gain"`
	InitialGain          float64 `yaml:"initial_gain"`
	InitializationPeriod float64 `yaml:"initialization_period"`

	GyroscopeRangeDeg        float64 `yaml:"gyroscope_range_dps"`
	AccelerationTolerance    float64 `yaml:"acceleration_tolerance"`
	AccelerationRejectionDeg float64 `yaml:"acceleration_rejection_deg"`
	MagneticRejectionDeg     float64 `yaml:"magnetic_rejection_deg"`
	MagneticFieldMin         float64 `yaml:"magnetic_field_min"`
	MagneticFieldMax         float64 `yaml:"magnetic_field_max"`
	RecoveryTriggerPeriod    float64 `yaml:"recovery_trigger_period"`

	Offset struct {
		ThresholdDeg    float64 `yaml:"threshold_dps"`
		SettleTime      float64 `yaml:"settle_time"`
		Window          float64 `yaml:"window"`
		CutoffFrequency float64 `yaml:"cutoff_frequency"`
		MaxRateDeg      float64 `yaml:"max_rate_dps2"`
		MaxOffsetDeg    float64 `yaml:"max_offset_dps"`
	} `yaml:"offset"`
}

func newSettingsFile(s Settings) settingsFile {
	var f settingsFile
	f.Convention = s.Convention.String()
	f.Gain = s.Gain
	f.MagnetometerGain = s.MagnetometerGain
	f.InitialGain = s.InitialGain
	f.InitializationPeriod = s.InitializationPeriod
	f.GyroscopeRangeDeg = radToDeg(s.GyroscopeRange)
	f.AccelerationTolerance = s.AccelerationTolerance
	f.AccelerationRejectionDeg = radToDeg(s.AccelerationRejection)
	f.MagneticRejectionDeg = radToDeg(s.MagneticRejection)
	f.MagneticFieldMin = s.MagneticFieldMin
	f.MagneticFieldMax = s.MagneticFieldMax
	f.RecoveryTriggerPeriod = s.RecoveryTriggerPeriod
	f.Offset.ThresholdDeg = radToDeg(s.Offset.Threshold)
	f.Offset.SettleTime = s.Offset.SettleTime
	f.Offset.Window = s.Offset.Window
	f.Offset.CutoffFrequency = s.Offset.CutoffFrequency
	f.Offset.MaxRateDeg = radToDeg(s.Offset.MaxRate)
	f.Offset.MaxOffsetDeg = radToDeg(s.Offset.MaxOffset)
	return f
}

func (f settingsFile) settings() (Settings, error) {
	convention, err := ParseConvention(f.Convention)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Convention:            convention,
		Gain:                  f.Gain,
		MagnetometerGain:      f.MagnetometerGain,
		InitialGain:           f.InitialGain,
		InitializationPeriod:  f.InitializationPeriod,
		GyroscopeRange:        degToRad(f.GyroscopeRangeDeg),
		AccelerationTolerance: f.AccelerationTolerance,
		AccelerationRejection: degToRad(f.AccelerationRejectionDeg),
		MagneticRejection:     degToRad(f.MagneticRejectionDeg),
		MagneticFieldMin:      f.MagneticFieldMin,
		MagneticFieldMax:      f.MagneticFieldMax,
		RecoveryTriggerPeriod: f.RecoveryTriggerPeriod,
		Offset: OffsetSettings{
			Threshold:       degToRad(f.Offset.ThresholdDeg),
			SettleTime:      f.Offset.SettleTime,
			Window:          f.Offset.Window,
			CutoffFrequency: f.Offset.CutoffFrequency,
			MaxRate:         degToRad(f.Offset.MaxRateDeg),
			MaxOffset:       degToRad(f.Offset.MaxOffsetDeg),
		},
	}, nil
}

// ParseSettings decodes YAML settings. Fields missing from the document keep
// their DefaultSettings value. The result is validated.
func ParseSettings(data []byte) (Settings, error) {
	f := newSettingsFile(DefaultSettings())
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Settings{}, errors.Wrap(err, "cannot decode settings")
	}
	s, err := f.settings()
	if err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadSettings reads and parses a YAML settings file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, errors.Wrapf(err, "cannot read settings file %s", path)
	}
	s, err := ParseSettings(data)
	if err != nil {
		return Settings{}, errors.Wrapf(err, "settings file %s", path)
	}
	return s, nil
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func radToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
