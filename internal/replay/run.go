package replay

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/knei-knurow/fusion"
)

// Stats summarises a replay.
type Stats struct {
	Samples int // Rows run through the filter
	Skipped int // Malformed rows dropped by the reader
}

// Run feeds every row of r through f and writes the estimate after each row to
// every sink. It stops at the end of the log, on the first error, or when ctx is done.
func Run(ctx context.Context, r *Reader, f *fusion.Fusion, units Units, logger *zap.SugaredLogger, sinks ...Sink) (stats Stats, err error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	defer func() { stats.Skipped = r.Skipped() }()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		s, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}

		if err := apply(f, units, s); err != nil {
			return stats, errors.Wrapf(err, "sample at t=%v", s.Time)
		}
		stats.Samples++

		e, err := estimate(f, s.Time)
		if err != nil {
			return stats, err
		}
		for _, sink := range sinks {
			if err := sink.Write(e); err != nil {
				return stats, err
			}
		}
	}

	if r.Skipped() > 0 {
		logger.Warnw("skipped malformed log rows", "skipped", r.Skipped())
	}
	logger.Debugw("replay finished", "samples", stats.Samples)
	return stats, nil
}

func apply(f *fusion.Fusion, units Units, s Sample) error {
	switch units {
	case UnitsDegreesG:
		return f.UpdateDegrees(s.DT, s.Gyro, s.Accel, s.Mag)
	case UnitsRadiansG:
		return f.Update(s.DT, s.Gyro, s.Accel, s.Mag)
	case UnitsSI:
		return f.UpdateSI(s.DT, s.Gyro, s.Accel, s.Mag)
	}
	return errors.Errorf("unknown units %q", units)
}

func estimate(f *fusion.Fusion, t float64) (Estimate, error) {
	e := Estimate{Time: t}
	var err error
	if e.Quaternion, err = f.Orientation(); err != nil {
		return e, err
	}
	if e.Euler, err = f.Euler(); err != nil {
		return e, err
	}
	if e.LinearAcceleration, err = f.LinearAcceleration(); err != nil {
		return e, err
	}
	if e.EarthAcceleration, err = f.EarthAcceleration(); err != nil {
		return e, err
	}
	e.Flags, err = f.Flags()
	return e, err
}
