package replay

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/knei-knurow/fusion"
)

type memorySink struct {
	estimates []Estimate
	err       error
	closed    bool
}

func (s *memorySink) Write(e Estimate) error {
	if s.err != nil {
		return s.err
	}
	s.estimates = append(s.estimates, e)
	return nil
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

// rotatingLog builds a log of a level body turning about z at rateDeg deg/s,
// expressed in the given units.
func rotatingLog(units Units, rows int, rateDeg float64) string {
	var b strings.Builder
	b.WriteString("time,gyro_x,gyro_y,gyro_z,accel_x,accel_y,accel_z\n")
	rate, accel := rateDeg, 1.0
	switch units {
	case UnitsRadiansG:
		rate = rateDeg * math.Pi / 180
	case UnitsSI:
		rate = rateDeg * math.Pi / 180
		accel = 9.81
	}
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%g,0,0,%g,0,0,%g\n", float64(i)*0.01, rate, accel)
	}
	b.WriteString("garbage row\n")
	return b.String()
}

func newTestFusion(t *testing.T) *fusion.Fusion {
	t.Helper()
	f, err := fusion.New(9.81, fusion.DefaultSettings(), zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)
	return f
}

func TestRun(t *testing.T) {
	for _, units := range []Units{UnitsDegreesG, UnitsRadiansG, UnitsSI} {
		t.Run(string(units), func(t *testing.T) {
			r, err := NewReader(strings.NewReader(rotatingLog(units, 101, 45)))
			test.That(t, err, test.ShouldBeNil)
			f := newTestFusion(t)
			defer f.Close()

			sink := &memorySink{}
			stats, err := Run(context.Background(), r, f, units, zaptest.NewLogger(t).Sugar(), sink)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, stats, test.ShouldResemble, Stats{Samples: 101, Skipped: 1})
			test.That(t, sink.estimates, test.ShouldHaveLength, 101)

			// One second at 45 deg/s
			last := sink.estimates[100]
			test.That(t, last.Time, test.ShouldAlmostEqual, 1.0, 1e-12)
			test.That(t, last.Euler.Yaw, test.ShouldAlmostEqual, math.Pi/4, 1e-4)
			test.That(t, last.Flags.Initializing, test.ShouldBeTrue)
			test.That(t, last.LinearAcceleration[2], test.ShouldAlmostEqual, 0, 1e-9)
		})
	}
}

func TestRunSkipsNonFiniteRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("time,gyro_x,gyro_y,gyro_z,accel_x,accel_y,accel_z\n")
	for i := 0; i < 100; i++ {
		switch i {
		case 10:
			b.WriteString("0.1,NaN,0,0,0,0,1\n")
		case 20:
			b.WriteString("Inf,0,0,0,0,0,1\n")
		default:
			fmt.Fprintf(&b, "%g,0,0,0,0,0,1\n", float64(i)*0.01)
		}
	}

	r, err := NewReader(strings.NewReader(b.String()))
	test.That(t, err, test.ShouldBeNil)
	f := newTestFusion(t)
	defer f.Close()

	sink := &memorySink{}
	stats, err := Run(context.Background(), r, f, UnitsDegreesG, zaptest.NewLogger(t).Sugar(), sink)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats, test.ShouldResemble, Stats{Samples: 98, Skipped: 2})

	q, err := f.Orientation()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q, test.ShouldResemble, [4]float64{1, 0, 0, 0})
	for _, e := range sink.estimates {
		for _, v := range e.Quaternion {
			test.That(t, math.IsNaN(v), test.ShouldBeFalse)
		}
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("sink error stops the replay", func(t *testing.T) {
		r, err := NewReader(strings.NewReader(rotatingLog(UnitsDegreesG, 10, 0)))
		test.That(t, err, test.ShouldBeNil)
		f := newTestFusion(t)
		defer f.Close()

		sink := &memorySink{err: errors.New("disk full")}
		stats, err := Run(context.Background(), r, f, UnitsDegreesG, nil, sink)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "disk full")
		test.That(t, stats.Samples, test.ShouldEqual, 1)
	})

	t.Run("closed filter", func(t *testing.T) {
		r, err := NewReader(strings.NewReader(rotatingLog(UnitsDegreesG, 10, 0)))
		test.That(t, err, test.ShouldBeNil)
		f := newTestFusion(t)
		test.That(t, f.Close(), test.ShouldBeNil)

		_, err = Run(context.Background(), r, f, UnitsDegreesG, nil)
		test.That(t, errors.Is(err, fusion.ErrClosed), test.ShouldBeTrue)
	})

	t.Run("cancelled", func(t *testing.T) {
		r, err := NewReader(strings.NewReader(rotatingLog(UnitsDegreesG, 10, 0)))
		test.That(t, err, test.ShouldBeNil)
		f := newTestFusion(t)
		defer f.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		stats, err := Run(ctx, r, f, UnitsDegreesG, nil)
		test.That(t, err, test.ShouldBeError, context.Canceled)
		test.That(t, stats.Samples, test.ShouldEqual, 0)
	})

	t.Run("unknown units", func(t *testing.T) {
		r, err := NewReader(strings.NewReader(rotatingLog(UnitsDegreesG, 10, 0)))
		test.That(t, err, test.ShouldBeNil)
		f := newTestFusion(t)
		defer f.Close()

		_, err = Run(context.Background(), r, f, Units("parsecs"), nil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "parsecs")
	})
}
