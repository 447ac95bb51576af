package replay

import (
	"io"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestParseUnits(t *testing.T) {
	for in, want := range map[string]Units{
		"":          UnitsDegreesG,
		"degrees-g": UnitsDegreesG,
		"Radians-G": UnitsRadiansG,
		" si ":      UnitsSI,
	} {
		got, err := ParseUnits(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}

	_, err := ParseUnits("furlongs")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "furlongs")
}

func TestReader(t *testing.T) {
	const log = `time,accel_x,accel_y,accel_z,gyro_x,gyro_y,gyro_z,temperature
0.00,0,0,1,0.1,0.2,0.3,21.5
0.01,0,0,1.1,0.1,0.2,0.3,21.5
# calibration pause
0.02,0,zero,1,0,0,0,21.5
0.02,0,0,0.9,0,0,0,21.5
0.015,0,0,1,0,0,0,21.5
0.04,1,2,3,4,5,6,21.6
`
	r, err := NewReader(strings.NewReader(log))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.HasMagnetometer(), test.ShouldBeFalse)

	var samples []Sample
	for {
		s, err := r.Next()
		if err == io.EOF {
			break
		}
		test.That(t, err, test.ShouldBeNil)
		samples = append(samples, s)
	}

	test.That(t, samples, test.ShouldHaveLength, 5)
	test.That(t, r.Skipped(), test.ShouldEqual, 1)

	test.That(t, samples[0].DT, test.ShouldEqual, 0.0)
	test.That(t, samples[0].Gyro, test.ShouldResemble, [3]float64{0.1, 0.2, 0.3})
	test.That(t, samples[0].Accel, test.ShouldResemble, [3]float64{0, 0, 1})
	test.That(t, samples[0].Mag, test.ShouldBeNil)

	test.That(t, samples[1].DT, test.ShouldAlmostEqual, 0.01, 1e-12)
	test.That(t, samples[1].Accel[2], test.ShouldEqual, 1.1)

	// The malformed row is skipped, so the next one follows on from t=0.01
	test.That(t, samples[2].DT, test.ShouldAlmostEqual, 0.01, 1e-12)

	// Time going backwards gives a zero step
	test.That(t, samples[3].DT, test.ShouldEqual, 0.0)
	test.That(t, samples[4].DT, test.ShouldAlmostEqual, 0.02, 1e-12)
	test.That(t, samples[4].Gyro, test.ShouldResemble, [3]float64{4, 5, 6})
	test.That(t, samples[4].Accel, test.ShouldResemble, [3]float64{1, 2, 3})
}

func TestReaderNonFinite(t *testing.T) {
	const log = `time,gyro_x,gyro_y,gyro_z,accel_x,accel_y,accel_z
0.00,0,0,0,0,0,1
0.01,NaN,0,0,0,0,1
0.02,0,0,0,0,0,inf
+Inf,0,0,0,0,0,1
0.03,0,nan,0,0,0,-Inf
0.04,0,0,0.5,0,0,1
`
	r, err := NewReader(strings.NewReader(log))
	test.That(t, err, test.ShouldBeNil)

	first, err := r.Next()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Time, test.ShouldEqual, 0.0)

	// Every non-finite row is dropped and the step runs on from the last good row
	s, err := r.Next()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Time, test.ShouldEqual, 0.04)
	test.That(t, s.DT, test.ShouldAlmostEqual, 0.04, 1e-12)
	test.That(t, s.Gyro, test.ShouldResemble, [3]float64{0, 0, 0.5})

	_, err = r.Next()
	test.That(t, err, test.ShouldEqual, io.EOF)
	test.That(t, r.Skipped(), test.ShouldEqual, 4)
}

func TestReaderMagnetometer(t *testing.T) {
	const log = `time,gyro_x,gyro_y,gyro_z,accel_x,accel_y,accel_z,mag_x,mag_y,mag_z
0,0,0,0,0,0,1,20,0,-40
0.01,0,0,0,0,0,1,20,0
`
	r, err := NewReader(strings.NewReader(log))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.HasMagnetometer(), test.ShouldBeTrue)

	s, err := r.Next()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Mag, test.ShouldNotBeNil)
	test.That(t, *s.Mag, test.ShouldResemble, [3]float64{20, 0, -40})

	// Short row
	_, err = r.Next()
	test.That(t, err, test.ShouldEqual, io.EOF)
	test.That(t, r.Skipped(), test.ShouldEqual, 1)
}

func TestReaderHeader(t *testing.T) {
	_, err := NewReader(strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "empty")

	_, err = NewReader(strings.NewReader("time,gyro_x,gyro_y,gyro_z,accel_x,accel_y\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "accel_z")

	_, err = NewReader(strings.NewReader("time,gyro_x,gyro_y,gyro_z,accel_x,accel_y,accel_z,mag_x\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "magnetometer")
}
