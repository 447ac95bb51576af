// Package replay runs recorded IMU logs through a fusion filter and writes the
// resulting estimates to one or more sinks.
package replay

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Units selects how the columns of a log are interpreted.
type Units string

const (
	// UnitsDegreesG is gyro in deg/s and accelerometer in g.
	UnitsDegreesG Units = "degrees-g"
	// UnitsRadiansG is gyro in rad/s and accelerometer in g.
	UnitsRadiansG Units = "radians-g"
	// UnitsSI is gyro in rad/s and accelerometer in m/s^2.
	UnitsSI Units = "si"
)

// ParseUnits parses one of the Units constants.
func ParseUnits(s string) (Units, error) {
	switch u := Units(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitsDegreesG, UnitsRadiansG, UnitsSI:
		return u, nil
	case "":
		return UnitsDegreesG, nil
	}
	return "", errors.Errorf("unknown units %q (want %s, %s or %s)", s, UnitsDegreesG, UnitsRadiansG, UnitsSI)
}

// Sample is one row of a log.
type Sample struct {
	Time  float64     // s
	DT    float64     // Time since the previous accepted row, zero for the first row
	Gyro  [3]float64  // Units depend on the log
	Accel [3]float64  // Units depend on the log
	Mag   *[3]float64 // nil when the log has no magnetometer columns
}

var (
	requiredColumns = []string{"time", "gyro_x", "gyro_y", "gyro_z", "accel_x", "accel_y", "accel_z"}
	magColumns      = []string{"mag_x", "mag_y", "mag_z"}
)

// Reader reads Samples from a CSV log. The first line is a header naming the
// columns; column order is free and unknown columns are ignored.
type Reader struct {
	csv     *csv.Reader
	columns map[string]int
	hasMag  bool

	prevTime float64
	started  bool
	skipped  int
}

// NewReader reads the header of a log and returns a Reader positioned at the first row.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("log is empty")
		}
		return nil, errors.Wrap(err, "cannot read log header")
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, errors.Errorf("log header is missing column %q", name)
		}
	}

	found := 0
	for _, name := range magColumns {
		if _, ok := columns[name]; ok {
			found++
		}
	}
	if found != 0 && found != len(magColumns) {
		return nil, errors.Errorf("log header has %d of the 3 magnetometer columns", found)
	}

	return &Reader{csv: cr, columns: columns, hasMag: found == len(magColumns)}, nil
}

// HasMagnetometer reports whether the log carries magnetometer columns.
func (r *Reader) HasMagnetometer() bool {
	return r.hasMag
}

// Skipped returns the number of rows dropped so far because they could not be parsed.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Next returns the next well-formed row, or io.EOF at the end of the log.
// Malformed rows, including rows with NaN or infinite values, are skipped and
// counted. A timestamp that does not increase
// gives a zero DT.
func (r *Reader) Next() (Sample, error) {
	for {
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return Sample{}, io.EOF
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				r.skipped++
				continue
			}
			return Sample{}, errors.Wrap(err, "cannot read log")
		}

		s, ok := r.parse(record)
		if !ok {
			r.skipped++
			continue
		}

		if r.started && s.Time > r.prevTime {
			s.DT = s.Time - r.prevTime
		}
		if !r.started || s.Time > r.prevTime {
			r.prevTime = s.Time
		}
		r.started = true
		return s, nil
	}
}

func (r *Reader) parse(record []string) (Sample, bool) {
	field := func(name string) (float64, bool) {
		i := r.columns[name]
		if i >= len(record) {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	triple := func(names []string) ([3]float64, bool) {
		var out [3]float64
		for i, name := range names {
			v, ok := field(name)
			if !ok {
				return out, false
			}
			out[i] = v
		}
		return out, true
	}

	var s Sample
	var ok bool
	if s.Time, ok = field("time"); !ok {
		return s, false
	}
	if s.Gyro, ok = triple(requiredColumns[1:4]); !ok {
		return s, false
	}
	if s.Accel, ok = triple(requiredColumns[4:7]); !ok {
		return s, false
	}
	if r.hasMag {
		mag, ok := triple(magColumns)
		if !ok {
			return s, false
		}
		s.Mag = &mag
	}
	return s, true
}
