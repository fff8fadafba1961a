// Package oscilloscope provides type definitions and unit conversion for
// oscilloscope recordings
package oscilloscope

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/nasa-jpl/scopesync/mathx"
)

// Channel represents a stream of data from an ADC.  To convert to physical units,
// compute (data-reference)*scale + offset
type Channel struct {
	// Data is the actual buffer, []int16, []uint16, or similar
	Data Data

	// Scale is the size of a single increment in Data's native dtype
	Scale float64

	// Offset is the offset applied to the data after scaling
	Offset float64

	// Reference is the reference value for the given channel in DN
	Reference float64
}

// Data is a moniker for an empty interface, expected to be a slice of a concrete
// numerical type
type Data interface{}

// FromDivisions returns a Channel for raw samples spanning fullScaleDivisions
// display divisions, each worth voltsPerDiv.  Physical then yields
// raw * voltsPerDiv / fullScaleDivisions.
func FromDivisions(raw []int16, voltsPerDiv, fullScaleDivisions float64) Channel {
	return Channel{Data: raw, Scale: voltsPerDiv / fullScaleDivisions}
}

// Physical computes the data scaled to real units
func (c Channel) Physical() []float64 {
	switch v := c.Data.(type) {
	case []int16:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = ((float64(v[i]) - c.Reference) * c.Scale) + c.Offset
		}
		return ret
	case []uint16:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = ((float64(v[i]) - c.Reference) * c.Scale) + c.Offset
		}
		return ret
	case []int8:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = ((float64(v[i]) - c.Reference) * c.Scale) + c.Offset
		}
		return ret
	case []uint8:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = ((float64(v[i]) - c.Reference) * c.Scale) + c.Offset
		}
		return ret
	case []float64:
		ret := make([]float64, len(v))
		for i := range v {
			ret[i] = ((v[i] - c.Reference) * c.Scale) + c.Offset
		}
		return ret
	default:
		panic("attempt to convert non numerical data to physical units")
	}
}

// Stats holds the summary statistics published alongside a waveform
type Stats struct {
	PeakToPeak float64
	Mean       float64
}

// Summarize computes the statistics of a physical waveform
func Summarize(v []float64) Stats {
	return Stats{PeakToPeak: mathx.PeakToPeak(v), Mean: mathx.Mean(v)}
}

// TimeAxis describes the horizontal axis of a record
type TimeAxis struct {
	// Origin is the time of the first sample relative to the trigger, in seconds
	Origin float64

	// Increment is the sample spacing in seconds
	Increment float64

	// Points is the number of samples in the record
	Points int
}

// Centered returns the TimeAxis of a record of points samples spanning
// timeRange seconds centered on the trigger
func Centered(timeRange float64, points int) (TimeAxis, error) {
	if points <= 0 {
		return TimeAxis{}, fmt.Errorf("record length must be positive, got %d", points)
	}
	inc := timeRange / float64(points)
	return TimeAxis{Origin: -timeRange / 2, Increment: inc, Points: points}, nil
}

// Times returns the time of every sample
func (t TimeAxis) Times() []float64 {
	return mathx.Arange(t.Origin, t.Increment, t.Points)
}

// SampleRate is the reciprocal of the increment
func (t TimeAxis) SampleRate() float64 {
	if t.Increment == 0 {
		return 0
	}
	return 1 / t.Increment
}

// Recording is a named sequence of samples
type Recording struct {
	// RelTimes is the relative time of each sample
	RelTimes []float64

	// Measurement is the actual numeric data
	Measurement []float64

	// Name is the label to use for the data
	Name string
}

// EncodeCSV writes the recording to a CSV file.  If RelTimes has the same
// length as Measurement, a time column is written first.
func (r Recording) EncodeCSV(w io.Writer) error {
	withTime := len(r.RelTimes) == len(r.Measurement) && len(r.RelTimes) > 0
	bw := bufio.NewWriter(w)
	writer := csv.NewWriter(bw)
	row := []string{r.Name}
	if withTime {
		row = []string{"time", r.Name}
	}
	if err := writer.Write(row); err != nil {
		return err
	}
	for i := range r.Measurement {
		m := strconv.FormatFloat(r.Measurement[i], 'G', -1, 64)
		if withTime {
			row[0] = strconv.FormatFloat(r.RelTimes[i], 'G', -1, 64)
			row[1] = m
		} else {
			row[0] = m
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
