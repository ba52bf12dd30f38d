// Package header interprets the one-time ASCII header page published by
// the ringbuffer writer and resolves it into the fixed operating
// parameters of a capture run.
package header

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Fixed instrument parameters. A page always carries 1536 frequency
// channels of 8-bit Stokes I samples.
const (
	NChannels = 1536
	NBits     = 8
)

// ErrConfig marks an unusable header: an unknown science case or mode,
// an unsupported data kind, or a padded size too small for the derived
// sample count.
var ErrConfig = errors.New("invalid observation configuration")

// Observation holds the header fields recognized by dadafilterbank.
// Fields absent from the header page keep the defaults from
// DefaultObservation, which select the lowest data rate.
type Observation struct {
	MinFrequency float64
	Bandwidth    float64
	RA           float64
	Dec          float64
	Source       string
	AzStart      float64
	ZaStart      float64
	MJDStart     float64
	ScienceCase  int
	ScienceMode  int
	PaddedSize   int

	// Raw preserves the header page text for logging.
	Raw string
}

// DefaultObservation returns the pre-seeded defaults: science case 3
// (12500 samples per page) in IAB mode with minimal padding.
func DefaultObservation() Observation {
	return Observation{
		ScienceCase: 3,
		ScienceMode: 2,
		PaddedSize:  12500,
	}
}

// Parse reads KEY VALUE lines from a header page. Unrecognized keys are
// ignored and absent keys keep their defaults, but a recognized key with
// a malformed value is rejected rather than silently defaulted.
func Parse(raw []byte) (Observation, error) {
	obs := DefaultObservation()
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	obs.Raw = string(raw)

	sc := bufio.NewScanner(strings.NewReader(obs.Raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key, value := fields[0], fields[1]

		var err error
		switch key {
		case "MIN_FREQUENCY":
			obs.MinFrequency, err = parseFloat(key, value)
		case "BW":
			obs.Bandwidth, err = parseFloat(key, value)
		case "RA":
			obs.RA, err = parseFloat(key, value)
		case "DEC":
			obs.Dec, err = parseFloat(key, value)
		case "SOURCE":
			obs.Source = value
		case "AZ_START":
			obs.AzStart, err = parseFloat(key, value)
		case "ZA_START":
			obs.ZaStart, err = parseFloat(key, value)
		case "MJD_START":
			obs.MJDStart, err = parseFloat(key, value)
		case "SCIENCE_CASE":
			obs.ScienceCase, err = parseInt(key, value)
		case "SCIENCE_MODE":
			obs.ScienceMode, err = parseInt(key, value)
		case "PADDED_SIZE":
			obs.PaddedSize, err = parseInt(key, value)
		}
		if err != nil {
			return Observation{}, err
		}
	}
	if err := sc.Err(); err != nil {
		return Observation{}, fmt.Errorf("%w: scan header: %v", ErrConfig, err)
	}
	return obs, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: header field %s: %q is not a number", ErrConfig, key, value)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: header field %s: %q is not an integer", ErrConfig, key, value)
	}
	return v, nil
}

// Params are the derived operating parameters of a run.
type Params struct {
	// NTimes is the number of valid samples per channel per page.
	NTimes int
	// TSamp is the sample interval in seconds.
	TSamp float64
	// NTabs is the number of tied-array beams in a page.
	NTabs int
	// PaddedSize is the stored (padded) time-axis length per channel.
	PaddedSize int
}

// ModeName returns the name of the beam configuration, matching the
// original tool's log output.
func (p Params) ModeName() string {
	if p.NTabs == 1 {
		return "I + IAB"
	}
	return "I + TAB"
}

// PageSize returns the expected byte length of one data page.
func (p Params) PageSize() int {
	return p.NTabs * NChannels * p.PaddedSize
}

// BeamSize returns the byte length of one transposed beam buffer.
func (p Params) BeamSize() int {
	return p.NTimes * NChannels
}

// Resolve derives the operating parameters from the science case and
// science mode enumerations.
//
// Science case 3 delivers 12500 samples per 1.024 s page, case 4 delivers
// 25000. Science mode 0 is the 12-beam tied-array set, mode 2 the single
// incoherent beam. Modes 1 and 3 carry IQUV polarization products, which
// this tool does not handle.
func (o Observation) Resolve() (Params, error) {
	p := Params{PaddedSize: o.PaddedSize}

	switch o.ScienceCase {
	case 3:
		p.NTimes = 12500
		p.TSamp = 1.024 / 12500
	case 4:
		p.NTimes = 25000
		p.TSamp = 1.024 / 25000
	default:
		return Params{}, fmt.Errorf("%w: illegal science case %d", ErrConfig, o.ScienceCase)
	}

	switch o.ScienceMode {
	case 0:
		p.NTabs = 12
	case 2:
		p.NTabs = 1
	case 1, 3:
		return Params{}, fmt.Errorf("%w: science mode %d carries IQUV data, not supported", ErrConfig, o.ScienceMode)
	default:
		return Params{}, fmt.Errorf("%w: illegal science mode %d", ErrConfig, o.ScienceMode)
	}

	if p.PaddedSize < p.NTimes {
		return Params{}, fmt.Errorf("%w: padded size %d smaller than %d samples per page",
			ErrConfig, p.PaddedSize, p.NTimes)
	}
	return p, nil
}
