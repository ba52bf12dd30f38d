package header

import (
	"errors"
	"math"
	"testing"
)

const sampleHeader = `HEADER DADA
MIN_FREQUENCY 1249.902343750
BW 300.0
RA 83.633212
DEC 22.014460
SOURCE B0531+21
AZ_START 278.2
ZA_START 12.5
MJD_START 57834.123456
SCIENCE_CASE 4
SCIENCE_MODE 0
PADDED_SIZE 25600
`

func TestParseFull(t *testing.T) {
	obs, err := Parse([]byte(sampleHeader))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if obs.Source != "B0531+21" {
		t.Fatalf("unexpected source %q", obs.Source)
	}
	if obs.ScienceCase != 4 || obs.ScienceMode != 0 {
		t.Fatalf("unexpected case/mode %d/%d", obs.ScienceCase, obs.ScienceMode)
	}
	if obs.PaddedSize != 25600 {
		t.Fatalf("unexpected padded size %d", obs.PaddedSize)
	}
	if math.Abs(obs.MinFrequency-1249.90234375) > 1e-9 {
		t.Fatalf("unexpected min frequency %f", obs.MinFrequency)
	}
	if math.Abs(obs.Bandwidth-300.0) > 1e-9 {
		t.Fatalf("unexpected bandwidth %f", obs.Bandwidth)
	}
	if obs.Raw == "" {
		t.Fatal("raw header not preserved")
	}
}

func TestParseDefaultsOnAbsentFields(t *testing.T) {
	obs, err := Parse([]byte("SOURCE J0000+00\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	def := DefaultObservation()
	if obs.ScienceCase != def.ScienceCase || obs.ScienceMode != def.ScienceMode {
		t.Fatalf("defaults not kept: case %d mode %d", obs.ScienceCase, obs.ScienceMode)
	}
	if obs.PaddedSize != def.PaddedSize {
		t.Fatalf("default padded size not kept: %d", obs.PaddedSize)
	}
}

func TestParseEmptyHeaderYieldsLowestRate(t *testing.T) {
	obs, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	p, err := obs.Resolve()
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if p.NTimes != 12500 || p.NTabs != 1 {
		t.Fatalf("expected lowest data rate config, got ntimes=%d ntabs=%d", p.NTimes, p.NTabs)
	}
}

func TestParseStopsAtNul(t *testing.T) {
	raw := append([]byte("SCIENCE_CASE 4\n"), 0)
	raw = append(raw, []byte("SCIENCE_MODE 9\n")...)
	obs, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if obs.ScienceCase != 4 {
		t.Fatalf("field before NUL lost: %d", obs.ScienceCase)
	}
	if obs.ScienceMode != 2 {
		t.Fatalf("field after NUL should be ignored, got %d", obs.ScienceMode)
	}
}

func TestParseRejectsMalformedPresentFields(t *testing.T) {
	for _, raw := range []string{
		"SCIENCE_CASE three\n",
		"MIN_FREQUENCY not-a-number\n",
		"PADDED_SIZE 1.5\n",
	} {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrConfig) {
			t.Fatalf("expected ErrConfig for %q, got %v", raw, err)
		}
	}
}

func TestResolveScienceCases(t *testing.T) {
	cases := []struct {
		scienceCase int
		ntimes      int
		tsamp       float64
		wantErr     bool
	}{
		{3, 12500, 1.024 / 12500, false},
		{4, 25000, 1.024 / 25000, false},
		{0, 0, 0, true},
		{5, 0, 0, true},
		{-1, 0, 0, true},
	}
	for _, tc := range cases {
		obs := DefaultObservation()
		obs.ScienceCase = tc.scienceCase
		obs.PaddedSize = 30000
		p, err := obs.Resolve()
		if tc.wantErr {
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("case %d: expected ErrConfig, got %v", tc.scienceCase, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("case %d: resolve failed: %v", tc.scienceCase, err)
		}
		if p.NTimes != tc.ntimes {
			t.Fatalf("case %d: ntimes %d, want %d", tc.scienceCase, p.NTimes, tc.ntimes)
		}
		if math.Abs(p.TSamp-tc.tsamp) > 1e-12 {
			t.Fatalf("case %d: tsamp %g, want %g", tc.scienceCase, p.TSamp, tc.tsamp)
		}
	}
}

func TestResolveScienceModes(t *testing.T) {
	cases := []struct {
		mode    int
		ntabs   int
		wantErr bool
	}{
		{0, 12, false},
		{2, 1, false},
		{1, 0, true}, // IQUV + TAB, recognized but unsupported
		{3, 0, true}, // IQUV + IAB, recognized but unsupported
		{4, 0, true},
		{-2, 0, true},
	}
	for _, tc := range cases {
		obs := DefaultObservation()
		obs.ScienceMode = tc.mode
		p, err := obs.Resolve()
		if tc.wantErr {
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("mode %d: expected ErrConfig, got %v", tc.mode, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("mode %d: resolve failed: %v", tc.mode, err)
		}
		if p.NTabs != tc.ntabs {
			t.Fatalf("mode %d: ntabs %d, want %d", tc.mode, p.NTabs, tc.ntabs)
		}
	}
}

func TestResolveRejectsShortPadding(t *testing.T) {
	obs := DefaultObservation()
	obs.ScienceCase = 4 // needs 25000 samples
	obs.PaddedSize = 12500
	if _, err := obs.Resolve(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for short padding, got %v", err)
	}
}

func TestParamsHelpers(t *testing.T) {
	p := Params{NTimes: 12500, NTabs: 12, PaddedSize: 12800}
	if p.PageSize() != 12*NChannels*12800 {
		t.Fatalf("unexpected page size %d", p.PageSize())
	}
	if p.BeamSize() != 12500*NChannels {
		t.Fatalf("unexpected beam size %d", p.BeamSize())
	}
	if p.ModeName() != "I + TAB" {
		t.Fatalf("unexpected mode name %q", p.ModeName())
	}
	p.NTabs = 1
	if p.ModeName() != "I + IAB" {
		t.Fatalf("unexpected mode name %q", p.ModeName())
	}
}
