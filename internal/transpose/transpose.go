// Package transpose reshapes ringbuffer pages into per-beam filterbank
// buffers. A page is laid out [beam][channel][padded time]; the
// filterbank files want [time][channel] with the channel axis reversed,
// so that the first sample belongs to the highest frequency (the file
// header declares a negative channel offset).
package transpose

import (
	"fmt"

	"github.com/AA-ALERT/dadafilterbank/internal/header"
)

// Transposer extracts single beams from pages of a fixed shape.
type Transposer struct {
	ntimes int
	padded int
	ntabs  int
}

// New validates the page shape and returns a Transposer for it.
func New(p header.Params) (*Transposer, error) {
	if p.NTimes <= 0 || p.NTabs <= 0 {
		return nil, fmt.Errorf("transpose: invalid shape %d beams x %d samples", p.NTabs, p.NTimes)
	}
	if p.PaddedSize < p.NTimes {
		return nil, fmt.Errorf("transpose: padded size %d smaller than %d samples", p.PaddedSize, p.NTimes)
	}
	return &Transposer{ntimes: p.NTimes, padded: p.PaddedSize, ntabs: p.NTabs}, nil
}

// BeamSize returns the required destination buffer length.
func (tr *Transposer) BeamSize() int { return tr.ntimes * header.NChannels }

// PageSize returns the minimum page length Beam accepts.
func (tr *Transposer) PageSize() int { return tr.ntabs * header.NChannels * tr.padded }

// Beam copies beam b out of page into dst, dropping the padding tail of
// every channel and reversing the channel axis:
//
//	dst[t*NChannels + (NChannels-1-c)] = page[(b*NChannels+c)*padded + t]
//
// This loop dominates the per-page budget; it walks every channel's
// samples sequentially on the read side so the large stride stays on the
// destination writes only.
func (tr *Transposer) Beam(dst, page []byte, b int) error {
	if b < 0 || b >= tr.ntabs {
		return fmt.Errorf("transpose: beam %d out of range [0,%d)", b, tr.ntabs)
	}
	if len(page) < tr.PageSize() {
		return fmt.Errorf("transpose: page is %d bytes, need %d", len(page), tr.PageSize())
	}
	if len(dst) < tr.BeamSize() {
		return fmt.Errorf("transpose: destination is %d bytes, need %d", len(dst), tr.BeamSize())
	}

	ntimes := tr.ntimes
	for c := 0; c < header.NChannels; c++ {
		src := page[(b*header.NChannels+c)*tr.padded:]
		src = src[:ntimes:ntimes]
		out := header.NChannels - 1 - c
		for t, v := range src {
			dst[t*header.NChannels+out] = v
		}
	}
	return nil
}
