// Package filterbank writes SIGPROC filterbank files: a self-describing
// header block followed by raw sample bytes in [time][channel] order.
// Header field layout follows the SIGPROC specification (sigproc.pdf,
// page 4): length-prefixed ASCII keywords with native little-endian
// int32 and float64 values.
package filterbank

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// ErrIO marks a failure to create or write an output file. Fatal, no
// retry.
var ErrIO = errors.New("filterbank output failed")

// Header carries the descriptive fields written ahead of the sample data.
type Header struct {
	TelescopeID int
	MachineID   int
	SourceName  string
	AzStart     float64 // telescope azimuth at scan start (degrees)
	ZaStart     float64 // telescope zenith angle at scan start (degrees)
	SrcRAJ      float64 // right ascension (J2000) of source (hhmmss.s)
	SrcDEJ      float64 // declination (J2000) of source (ddmmss.s)
	TStart      float64 // MJD of first sample
	TSamp       float64 // sample interval (s)
	NBits       int
	FCh1        float64 // frequency of first channel (MHz)
	FOff        float64 // channel bandwidth (MHz), negative: descending
	NChans      int
	NBeams      int
	IBeam       int
	NIFs        int
}

// Encoded returns the serialized header block as it appears at the
// start of the file.
func (h Header) Encoded() []byte { return h.encode() }

func (h Header) encode() []byte {
	var b bytes.Buffer
	putKeyword(&b, "HEADER_START")
	putInt(&b, "telescope_id", h.TelescopeID)
	putInt(&b, "machine_id", h.MachineID)
	// 1: filterbank data, 2: time series
	putInt(&b, "data_type", 1)
	putString(&b, "source_name", h.SourceName)
	putInt(&b, "barycentric", 0)
	putInt(&b, "pulsarcentric", 0)
	putDouble(&b, "az_start", h.AzStart)
	putDouble(&b, "za_start", h.ZaStart)
	putDouble(&b, "src_raj", h.SrcRAJ)
	putDouble(&b, "src_dej", h.SrcDEJ)
	putDouble(&b, "tstart", h.TStart)
	putDouble(&b, "tsamp", h.TSamp)
	putInt(&b, "nbits", h.NBits)
	putDouble(&b, "fch1", h.FCh1)
	putDouble(&b, "foff", h.FOff)
	putInt(&b, "nchans", h.NChans)
	putInt(&b, "nbeams", h.NBeams)
	putInt(&b, "ibeam", h.IBeam)
	putInt(&b, "nifs", h.NIFs)
	putKeyword(&b, "HEADER_END")
	return b.Bytes()
}

func putKeyword(b *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	b.Write(lenBuf[:])
	b.WriteString(s)
}

func putString(b *bytes.Buffer, name, value string) {
	putKeyword(b, name)
	putKeyword(b, value)
}

func putInt(b *bytes.Buffer, name string, value int) {
	putKeyword(b, name)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(int32(value)))
	b.Write(buf[:])
}

func putDouble(b *bytes.Buffer, name string, value float64) {
	putKeyword(b, name)
	_ = binary.Write(b, binary.LittleEndian, value)
}

// Filename returns the output path for a beam. The single-beam
// configuration uses the bare prefix; multi-beam runs append a two-digit,
// 1-based beam index.
func Filename(prefix string, ntabs, beam int) string {
	if ntabs == 1 {
		return prefix + ".fil"
	}
	return fmt.Sprintf("%s_%02d.fil", prefix, beam+1)
}

// Writer appends sample bytes to one filterbank file. Close is
// idempotent; every operation after Close is a no-op.
type Writer struct {
	f      *os.File
	path   string
	closed bool
}

// Create opens path, truncating any previous file, and writes the header
// block.
func Create(path string, h Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrIO, path, err)
	}
	if _, err := f.Write(h.encode()); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write header %s: %v", ErrIO, path, err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the file path this writer appends to.
func (w *Writer) Path() string { return w.path }

// Write appends raw sample bytes in call order.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, nil
	}
	n, err := w.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: write %s: %v", ErrIO, w.path, err)
	}
	return n, nil
}

// Close flushes and closes the file. All bytes written before Close are
// on disk by the time it returns.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrIO, w.path, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrIO, w.path, err)
	}
	return nil
}
