package filterbank

import "fmt"

// Registry owns the per-beam writers of one capture run: exactly one
// writer per tied-array beam, created before the page loop starts and
// closed exactly once when it ends.
type Registry struct {
	writers []*Writer
}

// CreateAll opens one filterbank file per beam under the given prefix.
// The ibeam header field is set per file (1-based). If any file cannot
// be created, the ones already opened are closed and removed from the
// registry before the error is returned.
func CreateAll(prefix string, ntabs int, h Header) (*Registry, error) {
	if ntabs <= 0 {
		return nil, fmt.Errorf("create filterbank set: invalid beam count %d", ntabs)
	}
	r := &Registry{writers: make([]*Writer, 0, ntabs)}
	h.NBeams = ntabs
	for beam := 0; beam < ntabs; beam++ {
		h.IBeam = beam + 1
		w, err := Create(Filename(prefix, ntabs, beam), h)
		if err != nil {
			r.CloseAll()
			return nil, err
		}
		r.writers = append(r.writers, w)
	}
	return r, nil
}

// Len returns the number of beams in the registry.
func (r *Registry) Len() int { return len(r.writers) }

// Path returns the file path for a beam.
func (r *Registry) Path(beam int) string {
	return r.writers[beam].Path()
}

// WriteBeam appends buf to the file of the given beam.
func (r *Registry) WriteBeam(beam int, buf []byte) error {
	if beam < 0 || beam >= len(r.writers) {
		return fmt.Errorf("write beam %d: out of range [0,%d)", beam, len(r.writers))
	}
	_, err := r.writers[beam].Write(buf)
	return err
}

// CloseAll closes every writer. It is safe to call more than once and
// keeps going past individual failures, returning the first error.
func (r *Registry) CloseAll() error {
	var first error
	for _, w := range r.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
