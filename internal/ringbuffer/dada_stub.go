//go:build !linux

package ringbuffer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/AA-ALERT/dadafilterbank/internal/logging"
)

// Dada is only functional on Linux, where the beamformer pipeline runs.
type Dada struct{}

func NewDada(_ int, _ Config, _ logging.Logger) *Dada { return &Dada{} }

func (d *Dada) Connect(context.Context) error {
	return fmt.Errorf("%w: shared-memory ringbuffer unsupported on %s", ErrConnection, runtime.GOOS)
}

func (d *Dada) ReadHeader(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("%w: not connected", ErrProtocol)
}

func (d *Dada) NextPage(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("%w: not connected", ErrProtocol)
}

func (d *Dada) Ack() error { return fmt.Errorf("%w: nothing to acknowledge", ErrProtocol) }

func (d *Dada) Disconnect() error { return nil }
