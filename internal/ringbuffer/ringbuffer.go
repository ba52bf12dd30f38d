// Package ringbuffer provides read-side access to the shared-memory
// ringbuffer the beamformer pipeline publishes its pages into.
//
// The client protocol is strictly sequential: attach, read and
// acknowledge the one-time header page, then fetch and acknowledge data
// pages one at a time. A fetched page stays valid only until it is
// acknowledged; after that the writer is free to reclaim and overwrite
// its memory.
package ringbuffer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrConnection marks a failure to attach to the ringbuffer. The
	// tool runs under process supervision and never retries an attach.
	ErrConnection = errors.New("ringbuffer connection failed")
	// ErrProtocol marks a violation of the read protocol: an unreadable
	// header, a rejected acknowledgment, or a stalled writer past the
	// configured read timeout.
	ErrProtocol = errors.New("ringbuffer protocol error")
)

// Source is the read cursor over one ringbuffer. Implementations hand
// out at most one unacknowledged page at a time; the returned slices
// alias shared memory and must be fully consumed before Ack.
type Source interface {
	// Connect attaches to the ringbuffer. Failure is fatal.
	Connect(ctx context.Context) error
	// ReadHeader blocks until the writer publishes the header page and
	// returns its raw bytes. Call Ack once the header is parsed.
	ReadHeader(ctx context.Context) ([]byte, error)
	// NextPage blocks until the next data page is readable. It returns
	// io.EOF once the writer has signalled end-of-data and every page
	// has been consumed. Call Ack after the page is fully copied out.
	NextPage(ctx context.Context) ([]byte, error)
	// Ack releases the outstanding header or data page back to the
	// writer.
	Ack() error
	// Disconnect detaches from the ringbuffer.
	Disconnect() error
}

// Config carries the read-side tunables.
type Config struct {
	// ReadTimeout bounds how long ReadHeader and NextPage wait for the
	// writer before giving up with ErrProtocol. Zero waits forever.
	ReadTimeout time.Duration
	// PollInterval is the initial delay between polls of the ringbuffer
	// state; the wait backs off exponentially up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// DefaultConfig returns the polling defaults: pages arrive every 1.024 s,
// so a short initial poll with a cap well under the page cadence keeps
// latency low without spinning.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:     0,
		PollInterval:    200 * time.Microsecond,
		MaxPollInterval: 50 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = maxDuration(d.MaxPollInterval, c.PollInterval)
	}
	return c
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// ParseKey converts the hexadecimal shared-memory key from the command
// line (e.g. "dada") into the numeric System V IPC key.
func ParseKey(s string) (int, error) {
	key, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q is not a hexadecimal number", ErrConnection, s)
	}
	return int(int32(uint32(key))), nil
}
