//go:build linux

package ringbuffer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"

	"github.com/AA-ALERT/dadafilterbank/internal/logging"
)

// Shared-memory block layout. Each block is one System V segment: a
// fixed-size sync page the writer maintains, followed by the ring of
// data buffers. The semaphore set at the block's key pairs with it:
// FULL counts readable buffers, CLEAR counts buffers handed back.
const (
	syncMagic = 0x0144414441440201 // identifies a ringbuffer sync page
	syncSize  = 64

	offMagic   = 0
	offNBufs   = 8
	offBufSize = 16
	offWritten = 24 // total buffers published by the writer
	offEOD     = 32 // non-zero once the final buffer is published
)

// The header block lives one key above the data block.
const headerKeyOffset = 1

// block is the read-side view of one shared-memory segment.
type block struct {
	key   int
	shmid int
	semid int
	mem   []byte

	nbufs uint64
	bufsz uint64
	read  uint64 // buffers consumed and acknowledged so far
}

// Dada attaches to the data and header blocks of a ringbuffer by its
// System V IPC key.
type Dada struct {
	cfg    Config
	logger logging.Logger

	data   block
	hdr    block
	hdrAck bool // header has been read and acknowledged

	pendingHeader bool
	pendingPage   bool
	connected     bool
}

// NewDada builds a client for the ringbuffer at the given key.
func NewDada(key int, cfg Config, logger logging.Logger) *Dada {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dada{
		cfg:    cfg.withDefaults(),
		logger: logger,
		data:   block{key: key},
		hdr:    block{key: key + headerKeyOffset},
	}
}

// Connect attaches to both segments and validates their sync pages.
func (d *Dada) Connect(_ context.Context) error {
	if d.connected {
		return nil
	}
	if err := d.attach(&d.data); err != nil {
		return err
	}
	if err := d.attach(&d.hdr); err != nil {
		d.detach(&d.data)
		return err
	}
	d.connected = true
	d.logger.Info("connected to ringbuffer",
		logging.F("key", fmt.Sprintf("%x", d.data.key)),
		logging.F("nbufs", d.data.nbufs),
		logging.F("bufsz", d.data.bufsz))
	return nil
}

func (d *Dada) attach(b *block) error {
	shmid, err := unix.SysvShmGet(b.key, 0, 0)
	if err != nil {
		return fmt.Errorf("%w: no segment at key 0x%x: %v", ErrConnection, b.key, err)
	}
	mem, err := unix.SysvShmAttach(shmid, 0, unix.SHM_RDONLY)
	if err != nil {
		return fmt.Errorf("%w: attach segment 0x%x: %v", ErrConnection, b.key, err)
	}
	semid, err := semget(b.key, 2, 0)
	if err != nil {
		_ = unix.SysvShmDetach(mem)
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	b.shmid = shmid
	b.semid = semid
	b.mem = mem

	if len(mem) < syncSize || d.syncU64(b, offMagic) != syncMagic {
		d.detach(b)
		return fmt.Errorf("%w: segment 0x%x has no valid sync page", ErrConnection, b.key)
	}
	b.nbufs = d.syncU64(b, offNBufs)
	b.bufsz = d.syncU64(b, offBufSize)
	if b.nbufs == 0 || b.bufsz == 0 ||
		uint64(len(mem)) < syncSize+b.nbufs*b.bufsz {
		d.detach(b)
		return fmt.Errorf("%w: segment 0x%x sync page inconsistent with segment size", ErrConnection, b.key)
	}
	return nil
}

func (d *Dada) detach(b *block) {
	if b.mem != nil {
		_ = unix.SysvShmDetach(b.mem)
		b.mem = nil
	}
}

// syncU64 reads a sync-page word. The semaphore operations around every
// buffer hand-off order these reads against the writer's updates.
func (d *Dada) syncU64(b *block, off int) uint64 {
	return binary.LittleEndian.Uint64(b.mem[off : off+8])
}

// ReadHeader blocks until the writer publishes the header page.
func (d *Dada) ReadHeader(ctx context.Context) ([]byte, error) {
	if !d.connected {
		return nil, fmt.Errorf("%w: not connected", ErrProtocol)
	}
	if d.hdrAck || d.pendingHeader {
		return nil, fmt.Errorf("%w: header already read", ErrProtocol)
	}
	if err := d.waitFull(ctx, &d.hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: writer ended before publishing a header", ErrProtocol)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: header: %v", ErrProtocol, err)
	}
	d.pendingHeader = true
	return d.buffer(&d.hdr), nil
}

// NextPage blocks until the next data page is readable. On end-of-data
// it returns io.EOF. An unrecoverable read failure mid-stream is logged
// and also surfaces as io.EOF: the run drains what it has and stops,
// it does not crash.
func (d *Dada) NextPage(ctx context.Context) ([]byte, error) {
	if !d.connected {
		return nil, fmt.Errorf("%w: not connected", ErrProtocol)
	}
	if !d.hdrAck {
		return nil, fmt.Errorf("%w: header not acknowledged before data read", ErrProtocol)
	}
	if d.pendingPage {
		return nil, fmt.Errorf("%w: previous page not acknowledged", ErrProtocol)
	}
	if err := d.waitFull(ctx, &d.data); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, errWaitTimeout):
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		default:
			// Writer went away or the segment was removed underneath
			// us. Treat as a forced stop, not a crash.
			d.logger.Error("ringbuffer read failed, stopping", logging.F("error", err))
			return nil, io.EOF
		}
	}
	d.pendingPage = true
	return d.buffer(&d.data), nil
}

// buffer returns the current read slot of a block.
func (d *Dada) buffer(b *block) []byte {
	slot := b.read % b.nbufs
	start := uint64(syncSize) + slot*b.bufsz
	return b.mem[start : start+b.bufsz : start+b.bufsz]
}

var errWaitTimeout = errors.New("read timeout waiting for writer")

// waitFull waits for one readable buffer on the block, polling the FULL
// semaphore with exponential backoff. It returns io.EOF once the writer
// has flagged end-of-data and everything published has been read.
func (d *Dada) waitFull(ctx context.Context, b *block) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.PollInterval
	bo.MaxInterval = d.cfg.MaxPollInterval
	bo.MaxElapsedTime = d.cfg.ReadTimeout
	bo.Reset()

	for {
		err := semTryDecrement(b.semid, semFull)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EAGAIN) {
			return fmt.Errorf("wait on segment 0x%x: %w", b.key, err)
		}
		if d.syncU64(b, offEOD) != 0 && b.read >= d.syncU64(b, offWritten) {
			return io.EOF
		}
		next := bo.NextBackOff()
		if next == backoff.Stop {
			return fmt.Errorf("%w after %v", errWaitTimeout, d.cfg.ReadTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next):
		}
	}
}

// Ack releases the outstanding header or data page back to the writer.
func (d *Dada) Ack() error {
	switch {
	case d.pendingHeader:
		if err := semIncrement(d.hdr.semid, semClear); err != nil {
			return fmt.Errorf("%w: clear header: %v", ErrProtocol, err)
		}
		d.hdr.read++
		d.pendingHeader = false
		d.hdrAck = true
		return nil
	case d.pendingPage:
		if err := semIncrement(d.data.semid, semClear); err != nil {
			return fmt.Errorf("%w: clear page: %v", ErrProtocol, err)
		}
		d.data.read++
		d.pendingPage = false
		return nil
	default:
		return fmt.Errorf("%w: nothing to acknowledge", ErrProtocol)
	}
}

// Disconnect detaches from both segments.
func (d *Dada) Disconnect() error {
	if !d.connected {
		return nil
	}
	d.connected = false
	d.detach(&d.hdr)
	d.detach(&d.data)
	return nil
}
