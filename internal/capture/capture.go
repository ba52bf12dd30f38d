// Package capture runs the consumption pipeline: handshake with the
// ringbuffer, derive the operating parameters, then drain pages into the
// per-beam filterbank files until end-of-data or cancellation.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/AA-ALERT/dadafilterbank/internal/filterbank"
	"github.com/AA-ALERT/dadafilterbank/internal/header"
	"github.com/AA-ALERT/dadafilterbank/internal/logging"
	"github.com/AA-ALERT/dadafilterbank/internal/monitor"
	"github.com/AA-ALERT/dadafilterbank/internal/ringbuffer"
	"github.com/AA-ALERT/dadafilterbank/internal/transpose"
)

// SIGPROC identifiers of the recording instrument and backend.
const (
	telescopeID = 10
	machineID   = 15
)

// Config carries capture-level configuration.
type Config struct {
	// Prefix names the output files (see filterbank.Filename).
	Prefix string
	// MonitorEvery reports page statistics every N pages; 0 disables.
	MonitorEvery int
	// ParallelBeams fans the per-beam transpose and write of each page
	// out across goroutines. All beams still complete before the page
	// is acknowledged.
	ParallelBeams bool
}

// Capture owns one run against one ringbuffer.
type Capture struct {
	src      ringbuffer.Source
	logger   logging.Logger
	reporter monitor.Reporter
	cfg      Config

	obs      header.Observation
	params   header.Params
	tr       *transpose.Transposer
	registry *filterbank.Registry
	analyzer *monitor.Analyzer
	bufs     [][]byte

	pages int
}

// New builds a Capture. The reporter may be nil when statistics are not
// wanted.
func New(src ringbuffer.Source, logger logging.Logger, reporter monitor.Reporter, cfg Config) *Capture {
	if logger == nil {
		logger = logging.Default()
	}
	return &Capture{
		src:      src,
		logger:   logger,
		reporter: reporter,
		cfg:      cfg,
		analyzer: monitor.NewAnalyzer(),
	}
}

// Params returns the resolved operating parameters. Valid after Init.
func (c *Capture) Params() header.Params { return c.params }

// Pages returns the number of pages fully processed and acknowledged.
func (c *Capture) Pages() int { return c.pages }

// Init connects to the ringbuffer, performs the one-time header
// handshake, resolves the operating parameters and creates the output
// files. It must succeed before Run.
func (c *Capture) Init(ctx context.Context) error {
	if err := c.src.Connect(ctx); err != nil {
		return err
	}

	raw, err := c.src.ReadHeader(ctx)
	if err != nil {
		return err
	}
	obs, err := header.Parse(raw)
	if err != nil {
		return err
	}
	// Header memory goes back to the writer now; obs holds copies.
	if err := c.src.Ack(); err != nil {
		return err
	}
	c.logger.Info("ringbuffer header", logging.F("raw", obs.Raw))

	params, err := obs.Resolve()
	if err != nil {
		return err
	}
	c.obs = obs
	c.params = params
	c.logger.Info("observation configured",
		logging.F("science_case", obs.ScienceCase),
		logging.F("science_mode", params.ModeName()),
		logging.F("ntabs", params.NTabs),
		logging.F("ntimes", params.NTimes),
		logging.F("tsamp", params.TSamp),
		logging.F("padded_size", params.PaddedSize))

	c.tr, err = transpose.New(params)
	if err != nil {
		return err
	}

	c.registry, err = filterbank.CreateAll(c.cfg.Prefix, params.NTabs, filterbank.Header{
		TelescopeID: telescopeID,
		MachineID:   machineID,
		SourceName:  obs.Source,
		AzStart:     obs.AzStart,
		ZaStart:     obs.ZaStart,
		SrcRAJ:      obs.RA,
		SrcDEJ:      obs.Dec,
		TStart:      obs.MJDStart,
		TSamp:       params.TSamp,
		NBits:       header.NBits,
		FCh1:        obs.MinFrequency,
		FOff:        -1 * obs.Bandwidth / header.NChannels,
		NChans:      header.NChannels,
	})
	if err != nil {
		return err
	}
	for i := 0; i < params.NTabs; i++ {
		c.logger.Info("output file created", logging.F("path", c.registry.Path(i)))
	}

	nbufs := 1
	if c.cfg.ParallelBeams {
		nbufs = params.NTabs
	}
	c.bufs = make([][]byte, nbufs)
	for i := range c.bufs {
		c.bufs[i] = make([]byte, c.tr.BeamSize())
	}
	return nil
}

// Run drains the ringbuffer until end-of-data, a fatal error, or
// cancellation. The stop request is honored only between pages: a page
// already fetched is fully written and acknowledged first. On return the
// output files are closed regardless of the path taken.
func (c *Capture) Run(ctx context.Context) (int, error) {
	if c.registry == nil {
		return 0, fmt.Errorf("capture: Run before Init")
	}
	defer c.registry.CloseAll()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stop requested, closing outputs", logging.F("pages", c.pages))
			return c.pages, ctx.Err()
		default:
		}

		page, err := c.src.NextPage(ctx)
		if errors.Is(err, io.EOF) {
			c.logger.Info("End of data received")
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("stop requested, closing outputs", logging.F("pages", c.pages))
				return c.pages, ctx.Err()
			}
			return c.pages, err
		}

		if err := c.processPage(page); err != nil {
			return c.pages, err
		}
		// All beams are on their way to disk; the writer may reclaim
		// the page now.
		if err := c.src.Ack(); err != nil {
			return c.pages, err
		}
		c.pages++
	}

	if err := c.registry.CloseAll(); err != nil {
		return c.pages, err
	}
	c.logger.Info("capture complete", logging.F("pages", c.pages))
	return c.pages, nil
}

// processPage writes every beam of one page. The page slice is only
// valid for the duration of the call.
func (c *Capture) processPage(page []byte) error {
	if c.cfg.ParallelBeams && c.params.NTabs > 1 {
		return c.processParallel(page)
	}

	buf := c.bufs[0]
	var stats []monitor.BeamStats
	collect := c.monitorDue()
	if collect {
		stats = make([]monitor.BeamStats, c.params.NTabs)
	}
	for b := 0; b < c.params.NTabs; b++ {
		if err := c.tr.Beam(buf, page, b); err != nil {
			return err
		}
		if collect {
			stats[b] = c.analyzer.AnalyzeBeam(buf)
		}
		if err := c.registry.WriteBeam(b, buf); err != nil {
			return err
		}
	}
	if collect {
		c.report(stats)
	}
	return nil
}

// processParallel fans the beams of one page out across goroutines.
// Beams share no output state, so the only join point is before Ack.
func (c *Capture) processParallel(page []byte) error {
	ntabs := c.params.NTabs
	errs := make([]error, ntabs)
	var wg sync.WaitGroup
	wg.Add(ntabs)
	for b := 0; b < ntabs; b++ {
		go func(b int) {
			defer wg.Done()
			if err := c.tr.Beam(c.bufs[b], page, b); err != nil {
				errs[b] = err
				return
			}
			errs[b] = c.registry.WriteBeam(b, c.bufs[b])
		}(b)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if c.monitorDue() {
		stats := make([]monitor.BeamStats, ntabs)
		for b := 0; b < ntabs; b++ {
			stats[b] = c.analyzer.AnalyzeBeam(c.bufs[b])
		}
		c.report(stats)
	}
	return nil
}

func (c *Capture) monitorDue() bool {
	return c.reporter != nil && c.cfg.MonitorEvery > 0 && c.pages%c.cfg.MonitorEvery == 0
}

func (c *Capture) report(stats []monitor.BeamStats) {
	c.reporter.Report(monitor.PageStats{
		Page:      c.pages,
		Timestamp: time.Now(),
		Beams:     stats,
	})
}

// Close releases the ringbuffer attachment and, if Run did not get to
// it, the output files. Safe to call after any outcome.
func (c *Capture) Close() error {
	var first error
	if c.registry != nil {
		first = c.registry.CloseAll()
	}
	if err := c.src.Disconnect(); err != nil && first == nil {
		first = err
	}
	return first
}
