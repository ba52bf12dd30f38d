// Command dadafilterbank connects to a ringbuffer and writes SIGPROC
// filterbank output per tied-array beam.
//
// usage: dadafilterbank -k <hexadecimal key> -l <logfile> -n <filename prefix>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AA-ALERT/dadafilterbank/internal/capture"
	"github.com/AA-ALERT/dadafilterbank/internal/logging"
	"github.com/AA-ALERT/dadafilterbank/internal/monitor"
	"github.com/AA-ALERT/dadafilterbank/internal/ringbuffer"
)

const version = "0.4.0"

// Tunables persist in a JSON file next to the binary's working
// directory; the per-run flags (-k, -l, -n) never do.
const configPath = "dadafilterbank.json"

func main() {
	os.Exit(run())
}

func run() int {
	persisted, err := loadOrCreateConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, persisted)
	if err != nil {
		return 1
	}
	if !checkRequired(cfg) {
		printUsage()
		return 1
	}
	if err := saveConfig(configPath, persistentFromCLI(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "save config: %v\n", err)
		return 1
	}

	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logfile, err := os.Create(cfg.logfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open logfile %s: %v\n", cfg.logfile, err)
		return 1
	}
	defer logfile.Close()

	logger := logging.New(level, format, logging.Tee(os.Stdout, logfile))
	logging.SetDefault(logger)
	logger.Info("dadafilterbank",
		logging.F("version", version),
		logging.F("key", cfg.key),
		logging.F("logfile", cfg.logfile),
		logging.F("prefix", cfg.prefix))

	key, err := ringbuffer.ParseKey(cfg.key)
	if err != nil {
		logger.Error("bad ringbuffer key", logging.F("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := ringbuffer.NewDada(key, ringbuffer.Config{
		ReadTimeout:  cfg.readTimeout,
		PollInterval: cfg.pollInterval,
	}, logger)

	var reporter monitor.Reporter
	if cfg.monitorEvery > 0 {
		hub := monitor.NewHub(cfg.historyLimit)
		reporter = monitor.MultiReporter{hub, monitor.NewLogReporter(logger)}
	}

	app := capture.New(src, logger, reporter, capture.Config{
		Prefix:        cfg.prefix,
		MonitorEvery:  cfg.monitorEvery,
		ParallelBeams: cfg.parallelBeams,
	})
	defer app.Close()

	if err := app.Init(ctx); err != nil {
		logger.Error("initialization failed", logging.F("error", err))
		return 1
	}

	pages, err := app.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupt received, outputs closed", logging.F("pages", pages))
		} else {
			logger.Error("capture failed", logging.F("error", err), logging.F("pages", pages))
		}
		return 1
	}
	logger.Info("read pages", logging.F("pages", pages))
	return 0
}

type cliConfig struct {
	key     string
	logfile string
	prefix  string

	logLevel      string
	logFormat     string
	readTimeout   time.Duration
	pollInterval  time.Duration
	monitorEvery  int
	historyLimit  int
	parallelBeams bool
}

type persistentConfig struct {
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`
	ReadTimeout   string `json:"read_timeout"`
	PollInterval  string `json:"poll_interval"`
	MonitorEvery  int    `json:"monitor_every"`
	HistoryLimit  int    `json:"history_limit"`
	ParallelBeams bool   `json:"parallel_beams"`
}

func defaultPersistentConfig() persistentConfig {
	return persistentConfig{
		LogLevel:      "info",
		LogFormat:     "text",
		ReadTimeout:   "0s",
		PollInterval:  "200us",
		MonitorEvery:  50,
		HistoryLimit:  500,
		ParallelBeams: false,
	}
}

func parseConfig(args []string, lookup func(string) (string, bool), defaults persistentConfig) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("dadafilterbank", flag.ContinueOnError)
	fs.StringVar(&cfg.key, "k", envString(lookup, "DADA_KEY", ""), "Hexadecimal shared memory key")
	fs.StringVar(&cfg.logfile, "l", envString(lookup, "DADA_LOGFILE", ""), "Log file")
	fs.StringVar(&cfg.prefix, "n", envString(lookup, "DADA_PREFIX", ""), "Filename prefix for output")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "DADA_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "DADA_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")
	fs.DurationVar(&cfg.readTimeout, "read-timeout", envDuration(lookup, "DADA_READ_TIMEOUT", defaults.ReadTimeout), "Give up when the writer stalls this long (0 waits forever)")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", envDuration(lookup, "DADA_POLL_INTERVAL", defaults.PollInterval), "Initial ringbuffer poll interval")
	fs.IntVar(&cfg.monitorEvery, "monitor-every", envInt(lookup, "DADA_MONITOR_EVERY", defaults.MonitorEvery), "Log page statistics every N pages (0 disables)")
	fs.IntVar(&cfg.historyLimit, "history-limit", envInt(lookup, "DADA_HISTORY_LIMIT", defaults.HistoryLimit), "Maximum page statistics kept in memory")
	fs.BoolVar(&cfg.parallelBeams, "parallel-beams", envBool(lookup, "DADA_PARALLEL_BEAMS", defaults.ParallelBeams), "Transpose and write beams of a page in parallel")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func checkRequired(cfg cliConfig) bool {
	ok := true
	if cfg.key == "" {
		fmt.Fprintln(os.Stderr, "Error: DADA key not set")
		ok = false
	}
	if cfg.logfile == "" {
		fmt.Fprintln(os.Stderr, "Error: log file not set")
		ok = false
	}
	if cfg.prefix == "" {
		fmt.Fprintln(os.Stderr, "Error: filename prefix not set")
		ok = false
	}
	return ok
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: dadafilterbank -k <hexadecimal key> -l <logfile> -n <filename prefix for dumps>")
	fmt.Fprintln(os.Stderr, "e.g. dadafilterbank -k dada -l log.txt -n myobs")
}

func persistentFromCLI(cfg cliConfig) persistentConfig {
	return persistentConfig{
		LogLevel:      cfg.logLevel,
		LogFormat:     cfg.logFormat,
		ReadTimeout:   cfg.readTimeout.String(),
		PollInterval:  cfg.pollInterval.String(),
		MonitorEvery:  cfg.monitorEvery,
		HistoryLimit:  cfg.historyLimit,
		ParallelBeams: cfg.parallelBeams,
	}
}

func loadOrCreateConfig(path string) (persistentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultPersistentConfig()
			if saveErr := saveConfig(path, cfg); saveErr != nil {
				return persistentConfig{}, saveErr
			}
			return cfg, nil
		}
		return persistentConfig{}, err
	}
	defer f.Close()

	var cfg persistentConfig
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return persistentConfig{}, err
	}
	return cfg, nil
}

func saveConfig(path string, cfg persistentConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envDuration(lookup func(string) (string, bool), key, def string) time.Duration {
	s := def
	if val, ok := lookup(key); ok {
		s = val
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
