// tc-users assigns a traffic-control classid to every (user, address) pair
// of its input and synchronizes the pinned BPF maps read by the tc
// classifier program with the result.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/psaab/tcusers/pkg/addr"
	"github.com/psaab/tcusers/pkg/classify"
	"github.com/psaab/tcusers/pkg/config"
	"github.com/psaab/tcusers/pkg/entry"
	"github.com/psaab/tcusers/pkg/input"
	"github.com/psaab/tcusers/pkg/logging"
	"github.com/psaab/tcusers/pkg/mapstore"
	"github.com/psaab/tcusers/pkg/metrics"
	"github.com/psaab/tcusers/pkg/reconcile"
)

// version is set at link time.
var version = "dev"

const usageText = `usage: tc-users [options] FILE|-
       tc-users [options] lookup ADDR
       tc-users [options] dump

Reads "USER ADDR" lines (fields separated by space, comma or semicolon)
from FILE or standard input, assigns a classid to every address and
synchronizes the BPF maps with the result. A numeric USER inside the user
flow range is used as the classid; other users share a classid drawn from
the least used ones.

lookup prints the classid stored for ADDR. dump prints every stored entry
as "CLASSID ADDR", which is itself valid input.

options:
`

// mapStore is the view of the BPF maps a run needs.
type mapStore interface {
	reconcile.Store
	Lookup(a addr.Addr) (uint16, bool, error)
	PushConfig(rec mapstore.ConfigRecord) error
	Close() error
}

// usageError is a command line or configuration error; the help text is
// printed along with it.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	open   func(root string) (mapStore, error)
	now    func() time.Time
}

func main() {
	a := &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		open:   openMapStore,
		now:    time.Now,
	}
	os.Exit(a.run(os.Args[1:]))
}

func openMapStore(root string) (mapStore, error) {
	return mapstore.Open(root)
}

// options holds the parsed command line.
type options struct {
	cfg       *config.Config
	cmd       string
	args      []string
	syslog    string
	syslogSev string
	help      bool
	version   bool
}

// run executes one invocation and returns the process exit code.
func (a *app) run(args []string) int {
	opts, fs, err := parseArgs(args)
	if err == nil {
		switch {
		case opts.help:
			a.usage(fs, a.stdout)
			return 0
		case opts.version:
			fmt.Fprintf(a.stdout, "tc-users %s\n", version)
			return 0
		}
		err = a.exec(opts)
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "tc-users: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			a.usage(fs, a.stderr)
		}
		return 1
	}
	return 0
}

func (a *app) usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprint(w, usageText)
	fs.SetOutput(w)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
}

// parseArgs parses the command line. Values from -config are applied
// first and flags given explicitly override them.
func parseArgs(args []string) (*options, *flag.FlagSet, error) {
	opts := &options{cmd: "sync"}
	if len(args) > 0 && (args[0] == "lookup" || args[0] == "dump") {
		opts.cmd = args[0]
		args = args[1:]
	}

	fl := config.Default()
	var (
		configFile     string
		quiet, verbose bool
	)
	fs := flag.NewFlagSet("tc-users", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.TextVar(&fl.UserFlows, "user-flows", config.DefaultUserFlows, "classid `range` assigned to users")
	fs.TextVar(&fl.UnclassifiedFlows, "unclassified-flows", config.DefaultUnclassifiedFlows, "classid `range` for unclassified traffic")
	fs.TextVar(&fl.FlowsPerUserRange, "flows-per-user", config.DefaultFlowsPerUser, "power of two `range` bounding the flows per user")
	fs.TextVar(&fl.ClassifyBy, "classify-by", config.DefaultClassifyBy, "ordered `list` of srcmac, dstmac, srcip, dstip")
	fs.BoolVar(&fl.NoOp, "n", false, "dry run, do not modify the BPF maps")
	fs.BoolVar(&fl.NoOp, "no-op", false, "same as -n")
	fs.BoolVar(&quiet, "q", false, "only log warnings and errors")
	fs.BoolVar(&quiet, "quiet", false, "same as -q")
	fs.BoolVar(&verbose, "v", false, "log every classification and unchanged entry")
	fs.BoolVar(&verbose, "verbose", false, "same as -v")
	fs.BoolVar(&opts.version, "V", false, "print the version and exit")
	fs.BoolVar(&opts.version, "version", false, "same as -V")
	fs.BoolVar(&opts.help, "h", false, "print this help and exit")
	fs.BoolVar(&opts.help, "help", false, "same as -h")
	fs.StringVar(&configFile, "config", "", "YAML configuration `file`")
	fs.StringVar(&fl.BPFFS, "bpffs", config.DefaultBPFFS, "`directory` holding the pinned maps")
	fs.StringVar(&fl.MetricsFile, "metrics-file", "", "write Prometheus metrics to `path` after the run")
	fs.StringVar(&opts.syslog, "syslog", "", "also send logs to the syslog server at `host:port`")
	fs.StringVar(&opts.syslogSev, "syslog-severity", "", "minimum syslog `severity` (error, warning, info, debug)")

	if err := fs.Parse(args); err != nil {
		return opts, fs, usageError{err}
	}
	if opts.help || opts.version {
		return opts, fs, nil
	}
	if quiet && verbose {
		return opts, fs, usagef("-quiet and -verbose are mutually exclusive")
	}

	cfg := config.Default()
	if configFile != "" {
		f, err := config.LoadFile(configFile)
		if err != nil {
			return opts, fs, usageError{err}
		}
		if err := f.Apply(cfg); err != nil {
			return opts, fs, usageError{fmt.Errorf("config file %s: %w", configFile, err)}
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "user-flows":
			cfg.UserFlows = fl.UserFlows
		case "unclassified-flows":
			cfg.UnclassifiedFlows = fl.UnclassifiedFlows
		case "flows-per-user":
			cfg.FlowsPerUserRange = fl.FlowsPerUserRange
		case "classify-by":
			cfg.ClassifyBy = fl.ClassifyBy
		case "n", "no-op":
			cfg.NoOp = fl.NoOp
		case "q", "quiet":
			cfg.LogLevel = logging.Quiet
		case "v", "verbose":
			cfg.LogLevel = logging.Verbose
		case "bpffs":
			cfg.BPFFS = fl.BPFFS
		case "metrics-file":
			cfg.MetricsFile = fl.MetricsFile
		}
	})
	opts.cfg = cfg

	opts.args = fs.Args()
	want := 1
	if opts.cmd == "dump" {
		want = 0
	}
	if len(opts.args) != want {
		switch opts.cmd {
		case "lookup":
			return opts, fs, usagef("lookup takes exactly one address")
		case "dump":
			return opts, fs, usagef("dump takes no arguments")
		default:
			return opts, fs, usagef("exactly one input file (or -) is required")
		}
	}
	return opts, fs, nil
}

// exec sets up logging and runs the selected command.
func (a *app) exec(opts *options) error {
	var clients []*logging.SyslogClient
	if opts.syslog != "" {
		c, err := logging.NewSyslogClient(opts.syslog)
		if err != nil {
			return usageError{err}
		}
		c.MinSeverity = logging.ParseSeverity(opts.syslogSev)
		clients = append(clients, c)
	}
	log, h := logging.New(a.stdout, opts.cfg.LogLevel, clients...)
	if h != nil {
		defer h.Close()
	}
	slog.SetDefault(log)

	switch opts.cmd {
	case "lookup":
		return a.lookup(opts.cfg, opts.args[0])
	case "dump":
		return a.dump(opts.cfg)
	default:
		return a.sync(opts.cfg, log, opts.args[0])
	}
}

// sync is the main pipeline: read the input, classify it and reconcile the
// maps with the result.
func (a *app) sync(cfg *config.Config, log *slog.Logger, path string) error {
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}
	if cfg.NoOp {
		log.Info("dry run, BPF maps will not be modified")
	}

	entries, err := a.readInput(path)
	if err != nil {
		return err
	}

	ms, err := a.open(cfg.BPFFS)
	if err != nil {
		return err
	}
	defer ms.Close()

	cfg.Finalize(entries.Len())
	log.Info("configuration",
		"user_flows", cfg.UserFlows,
		"unclassified_flows", cfg.UnclassifiedFlows,
		"flows_per_user_range", cfg.FlowsPerUserRange,
		"classify_by", cfg.ClassifyBy,
		"flows_per_user", cfg.FlowsPerUser,
		"entries", entries.Len())

	run := &metrics.Run{FlowsPerUser: cfg.FlowsPerUser, DryRun: cfg.NoOp}
	run.CountEntries(entries)
	run.Classified = classify.New(cfg.UserFlows, log).Classify(entries)

	res, err := reconcile.New(ms, cfg.NoOp, log).Sync(entries)
	if err != nil {
		return err
	}
	run.Sync = res

	if !cfg.NoOp {
		if err := ms.PushConfig(mapstore.NewConfigRecord(cfg)); err != nil {
			return err
		}
	}
	log.Info("sync complete",
		"added", res[reconcile.Add],
		"updated", res[reconcile.Update],
		"deleted", res[reconcile.Delete],
		"unchanged", res[reconcile.Leave],
		"dry_run", cfg.NoOp)

	if cfg.MetricsFile != "" {
		run.Time = a.now()
		if err := metrics.WriteTextfile(cfg.MetricsFile, run); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) readInput(path string) (*entry.Store, error) {
	if path == "-" {
		return input.Parse(a.stdin, "stdin")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return input.Parse(f, path)
}

func (a *app) lookup(cfg *config.Config, s string) error {
	target, err := addr.Parse(s)
	if err != nil {
		return err
	}
	ms, err := a.open(cfg.BPFFS)
	if err != nil {
		return err
	}
	defer ms.Close()

	id, found, err := ms.Lookup(target)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: no classid", target)
	}
	fmt.Fprintf(a.stdout, "%d %s\n", id, target)
	return nil
}

func (a *app) dump(cfg *config.Config) error {
	ms, err := a.open(cfg.BPFFS)
	if err != nil {
		return err
	}
	defer ms.Close()

	var all []mapstore.Entry
	for e, err := range ms.All() {
		if err != nil {
			return err
		}
		all = append(all, e)
	}
	slices.SortFunc(all, func(x, y mapstore.Entry) int {
		return addr.Compare(x.Addr, y.Addr)
	})
	for _, e := range all {
		fmt.Fprintf(a.stdout, "%d %s\n", e.ClassID, e.Addr)
	}
	return nil
}
