// tau is the time-series store daemon and its command line client.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keleshev/tau/config"
	"github.com/keleshev/tau/internal/client"
	"github.com/keleshev/tau/internal/collector"
	"github.com/keleshev/tau/internal/export"
	"github.com/keleshev/tau/internal/loader"
	"github.com/keleshev/tau/internal/logging"
	"github.com/keleshev/tau/internal/server"
	"github.com/keleshev/tau/internal/shell"
	"github.com/keleshev/tau/internal/tau"
)

// Version is set at build time via ldflags
var Version = "dev"

const usage = `tau - a minimal time-series store

Usage:
  tau server  [-config FILE] [-listen ADDR]   run the server
  tau set     [-a ADDR] NAME=VALUE...         write values
  tau get     [-a ADDR] [options] NAME...     read signals
  tau signals [-a ADDR]                       list signal names
  tau clear   [-a ADDR]                       delete all data
  tau shell   [-a ADDR]                       interactive shell
  tau collect [-config FILE] [-a ADDR]        run the SNMP collector
  tau export  [-config FILE] [options] NAME... export samples to Parquet

Get options:
  -period DUR      window ending now (e.g. 60s)
  -start TIME      window start (RFC 3339)
  -end TIME        window end (RFC 3339)
  -limit N         decimate to about N samples per signal
  -timestamps      include timestamps in the output
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if os.Getenv("TAU_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logging.Init(level, false)

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(os.Args[2:])
	case "set":
		err = runSet(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	case "signals":
		err = runSignals(os.Args[2:])
	case "clear":
		err = runClear(os.Args[2:])
	case "shell":
		err = runShell(os.Args[2:])
	case "collect":
		err = runCollect(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "tau:", err)
		os.Exit(1)
	}
}

// =============================================================================
// Server
// =============================================================================

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	listen := fs.String("listen", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultAddress
	}

	store, closeStore, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build backends: %w", err)
	}
	defer closeStore()

	srv := server.New(&server.Config{
		Listen: cfg.Listen,
		Engine: tau.New(store),
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		srv.Shutdown()
	}()

	return srv.Run()
}

func loadConfig(path string) (*loader.Config, error) {
	if path == "" {
		return loader.DefaultConfig(), nil
	}
	return loader.Load(path)
}

// =============================================================================
// Client Commands
// =============================================================================

func runSet(args []string) error {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	addr := fs.String("a", config.DefaultAddress, "server address")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("set requires NAME=VALUE arguments")
	}
	values := make(map[string]any, fs.NArg())
	for _, arg := range fs.Args() {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("malformed argument %q, want NAME=VALUE", arg)
		}
		values[name] = parseValue(raw)
	}
	return client.New(*addr).Set(values)
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	addr := fs.String("a", config.DefaultAddress, "server address")
	period := fs.Duration("period", 0, "window ending now")
	start := fs.String("start", "", "window start (RFC 3339)")
	end := fs.String("end", "", "window end (RFC 3339)")
	limit := fs.Int("limit", 0, "decimate to about N samples per signal")
	timestamps := fs.Bool("timestamps", false, "include timestamps")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("get requires at least one NAME or pattern")
	}

	q := tau.Query{
		Names:      fs.Args(),
		Period:     *period,
		Limit:      *limit,
		Timestamps: *timestamps,
	}
	var err error
	if q.Start, err = parseTime(*start); err != nil {
		return err
	}
	if q.End, err = parseTime(*end); err != nil {
		return err
	}

	result, err := client.New(*addr).Get(q)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runSignals(args []string) error {
	fs := flag.NewFlagSet("signals", flag.ExitOnError)
	addr := fs.String("a", config.DefaultAddress, "server address")
	fs.Parse(args)

	signals, err := client.New(*addr).Signals()
	if err != nil {
		return err
	}
	for _, signal := range signals {
		fmt.Println(signal)
	}
	return nil
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	addr := fs.String("a", config.DefaultAddress, "server address")
	fs.Parse(args)

	return client.New(*addr).Clear()
}

func runShell(args []string) error {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	addr := fs.String("a", config.DefaultAddress, "server address")
	fs.Parse(args)

	return shell.New(*addr).Run()
}

// =============================================================================
// Collector
// =============================================================================

func runCollect(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	addr := fs.String("a", "", "server address (overrides config)")
	fs.Parse(args)

	if *cfgPath == "" {
		return fmt.Errorf("collect requires -config")
	}
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		return err
	}

	target := *addr
	if target == "" {
		target = cfg.Listen
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := collector.New(client.New(target), cfg.CollectorTargets())
	return c.Run(ctx)
}

// =============================================================================
// Export
// =============================================================================

// runExport reads samples straight from the configured backends, without
// going through a server, and writes them to a Parquet file.
func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	out := fs.String("o", "tau.parquet", "output file")
	period := fs.Duration("period", 24*time.Hour, "window ending now")
	fs.Parse(args)

	if *cfgPath == "" {
		return fmt.Errorf("export requires -config")
	}
	names := fs.Args()
	if len(names) == 0 {
		names = []string{"*"}
	}

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		return err
	}
	store, closeStore, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build backends: %w", err)
	}
	defer closeStore()

	engine := tau.New(store)
	samples, err := engine.Samples(tau.Query{Names: names, Period: *period})
	if err != nil {
		return err
	}

	w, err := export.NewWriter(*out)
	if err != nil {
		return err
	}
	for signal, series := range samples {
		if err := w.Write(export.FromSamples(signal, series)); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %d rows to %s\n", w.Rows(), w.Path())
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// parseValue interprets raw as JSON when possible, otherwise as a
// string. "8" becomes the number 8, "on" stays a string.
func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", raw, err)
	}
	return t, nil
}

func printJSON(result any) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
