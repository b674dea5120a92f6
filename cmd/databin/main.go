// databin inspects, extracts, and rebuilds data.bin asset containers.
//
// Containers are named by local path or by http(s) URL. URLs are read with
// range requests, so listing a remote container downloads only the blocks
// that loading touches.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"

	"github.com/spf13/pflag"

	"github.com/meigma/databin"
	"github.com/meigma/databin/config"
	"github.com/meigma/databin/remote"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

// usageError reports a malformed command line.
type usageError struct {
	msg string
}

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func (e *usageError) Error() string { return e.msg }

func (e *usageError) ExitCode() int { return 2 }

// env carries what every subcommand needs.
type env struct {
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(e *env, args []string) error
}

func commands() []command {
	return []command{
		{"list", "list [--digest | --file-list] ARCHIVE", "list every entry", runList},
		{"lookup", "lookup ARCHIVE PATH|0xHASH...", "find entries by path or hash", runLookup},
		{"hash", "hash PATH...", "print the file id and hash of paths", runHash},
		{"extract", "extract [--overwrite] [--workers N] ARCHIVE DIR", "write every entry to a directory", runExtract},
		{"pack", "pack [--strict] DIR OUTPUT", "rebuild a container from an extracted directory", runPack},
		{"repack", "repack [--level N] ARCHIVE OUTPUT", "load and save a container", runRepack},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var configPath, platform, logLevel, logFormat string

	flagSet := pflag.NewFlagSet("databin", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&platform, "platform", "", "platform override section: pc or ps2")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return usagef("%v", err)
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(stderr, flagSet)
		return nil
	}

	name := flagSet.Arg(0)
	idx := slices.IndexFunc(commands(), func(c command) bool { return c.name == name })
	if idx < 0 {
		return usagef("unknown command %q", name)
	}
	cmd := commands()[idx]

	cfg, err := loadConfig(configPath, config.Platform(platform))
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(stderr, cfg, logFormat)
	if err != nil {
		return err
	}

	e := &env{ctx: ctx, cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	return cmd.run(e, flagSet.Args()[1:])
}

func loadConfig(path string, platform config.Platform) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path, platform)
	}
	return config.Load(platform)
}

func newLogger(w io.Writer, cfg *config.Config, format string) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, usagef("invalid --log-format %q", format)
	}
}

// archiveOptions returns the configured archive options plus extra.
func (e *env) archiveOptions(extra ...databin.Option) ([]databin.Option, error) {
	opts, err := e.cfg.ArchiveOptions(e.logger)
	if err != nil {
		return nil, err
	}
	return append(opts, extra...), nil
}

// open loads a container from a local path or an http(s) URL.
func (e *env) open(name string, extra ...databin.Option) (*databin.Archive, error) {
	opts, err := e.archiveOptions(extra...)
	if err != nil {
		return nil, err
	}
	if !remote.IsURL(name) {
		return databin.LoadFile(name, opts...)
	}
	src, err := remote.NewSource(name, remote.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	a, err := databin.Load(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	e.logger.Debug("remote container loaded", "url", name, "requests", src.Requests())
	return a, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `databin reads and writes data.bin asset containers.

Usage:
  databin [global flags] COMMAND [flags] ARGS

Commands:
`)
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, `
Examples:
  # List a container with payload digests
  databin list --digest data.bin

  # Extract, edit, and rebuild
  databin extract data.bin out/
  databin pack out/ data-new.bin

  # Inspect a container served over HTTP
  databin --log-level debug list https://example.com/data.bin

Global flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
