// Command kawaii serves a directory over HTTP with no configuration file.
//
//	kawaii [dir] [-p port] [-host addr] [-version]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"

	"example.com/kawaii/v2/internal/config"
	"example.com/kawaii/v2/internal/logger"
	"example.com/kawaii/v2/internal/router"
	"example.com/kawaii/v2/internal/server"
)

const (
	defaultPort = 13666
	defaultHost = "127.0.0.1"
)

type options struct {
	dir         string
	host        string
	port        int
	showVersion bool
}

// parseArgs accepts flags before or after the positional directory.
func parseArgs(args []string, output io.Writer) (*options, error) {
	opts := &options{dir: "."}
	fs := flag.NewFlagSet("kawaii", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&opts.port, "p", defaultPort, "port to listen on")
	fs.StringVar(&opts.host, "host", defaultHost, "interface to bind (empty for all interfaces)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage: kawaii [dir] [-p port] [-host addr] [-version]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		opts.dir = rest[0]
		if err := fs.Parse(rest[1:]); err != nil {
			return nil, err
		}
		if len(fs.Args()) > 0 {
			return nil, fmt.Errorf("unexpected argument %q", fs.Args()[0])
		}
	}

	if opts.port < 1 || opts.port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", opts.port)
	}
	if opts.dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	return opts, nil
}

// buildConfig produces a validated single-route configuration for opts.
func buildConfig(opts *options) (*config.Config, error) {
	root, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory %q: %w", opts.dir, err)
	}
	return config.NewStaticConfig(net.JoinHostPort(opts.host, strconv.Itoa(opts.port)), root)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "kawaii %s\n", config.Version)
		return 0
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	lg, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer lg.CloseLogFiles()

	rt, err := router.NewRouter(cfg.Routing.Routes, router.StaticHandlerFactory, lg)
	if err != nil {
		lg.Error("Failed to initialize router", logger.LogFields{"error": err.Error()})
		return 1
	}
	srv, err := server.NewServer(cfg, lg, rt)
	if err != nil {
		lg.Error("Failed to initialize server", logger.LogFields{"error": err.Error()})
		return 1
	}
	if err := srv.Listen(ctx); err != nil {
		lg.Error("Failed to listen", logger.LogFields{"error": err.Error()})
		return 1
	}

	color.New(color.FgGreen, color.Bold).Fprintln(stdout, "Start static server")
	fmt.Fprintf(stdout, "  root: %s\n  addr: http://%s\n", cfg.Routing.Routes[0].Static.DocumentRoot, srv.Addr())

	if err := srv.Serve(ctx); err != nil {
		lg.Error("Server stopped with error", logger.LogFields{"error": err.Error()})
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], color.Output, color.Error))
}
