package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"example.com/minihttpd/internal/config"
	"example.com/minihttpd/internal/handlers/staticfile"
	"example.com/minihttpd/internal/logger"
	"example.com/minihttpd/internal/server"
	"example.com/minihttpd/internal/util"
)

const noPortMessage = "ERROR, no port provided"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

// run parses args, wires the server and blocks until it shuts down.
// It returns the process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	flags := flag.NewFlagSet("minihttpd", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configFilePath := flags.String("config", "", "Path to the configuration file (JSON or TOML)")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: minihttpd [-config FILE] <port>\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stderr, noPortMessage)
		return 1
	}
	port, err := util.ParsePort(flags.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, noPortMessage)
		return 1
	}

	cfg := config.Default()
	if *configFilePath != "" {
		cfg, err = config.LoadConfig(*configFilePath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
			return 1
		}
	}

	lg, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() {
		if err := lg.CloseLogFiles(); err != nil {
			fmt.Fprintf(stderr, "Error closing log files: %v\n", err)
		}
	}()

	docRoot, err := staticfile.NewFilesystem(cfg.Handler.DocumentRoot)
	if err != nil {
		lg.Error("Invalid document root", logger.LogFields{"error": err.Error()})
		return 1
	}
	handler, err := staticfile.New(cfg.Handler, docRoot, lg)
	if err != nil {
		lg.Error("Failed to create handler", logger.LogFields{"error": err.Error()})
		return 1
	}

	srv, err := server.NewServer(cfg, lg, handler, port)
	if err != nil {
		lg.Error("Failed to create server", logger.LogFields{"error": err.Error()})
		return 1
	}

	lg.Info("Starting server", logger.LogFields{
		"port":             port,
		"document_root":    docRoot.Root(),
		"read_buffer_size": humanize.Bytes(uint64(*cfg.Handler.ReadBufferSize)),
		"chunk_size":       humanize.Bytes(uint64(*cfg.Handler.ChunkSize)),
		"max_connections":  *cfg.Server.MaxConnections,
	})
	if err := srv.Start(ctx); err != nil {
		lg.Error("Server stopped with error", logger.LogFields{"error": err.Error()})
		return 1
	}

	lg.Info("Server shut down gracefully", nil)
	return 0
}
