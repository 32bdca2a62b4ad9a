// Productqa answers natural-language questions about a product catalog.
//
// It reads the catalog from SQLite, indexes an embedding of every product
// and answers each question from the closest match using a generative model.
//
// Configuration is loaded from ~/.config/productqa/config.yaml (optional),
// a .env file and environment variables. See internal/config for details.
//
// Usage:
//
//	# Ingest the catalog, then serve POST /ask on 127.0.0.1:5001
//	GOOGLE_API_KEY=... productqa serve
//
//	# Rebuild the index and exit
//	productqa ingest
//
//	# Serve MCP tools over stdio
//	productqa mcp
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", "", "path to config file (default ~/.config/productqa/config.yaml)")
	flag.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	command := "serve"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	switch command {
	case "version":
		printVersion(os.Stdout)
		return
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "serve", "ingest", "mcp":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "Received signal %v, shutting down gracefully...\n", sig)
		cancel()
	}()

	if err := run(ctx, command, opts); err != nil {
		fmt.Fprintf(os.Stderr, "productqa %s: %v\n", command, err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: productqa [flags] [command]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  serve     Ingest the catalog and serve the HTTP API (default)\n")
	fmt.Fprintf(w, "  ingest    Ingest the catalog into the vector index and exit\n")
	fmt.Fprintf(w, "  mcp       Serve MCP tools over stdio\n")
	fmt.Fprintf(w, "  version   Show version information\n\n")
	fmt.Fprintf(w, "Flags:\n")
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "productqa by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}
