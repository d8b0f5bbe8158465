// Package main is the documaster CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/documaster/internal/config"
	"github.com/hyperjump/documaster/internal/server"
	"github.com/hyperjump/documaster/internal/watcher"
	"github.com/hyperjump/documaster/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/documaster/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). When neither the
// working-directory file nor the default file exists, built-in defaults are used
// and the returned path is empty.
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			config.ApplyEnv(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "ingest":
		runIngest(args)
	case "ask":
		runAsk(args)
	case "chunks":
		runChunks(args)
	case "documents":
		runDocuments(args)
	case "delete":
		runDelete(args)
	case "evaluate":
		runEvaluate(args)
	case "status":
		runStatus(args)
	case "watch":
		runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("documaster version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// exitf prints to stderr and exits with status 1.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (retrieval, prompts, file indexing, etc.)")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		exitf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var watch server.WatchService
	if len(cfg.Watch.Directories) > 0 || resolvedConfigPath != "" {
		w := watcher.New(cfg.Watch, components.Indexer, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		go w.SyncExistingFiles()
		watch = w
	}

	srv := server.NewServer(
		components.QA,
		components.Indexer,
		components.Store,
		components.Catalog,
		cfg,
		logger,
		watch,
		resolvedConfigPath,
	)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// reorderArgs moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so `documaster ask "question"
// --doc abc` would otherwise leave --doc unparsed.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args with spaces so multi-word questions work
// the same with or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printUsage() {
	fmt.Println(`documaster - Question answering over your documents

Usage:
  documaster server [flags]                 Start the HTTP server
  documaster ingest [flags] <file|dir>...   Ingest documents
  documaster ask [flags] <question>         Answer a question from ingested documents
  documaster chunks [flags] <doc-id>        List the chunks of a document
  documaster documents [flags]              List ingested documents
  documaster delete [flags] <doc-id>        Delete a document and its chunks
  documaster evaluate [flags] <cases-file>  Answer and grade a set of questions
  documaster status [flags]                 Show catalog/vector store status
  documaster watch <add|remove|list>        Manage watched inbox directories
  documaster version                        Show version
  documaster help                           Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml, then /usr/local/etc/documaster/config.yaml)
  --server string    Server URL. When set, the command goes through the HTTP API instead of local storage.
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Ingest Flags:
  --collection string  Target collection (default: vector_store.default_collection)

Ask Flags:
  --doc string         Restrict retrieval to a document id (repeatable)
  --collection string  Collection to search

Evaluate:
  The cases file is a JSON or YAML list of {question, reference, document_ids}.

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  documaster server
  documaster ingest ./handbook.pdf ./budget.xlsx
  documaster ask "Is the king cobra venomous?"
  documaster ask --doc 6f1c... --output json "What is the total budget?"
  documaster ask --server http://localhost:8080 "What does chapter 2 cover?"
  documaster chunks 6f1c...
  documaster evaluate cases.yaml
  documaster watch add /path/to/inbox`)
}
