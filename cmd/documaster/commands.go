package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/documaster/internal/cli"
	"github.com/hyperjump/documaster/internal/config"
	"github.com/hyperjump/documaster/internal/models"
	"github.com/hyperjump/documaster/internal/storage"
	"github.com/hyperjump/documaster/pkg/utils"
)

// withLocal loads config, builds local components and runs fn with them.
func withLocal(configPath string, fn func(ctx context.Context, cfg *config.Config, c *Components)) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	logger, err := utils.NewCommandLogger(cfg.Debug)
	if err != nil {
		exitf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		exitf("Failed to initialize: %v", err)
	}
	defer components.Close()
	fn(ctx, cfg, components)
}

func outputFormat(s string) cli.OutputFormat {
	f, err := cli.ParseOutputFormat(s)
	if err != nil {
		exitf("%v", err)
	}
	return f
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (files are uploaded instead of ingested locally)")
	collection := fs.String("collection", "", "target collection")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		exitf("Usage: documaster ingest [flags] <file-or-directory>...")
	}

	if *serverURL != "" {
		client := newAPIClient(*serverURL)
		failed := false
		for _, path := range fs.Args() {
			id, n, err := client.Upload(context.Background(), path, *collection)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s  %d chunk(s)  %s\n", id, n, path)
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	withLocal(*configPath, func(ctx context.Context, _ *config.Config, c *Components) {
		failed := false
		for _, path := range fs.Args() {
			info, err := os.Stat(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
				failed = true
				continue
			}
			if info.IsDir() {
				n, err := c.Indexer.IndexDirectory(ctx, path, *collection)
				fmt.Printf("Ingested %d file(s) from %s\n", n, path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Some files failed:\n%v\n", err)
					failed = true
				}
				continue
			}
			doc, err := c.Indexer.IndexFile(ctx, path, *collection)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s  %d chunk(s)  %s\n", doc.ID, doc.Chunks, path)
		}
		if failed {
			os.Exit(1)
		}
	})
}

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = answer with local components)")
	collection := fs.String("collection", "", "collection to search")
	output := fs.String("output", "text", "output format: text or json")
	var docs stringList
	fs.Var(&docs, "doc", "restrict retrieval to this document id (repeatable)")
	_ = fs.Parse(reorderArgs(args))

	format := outputFormat(*output)
	req := models.QARequest{Question: joinArgs(fs.Args()), DocumentIDs: docs, Collection: *collection}
	if err := req.Validate(); err != nil {
		exitf("Usage: documaster ask [flags] <question>: %v", err)
	}

	var res *models.QAResult
	if *serverURL != "" {
		var err error
		res, err = newAPIClient(*serverURL).Ask(context.Background(), req)
		if err != nil {
			exitf("Ask failed: %v", err)
		}
	} else {
		withLocal(*configPath, func(ctx context.Context, _ *config.Config, c *Components) {
			var err error
			if req.Collection == "" {
				res, err = c.QA.Answer(ctx, req.Question, req.DocumentIDs)
			} else {
				res, err = c.QA.AnswerIn(ctx, req.Question, req.Collection, req.DocumentIDs)
			}
			if err != nil {
				exitf("Ask failed: %v", err)
			}
		})
	}
	if err := cli.WriteAnswer(os.Stdout, res, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runChunks(args []string) {
	fs := flag.NewFlagSet("chunks", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = use local storage)")
	collection := fs.String("collection", "", "collection (default: the document's collection)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		exitf("Usage: documaster chunks [flags] <document-id>")
	}
	docID := fs.Arg(0)
	format := outputFormat(*output)

	var chunks []models.DocumentChunk
	if *serverURL != "" {
		var err error
		chunks, err = newAPIClient(*serverURL).Chunks(context.Background(), docID, *collection)
		if err != nil {
			exitf("Listing chunks failed: %v", err)
		}
	} else {
		withLocal(*configPath, func(ctx context.Context, _ *config.Config, c *Components) {
			coll := *collection
			if coll == "" {
				if doc, err := c.Catalog.GetDocument(ctx, docID); err == nil {
					coll = doc.Collection
				}
			}
			var err error
			chunks, err = c.Store.GetChunksByDocumentID(ctx, docID, coll)
			if err != nil {
				exitf("Listing chunks failed: %v", err)
			}
		})
	}
	if err := cli.WriteChunks(os.Stdout, docID, chunks, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runDocuments(args []string) {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = use local storage)")
	offset := fs.Int("offset", 0, "number of documents to skip")
	limit := fs.Int("limit", 50, "maximum number of documents")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := outputFormat(*output)

	var docs []*models.Document
	if *serverURL != "" {
		var err error
		docs, err = newAPIClient(*serverURL).Documents(context.Background(), *offset, *limit)
		if err != nil {
			exitf("Listing documents failed: %v", err)
		}
	} else {
		withLocal(*configPath, func(ctx context.Context, _ *config.Config, c *Components) {
			var err error
			docs, err = c.Catalog.ListDocuments(ctx, *offset, *limit)
			if err != nil {
				exitf("Listing documents failed: %v", err)
			}
		})
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = use local storage)")
	collection := fs.String("collection", "", "collection (default: the document's collection)")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		exitf("Usage: documaster delete [flags] <document-id>")
	}
	docID := fs.Arg(0)

	var n int
	if *serverURL != "" {
		var err error
		n, err = newAPIClient(*serverURL).Delete(context.Background(), docID, *collection)
		if err != nil {
			exitf("Deletion failed: %v", err)
		}
	} else {
		withLocal(*configPath, func(ctx context.Context, _ *config.Config, c *Components) {
			var err error
			n, err = c.Indexer.DeleteDocument(ctx, docID, *collection)
			if err != nil {
				exitf("Deletion failed: %v", err)
			}
		})
	}
	fmt.Printf("Document deleted: %s (%d chunk(s))\n", docID, n)
}

// readEvalCases reads evaluation cases from a JSON or YAML file. YAML is
// chosen by the .yaml or .yml extension.
func readEvalCases(path string) ([]models.EvalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cases []models.EvalCase
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cases)
	default:
		err = json.Unmarshal(data, &cases)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Question) == "" || strings.TrimSpace(c.Reference) == "" {
			return nil, fmt.Errorf("case %d: question and reference are required", i+1)
		}
	}
	return cases, nil
}

func runEvaluate(args []string) {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		exitf("Usage: documaster evaluate [flags] <cases.json|cases.yaml>")
	}
	format := outputFormat(*output)
	cases, err := readEvalCases(fs.Arg(0))
	if err != nil {
		exitf("Failed to read cases: %v", err)
	}

	withLocal(*configPath, func(ctx context.Context, _ *config.Config, c *Components) {
		report, err := c.QA.RunEvaluation(ctx, cases)
		if err != nil {
			exitf("Evaluation failed: %v", err)
		}
		if err := cli.WriteEvalReport(os.Stdout, report, format); err != nil {
			exitf("Output failed: %v", err)
		}
	})
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	DefaultCollection string  `json:"default_collection"`
	DistanceThreshold float32 `json:"distance_threshold"`
	NResults          int     `json:"n_results"`
	EmbeddingProvider string  `json:"embedding_provider"`
	LLMProvider       string  `json:"llm_provider"`
	ChunkMin          int     `json:"chunk_min"`
	ChunkMax          int     `json:"chunk_max"`
	DatabasePath      string  `json:"database_path,omitempty"`
	VectorPath        string  `json:"vector_path,omitempty"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Documents      int64                 `json:"documents"`
	Chunks         int64                 `json:"chunks"`
	Collections    map[string]int        `json:"collections"`
	DiskUsageBytes *int64                `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func localStatus(ctx context.Context, cfg *config.Config, c *Components) (*statusResponse, error) {
	docCount, err := c.Catalog.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunkCount, err := c.Catalog.CountChunks(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	names, err := c.Store.Collections(ctx)
	if err != nil {
		return nil, err
	}
	collections := make(map[string]int, len(names))
	for _, name := range names {
		collections[name], _ = c.Store.Count(ctx, name)
	}
	status := &statusResponse{
		Documents:   docCount,
		Chunks:      chunkCount,
		Collections: collections,
		Config: &statusConfigResponse{
			DefaultCollection: c.Store.DefaultCollection(),
			DistanceThreshold: c.Store.DistanceThreshold(),
			NResults:          cfg.VectorStore.NResults,
			EmbeddingProvider: cfg.Embedding.Provider,
			LLMProvider:       cfg.LLM.Provider,
			ChunkMin:          cfg.Chunking.Min,
			ChunkMax:          cfg.Chunking.Max,
			DatabasePath:      cfg.Storage.DatabasePath,
			VectorPath:        cfg.Storage.VectorPath,
		},
	}
	if usage, err := storage.DiskUsage(cfg.Storage.DatabasePath, cfg.Storage.VectorPath); err == nil {
		status.DiskUsageBytes = &usage.Bytes
	}
	return status, nil
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = use local storage)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := outputFormat(*output)

	var status *statusResponse
	if *serverURL != "" {
		var err error
		status, err = newAPIClient(*serverURL).Status(context.Background())
		if err != nil {
			exitf("Status failed: %v", err)
		}
	} else {
		withLocal(*configPath, func(ctx context.Context, cfg *config.Config, c *Components) {
			var err error
			status, err = localStatus(ctx, cfg, c)
			if err != nil {
				exitf("Status failed: %v", err)
			}
		})
	}

	if format == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			exitf("Output failed: %v", err)
		}
		return
	}
	writeStatusText(status)
}

func writeStatusText(status *statusResponse) {
	fmt.Printf("documents:          %d   # count of ingested documents\n", status.Documents)
	fmt.Printf("chunks:             %d   # count of chunks in the catalog\n", status.Chunks)
	for name, n := range status.Collections {
		fmt.Printf("collection:         %s (%d vectors)\n", name, n)
	}
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage_bytes:   %d   # catalog + vectors on disk\n", *status.DiskUsageBytes)
	}
	if c := status.Config; c != nil {
		fmt.Println()
		fmt.Println("# configuration")
		fmt.Printf("default_collection: %s\n", c.DefaultCollection)
		fmt.Printf("distance_threshold: %.2f\n", c.DistanceThreshold)
		fmt.Printf("n_results:          %d\n", c.NResults)
		fmt.Printf("embedding_provider: %s\n", c.EmbeddingProvider)
		fmt.Printf("llm_provider:       %s\n", c.LLMProvider)
		fmt.Printf("chunk_capacity:     %d..%d\n", c.ChunkMin, c.ChunkMax)
		if c.DatabasePath != "" {
			fmt.Printf("database_path:      %s\n", c.DatabasePath)
		}
		if c.VectorPath != "" {
			fmt.Printf("vector_path:        %s\n", c.VectorPath)
		}
	}
}

func runWatch(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: documaster watch <add|remove|list> [path]")
		fmt.Println("  documaster watch add <path>     Add directory to watch")
		fmt.Println("  documaster watch remove <path>  Remove directory from watch")
		fmt.Println("  documaster watch list           List watched directories")
		os.Exit(1)
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(reorderArgs(args[1:]))
	client := newAPIClient(*serverURL)
	ctx := context.Background()

	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			exitf("Usage: documaster watch %s <path>", sub)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if sub == "add" {
			if err := client.WatchAdd(ctx, path); err != nil {
				exitf("Add failed: %v", err)
			}
			fmt.Printf("Added: %s\n", path)
			return
		}
		if err := client.WatchRemove(ctx, path); err != nil {
			exitf("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		dirs, err := client.WatchList(ctx)
		if err != nil {
			exitf("List failed: %v", err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		exitf("Unknown watch subcommand: %s", sub)
	}
}
