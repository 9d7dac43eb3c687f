// Command homer indexes local documents and answers questions about them
// with locally served language models.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/flowbrg/homer/graph/emit"
	"github.com/flowbrg/homer/graph/model/ollama"
	"github.com/flowbrg/homer/graph/store"
	"github.com/flowbrg/homer/internal/api"
	"github.com/flowbrg/homer/internal/config"
	"github.com/flowbrg/homer/internal/logging"
	"github.com/flowbrg/homer/internal/rag"
	"github.com/flowbrg/homer/internal/vectorstore"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Serve struct{} `cmd:"" help:"Start the HTTP API server"`

	Index struct {
		Dir string `arg:"" optional:"" help:"Directory to index (defaults to the configured documents directory)" type:"path"`
	} `cmd:"" help:"Index documents into the vector store"`

	Chat struct {
		Message string `arg:"" help:"Message to send"`
		Thread  string `short:"t" help:"Thread ID to continue (a new thread is created when omitted)"`
	} `cmd:"" help:"Ask a question about the indexed documents"`

	Report struct {
		Query  string `arg:"" help:"Report topic"`
		Output string `short:"o" help:"Write the report to a file instead of stdout" type:"path"`
	} `cmd:"" help:"Generate a multi-section report from the indexed documents"`

	Documents struct {
		Delete string `help:"Remove a source and its chunks from the index"`
	} `cmd:"" help:"List or delete indexed documents"`

	Threads struct {
		Delete string `help:"Remove a chat thread"`
	} `cmd:"" help:"List or delete chat threads"`

	ConfigCmd struct {
		Init bool `help:"Write the default configuration file"`
	} `cmd:"" name:"config" help:"Show or initialize the configuration"`

	Models struct{} `cmd:"" help:"List the models available on the Ollama server"`
}

func main() {
	// Local overrides like HOMER_OLLAMA_HOST can live in a .env file.
	_ = godotenv.Load()

	kctx := kong.Parse(&CLI,
		kong.Name("homer"),
		kong.Description("Local document Q&A over Ollama models."),
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "homer: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Environment)
	if CLI.Verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, kctx.Command(), cfg, log); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg config.Config, log zerolog.Logger) error {
	switch command {
	case "serve":
		return runServe(ctx, cfg, log)
	case "index", "index <dir>":
		return runIndex(ctx, cfg, log)
	case "chat <message>":
		return runChat(ctx, cfg, log)
	case "report <query>":
		return runReport(ctx, cfg, log)
	case "documents":
		return runDocuments(ctx, cfg, log)
	case "threads":
		return runThreads(ctx, cfg, log)
	case "config":
		return runConfig(cfg)
	case "models":
		return runModels(ctx, cfg)
	}
	return fmt.Errorf("unknown command %q", command)
}

// openPipelines wires the stores and models for one command invocation.
// The caller must Close the returned pipelines.
func openPipelines(cfg config.Config, registerer prometheus.Registerer, log zerolog.Logger) (*rag.Pipelines, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	vstore, err := vectorstore.NewSQLiteStore(cfg.VectorDBPath())
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	var chatStore store.Store[rag.ChatState]
	if cfg.MySQLDSN != "" {
		chatStore, err = store.NewMySQLStore[rag.ChatState](cfg.MySQLDSN)
	} else {
		chatStore, err = store.NewSQLiteStore[rag.ChatState](cfg.StateDBPath())
	}
	if err != nil {
		_ = vstore.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	emitter := emit.NewLogEmitter(os.Stderr, cfg.Environment != "development")

	pipelines, err := rag.NewPipelines(cfg, vstore, chatStore, emitter, registerer, log)
	if err != nil {
		_ = vstore.Close()
		_ = chatStore.Close()
		return nil, err
	}
	return pipelines, nil
}

func runServe(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	registry := prometheus.NewRegistry()

	pipelines, err := openPipelines(cfg, registry, log)
	if err != nil {
		return err
	}
	defer pipelines.Close()

	cfgPath := CLI.Config
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	return api.NewServer(pipelines, cfg, cfgPath, registry, log).Run(ctx)
}

func runIndex(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	pipelines, err := openPipelines(cfg, nil, log)
	if err != nil {
		return err
	}
	defer pipelines.Close()

	dir := CLI.Index.Dir
	if dir == "" {
		dir = cfg.DocumentsDir
	}

	result, err := pipelines.Index(ctx, dir)
	if err != nil {
		return err
	}

	fmt.Printf("indexed %d files (%d chunks), skipped %d already-indexed files\n",
		len(result.Indexed), result.Chunks, len(result.Skipped))
	for _, src := range result.Indexed {
		fmt.Printf("  + %s\n", src)
	}
	return nil
}

func runChat(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	pipelines, err := openPipelines(cfg, nil, log)
	if err != nil {
		return err
	}
	defer pipelines.Close()

	thread := CLI.Chat.Thread
	if thread == "" {
		thread = uuid.NewString()
		fmt.Printf("thread: %s\n\n", thread)
	}

	result, err := pipelines.Chat(ctx, thread, CLI.Chat.Message)
	if err != nil {
		return err
	}

	fmt.Println(result.Reply)
	if len(result.Sources) > 0 {
		fmt.Println("\nsources:")
		for _, src := range result.Sources {
			fmt.Printf("  - %s\n", src)
		}
	}
	return nil
}

func runReport(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	pipelines, err := openPipelines(cfg, nil, log)
	if err != nil {
		return err
	}
	defer pipelines.Close()

	result, err := pipelines.Report(ctx, CLI.Report.Query)
	if err != nil {
		return err
	}

	if CLI.Report.Output != "" {
		if err := os.WriteFile(CLI.Report.Output, []byte(result.Report), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		log.Info().Str("path", CLI.Report.Output).Int("sections", len(result.Sections)).Msg("report written")
		return nil
	}
	fmt.Println(result.Report)
	return nil
}

func runDocuments(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	pipelines, err := openPipelines(cfg, nil, log)
	if err != nil {
		return err
	}
	defer pipelines.Close()

	if CLI.Documents.Delete != "" {
		if err := pipelines.DeleteDocument(ctx, CLI.Documents.Delete); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", CLI.Documents.Delete)
		return nil
	}

	sources, err := pipelines.Documents(ctx)
	if err != nil {
		return err
	}
	count, err := pipelines.ChunkCount(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d documents, %d chunks\n", len(sources), count)
	for _, src := range sources {
		fmt.Printf("  %s\n", src)
	}
	return nil
}

func runThreads(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	pipelines, err := openPipelines(cfg, nil, log)
	if err != nil {
		return err
	}
	defer pipelines.Close()

	if CLI.Threads.Delete != "" {
		if err := pipelines.DeleteThread(ctx, CLI.Threads.Delete); err != nil {
			return err
		}
		fmt.Printf("deleted thread %s\n", CLI.Threads.Delete)
		return nil
	}

	threads, err := pipelines.Threads(ctx)
	if err != nil {
		return err
	}
	for _, t := range threads {
		fmt.Printf("%s  (last active %s)\n", t.RunID, t.UpdatedAt.Format("2006-01-02 15:04"))
	}
	if len(threads) == 0 {
		fmt.Println("no threads")
	}
	return nil
}

func runConfig(cfg config.Config) error {
	path := CLI.Config
	if path == "" {
		path = config.DefaultPath()
	}

	if CLI.ConfigCmd.Init {
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	}

	fmt.Printf("config file: %s\n", path)
	fmt.Printf("data dir: %s\n", cfg.DataDir)
	fmt.Printf("documents dir: %s\n", cfg.DocumentsDir)
	fmt.Printf("ollama host: %s\n", cfg.OllamaHost)
	fmt.Printf("embedding model: %s\n", cfg.EmbeddingModel)
	fmt.Printf("query model: %s\n", cfg.QueryModel)
	fmt.Printf("response model: %s\n", cfg.ResponseModel)
	fmt.Printf("vision model: %s\n", cfg.VisionModel)
	return nil
}

func runModels(ctx context.Context, cfg config.Config) error {
	models, err := ollama.ListModels(ctx, cfg.OllamaHost)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Printf("%s  (%.1f GB)\n", m.Name, float64(m.Size)/(1<<30))
	}
	if len(models) == 0 {
		fmt.Println("no models installed")
	}
	return nil
}
