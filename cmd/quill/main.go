package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/quill/internal/types"
	cfgPkg "github.com/xhad/quill/pkg/config"
	"github.com/xhad/quill/pkg/extractor"
	"github.com/xhad/quill/pkg/ingest"
	"github.com/xhad/quill/pkg/llm"
	"github.com/xhad/quill/pkg/search"
	"github.com/xhad/quill/pkg/source"
	"github.com/xhad/quill/pkg/store"
	"github.com/xhad/quill/server"
)

type flags struct {
	configPath string
	docsDir    string
	webURL     string
	topK       int
	filter     string
	serveAddr  string
	verbose    bool
}

func main() {
	var f flags
	var configPath string

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&f.docsDir, "docs", "", "Directory of documents to ingest")
	flag.StringVar(&f.webURL, "web", "", "Website to crawl and ingest")
	flag.IntVar(&f.topK, "top-k", search.DefaultMaxResults, "Number of chunks to retrieve per query")
	flag.StringVar(&f.filter, "filter", "", "Restrict retrieval to one document id")
	flag.StringVar(&f.serveAddr, "serve", "", "Serve chat over websocket on this address instead of the terminal")
	flag.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()
	f.configPath = configPath

	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		log.Fatal(err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		os.Exit(1)
	}

	if err := run(config, f); err != nil {
		log.Fatal(err)
	}
}

func run(config *cfgPkg.Config, f flags) error {
	level := zerolog.InfoLevel
	if f.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	ctx := context.Background()

	vectorStore, err := store.NewWithConfig(store.PGStoreConfig{
		ConnString:     config.Database.URL,
		DocumentsTable: config.Database.DocumentsTable,
		ChunksTable:    config.Database.ChunksTable,
		VectorDim:      config.Database.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	if err := vectorStore.EnsureExists(ctx); err != nil {
		return fmt.Errorf("failed to prepare store: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     config.LLM.EmbedModel,
		BaseURL:   config.LLM.BaseURL,
		RateLimit: config.LLM.EmbedRateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chatEngine, err := llm.NewChatWithConfig(llm.ChatConfig{
		Model:       config.LLM.ChatModel,
		MaxTokens:   config.LLM.MaxTokens,
		BaseURL:     config.LLM.BaseURL,
		Temperature: config.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	searchEngine, err := search.NewWithConfig(search.EngineConfig{
		Embedder: embedder,
		Chunks:   vectorStore,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize search engine: %w", err)
	}

	contentSource, err := buildSource(config, f)
	if err != nil {
		return err
	}

	// An ingestion failure is reported but never takes down the
	// interactive session.
	if contentSource != nil {
		if err := runIngestion(ctx, config, contentSource, embedder, vectorStore, logger); err != nil {
			color.Red("Ingestion failed: %v", err)
		}
	}

	if f.serveAddr != "" {
		ws, err := server.NewWSServer(server.Config{
			Addr:      f.serveAddr,
			TopK:      f.topK,
			Streaming: config.UI.Streaming,
		}, chatEngine, searchEngine)
		if err != nil {
			return err
		}
		return ws.Start()
	}

	return chatLoop(ctx, config, chatEngine, searchEngine, f)
}

func buildSource(config *cfgPkg.Config, f flags) (types.ContentSource, error) {
	docsDir := f.docsDir
	if docsDir == "" {
		docsDir = config.Source.Path
	}
	webURL := f.webURL
	if webURL == "" {
		webURL = config.Source.URL
	}

	switch {
	case docsDir != "":
		return source.NewDirSourceWithConfig(source.DirSourceConfig{
			Path:       docsDir,
			Extensions: config.Source.Extensions,
			PDFToText:  config.Source.PDFToText,
		})
	case webURL != "":
		return source.NewWebSourceWithConfig(source.WebSourceConfig{
			BaseURL:        webURL,
			MaxDepth:       config.Source.MaxDepth,
			RateLimit:      config.Source.RateLimit,
			IgnorePatterns: config.Source.IgnorePatterns,
		})
	default:
		return nil, nil
	}
}

func runIngestion(
	ctx context.Context,
	config *cfgPkg.Config,
	contentSource types.ContentSource,
	embedder types.Embedder,
	vectorStore *store.PGStore,
	logger zerolog.Logger,
) error {
	color.Blue("\nIngesting from %s\n", contentSource.SourceID())
	bar := getProgressBar(-1, "Processing documents...")

	orchestrator, err := ingest.NewWithConfig(ingest.OrchestratorConfig{
		Source: contentSource,
		Extractor: extractor.NewWithConfig(extractor.ExtractorConfig{
			SegmentTokens: config.Extractor.SegmentTokens,
			Encoding:      config.Extractor.Encoding,
		}),
		Embedder:  embedder,
		Documents: vectorStore,
		Chunks:    vectorStore,
		Timeout:   time.Duration(config.Ingest.TimeoutSecs) * time.Second,
		Logger:    logger,
		OnProgress: func(documentID string) {
			bar.Add(1)
			bar.Describe(color.BlueString("Processing documents... (%s)", documentID))
		},
	})
	if err != nil {
		return err
	}

	report, err := orchestrator.Ingest(ctx)
	bar.Finish()
	fmt.Print("\n")
	if err != nil {
		return err
	}

	color.Green("✓ Ingestion complete: %d processed, %d deleted\n", report.Processed, report.Deleted)
	return nil
}

func chatLoop(ctx context.Context, config *cfgPkg.Config, chatEngine *llm.ChatEngine, searchEngine *search.Engine, f flags) error {
	color.Cyan("\nChat with your documents (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	session := llm.NewSession()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.EqualFold(query, "exit") {
			break
		}

		querySpinner := getSpinner("Searching documents...")
		results, err := searchEngine.Search(ctx, query, f.filter, f.topK)
		querySpinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error searching documents: %v\n", err)
			continue
		}

		if config.UI.Streaming {
			stream, err := chatEngine.ChatStream(ctx, query, results, session)
			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}

			fmt.Print("\n")
			assistantPrompt("Assistant: ")
			for chunk := range stream {
				if strings.HasPrefix(chunk, "Error:") {
					color.Red("\n%s", chunk)
					break
				}
				fmt.Print(chunk)
			}
			fmt.Print("\n")
		} else {
			responseSpinner := getSpinner("Generating response...")
			response, err := chatEngine.Chat(ctx, query, results, session)
			responseSpinner.Finish()
			fmt.Print("\r")

			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}
			assistantPrompt("Assistant: %s\n", response)
		}
	}

	stats := session.Stats()
	color.Cyan("\nSession: %d queries, %d prompt chars, %d completion chars\n",
		stats.Queries, stats.PromptChars, stats.CompletionChars)
	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
