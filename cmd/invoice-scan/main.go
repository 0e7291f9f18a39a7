package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-tracker/internal/config"
	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/export"
	"github.com/zombor/invoice-tracker/internal/invoice"
	"github.com/zombor/invoice-tracker/internal/recognition"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type backendFlags struct {
	geminiKey      string
	geminiModel    string
	ollamaURL      string
	ollamaModel    string
	anthropicKey   string
	anthropicModel string
	azureEndpoint  string
	azureKey       string
	tesseractLangs string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("invoice-scan")
	var (
		dbPath         = fs.StringLong("db", "invoices.db", "Database file path")
		configPath     = fs.StringLong("config", "", "YAML settings file (known suppliers, thresholds, weights)")
		backendList    = fs.StringLong("backends", "", "Comma separated recognition backends: tesseract, gemini, ollama, anthropic, azure")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		anthropicKey   = fs.StringLong("anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
		anthropicModel = fs.StringLong("anthropic-model", "", "Anthropic model name")
		azureEndpoint  = fs.StringLong("azure-endpoint", "", "Azure Computer Vision endpoint")
		azureKey       = fs.StringLong("azure-key", "", "Azure Computer Vision subscription key")
		tesseractLangs = fs.StringLong("tesseract-lang", "eng", "Comma separated tesseract languages")
		timeout        = fs.DurationLong("backend-timeout", 0, "Per-backend recognition timeout (default from settings)")
		preprocess     = fs.BoolLong("preprocess", "Enhance images before recognition")
		workers        = fs.IntLong("workers", 0, "Segments extracted in parallel (default from settings)")
		exportPath     = fs.StringLong("export", "", "Write every stored result to this XLSX file")
		skipProcessed  = fs.BoolLong("skip-processed", "Print the stored results of files already in the database instead of processing them again")
		_              = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_SCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	files := fs.GetArgs()
	if len(files) == 0 && *exportPath == "" {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: no files given\n")
		os.Exit(1)
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}
	if *timeout > 0 {
		settings.BackendTimeout = *timeout
	}
	if *workers > 0 {
		settings.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := backendFlags{
		geminiKey:      *geminiKey,
		geminiModel:    *geminiModel,
		ollamaURL:      *ollamaURL,
		ollamaModel:    *ollamaModel,
		anthropicKey:   *anthropicKey,
		anthropicModel: *anthropicModel,
		azureEndpoint:  *azureEndpoint,
		azureKey:       *azureKey,
		tesseractLangs: *tesseractLangs,
	}
	if err := run(ctx, settings, *backendList, creds, *preprocess, *dbPath, files, *exportPath, *skipProcessed); err != nil {
		slog.Error("invoice-scan failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, settings config.Settings, backendList string, creds backendFlags, preprocess bool, dbPath string, files []string, exportPath string, skipProcessed bool) error {
	backends, err := buildBackends(ctx, backendList, creds)
	defer func() {
		for _, b := range backends {
			if err := b.Close(); err != nil {
				slog.Warn("Failed to close backend", "backend", b.Name(), "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	// a nil Recognizer keeps the reader text-only
	var recognizer document.Recognizer
	if len(backends) > 0 {
		opts := append(settings.CoordinatorOptions(), recognition.WithPreprocessing(preprocess))
		coordinator, err := recognition.NewCoordinator(backends, opts...)
		if err != nil {
			return fmt.Errorf("creating coordinator: %w", err)
		}
		slog.Info("Recognition backends ready", "backends", coordinator.Backends())
		recognizer = coordinator
	}

	opts, err := settings.ProcessorOptions()
	if err != nil {
		return err
	}
	processor := invoice.NewProcessor(append(opts, invoice.WithReader(document.NewFileReader(recognizer)))...)

	slog.Info("Initializing database...", "path", dbPath)
	db, err := invoice.NewBoltDB(dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	service := invoice.NewService(db, processor)

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if skipProcessed {
			if doc, err := service.DocumentByPath(path); err == nil {
				slog.Info("Skipping processed file", "path", path, "id", doc.ID)
				if err := enc.Encode(doc); err != nil {
					return fmt.Errorf("writing results: %w", err)
				}
				continue
			} else if !errors.Is(err, invoice.ErrNotFound) {
				return err
			}
		}

		doc, err := service.ProcessFile(ctx, path)
		if err != nil {
			slog.Error("Failed to process file", "path", path, "error", err)
			failed++
			continue
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("writing results: %w", err)
		}
	}

	if exportPath != "" {
		if err := writeExport(service, exportPath); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func buildBackends(ctx context.Context, list string, creds backendFlags) ([]recognition.Backend, error) {
	var backends []recognition.Backend
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		switch name {
		case "tesseract":
			slog.Info("Initializing tesseract backend...", "languages", creds.tesseractLangs)
			backends = append(backends, recognition.NewTesseract(splitList(creds.tesseractLangs)...))
		case "gemini":
			apiKey := creds.geminiKey
			if apiKey == "" {
				apiKey = os.Getenv("GEMINI_API_KEY")
			}
			if apiKey == "" {
				return backends, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
			}
			slog.Info("Initializing Gemini backend...", "model", creds.geminiModel)
			g, err := recognition.NewGemini(ctx, apiKey, creds.geminiModel)
			if err != nil {
				return backends, fmt.Errorf("initializing gemini: %w", err)
			}
			backends = append(backends, g)
		case "ollama":
			slog.Info("Initializing Ollama backend...", "url", creds.ollamaURL, "model", creds.ollamaModel)
			backends = append(backends, recognition.NewOllama(creds.ollamaURL, creds.ollamaModel))
		case "anthropic":
			apiKey := creds.anthropicKey
			if apiKey == "" {
				apiKey = os.Getenv("ANTHROPIC_API_KEY")
			}
			if apiKey == "" {
				return backends, fmt.Errorf("anthropic API key is required: set --anthropic-key or ANTHROPIC_API_KEY")
			}
			slog.Info("Initializing Anthropic backend...", "model", creds.anthropicModel)
			a, err := recognition.NewAnthropic(apiKey, creds.anthropicModel)
			if err != nil {
				return backends, fmt.Errorf("initializing anthropic: %w", err)
			}
			backends = append(backends, a)
		case "azure":
			slog.Info("Initializing Azure backend...", "endpoint", creds.azureEndpoint)
			a, err := recognition.NewAzure(creds.azureEndpoint, creds.azureKey)
			if err != nil {
				return backends, fmt.Errorf("initializing azure: %w", err)
			}
			backends = append(backends, a)
		default:
			return backends, fmt.Errorf("invalid backend %q: valid backends are tesseract, gemini, ollama, anthropic, azure", name)
		}
	}
	return backends, nil
}

func writeExport(service *invoice.Service, path string) error {
	docs, err := service.ListDocuments()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := export.WriteWorkbook(f, docs); err != nil {
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	slog.Info("Export written", "path", path, "documents", len(docs))
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
