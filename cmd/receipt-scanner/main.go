package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-scanner/internal/receipt"
	"github.com/zombor/receipt-scanner/internal/recognition"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Best-effort .env load; flags and real env still win
	_ = godotenv.Load()

	fs := ff.NewFlagSet("receipt-scanner")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "receipt-scanner.db", "Database file path")
		storagePath = fs.StringLong("storage", "./receipts", "Storage directory path")

		primary       = fs.StringLong("primary", "gemini", "Primary recognition backend")
		fallback      = fs.StringLong("fallback", "tesseract", "Fallback recognition backend")
		timeoutMillis = fs.IntLong("timeout-millis", 30000, "Per-attempt backend timeout in milliseconds")
		minConfidence = fs.Float64Long("min-confidence", 0.6, "Minimum confidence for a result to win without fallback")
		language      = fs.StringLong("language", "", "Recognition language hint (e.g. 'de')")

		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		visionKeyfile = fs.StringLong("vision-keyfile", "", "Google Cloud Vision service account key file (ambient credentials when absent)")
		azureKey      = fs.StringLong("azure-key", "", "Azure Computer Vision subscription key")
		azureEndpoint = fs.StringLong("azure-endpoint", "", "Azure Computer Vision endpoint URL")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g. llava, qwen2-vl)")
		tessLangs     = fs.StringLong("tesseract-languages", "deu,eng", "Tesseract language codes, comma separated")

		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	registry := recognition.NewRegistry()
	configs := map[string]recognition.BackendConfig{
		"gemini":    {Model: *geminiModel},
		"ollama":    {Model: *ollamaModel, Endpoint: *ollamaURL},
		"tesseract": {Languages: strings.Split(*tessLangs, ",")},
	}
	credentials := map[string]recognition.Credentials{
		"gemini": {APIKey: apiKey},
		"vision": {KeyFile: *visionKeyfile},
		"azure":  {APIKey: *azureKey, Endpoint: *azureEndpoint},
	}

	slog.Info("Initializing recognition backends...")
	backends, failures := registry.CreateMany(registry.Names(), configs, credentials)
	for _, f := range failures {
		slog.Warn("Backend not available", "backend", f.Name, "error", f.Err)
	}
	if len(backends) == 0 {
		slog.Error("No recognition backend could be initialized")
		os.Exit(1)
	}
	if _, ok := backends[*primary]; !ok {
		slog.Error("Primary backend is not available", "backend", *primary)
		os.Exit(1)
	}

	orchestrator := recognition.NewOrchestrator(backends, registry.Names(), recognition.Policy{
		Primary:       *primary,
		Fallback:      *fallback,
		Timeout:       time.Duration(*timeoutMillis) * time.Millisecond,
		MinConfidence: *minConfidence,
	})

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := receipt.NewService(db, orchestrator, store, recognition.Options{Language: *language})

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, registry.ListAvailable(), basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"primary", *primary,
		"fallback", *fallback,
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
