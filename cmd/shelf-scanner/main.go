package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/shelf-scanner/internal/config"
	"github.com/zombor/shelf-scanner/internal/pantry"
	"github.com/zombor/shelf-scanner/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// app holds the root flags shared by every subcommand
type app struct {
	flags *ff.FlagSet

	configPath    *string
	provider      *string
	baseURL       *string
	apiKey        *string
	model         *string
	maxRetries    *int
	dbPath        *string
	storeURL      *string
	redisPassword *string
	imagesPath    *string
	readLimit     *int
	maxRecords    *int
	maxDays       *int
	demoFallback  *bool
	debug         *bool
}

func newApp() *app {
	fs := ff.NewFlagSet("shelf-scanner")
	return &app{
		flags:         fs,
		configPath:    fs.StringLong("config", "", "YAML file with provider profiles"),
		provider:      fs.StringLong("provider", "", "Provider profile: qwen, openai, ollama, gemini or one from --config"),
		baseURL:       fs.StringLong("base-url", "", "Override the provider endpoint URL"),
		apiKey:        fs.StringLong("api-key", "", "Override the provider API key"),
		model:         fs.StringLong("model", "", "Override the provider model name"),
		maxRetries:    fs.IntLong("max-retries", 0, "Override the number of attempts per recognition"),
		dbPath:        fs.StringLong("db", "shelf-scanner.db", "Database file path"),
		storeURL:      fs.StringLong("store-url", "", "Redis URL (redis://host:6379/0); uses --db when empty"),
		redisPassword: fs.StringLong("redis-password", "", "Redis password"),
		imagesPath:    fs.StringLong("images", "./captures", "Directory for captured images"),
		readLimit:     fs.IntLong("read-limit", pantry.DefaultReadLimit, "Records returned by history and searched by --search"),
		maxRecords:    fs.IntLong("max-records", 0, "Evict the oldest records beyond this count (0 keeps everything)"),
		maxDays:       fs.IntLong("max-shelf-life-days", pantry.DefaultMaxShelfLifeDays, "Longest shelf-life that makes a result worth saving"),
		demoFallback:  fs.BoolLong("demo-fallback", "Return a demo item list when recognition fails"),
		debug:         fs.BoolLong("debug", "Enable debug logging"),
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})))
}

// loadConfig reads provider profiles and applies flag overrides
func (a *app) loadConfig() (string, config.Provider, error) {
	cfg, err := config.Load(*a.configPath)
	if err != nil {
		return "", config.Provider{}, err
	}
	if *a.provider != "" {
		cfg.Provider = *a.provider
	}
	cfg.Override(config.Provider{
		BaseURL:    *a.baseURL,
		APIKey:     *a.apiKey,
		Model:      *a.model,
		MaxRetries: *a.maxRetries,
	})
	return cfg.Active()
}

func newRecognizer(name string, p config.Provider) (scanning.Recognizer, error) {
	switch p.Kind {
	case config.KindOllama:
		return scanning.NewOllama(p.BaseURL, p.Model, p.ImageTimeout()), nil
	case config.KindGemini:
		return scanning.NewGemini(p.APIKey, p.Model, p.ImageTimeout())
	default:
		if p.APIKey == "" {
			slog.Warn("No API key configured, provider calls will be rejected", "provider", name)
		}
		return scanning.NewClient(scanning.ClientConfig{
			Name:         name,
			BaseURL:      p.BaseURL,
			APIKey:       p.APIKey,
			Model:        p.Model,
			ImageTimeout: p.ImageTimeout(),
			TextTimeout:  p.Timeout(),
		}), nil
	}
}

func (a *app) openBackend() (pantry.Backend, error) {
	if *a.storeURL != "" {
		slog.Info("Connecting to redis...")
		return pantry.NewRedisBackend(pantry.RedisConfig{
			URL:       *a.storeURL,
			Password:  *a.redisPassword,
			KeyPrefix: "shelf-scanner:",
		})
	}
	slog.Info("Initializing database...", "path", *a.dbPath)
	return pantry.NewBoltBackend(*a.dbPath)
}

// open wires the store and service. The recognizer is only built when the
// command sends images to a provider.
func (a *app) open(withRecognizer bool) (*pantry.Service, func(), error) {
	backend, err := a.openBackend()
	if err != nil {
		return nil, nil, fmt.Errorf("opening record store: %w", err)
	}
	store := pantry.NewStore(backend, pantry.StoreOptions{
		ReadLimit:  *a.readLimit,
		MaxRecords: *a.maxRecords,
	})

	images, err := pantry.NewLocalImageStore(*a.imagesPath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	closers := []func() error{store.Close}
	opts := []pantry.ServiceOption{
		pantry.WithValidator(pantry.Validator{MaxDays: uint(max(*a.maxDays, 0))}),
		pantry.WithFallback(*a.demoFallback),
	}

	var recognizer scanning.Recognizer
	if withRecognizer {
		name, profile, err := a.loadConfig()
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		slog.Info("Initializing recognizer...", "provider", name, "kind", profile.Kind, "model", profile.Model)
		recognizer, err = newRecognizer(name, profile)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("initializing %s: %w", name, err)
		}
		closers = append(closers, recognizer.Close)

		policy := scanning.DefaultRetryPolicy()
		if profile.MaxRetries > 0 {
			policy.MaxAttempts = profile.MaxRetries
		}
		if profile.RetryDelay() > 0 {
			policy.BaseDelay = profile.RetryDelay()
		}
		opts = append(opts, pantry.WithRetryPolicy(policy))
	}

	service := pantry.NewService(store, recognizer, images, opts...)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("Error closing resource", "error", err)
			}
		}
	}
	return service, closeAll, nil
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	root := a.command()

	err := root.ParseAndRun(ctx, os.Args[1:], ff.WithEnvVarPrefix("SHELF_SCANNER"))
	switch {
	case err == nil:
	case errors.Is(err, ff.ErrHelp):
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
	default:
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
