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

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/wrap-tracker/internal/parsing"
	"github.com/zombor/wrap-tracker/internal/report"
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

	fs := ff.NewFlagSet("wrap-tracker")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbDriver        = fs.StringLong("db-driver", "bolt", "Database driver: 'bolt' or 'sqlite'")
		dbPath          = fs.StringLong("db", "wrap-tracker.db", "Database file path")
		storagePath     = fs.StringLong("storage", "./photos", "Photo storage directory path")
		catalogPath     = fs.StringLong("catalog", "materials.json", "Service catalog file (.json or .yaml)")
		unrecognizedLog = fs.StringLong("unrecognized-log", "unrecognized_services.txt", "File that collects unrecognized phrases")
		adminPassword   = fs.StringLong("admin-password", "", "Password that unlocks admin mode (empty disables it)")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		photoTTL        = fs.DurationLong("photo-ttl", 24*time.Hour, "How long photos without a caption wait for a report (0 keeps them)")
		strictPlates    = fs.BoolLong("strict-plates", "Only accept plates that contain a digit")
		singleReport    = fs.BoolLong("single-report", "Store one report per message under its last date")
		rateEvery       = fs.DurationLong("rate-every", 2*time.Second, "Minimum interval between reports per sender (0 disables)")
		rateBurst       = fs.IntLong("rate-burst", 5, "Reports a sender may send in a burst")
		logLevel        = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat       = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("WRAP_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(*logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "driver", *dbDriver, "path", *dbPath)
	var (
		db  report.DB
		err error
	)
	switch *dbDriver {
	case "bolt":
		db, err = report.NewBoltDB(*dbPath)
	case "sqlite":
		db, err = report.NewSQLiteDB(*dbPath)
	default:
		slog.Error("Invalid database driver", "driver", *dbDriver, "valid", "bolt or sqlite")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := report.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize parser
	catalog := parsing.NewCachedCatalog(*catalogPath)
	if cat, err := catalog.Load(); err != nil {
		slog.Warn("Catalog not loaded yet, reports will fail until it is fixed", "error", err)
	} else {
		slog.Info("Catalog loaded",
			"path", *catalogPath,
			"elements", len(cat.Elements),
			"labor", len(cat.Labor),
			"fixed", len(cat.Fixed),
			"price_per_area", cat.PricePerArea,
		)
	}
	sink := parsing.NewFileSink(*unrecognizedLog)
	var matcher parsing.PlateMatcher = parsing.RegexpPlateMatcher{}
	if *strictPlates {
		matcher = parsing.StrictPlateMatcher{}
	}
	parser := parsing.NewParserWithDeps(catalog, sink, matcher, nil)

	// Initialize service
	reportService := report.NewService(db, parser, store, report.Options{
		AdminPassword: *adminPassword,
		PhotoTTL:      *photoTTL,
		SingleReport:  *singleReport,
		Unrecognized:  sink,
		Catalog:       catalog,
	})
	if *adminPassword == "" {
		slog.Warn("No admin password set, admin routes are unreachable")
	}

	// Initialize server
	basicAuth := report.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := report.NewServer(reportService, basicAuth, report.RateLimit{
		Every: *rateEvery,
		Burst: *rateBurst,
	})

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Sweep photos that never got a report
	done := make(chan struct{})
	if *photoTTL > 0 {
		go sweepPhotos(reportService, sweepInterval(*photoTTL), done)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	close(done)
	slog.Info("Shutting down...")
}

func sweepPhotos(service *report.Service, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			service.SweepPhotos()
		}
	}
}

// sweepInterval checks a few times per TTL, at most once a minute
func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Minute)
}

func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
