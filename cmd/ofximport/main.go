package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rumor-ml/commons.systems/ofximport/internal/config"
	"github.com/rumor-ml/commons.systems/ofximport/internal/middleware"
	"github.com/rumor-ml/commons.systems/ofximport/internal/review"
	"github.com/rumor-ml/commons.systems/ofximport/internal/server"
	"github.com/rumor-ml/commons.systems/ofximport/internal/store"
	"github.com/rumor-ml/commons.systems/ofximport/internal/ui"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")
	configFile  = flag.String("config", "", "YAML config file")

	// Backend selection
	dbPath    = flag.String("db", "", "SQLite database path (overrides config)")
	projectID = flag.String("project", "", "Firestore project ID (overrides config)")

	// Tenant scoping (required for all workflow actions)
	tenant = flag.String("tenant", "", "Tenant identifier")

	// Actions
	inputFile = flag.String("input", "", "Statement file to import (.ofx/.qfx)")
	listFlag  = flag.Bool("list", false, "List pending review rows")
	page      = flag.Int("page", 1, "Page number for -list")
	pageSize  = flag.Int("page-size", review.DefaultPageSize, "Page size for -list")
	accept    = flag.String("accept", "", "Complete review accepting these comma-separated row keys (all others rejected)")
	rejectAll = flag.Bool("reject-all", false, "Discard every pending review row")
	serve     = flag.Bool("serve", false, "Run the HTTP server")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ofximport - OFX/QFX bank-statement import and review

Usage:
  ofximport [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Import a statement for a tenant into a local database
  ofximport -db ledger.db -tenant alice -input january.ofx

  # Review what was staged, then accept two rows
  ofximport -db ledger.db -tenant alice -list
  ofximport -db ledger.db -tenant alice -accept key1,key2

  # Abandon the review session
  ofximport -db ledger.db -tenant alice -reject-all

  # Run the HTTP server against Firestore
  ofximport -project my-project -serve

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("ofximport version %s\n", version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *projectID != "" {
		cfg.ProjectID = *projectID
	}

	st, verifier, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := review.NewService(st)

	if *serve {
		ui.Header("OFX Import Service")
		ui.Info(fmt.Sprintf("Listening on %s", cfg.ListenAddr))
		return server.New(svc, verifier, *cfg).Start(cfg.ListenAddr)
	}

	if *tenant == "" {
		return fmt.Errorf("-tenant is required")
	}

	switch {
	case *inputFile != "":
		return runImport(ctx, svc, *tenant, *inputFile)
	case *listFlag:
		return runList(ctx, svc, *tenant, *page, *pageSize)
	case *accept != "":
		return runAccept(ctx, svc, *tenant, *accept)
	case *rejectAll:
		count, err := svc.DeleteAllPending(ctx, *tenant)
		if err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Discarded %d pending rows", count))
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("no action given: use -input, -list, -accept, -reject-all, or -serve")
	}
}

// openStore picks the Firestore backend when a project is configured,
// otherwise SQLite.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, middleware.TokenVerifier, func(), error) {
	if cfg.ProjectID != "" {
		fs, err := store.NewFirestore(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, nil, err
		}
		return fs, fs.Auth, func() { fs.Close() }, nil
	}

	sq, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}
	// No verifier for local databases; tenancy comes from X-Tenant-ID.
	return sq, nil, func() { sq.Close() }, nil
}

func runImport(ctx context.Context, svc *review.Service, tenantID, path string) error {
	ui.Header("Importing Statement")
	ui.Step(1, 2, fmt.Sprintf("Parsing %s", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	result, err := svc.ImportFile(ctx, tenantID, data, path)
	if err != nil {
		return err
	}

	ui.Step(2, 2, "Staging review rows")
	ui.Success(fmt.Sprintf("Imported %d transactions (%d new, %d exact duplicates, %d potential duplicates)",
		result.ImportedCount, result.NewCount, result.ExactDuplicateCount, result.PotentialDuplicateCount))

	if len(result.Errors) > 0 {
		ui.Warning(fmt.Sprintf("%d transactions could not be parsed:", len(result.Errors)))
		for _, perr := range result.Errors {
			ui.Error(perr.Error())
		}
	}
	return nil
}

func runList(ctx context.Context, svc *review.Service, tenantID string, page, pageSize int) error {
	result, err := svc.ListPending(ctx, tenantID, page, pageSize)
	if err != nil {
		return err
	}

	ui.Info(fmt.Sprintf("Pending review: %d rows (page %d, %d per page)",
		result.TotalCount, result.PageNumber, result.PageSize))
	for _, row := range result.Rows {
		txn := row.Transaction
		fmt.Printf("%s  %s  %10s  %-20s  %s\n",
			row.Key, txn.Date, txn.Amount.StringFixed(2), row.Classification, txn.Payee)
	}
	return nil
}

func runAccept(ctx context.Context, svc *review.Service, tenantID, keysArg string) error {
	var keys []string
	for _, key := range strings.Split(keysArg, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}

	result, err := svc.CompleteReview(ctx, tenantID, keys)
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Review complete: %d accepted, %d rejected",
		result.AcceptedCount, result.RejectedCount))
	return nil
}
