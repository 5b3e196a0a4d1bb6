package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/ai"
	"github.com/tillbook/tillbook/internal/config"
	"github.com/tillbook/tillbook/internal/database"
	"github.com/tillbook/tillbook/internal/database/repository"
	"github.com/tillbook/tillbook/internal/ledger"
	"github.com/tillbook/tillbook/internal/recon"
	"github.com/tillbook/tillbook/internal/service"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tillbook <command> [flags]

commands:
  reconcile          run a full reconciliation pass over normalized CSV files
  set-balance        set an account's opening balance explicitly
  import-corrections import reviewed category corrections from CSV
  clear-corrections  remove all stored corrections
  suggest            run the AI suggestion pass and update the cache`)
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("load config")
		return 1
	}

	app, err := openApp(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer app.db.Close()

	ctx := context.Background()
	switch args[0] {
	case "reconcile":
		return app.reconcile(ctx, args[1:])
	case "set-balance":
		return app.setBalance(ctx, args[1:])
	case "import-corrections":
		return app.importCorrections(ctx, args[1:])
	case "clear-corrections":
		return app.clearCorrections(ctx)
	case "suggest":
		return app.suggest(ctx, args[1:])
	default:
		usage()
		return 2
	}
}

type app struct {
	cfg         config.Config
	db          *sql.DB
	accounts    *repository.AccountRepo
	corrections *repository.CorrectionRepo
	log         zerolog.Logger
}

func openApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, migrationsPath()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &app{
		cfg:         cfg,
		db:          db,
		accounts:    repository.NewAccountRepo(db),
		corrections: repository.NewCorrectionRepo(db),
		log:         log,
	}
	return a, nil
}

func migrationsPath() string {
	if p := os.Getenv("TILLBOOK_MIGRATIONS"); p != "" {
		return p
	}
	return "internal/database/migrations"
}

func (a *app) reconcile(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	out := fs.String("out", "", "write resolved transactions to this CSV file")
	_ = fs.Parse(args)
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "reconcile: at least one normalized CSV file required")
		return 2
	}
	// Pin processing order so duplicate flagging is reproducible.
	sort.Strings(files)

	eng, err := a.buildEngine(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("build engine")
		return 1
	}

	var txs []ledger.Transaction
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			a.log.Error().Err(err).Str("file", f).Msg("open input")
			return 1
		}
		loaded, errs := service.LoadNormalizedCSV(fh, filepath.Base(f))
		fh.Close()
		for _, e := range errs {
			a.log.Warn().Msg(e.Error())
		}
		txs = append(txs, loaded...)
	}

	result, err := eng.Run(ctx, txs)
	if err != nil {
		a.log.Error().Err(err).Msg("reconcile")
		return 1
	}

	if err := a.accounts.SaveInferred(ctx, result.Accounts); err != nil {
		a.log.Error().Err(err).Msg("persist inferred balances")
		return 1
	}

	printSummary(result)
	if *out != "" {
		if err := writeResolvedCSV(*out, result); err != nil {
			a.log.Error().Err(err).Msg("write output")
			return 1
		}
	}
	if len(result.AccountErrors) > 0 {
		return 1
	}
	return 0
}

func (a *app) buildEngine(ctx context.Context) (*recon.Engine, error) {
	rules, err := config.LoadRules(a.cfg.Catalog.Rules)
	if err != nil {
		return nil, err
	}
	compiled, warnings := ledger.CompileRules(rules)
	for _, w := range warnings {
		a.log.Warn().Msg(w)
	}
	categories, err := config.LoadCategories(a.cfg.Catalog.Categories)
	if err != nil {
		return nil, err
	}
	catalogAccounts, err := config.LoadAccounts(a.cfg.Catalog.Accounts)
	if err != nil {
		return nil, err
	}
	if err := service.SeedAccounts(ctx, a.accounts, catalogAccounts); err != nil {
		return nil, err
	}
	accounts, err := a.accounts.All(ctx)
	if err != nil {
		return nil, err
	}
	corrections, err := a.corrections.All(ctx)
	if err != nil {
		return nil, err
	}
	suggestions, err := ai.LoadSuggestions(a.cfg.AI.CachePath)
	if err != nil {
		a.log.Warn().Err(err).Msg("suggestion cache unreadable, continuing without")
		suggestions = ai.SuggestionSet{}
	}

	large, err := decimal.NewFromString(a.cfg.Anomaly.LargeTransactionThreshold)
	if err != nil {
		large = decimal.Zero
	}

	return &recon.Engine{
		Rules:       compiled,
		Corrections: corrections,
		Suggestions: suggestions,
		Categories:  categories,
		Accounts:    accounts,
		Dedup: recon.DedupConfig{
			DateToleranceDays:   a.cfg.Dedup.DateToleranceDays,
			SimilarityThreshold: a.cfg.Dedup.SimilarityThreshold,
			SameDayThreshold:    a.cfg.Dedup.SameDayThreshold,
		},
		Anomaly: recon.AnomalyConfig{
			LargeTransactionThreshold: large,
			DateGapDays:               a.cfg.Anomaly.DateGapDays,
			Patterns:                  a.cfg.Anomaly.Patterns,
		},
		Log: a.log,
	}, nil
}

func (a *app) setBalance(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("set-balance", flag.ExitOnError)
	account := fs.String("account", "", "account id")
	amount := fs.String("amount", "", "opening balance amount")
	date := fs.String("date", "", "balance date YYYY-MM-DD (default today)")
	_ = fs.Parse(args)
	if *account == "" || *amount == "" {
		fmt.Fprintln(os.Stderr, "set-balance: -account and -amount are required")
		return 2
	}
	svc := &service.BalanceService{Accounts: a.accounts}
	if err := svc.SetOpeningBalance(ctx, *account, *amount, *date, time.Now().UTC()); err != nil {
		color.Red("set-balance failed: %v", err)
		return 1
	}
	color.Green("opening balance for %s set to %s", *account, *amount)
	return 0
}

func (a *app) importCorrections(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("import-corrections", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "import-corrections: exactly one CSV file required")
		return 2
	}
	fh, err := os.Open(fs.Arg(0))
	if err != nil {
		a.log.Error().Err(err).Msg("open corrections file")
		return 1
	}
	defer fh.Close()

	svc := &service.CorrectionService{Corrections: a.corrections}
	res, err := svc.ImportCSV(ctx, fh)
	if err != nil {
		color.Red("import failed, store unchanged: %v", err)
		return 1
	}
	for _, e := range res.Errors {
		a.log.Warn().Msg(e.Error())
	}
	color.Green("imported %d corrections (%d skipped)", res.Imported, res.Skipped)
	return 0
}

func (a *app) clearCorrections(ctx context.Context) int {
	svc := &service.CorrectionService{Corrections: a.corrections}
	if err := svc.Clear(ctx); err != nil {
		color.Red("clear failed: %v", err)
		return 1
	}
	color.Green("correction store cleared")
	return 0
}

func (a *app) suggest(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	_ = fs.Parse(args)
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "suggest: at least one normalized CSV file required")
		return 2
	}
	sort.Strings(files)

	categories, err := config.LoadCategories(a.cfg.Catalog.Categories)
	if err != nil {
		a.log.Error().Err(err).Msg("load categories")
		return 1
	}
	catIDs := make([]string, 0, len(categories))
	for id := range categories {
		catIDs = append(catIDs, id)
	}
	sort.Strings(catIDs)

	var inputs []ai.TransactionInput
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			a.log.Error().Err(err).Str("file", f).Msg("open input")
			return 1
		}
		txs, errs := service.LoadNormalizedCSV(fh, filepath.Base(f))
		fh.Close()
		for _, e := range errs {
			a.log.Warn().Msg(e.Error())
		}
		for i := range txs {
			inputs = append(inputs, ai.TransactionInput{
				Fingerprint: txs[i].Fingerprinted(),
				Description: txs[i].Description,
				Amount:      txs[i].Amount.StringFixed(2),
				Date:        txs[i].Date.Format(time.DateOnly),
				Account:     txs[i].AccountID,
			})
		}
	}

	provider := &ai.GeminiProvider{
		Model:              a.cfg.AI.Model,
		BudgetTransactions: a.cfg.AI.BudgetTransactions,
	}
	suggestions, err := provider.Suggest(ctx, ai.SuggestRequest{Transactions: inputs, Categories: catIDs})
	if err != nil {
		a.log.Error().Err(err).Msg("suggestion pass")
		return 1
	}

	existing, err := ai.LoadSuggestions(a.cfg.AI.CachePath)
	if err != nil {
		existing = ai.SuggestionSet{}
	}
	for fp, s := range suggestions {
		existing[fp] = s
	}
	if err := ai.SaveSuggestions(a.cfg.AI.CachePath, existing); err != nil {
		a.log.Error().Err(err).Msg("save suggestion cache")
		return 1
	}
	color.Green("suggested categories for %d of %d transactions", len(suggestions), len(inputs))
	return 0
}

func printSummary(result *recon.Result) {
	categorized, duplicates := 0, 0
	for i := range result.Transactions {
		if result.Transactions[i].CategorySource != ledger.SourceUncategorized {
			categorized++
		}
		if result.Transactions[i].DuplicateFlag {
			duplicates++
		}
	}
	fmt.Printf("run %s: reconciled %d transactions across %d accounts\n", result.RunID, len(result.Transactions), len(result.Accounts))
	fmt.Printf("  categorized: %d / %d\n", categorized, len(result.Transactions))
	fmt.Printf("  duplicates flagged: %d\n", duplicates)

	for _, id := range result.SortedAccountIDs() {
		acct := result.Accounts[id]
		if err, ok := result.AccountErrors[id]; ok {
			color.Red("  %s: %v", id, err)
			continue
		}
		if acct.OpeningBalance != nil {
			fmt.Printf("  %s: opening balance %s\n", id, acct.OpeningBalance.StringFixed(2))
		}
	}
	if len(result.Anomalies) > 0 {
		color.Yellow("%d anomalies for review:", len(result.Anomalies))
		for _, a := range result.Anomalies {
			color.Yellow("  [%s] %s", a.Kind, a.Message)
		}
	}
}

func writeResolvedCSV(path string, result *recon.Result) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	w := csv.NewWriter(fh)
	defer w.Flush()

	if err := w.Write([]string{
		"date", "account", "description", "amount", "category", "category_source",
		"confidence", "duplicate", "running_balance", "source_file", "fingerprint",
	}); err != nil {
		return err
	}
	for i := range result.Transactions {
		tx := &result.Transactions[i]
		running := ""
		if tx.RunningBalance != nil {
			running = tx.RunningBalance.StringFixed(2)
		}
		dup := ""
		if tx.DuplicateFlag {
			dup = "yes"
		}
		if err := w.Write([]string{
			tx.Date.Format(time.DateOnly),
			tx.AccountID,
			tx.Description,
			tx.Amount.StringFixed(2),
			tx.CategoryID,
			string(tx.CategorySource),
			fmt.Sprintf("%.2f", tx.Confidence),
			dup,
			running,
			tx.SourceFile,
			tx.Fingerprint,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
