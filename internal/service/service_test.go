package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tillbook/tillbook/internal/database"
	"github.com/tillbook/tillbook/internal/database/repository"
	"github.com/tillbook/tillbook/internal/ledger"
	"github.com/tillbook/tillbook/internal/recon"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrationsWithDB(db, migrations))
	return db
}

func seedChecking(t *testing.T, repo *repository.AccountRepo) {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), ledger.Account{
		ID: "chk", Name: "Checking", Type: ledger.AccountChecking,
	}))
}

func TestSetOpeningBalance(t *testing.T) {
	t.Parallel()
	repo := repository.NewAccountRepo(testDB(t))
	seedChecking(t, repo)
	svc := &BalanceService{Accounts: repo}
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.SetOpeningBalance(ctx, "chk", "5234.567", "2024-01-01", now))

	acct, err := repo.Get(ctx, "chk")
	require.NoError(t, err)
	require.Equal(t, "5234.57", acct.OpeningBalance.StringFixed(2), "persisted value is rounded to cents")
}

func TestSetOpeningBalanceValidation(t *testing.T) {
	t.Parallel()
	repo := repository.NewAccountRepo(testDB(t))
	seedChecking(t, repo)
	svc := &BalanceService{Accounts: repo}
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name, amount, date string
	}{
		{"unparseable amount", "lots", "2024-01-01"},
		{"unparseable date", "100", "January 1st"},
		{"magnitude over limit", "1000000000001", "2024-01-01"},
		{"future date", "100", "2069-12-31"},
		{"pre-epoch date", "100", "1969-01-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.SetOpeningBalance(ctx, "chk", tc.amount, tc.date, now)
			var verr *recon.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	// Nothing was persisted by any of the rejected attempts.
	acct, err := repo.Get(ctx, "chk")
	require.NoError(t, err)
	require.Nil(t, acct.OpeningBalance)

	require.Error(t, svc.SetOpeningBalance(ctx, "ghost", "100", "2024-01-01", now))
}

func TestSeedAccountsIdempotent(t *testing.T) {
	t.Parallel()
	repo := repository.NewAccountRepo(testDB(t))
	ctx := context.Background()

	catalog := []ledger.Account{
		{ID: "chk", Name: "Checking", Type: ledger.AccountChecking},
		{ID: "card", Name: "Card", Type: ledger.AccountCreditCard},
	}
	require.NoError(t, SeedAccounts(ctx, repo, catalog))
	d := decimal.RequireFromString("100.00")
	require.NoError(t, repo.SetOpeningBalance(ctx, "chk", d, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	// Re-seeding keeps the stored balance.
	require.NoError(t, SeedAccounts(ctx, repo, catalog))
	acct, err := repo.Get(ctx, "chk")
	require.NoError(t, err)
	require.Equal(t, "100.00", acct.OpeningBalance.StringFixed(2))
}

func TestImportCSV(t *testing.T) {
	t.Parallel()
	svc := &CorrectionService{Corrections: repository.NewCorrectionRepo(testDB(t))}
	ctx := context.Background()

	in := strings.NewReader(strings.Join([]string{
		"fingerprint,category,source",
		"A1B2C3D4E5F60718,food,review", // uppercase hex is normalized
		"00112233445566ff,travel,",
		"not-a-fingerprint,food,",
		",food,",
		"",
	}, "\n"))

	res, err := svc.ImportCSV(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 2, res.Imported)
	require.Equal(t, 2, res.Skipped)
	require.Len(t, res.Errors, 1) // the malformed fingerprint

	all, err := svc.Corrections.All(ctx)
	require.NoError(t, err)
	require.Equal(t, "review", all["a1b2c3d4e5f60718"].Source)
	require.Equal(t, "user", all["00112233445566ff"].Source)
}

func TestImportCSVRejectsBadHeader(t *testing.T) {
	t.Parallel()
	svc := &CorrectionService{Corrections: repository.NewCorrectionRepo(testDB(t))}

	_, err := svc.ImportCSV(context.Background(), strings.NewReader("id,cat\nx,y\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "fingerprint")
}

func TestLoadNormalizedCSV(t *testing.T) {
	t.Parallel()

	in := strings.NewReader(strings.Join([]string{
		"date,description,amount,account,raw_balance",
		"2024-01-05,payroll acme,2500.00,chk,",
		"2024-01-06,whole foods,-54.10,chk,4945.90",
		"not-a-date,bad row,1.00,chk,",
		"2024-01-07,short row,-1.00",
	}, "\n"))

	txs, errs := LoadNormalizedCSV(in, "bank.csv")
	require.Len(t, errs, 2)
	require.Len(t, txs, 2)

	require.Equal(t, "payroll acme", txs[0].Description)
	require.Equal(t, "chk", txs[0].AccountID)
	require.Equal(t, "bank.csv", txs[0].SourceFile)
	require.Equal(t, 2, txs[0].SourceLine)
	require.Nil(t, txs[0].RawBalance)

	require.Equal(t, "4945.90", txs[1].RawBalance.StringFixed(2))
	require.True(t, txs[1].Amount.Equal(decimal.RequireFromString("-54.10")))
}
