// Package service hosts the operations that mutate persisted state. Each one
// is serialized against the store and never interleaved with an in-flight
// reconciliation run.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/database/repository"
	"github.com/tillbook/tillbook/internal/ledger"
	"github.com/tillbook/tillbook/internal/recon"
)

// BalanceService implements the explicit balance-setting operation.
type BalanceService struct {
	Accounts *repository.AccountRepo
}

// SetOpeningBalance validates and persists an explicit opening balance for
// one account. Validation is the same as for inference: magnitude at most
// 10^12, date between 1970-01-01 and today. An empty dateStr defaults to
// today. Failures are reported with a named reason and leave the stored
// state untouched.
func (s *BalanceService) SetOpeningBalance(ctx context.Context, accountID, amountStr, dateStr string, now time.Time) error {
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return &recon.ValidationError{Field: "opening balance", Reason: fmt.Sprintf("cannot parse %q", amountStr)}
	}

	date := now
	if dateStr != "" {
		date, err = time.Parse(time.DateOnly, dateStr)
		if err != nil {
			return &recon.ValidationError{Field: "opening balance date", Reason: fmt.Sprintf("cannot parse %q (want YYYY-MM-DD)", dateStr)}
		}
	}

	if err := recon.ValidateOpeningBalance(amount, date, now); err != nil {
		return err
	}

	acct, err := s.Accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("look up account: %w", err)
	}
	if acct == nil {
		return fmt.Errorf("account %s not found", accountID)
	}
	return s.Accounts.SetOpeningBalance(ctx, accountID, amount.Round(2), date)
}

// SeedAccounts upserts catalog accounts into the store. Idempotent: stored
// opening balances are never clobbered by catalog values.
func SeedAccounts(ctx context.Context, repo *repository.AccountRepo, accounts []ledger.Account) error {
	for _, acct := range accounts {
		if err := repo.Upsert(ctx, acct); err != nil {
			return fmt.Errorf("seed account %s: %w", acct.ID, err)
		}
	}
	return nil
}
