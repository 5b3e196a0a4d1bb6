package recon

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/ledger"
)

// maxOpeningBalance bounds explicit and inferred opening balances in either
// direction.
var maxOpeningBalance = decimal.New(1, 12) // 10^12

var minBalanceDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// ValidateOpeningBalance enforces the shared rules for explicit balances and
// the set-balance operation: magnitude at most 10^12, date on or after
// 1970-01-01 and not in the future. now is injected so callers and tests pin
// the "future" boundary.
func ValidateOpeningBalance(amount decimal.Decimal, date time.Time, now time.Time) error {
	if amount.Abs().GreaterThan(maxOpeningBalance) {
		return &ValidationError{Field: "opening balance", Reason: fmt.Sprintf("magnitude of %s exceeds 10^12", amount.StringFixed(2))}
	}
	if date.Before(minBalanceDate) {
		return &ValidationError{Field: "opening balance date", Reason: fmt.Sprintf("%s is before 1970-01-01", date.Format(time.DateOnly))}
	}
	if date.After(now) {
		return &ValidationError{Field: "opening balance date", Reason: fmt.Sprintf("%s is in the future", date.Format(time.DateOnly))}
	}
	return nil
}

// BalanceReconciler computes per-account opening and running balances.
type BalanceReconciler struct {
	Now time.Time // injected clock for validation
	Log zerolog.Logger
}

// Reconcile orders one account's transactions chronologically, resolves the
// opening balance, and fills in every running balance. The account's opening
// balance is mutated only when it was previously unset: explicit values are
// validated and used as-is, otherwise the balance is inferred from the first
// transaction's reported raw balance, otherwise it defaults to zero with a
// warning anomaly.
//
// Ordering is (date, description) ascending with source file and line as
// final tie-breaks. Returns a ValidationError when an explicit opening
// balance fails validation; nothing is computed for the account in that case.
func (r *BalanceReconciler) Reconcile(acct *ledger.Account, txs []*ledger.Transaction, anomalies *anomalyCollector) error {
	if len(txs) == 0 {
		return nil
	}
	ordered := make([]*ledger.Transaction, len(txs))
	copy(ordered, txs)
	sortStable(ordered)

	opening, err := r.resolveOpening(acct, ordered, anomalies)
	if err != nil {
		return err
	}

	running := opening
	for _, tx := range ordered {
		running = running.Add(tx.Amount)
		bal := running
		tx.RunningBalance = &bal
	}

	r.checkSignConvention(acct, ordered, anomalies)
	r.Log.Debug().Str("account", acct.ID).
		Str("opening", opening.StringFixed(2)).
		Str("closing", running.StringFixed(2)).
		Int("transactions", len(ordered)).
		Msg("balances reconciled")
	return nil
}

func (r *BalanceReconciler) resolveOpening(acct *ledger.Account, ordered []*ledger.Transaction, anomalies *anomalyCollector) (decimal.Decimal, error) {
	if acct.OpeningBalance != nil {
		date := r.Now
		if acct.OpeningBalanceDate != nil {
			date = *acct.OpeningBalanceDate
		}
		if err := ValidateOpeningBalance(*acct.OpeningBalance, date, r.Now); err != nil {
			return decimal.Zero, err
		}
		return *acct.OpeningBalance, nil
	}

	first := ordered[0]
	if first.RawBalance != nil {
		// Balance reported after the first transaction minus its amount is
		// the balance immediately before it.
		opening := first.RawBalance.Sub(first.Amount).Round(2)
		date := first.Date
		acct.OpeningBalance = &opening
		acct.OpeningBalanceDate = &date
		r.Log.Info().Str("account", acct.ID).Str("opening", opening.StringFixed(2)).Msg("opening balance inferred")
		return opening, nil
	}

	zero := decimal.Zero
	acct.OpeningBalance = &zero
	anomalies.add(Anomaly{
		Kind:      AnomalyInferenceDefault,
		AccountID: acct.ID,
		Message:   fmt.Sprintf("account %s has no explicit or inferable opening balance, defaulting to 0", acct.ID),
	})
	r.Log.Warn().Str("account", acct.ID).Msg("opening balance defaulted to zero")
	return zero, nil
}

// checkSignConvention emits an advisory when a liability account reports raw
// balances whose sign disagrees with the computed running balance. The
// engine's convention is positive-is-asset; credit card and loan exports
// often report the outstanding amount as positive. Advisory only, never
// auto-corrected.
func (r *BalanceReconciler) checkSignConvention(acct *ledger.Account, ordered []*ledger.Transaction, anomalies *anomalyCollector) {
	if !acct.Type.IsLiability() {
		return
	}
	for _, tx := range ordered {
		if tx.RawBalance == nil || tx.RunningBalance == nil {
			continue
		}
		if tx.RawBalance.Sign() != 0 && tx.RunningBalance.Sign() != 0 && tx.RawBalance.Sign() != tx.RunningBalance.Sign() {
			anomalies.add(Anomaly{
				Kind:      AnomalySignConvention,
				AccountID: acct.ID,
				Message: fmt.Sprintf("account %s reports balance %s where the engine computes %s; source sign convention may be inverted",
					acct.ID, tx.RawBalance.StringFixed(2), tx.RunningBalance.StringFixed(2)),
			})
			return
		}
	}
}
