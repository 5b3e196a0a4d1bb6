// Package ledger defines the canonical transaction model shared by every
// reconciliation stage.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account for reporting and sign-convention checks.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountLoan       AccountType = "loan"
	AccountInvestment AccountType = "investment"
	AccountCrypto     AccountType = "crypto"
)

// IsLiability reports whether externally supplied balances for this account
// type may carry an inverted sign relative to the positive-is-asset convention.
func (t AccountType) IsLiability() bool {
	return t == AccountCreditCard || t == AccountLoan
}

// CategorySource records which resolution tier assigned a category.
type CategorySource string

const (
	SourceCorrection    CategorySource = "correction"
	SourceAI            CategorySource = "ai"
	SourceRule          CategorySource = "rule"
	SourceUncategorized CategorySource = "uncategorized"
)

// Transaction is one normalized input record plus the fields the engine fills
// in. Amount is signed: positive is a credit, negative a debit.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	AccountID   string
	SourceFile  string
	SourceLine  int

	// RawBalance is the balance the source file reported immediately after
	// this transaction, when the format carries one.
	RawBalance *decimal.Decimal

	Fingerprint    string
	CategoryID     string
	CategorySource CategorySource
	Confidence     float64
	RuleID         string
	DuplicateFlag  bool
	DuplicateOf    string
	RunningBalance *decimal.Decimal
}

// Account is long-lived state across runs. A nil OpeningBalance means the
// balance is not yet known and inference may fire for it.
type Account struct {
	ID                 string
	Name               string
	Type               AccountType
	OpeningBalance     *decimal.Decimal
	OpeningBalanceDate *time.Time
}

// Category is one entry of the read-only category catalog.
type Category struct {
	ID       string
	Name     string
	ParentID string
	Type     string
}

// Correction is a user override keyed by fingerprint. It always wins over AI
// and rule resolution.
type Correction struct {
	Fingerprint string
	CategoryID  string
	Source      string
	Timestamp   time.Time
}
