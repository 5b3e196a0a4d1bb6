package recon

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/ledger"
)

// AnomalyKind names a non-fatal condition surfaced for manual review.
type AnomalyKind string

const (
	AnomalyFingerprintCollision AnomalyKind = "fingerprint_collision"
	AnomalyAmbiguousDuplicate   AnomalyKind = "ambiguous_duplicate"
	AnomalyConfiguration        AnomalyKind = "configuration_error"
	AnomalyInferenceDefault     AnomalyKind = "inference_default"
	AnomalyLargeTransaction     AnomalyKind = "large_transaction"
	AnomalyDateGap              AnomalyKind = "date_gap"
	AnomalyReviewPattern        AnomalyKind = "review_pattern"
	AnomalySignConvention       AnomalyKind = "sign_convention"
)

// Anomaly is one reviewable finding. Anomalies never abort a run.
type Anomaly struct {
	Kind        AnomalyKind
	AccountID   string
	Fingerprint string
	Message     string
}

// anomalyCollector gathers anomalies from concurrent account workers.
type anomalyCollector struct {
	mu   sync.Mutex
	list []Anomaly
}

func (c *anomalyCollector) add(a Anomaly) {
	c.mu.Lock()
	c.list = append(c.list, a)
	c.mu.Unlock()
}

// snapshot returns the collected anomalies in a deterministic order
// regardless of worker scheduling.
func (c *anomalyCollector) snapshot() []Anomaly {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Anomaly, len(c.list))
	copy(out, c.list)
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Fingerprint != out[j].Fingerprint {
			return out[i].Fingerprint < out[j].Fingerprint
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// AnomalyConfig holds thresholds for the transaction-level checks.
type AnomalyConfig struct {
	// LargeTransactionThreshold flags any transaction whose absolute amount
	// meets or exceeds it. Zero disables the check.
	LargeTransactionThreshold decimal.Decimal
	// DateGapDays flags gaps between consecutive transactions of one account
	// longer than this many days. Zero disables the check.
	DateGapDays int
	// Patterns are extra case-insensitive regexes matched against normalized
	// descriptions (fees, cash advances, and similar).
	Patterns []string
}

type anomalyChecker struct {
	cfg      AnomalyConfig
	patterns []*regexp.Regexp
}

func newAnomalyChecker(cfg AnomalyConfig) *anomalyChecker {
	c := &anomalyChecker{cfg: cfg}
	for _, p := range cfg.Patterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			c.patterns = append(c.patterns, re)
		}
	}
	return c
}

// check runs the large-transaction, pattern, and date-gap checks for one
// account. Transactions must already be in chronological order.
func (c *anomalyChecker) check(accountID string, txs []*ledger.Transaction, out *anomalyCollector) {
	for _, tx := range txs {
		if !c.cfg.LargeTransactionThreshold.IsZero() && tx.Amount.Abs().GreaterThanOrEqual(c.cfg.LargeTransactionThreshold) {
			out.add(Anomaly{
				Kind:        AnomalyLargeTransaction,
				AccountID:   accountID,
				Fingerprint: tx.Fingerprint,
				Message:     fmt.Sprintf("large transaction: %s", tx.Amount.StringFixed(2)),
			})
		}
		norm := ledger.NormalizeDescription(tx.Description)
		for _, re := range c.patterns {
			if re.MatchString(norm) {
				out.add(Anomaly{
					Kind:        AnomalyReviewPattern,
					AccountID:   accountID,
					Fingerprint: tx.Fingerprint,
					Message:     fmt.Sprintf("description matched review pattern %q", re.String()),
				})
				break
			}
		}
	}
	if c.cfg.DateGapDays <= 0 {
		return
	}
	for i := 1; i < len(txs); i++ {
		gap := int(txs[i].Date.Sub(txs[i-1].Date) / (24 * time.Hour))
		if gap > c.cfg.DateGapDays {
			out.add(Anomaly{
				Kind:      AnomalyDateGap,
				AccountID: accountID,
				Message: fmt.Sprintf("no transactions for %d days between %s and %s",
					gap, txs[i-1].Date.Format(time.DateOnly), txs[i].Date.Format(time.DateOnly)),
			})
		}
	}
}
