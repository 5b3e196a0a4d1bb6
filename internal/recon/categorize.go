package recon

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tillbook/tillbook/internal/ai"
	"github.com/tillbook/tillbook/internal/ledger"
)

// Categorizer resolves exactly one category, source, and confidence per
// transaction. Resolution tiers, highest first: correction, AI suggestion,
// rule match, uncategorized fallback. All inputs are read-only snapshots
// frozen for the run, so Resolve is safe to call concurrently.
type Categorizer struct {
	Corrections map[string]ledger.Correction
	Suggestions ai.SuggestionSet
	Rules       []ledger.CompiledRule
	Categories  map[string]ledger.Category
	Log         zerolog.Logger

	reportedOnce sync.Map // category id -> struct{}, one configuration anomaly per run
}

// Resolve assigns category fields on the transaction in place. Configuration
// mismatches (a correction or suggestion naming a category absent from the
// catalog) are reported once per category and the transaction falls through
// to the next tier.
func (c *Categorizer) Resolve(tx *ledger.Transaction, anomalies *anomalyCollector) {
	if corr, ok := c.Corrections[tx.Fingerprint]; ok {
		if c.categoryKnown(corr.CategoryID, "correction", tx, anomalies) {
			tx.CategoryID = corr.CategoryID
			tx.CategorySource = ledger.SourceCorrection
			tx.Confidence = 1.0
			return
		}
	}

	if sugg, ok := c.Suggestions[tx.Fingerprint]; ok {
		if c.categoryKnown(sugg.CategoryID, "suggestion", tx, anomalies) {
			tx.CategoryID = sugg.CategoryID
			tx.CategorySource = ledger.SourceAI
			tx.Confidence = sugg.Confidence
			return
		}
	}

	normDesc := ledger.NormalizeDescription(tx.Description)
	for i := range c.Rules {
		rule := &c.Rules[i]
		if res := rule.Match(normDesc, tx.Amount); res != nil {
			tx.CategoryID = rule.CategoryID
			tx.CategorySource = ledger.SourceRule
			tx.Confidence = res.Confidence
			tx.RuleID = rule.ID
			c.Log.Debug().Str("rule", rule.ID).Str("matched", res.Matched).
				Float64("confidence", res.Confidence).Msg("rule matched")
			return
		}
	}

	tx.CategoryID = ""
	tx.CategorySource = ledger.SourceUncategorized
	tx.Confidence = 0
}

func (c *Categorizer) categoryKnown(categoryID, kind string, tx *ledger.Transaction, anomalies *anomalyCollector) bool {
	if _, ok := c.Categories[categoryID]; ok {
		return true
	}
	if _, seen := c.reportedOnce.LoadOrStore(kind+"/"+categoryID, struct{}{}); !seen {
		err := &ConfigurationError{Kind: kind, CategoryID: categoryID}
		c.Log.Warn().Str("fingerprint", tx.Fingerprint).Msg(err.Error())
		anomalies.add(Anomaly{
			Kind:        AnomalyConfiguration,
			AccountID:   tx.AccountID,
			Fingerprint: tx.Fingerprint,
			Message:     err.Error(),
		})
	}
	return false
}
