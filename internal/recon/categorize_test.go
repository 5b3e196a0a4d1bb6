package recon

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tillbook/tillbook/internal/ai"
	"github.com/tillbook/tillbook/internal/ledger"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testCategories(ids ...string) map[string]ledger.Category {
	out := make(map[string]ledger.Category, len(ids))
	for _, id := range ids {
		out[id] = ledger.Category{ID: id, Name: id}
	}
	return out
}

func stampedTx(desc string, amount string) ledger.Transaction {
	tx := ledger.Transaction{
		Date:        day("2024-03-15"),
		Description: desc,
		Amount:      dec(amount),
		AccountID:   "chk",
	}
	tx.Fingerprinted()
	return tx
}

func TestResolveCorrectionWinsOverEverything(t *testing.T) {
	t.Parallel()

	tx := stampedTx("whole foods market", "-54.10")
	rules, _ := ledger.CompileRules([]ledger.Rule{
		{ID: "groceries", CategoryID: "food", Keywords: []string{"whole foods"}},
	})
	c := &Categorizer{
		Corrections: map[string]ledger.Correction{
			tx.Fingerprint: {Fingerprint: tx.Fingerprint, CategoryID: "business"},
		},
		Suggestions: ai.SuggestionSet{
			tx.Fingerprint: {CategoryID: "food", Confidence: 0.95},
		},
		Rules:      rules,
		Categories: testCategories("business", "food"),
		Log:        zerolog.Nop(),
	}

	anomalies := &anomalyCollector{}
	c.Resolve(&tx, anomalies)

	require.Equal(t, "business", tx.CategoryID)
	require.Equal(t, ledger.SourceCorrection, tx.CategorySource)
	require.Equal(t, 1.0, tx.Confidence)
	require.Empty(t, anomalies.snapshot())
}

func TestResolveStaleCorrectionFallsThrough(t *testing.T) {
	t.Parallel()

	rules, _ := ledger.CompileRules([]ledger.Rule{
		{ID: "groceries", CategoryID: "food", Keywords: []string{"whole foods"}},
	})
	a := stampedTx("whole foods market", "-54.10")
	b := stampedTx("whole foods downtown", "-12.00")
	c := &Categorizer{
		Corrections: map[string]ledger.Correction{
			a.Fingerprint: {Fingerprint: a.Fingerprint, CategoryID: "deleted-cat"},
			b.Fingerprint: {Fingerprint: b.Fingerprint, CategoryID: "deleted-cat"},
		},
		Rules:      rules,
		Categories: testCategories("food"),
		Log:        zerolog.Nop(),
	}

	anomalies := &anomalyCollector{}
	c.Resolve(&a, anomalies)
	c.Resolve(&b, anomalies)

	// Both fall through to the rule tier instead of failing the run.
	require.Equal(t, "food", a.CategoryID)
	require.Equal(t, ledger.SourceRule, a.CategorySource)
	require.Equal(t, "food", b.CategoryID)

	// The unknown category is reported once, not once per transaction.
	got := anomalies.snapshot()
	require.Len(t, got, 1)
	require.Equal(t, AnomalyConfiguration, got[0].Kind)
	require.Contains(t, got[0].Message, "deleted-cat")
}

func TestResolveAISuggestionTier(t *testing.T) {
	t.Parallel()

	tx := stampedTx("some merchant", "-20.00")
	c := &Categorizer{
		Suggestions: ai.SuggestionSet{
			tx.Fingerprint: {CategoryID: "dining", Confidence: 0.82},
		},
		Categories: testCategories("dining"),
		Log:        zerolog.Nop(),
	}

	anomalies := &anomalyCollector{}
	c.Resolve(&tx, anomalies)

	require.Equal(t, "dining", tx.CategoryID)
	require.Equal(t, ledger.SourceAI, tx.CategorySource)
	require.Equal(t, 0.82, tx.Confidence)
}

func TestResolveRuleTierRecordsRuleID(t *testing.T) {
	t.Parallel()

	rules, _ := ledger.CompileRules([]ledger.Rule{
		{ID: "transport", CategoryID: "travel", Priority: 5, Keywords: []string{"uber"}},
		{ID: "misc", CategoryID: "other", Priority: 1, Keywords: []string{"uber"}},
	})
	tx := stampedTx("UBER TRIP 1234", "-18.20")
	c := &Categorizer{Rules: rules, Categories: testCategories("travel", "other"), Log: zerolog.Nop()}

	c.Resolve(&tx, &anomalyCollector{})

	require.Equal(t, "travel", tx.CategoryID) // higher priority rule wins
	require.Equal(t, ledger.SourceRule, tx.CategorySource)
	require.Equal(t, "transport", tx.RuleID)
	require.Greater(t, tx.Confidence, 0.0)
}

func TestResolveUncategorizedFallback(t *testing.T) {
	t.Parallel()

	tx := stampedTx("mystery merchant", "-1.00")
	c := &Categorizer{Categories: testCategories(), Log: zerolog.Nop()}

	anomalies := &anomalyCollector{}
	c.Resolve(&tx, anomalies)

	require.Empty(t, tx.CategoryID)
	require.Equal(t, ledger.SourceUncategorized, tx.CategorySource)
	require.Zero(t, tx.Confidence)
	require.Empty(t, anomalies.snapshot())
}

func TestResolvePartialSuggestionsOnlyAffectListedTransactions(t *testing.T) {
	t.Parallel()

	listed := stampedTx("coffee shop", "-4.50")
	unlisted := stampedTx("book store", "-22.00")
	c := &Categorizer{
		Suggestions: ai.SuggestionSet{
			listed.Fingerprint: {CategoryID: "dining", Confidence: 0.7},
		},
		Categories: testCategories("dining"),
		Log:        zerolog.Nop(),
	}

	anomalies := &anomalyCollector{}
	c.Resolve(&listed, anomalies)
	c.Resolve(&unlisted, anomalies)

	require.Equal(t, ledger.SourceAI, listed.CategorySource)
	require.Equal(t, ledger.SourceUncategorized, unlisted.CategorySource)
}
