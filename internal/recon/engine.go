package recon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tillbook/tillbook/internal/ai"
	"github.com/tillbook/tillbook/internal/ledger"
)

// Engine runs one full reconciliation pass: fingerprinting, categorization,
// duplicate flagging, and balance computation. Rule, correction, and
// suggestion inputs are frozen snapshots for the duration of the run;
// mutations of persisted state happen elsewhere, never interleaved with a run.
type Engine struct {
	Rules       []ledger.CompiledRule
	Corrections map[string]ledger.Correction
	Suggestions ai.SuggestionSet
	Categories  map[string]ledger.Category
	Accounts    map[string]*ledger.Account
	Dedup       DedupConfig
	Anomaly     AnomalyConfig
	Now         time.Time
	Log         zerolog.Logger
}

// Result is the fully resolved output handed to the report layer.
type Result struct {
	// RunID identifies the run deterministically: the same input always
	// yields the same ID, so reports and logs from repeated runs correlate.
	RunID string
	// Transactions in their original input order, with fingerprint,
	// category, duplicate flag, and running balance populated.
	Transactions []ledger.Transaction
	// Accounts with opening balances filled in where inference fired.
	Accounts map[string]*ledger.Account
	// Anomalies for manual review, deterministically ordered.
	Anomalies []Anomaly
	// AccountErrors maps account IDs to the validation error that prevented
	// balance reconciliation for that account. Other accounts are unaffected.
	AccountErrors map[string]error
}

// Run reconciles the given normalized transactions. The input slice is not
// mutated; the returned slice holds the resolved copies in input order.
// Accounts not present in the engine's account map are synthesized as
// checking accounts so a partial catalog never drops data.
//
// Fingerprinting and categorization are per-transaction and pure; duplicate
// flagging and balance reconciliation need a whole account at once, so the
// engine fans out one worker per account. Repeated runs over identical input
// produce identical output.
func (e *Engine) Run(ctx context.Context, input []ledger.Transaction) (*Result, error) {
	if e.Now.IsZero() {
		e.Now = time.Now().UTC()
	}

	txs := make([]ledger.Transaction, len(input))
	copy(txs, input)

	anomalies := &anomalyCollector{}
	e.fingerprint(txs, anomalies)
	runID := runIdentity(txs)
	e.Log.Info().Str("run_id", runID).Int("transactions", len(txs)).Msg("reconciliation started")

	// Group per account, preserving input order within each group.
	byAccount := make(map[string][]*ledger.Transaction)
	for i := range txs {
		byAccount[txs[i].AccountID] = append(byAccount[txs[i].AccountID], &txs[i])
	}

	accounts := make(map[string]*ledger.Account, len(byAccount))
	for id := range byAccount {
		if acct, ok := e.Accounts[id]; ok {
			accounts[id] = acct
		} else {
			accounts[id] = &ledger.Account{ID: id, Name: id, Type: ledger.AccountChecking}
			e.Log.Warn().Str("account", id).Msg("transactions reference unknown account, assuming checking")
		}
	}

	categorizer := &Categorizer{
		Corrections: e.Corrections,
		Suggestions: e.Suggestions,
		Rules:       e.Rules,
		Categories:  e.Categories,
		Log:         e.Log,
	}
	dedup := &Deduplicator{Config: e.Dedup, Log: e.Log}
	balancer := &BalanceReconciler{Now: e.Now, Log: e.Log}
	checker := newAnomalyChecker(e.Anomaly)

	accountErrs := struct {
		sync.Mutex
		m map[string]error
	}{m: make(map[string]error)}

	var wg sync.WaitGroup
	for id, group := range byAccount {
		wg.Add(1)
		go func(id string, group []*ledger.Transaction) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			for _, tx := range group {
				categorizer.Resolve(tx, anomalies)
			}
			dedup.Flag(group, anomalies)
			if err := balancer.Reconcile(accounts[id], group, anomalies); err != nil {
				accountErrs.Lock()
				accountErrs.m[id] = err
				accountErrs.Unlock()
				return
			}
			ordered := make([]*ledger.Transaction, len(group))
			copy(ordered, group)
			sortStable(ordered)
			checker.check(id, ordered, anomalies)
		}(id, group)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		RunID:         runID,
		Transactions:  txs,
		Accounts:      accounts,
		Anomalies:     anomalies.snapshot(),
		AccountErrors: accountErrs.m,
	}, nil
}

// fingerprint stamps every transaction and surfaces collisions: two distinct
// input records hashing to the same identity are never silently merged.
func (e *Engine) fingerprint(txs []ledger.Transaction, anomalies *anomalyCollector) {
	seen := make(map[string]int, len(txs))
	collided := make(map[string]bool)
	for i := range txs {
		fp := txs[i].Fingerprinted()
		if first, ok := seen[fp]; ok {
			if !collided[fp] {
				collided[fp] = true
				anomalies.add(Anomaly{
					Kind:        AnomalyFingerprintCollision,
					AccountID:   txs[i].AccountID,
					Fingerprint: fp,
					Message: fmt.Sprintf("records from %s:%d and %s:%d share fingerprint %s",
						txs[first].SourceFile, txs[first].SourceLine, txs[i].SourceFile, txs[i].SourceLine, fp),
				})
			}
		} else {
			seen[fp] = i
		}
	}
}

// runIdentity hashes the stamped fingerprints into a stable UUID for the run.
func runIdentity(txs []ledger.Transaction) string {
	var b strings.Builder
	for i := range txs {
		b.WriteString(txs[i].Fingerprint)
		b.WriteByte('\n')
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.String())).String()
}

// SortedAccountIDs returns the result's account IDs in stable order, for
// deterministic report output.
func (r *Result) SortedAccountIDs() []string {
	ids := make([]string, 0, len(r.Accounts))
	for id := range r.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
