// Package ai defines the suggestion contract between the reconciliation
// engine and an out-of-band categorization model. The engine only ever
// consumes a precomputed fingerprint-to-suggestion map; absence of an entry is
// not an error and nothing in the engine blocks on a provider.
package ai

import "context"

// Suggestion is one model-proposed category for a transaction.
type Suggestion struct {
	CategoryID string  `json:"category_id"`
	Confidence float64 `json:"confidence"`
}

// SuggestionSet maps transaction fingerprints to suggestions. A partial set
// is normal: budget limits or provider errors simply leave entries out and
// the affected transactions fall through to rule resolution.
type SuggestionSet map[string]Suggestion

// TransactionInput is the per-transaction payload sent to a provider.
type TransactionInput struct {
	Fingerprint string `json:"fingerprint"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Account     string `json:"account"`
}

// SuggestRequest asks a provider to categorize a batch of transactions
// against a fixed category catalog.
type SuggestRequest struct {
	Transactions []TransactionInput `json:"transactions"`
	Categories   []string           `json:"categories"`
}

// Provider produces category suggestions. Implementations own their network
// mechanics, timeouts, and retries.
type Provider interface {
	Suggest(ctx context.Context, req SuggestRequest) (SuggestionSet, error)
}
