// Package recon implements the reconciliation engine: categorization,
// duplicate flagging, and balance computation over fingerprinted transactions.
package recon

import "fmt"

// ValidationError rejects an explicit opening balance. It is fatal to the
// specific mutation only; other accounts are unaffected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigurationError marks a correction or rule referencing an unknown
// category. The affected transaction degrades to the next resolution tier.
type ConfigurationError struct {
	Kind       string // "correction" or "suggestion"
	CategoryID string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s references unknown category %q", e.Kind, e.CategoryID)
}
