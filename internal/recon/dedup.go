package recon

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/tillbook/tillbook/internal/ledger"
)

// DedupConfig tunes the fuzzy duplicate detector.
type DedupConfig struct {
	// DateToleranceDays is the maximum date distance between members of a
	// duplicate pair. Clearing delays make 1-2 days typical.
	DateToleranceDays int
	// SimilarityThreshold is the minimum description similarity ratio for
	// pairs on different dates.
	SimilarityThreshold float64
	// SameDayThreshold applies to pairs on the same date; it is stricter to
	// avoid flagging legitimate repeated charges.
	SameDayThreshold float64
}

// DefaultDedupConfig mirrors the thresholds the detector was tuned with.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		DateToleranceDays:   1,
		SimilarityThreshold: 0.90,
		SameDayThreshold:    0.95,
	}
}

// Deduplicator flags probable duplicates within one account. It never removes
// or mutates anything beyond the duplicate flag, so at least one
// representative of every real-world event survives.
type Deduplicator struct {
	Config DedupConfig
	Log    zerolog.Logger
}

// Flag detects duplicates among one account's transactions. Candidates are
// bucketed by exact amount (no tolerance), then
// each bucket is scanned in stable order so the first-seen member stays
// canonical and only later members are flagged. Cross-file pairs are the
// primary target; callers must not mix accounts in one call.
func (d *Deduplicator) Flag(txs []*ledger.Transaction, anomalies *anomalyCollector) {
	buckets := make(map[string][]*ledger.Transaction)
	for _, tx := range txs {
		key := tx.Amount.StringFixed(2)
		buckets[key] = append(buckets[key], tx)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flagged := 0
	for _, k := range keys {
		group := buckets[k]
		if len(group) < 2 {
			continue
		}
		sortStable(group)
		for i, a := range group {
			if a.DuplicateFlag {
				continue
			}
			for _, b := range group[i+1:] {
				if b.DuplicateFlag {
					continue
				}
				switch d.classify(a, b) {
				case dupMatch:
					b.DuplicateFlag = true
					b.DuplicateOf = a.Fingerprint
					flagged++
				case dupAmbiguous:
					anomalies.add(Anomaly{
						Kind:        AnomalyAmbiguousDuplicate,
						AccountID:   b.AccountID,
						Fingerprint: b.Fingerprint,
						Message: fmt.Sprintf("possible duplicate of %s on amount and date only (no description to compare)",
							a.Fingerprint),
					})
				}
			}
		}
	}
	if flagged > 0 {
		d.Log.Info().Int("flagged", flagged).Msg("duplicates flagged")
	}
}

// sortStable orders a bucket by the stable key used across the engine:
// (date, description, source file, source line). Input files processed in a
// deterministic order therefore always produce the same canonical member.
func sortStable(group []*ledger.Transaction) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i], group[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.SourceLine < b.SourceLine
	})
}

type dupClass int

const (
	dupNone dupClass = iota
	dupMatch
	dupAmbiguous
)

func (d *Deduplicator) classify(a, b *ledger.Transaction) dupClass {
	if daysApart(a.Date, b.Date) > d.Config.DateToleranceDays {
		return dupNone
	}
	descA := ledger.NormalizeDescription(a.Description)
	descB := ledger.NormalizeDescription(b.Description)
	if descA == "" || descB == "" {
		// Amount and date line up but there is nothing to compare the
		// descriptions on. Surface for manual review instead of auto-flagging.
		return dupAmbiguous
	}
	threshold := d.Config.SimilarityThreshold
	if a.Date.Equal(b.Date) {
		threshold = d.Config.SameDayThreshold
	}
	if similarity(descA, descB) < threshold {
		return dupNone
	}
	return dupMatch
}

// similarity is a levenshtein ratio over normalized descriptions: 1 minus the
// edit distance divided by the longer length. Both sides count runes, since
// ComputeDistance is rune-based.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}
