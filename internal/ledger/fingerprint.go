package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FingerprintLen is the length of the hex identity string.
const FingerprintLen = 16

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeDescription folds a raw description into the canonical form used
// for fingerprinting and matching: combining marks stripped, lowercased, and
// all whitespace runs collapsed to single spaces.
func NormalizeDescription(desc string) string {
	if normalized, _, err := transform.String(stripMarks, desc); err == nil {
		desc = normalized
	}
	return strings.Join(strings.Fields(strings.ToLower(desc)), " ")
}

// Fingerprint derives the stable identity of a transaction from its date,
// description, amount, and account. It is a pure function: equal inputs yield
// equal fingerprints across runs and platforms. Trivial formatting differences
// in the description do not change the result.
func Fingerprint(date time.Time, description string, amount decimal.Decimal, accountID string) string {
	input := strings.Join([]string{
		date.Format(time.DateOnly),
		amount.StringFixed(2),
		NormalizeDescription(description),
		accountID,
	}, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:FingerprintLen]
}

// Fingerprinted returns the transaction's stored fingerprint, computing it on
// demand when the engine has not stamped it yet.
func (t *Transaction) Fingerprinted() string {
	if t.Fingerprint == "" {
		t.Fingerprint = Fingerprint(t.Date, t.Description, t.Amount, t.AccountID)
	}
	return t.Fingerprint
}
