package service

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/ledger"
)

// LoadNormalizedCSV reads already-normalized transaction records produced by
// the parsing layer. Columns: date, description, amount, account, and an
// optional trailing raw_balance. Records missing date or amount are the
// parser's responsibility; here they are reported as errors and skipped so
// one bad row never poisons a file.
func LoadNormalizedCSV(r io.Reader, sourceFile string) ([]ledger.Transaction, []error) {
	var txs []ledger.Transaction
	var errs []error

	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s line %d: %w", sourceFile, line, err))
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue // header
		}
		if len(rec) < 4 {
			errs = append(errs, fmt.Errorf("%s line %d: expected at least 4 columns (date, description, amount, account)", sourceFile, line))
			continue
		}
		date, err := time.Parse(time.DateOnly, strings.TrimSpace(rec[0]))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s line %d date: %w", sourceFile, line, err))
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s line %d amount: %w", sourceFile, line, err))
			continue
		}
		tx := ledger.Transaction{
			Date:        date,
			Description: strings.TrimSpace(rec[1]),
			Amount:      amount,
			AccountID:   strings.TrimSpace(rec[3]),
			SourceFile:  sourceFile,
			SourceLine:  line,
		}
		if len(rec) > 4 && strings.TrimSpace(rec[4]) != "" {
			raw, err := decimal.NewFromString(strings.TrimSpace(rec[4]))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s line %d raw_balance: %w", sourceFile, line, err))
				continue
			}
			tx.RawBalance = &raw
		}
		txs = append(txs, tx)
	}
	return txs, errs
}
