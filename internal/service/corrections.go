package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/tillbook/tillbook/internal/database/repository"
	"github.com/tillbook/tillbook/internal/ledger"
)

// CorrectionService imports reviewed category corrections.
type CorrectionService struct {
	Corrections *repository.CorrectionRepo
}

// ImportResult summarizes one import.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []error
}

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// ImportCSV reads a corrections file with a header row naming at least
// "fingerprint" and "category" columns (an optional "source" column is
// honored). Rows with malformed fingerprints or empty categories are skipped
// and reported. The surviving batch is applied atomically: a storage failure
// leaves the prior store unmodified.
func (s *CorrectionService) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	res := ImportResult{}
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	header, err := csvr.Read()
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	fpIdx, catIdx, srcIdx := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "fingerprint":
			fpIdx = i
		case "category":
			catIdx = i
		case "source":
			srcIdx = i
		}
	}
	if fpIdx < 0 || catIdx < 0 {
		return res, fmt.Errorf("header must name fingerprint and category columns")
	}

	var batch []ledger.Correction
	line := 1
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if len(rec) <= max(fpIdx, catIdx) {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: too few columns", line))
			res.Skipped++
			continue
		}
		fp := strings.ToLower(strings.TrimSpace(rec[fpIdx]))
		category := strings.TrimSpace(rec[catIdx])
		if fp == "" || category == "" {
			res.Skipped++
			continue
		}
		if !fingerprintPattern.MatchString(fp) {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: malformed fingerprint %q", line, fp))
			res.Skipped++
			continue
		}
		source := "user"
		if srcIdx >= 0 && len(rec) > srcIdx && strings.TrimSpace(rec[srcIdx]) != "" {
			source = strings.TrimSpace(rec[srcIdx])
		}
		batch = append(batch, ledger.Correction{Fingerprint: fp, CategoryID: category, Source: source})
	}

	if len(batch) > 0 {
		if err := s.Corrections.ImportBatch(ctx, batch); err != nil {
			return res, fmt.Errorf("persist corrections: %w", err)
		}
		res.Imported = len(batch)
	}
	return res, nil
}

// Clear removes every stored correction.
func (s *CorrectionService) Clear(ctx context.Context) error {
	return s.Corrections.Clear(ctx)
}
