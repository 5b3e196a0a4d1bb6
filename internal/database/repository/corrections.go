// Package repository provides table-level access to persisted state.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tillbook/tillbook/internal/database"
	"github.com/tillbook/tillbook/internal/ledger"
)

// CorrectionRepo handles the fingerprint-keyed correction store. Values are
// overwritten by later imports; the store only ever grows or is cleared.
type CorrectionRepo struct {
	db *sql.DB
}

func NewCorrectionRepo(db *sql.DB) *CorrectionRepo { return &CorrectionRepo{db: db} }

// All loads the full store as the frozen per-run snapshot.
func (r *CorrectionRepo) All(ctx context.Context) (map[string]ledger.Correction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT fingerprint, category_id, source, updated_at FROM corrections`)
	if err != nil {
		return nil, fmt.Errorf("load corrections: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ledger.Correction)
	for rows.Next() {
		var c ledger.Correction
		if err := rows.Scan(&c.Fingerprint, &c.CategoryID, &c.Source, &c.Timestamp); err != nil {
			return nil, err
		}
		out[c.Fingerprint] = c
	}
	return out, rows.Err()
}

// Upsert stores one correction, overwriting any previous value for the
// fingerprint.
func (r *CorrectionRepo) Upsert(ctx context.Context, c ledger.Correction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO corrections(fingerprint, category_id, source, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?)
	ON CONFLICT(fingerprint) DO UPDATE SET
	 category_id = excluded.category_id,
	 source = excluded.source,
	 updated_at = excluded.updated_at;
	`, c.Fingerprint, c.CategoryID, c.Source, database.Now(), database.Now())
	return err
}

// ImportBatch applies a whole import in one transaction: either every
// correction lands or none do.
func (r *CorrectionRepo) ImportBatch(ctx context.Context, batch []ledger.Correction) error {
	now := database.Now()
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO corrections(fingerprint, category_id, source, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
		 category_id = excluded.category_id,
		 source = excluded.source,
		 updated_at = excluded.updated_at;
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range batch {
			if c.Fingerprint == "" || c.CategoryID == "" {
				return fmt.Errorf("correction with empty fingerprint or category")
			}
			ts := c.Timestamp
			if ts.IsZero() {
				ts = now
			}
			source := c.Source
			if source == "" {
				source = "user"
			}
			if _, err := stmt.ExecContext(ctx, c.Fingerprint, c.CategoryID, source, now, ts); err != nil {
				return fmt.Errorf("import correction %s: %w", c.Fingerprint, err)
			}
		}
		return nil
	})
}

// Clear removes every correction.
func (r *CorrectionRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM corrections`)
	return err
}

// Count reports the store size.
func (r *CorrectionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corrections`).Scan(&n)
	return n, err
}
