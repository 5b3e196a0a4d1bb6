package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/database"
	"github.com/tillbook/tillbook/internal/ledger"
)

// AccountRepo persists account records and their opening balances. A NULL
// opening balance means "not yet known" and invites inference on the next run
// with transaction data for the account.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

// All loads every account keyed by id.
func (r *AccountRepo) All(ctx context.Context) (map[string]*ledger.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, account_type, opening_balance, opening_balance_date FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*ledger.Account)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[acct.ID] = acct
	}
	return out, rows.Err()
}

// Get returns one account or nil when absent.
func (r *AccountRepo) Get(ctx context.Context, id string) (*ledger.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, account_type, opening_balance, opening_balance_date FROM accounts WHERE id = ?`, id)
	acct, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return acct, nil
}

// Upsert inserts or updates identity fields. An opening balance already
// stored is never clobbered: a NULL incoming value leaves the stored one in
// place, so inference can only fill gaps, not overwrite.
func (r *AccountRepo) Upsert(ctx context.Context, acct ledger.Account) error {
	bal, balDate := balanceColumns(acct)
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, name, account_type, opening_balance, opening_balance_date, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 name = excluded.name,
	 account_type = excluded.account_type,
	 opening_balance = COALESCE(accounts.opening_balance, excluded.opening_balance),
	 opening_balance_date = COALESCE(accounts.opening_balance_date, excluded.opening_balance_date),
	 updated_at = excluded.updated_at;
	`, acct.ID, acct.Name, string(acct.Type), bal, balDate, database.Now(), database.Now())
	return err
}

// SetOpeningBalance is the explicit balance-setting operation. Unlike
// inference it may overwrite a stored value; validation happens at the
// service layer before this is called.
func (r *AccountRepo) SetOpeningBalance(ctx context.Context, id string, amount decimal.Decimal, date time.Time) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE accounts SET opening_balance = ?, opening_balance_date = ?, updated_at = ? WHERE id = ?`,
		amount.StringFixed(2), date.Format(time.DateOnly), database.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s not found", id)
	}
	return nil
}

// SaveInferred persists opening balances the engine filled in, skipping
// accounts whose balance is already stored (Upsert's COALESCE guard).
func (r *AccountRepo) SaveInferred(ctx context.Context, accounts map[string]*ledger.Account) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		for _, acct := range accounts {
			if acct.OpeningBalance == nil {
				continue
			}
			bal, balDate := balanceColumns(*acct)
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO accounts(id, name, account_type, opening_balance, opening_balance_date, created_at, updated_at)
			VALUES(?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			 opening_balance = COALESCE(accounts.opening_balance, excluded.opening_balance),
			 opening_balance_date = COALESCE(accounts.opening_balance_date, excluded.opening_balance_date),
			 updated_at = excluded.updated_at;
			`, acct.ID, acct.Name, string(acct.Type), bal, balDate, database.Now(), database.Now()); err != nil {
				return fmt.Errorf("save account %s: %w", acct.ID, err)
			}
		}
		return nil
	})
}

func balanceColumns(acct ledger.Account) (any, any) {
	var bal, balDate any
	if acct.OpeningBalance != nil {
		bal = acct.OpeningBalance.StringFixed(2)
	}
	if acct.OpeningBalanceDate != nil {
		balDate = acct.OpeningBalanceDate.Format(time.DateOnly)
	}
	return bal, balDate
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*ledger.Account, error) {
	var acct ledger.Account
	var acctType string
	var bal sql.NullString
	var balDate sql.NullTime // DATE column, driver hands back time.Time
	if err := row.Scan(&acct.ID, &acct.Name, &acctType, &bal, &balDate); err != nil {
		return nil, err
	}
	acct.Type = ledger.AccountType(acctType)
	if bal.Valid {
		d, err := decimal.NewFromString(bal.String)
		if err != nil {
			return nil, fmt.Errorf("account %s: bad opening balance %q: %w", acct.ID, bal.String, err)
		}
		acct.OpeningBalance = &d
	}
	if balDate.Valid {
		t := balDate.Time.UTC()
		acct.OpeningBalanceDate = &t
	}
	return &acct, nil
}
