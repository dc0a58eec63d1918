package account

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite-backed store at the given
// path. ":memory:" opens an in-process database. The schema is created
// if absent and an empty store is seeded with the default dataset.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("account: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("account: open database: %w", err)
	}

	// WAL improves concurrent read behavior for the console commands.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("account: set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.seedIfEmpty(DefaultSeed()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL CHECK (balance >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS blacklisted_accounts (
			id TEXT PRIMARY KEY
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("account: migrate: %w", err)
		}
	}
	return nil
}

// seedIfEmpty populates an empty store. Idempotent across restarts.
func (s *SQLiteStore) seedIfEmpty(seed Seed) error {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&n); err != nil {
		return fmt.Errorf("account: count accounts: %w", err)
	}
	if n == 0 {
		ids := make([]string, 0, len(seed.Balances))
		for id := range seed.Balances {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, err := s.db.Exec(
				"INSERT INTO accounts (id, balance) VALUES (?, ?)",
				id, seed.Balances[id],
			); err != nil {
				return fmt.Errorf("account: seed %s: %w", id, err)
			}
		}
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM blacklisted_accounts").Scan(&n); err != nil {
		return fmt.Errorf("account: count blacklist: %w", err)
	}
	if n == 0 {
		for _, id := range seed.Blacklist {
			if _, err := s.db.Exec(
				"INSERT INTO blacklisted_accounts (id) VALUES (?)", id,
			); err != nil {
				return fmt.Errorf("account: seed blacklist %s: %w", id, err)
			}
		}
	}

	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM accounts WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("account: exists %s: %w", id, err)
	}
	return true, nil
}

func (s *SQLiteStore) Balance(ctx context.Context, id string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		"SELECT balance FROM accounts WHERE id = ?", id).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("account: balance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("account: balance %s: %w", id, err)
	}
	return balance, nil
}

func (s *SQLiteStore) SetBalance(ctx context.Context, id string, balance int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET balance = ? WHERE id = ?", balance, id)
	if err != nil {
		return fmt.Errorf("account: set balance %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("account: set balance %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("account: set balance %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) IsBlacklisted(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM blacklisted_accounts WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("account: blacklist check %s: %w", id, err)
	}
	return true, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("account: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("account: list: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("account: list: %w", err)
	}
	return ids, nil
}

// Transfer debits from and credits to inside one transaction. The
// sender balance is re-read under the transaction so a concurrent
// debit cannot turn an approved transfer into an overdraft.
func (s *SQLiteStore) Transfer(ctx context.Context, from, to string, amount int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("account: begin transfer: %w", err)
	}
	defer tx.Rollback()

	var fromBalance int64
	err = tx.QueryRowContext(ctx,
		"SELECT balance FROM accounts WHERE id = ?", from).Scan(&fromBalance)
	if err == sql.ErrNoRows {
		return fmt.Errorf("account: transfer from %s: %w", from, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("account: transfer from %s: %w", from, err)
	}
	if fromBalance < amount {
		return fmt.Errorf("account: transfer from %s: balance %d below amount %d",
			from, fromBalance, amount)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE accounts SET balance = balance - ? WHERE id = ?", amount, from); err != nil {
		return fmt.Errorf("account: debit %s: %w", from, err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE accounts SET balance = balance + ? WHERE id = ?", amount, to)
	if err != nil {
		return fmt.Errorf("account: credit %s: %w", to, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("account: credit %s: %w", to, err)
	}
	if rows == 0 {
		return fmt.Errorf("account: credit %s: %w", to, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("account: commit transfer: %w", err)
	}
	return nil
}
