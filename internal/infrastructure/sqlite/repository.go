package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"txcorpus/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository stores corpora in a local SQLite file so a replay harness can
// read them without a network.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			target TEXT NOT NULL,
			hash TEXT NOT NULL,
			from_addr TEXT NOT NULL,
			to_addr TEXT NOT NULL,
			value TEXT NOT NULL,
			data TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			transaction_index INTEGER NOT NULL,
			gas_price TEXT NOT NULL,
			PRIMARY KEY (target, hash)
		)`,
		`CREATE INDEX IF NOT EXISTS transactions_order_idx ON transactions (target, block_number, transaction_index)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target TEXT NOT NULL,
			start_block INTEGER NOT NULL,
			end_block INTEGER NOT NULL,
			blocks_succeeded INTEGER NOT NULL,
			blocks_failed INTEGER NOT NULL,
			transactions INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Name() string {
	return "sqlite"
}

func (r *Repository) StoreCorpus(ctx context.Context, corpus domain.Corpus) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	target := strings.ToLower(corpus.Query.TargetAddress)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (target, hash, from_addr, to_addr, value, data, block_number, transaction_index, gas_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target, hash) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range corpus.Result.Transactions {
		if _, err := stmt.ExecContext(ctx, target, t.Hash, t.From, t.To, t.Value, t.Data, t.BlockNumber, t.TransactionIndex, t.GasPrice); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs (target, start_block, end_block, blocks_succeeded, blocks_failed, transactions, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		target,
		int64(corpus.Query.StartBlock),
		int64(corpus.Query.EndBlock),
		corpus.Result.BlocksSucceeded,
		corpus.Result.BlocksFailed,
		corpus.Result.TransactionsFound,
		corpus.Result.Elapsed.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *Repository) Close() error {
	return r.db.Close()
}
