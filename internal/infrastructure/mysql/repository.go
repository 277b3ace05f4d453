package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"txcorpus/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// insertChunk bounds the number of rows per multi-row INSERT.
const insertChunk = 500

type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
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
		`CREATE TABLE IF NOT EXISTS corpus_transactions (
			target VARCHAR(42) NOT NULL,
			hash VARCHAR(66) NOT NULL,
			from_addr VARCHAR(42) NOT NULL,
			to_addr VARCHAR(42) NOT NULL,
			value VARCHAR(80) NOT NULL,
			data MEDIUMTEXT NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			transaction_index BIGINT UNSIGNED NOT NULL,
			gas_price VARCHAR(80) NOT NULL,
			PRIMARY KEY (target, hash),
			KEY corpus_order_idx (target, block_number, transaction_index)
		)`,
		`CREATE TABLE IF NOT EXISTS corpus_runs (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			target VARCHAR(42) NOT NULL,
			start_block BIGINT UNSIGNED NOT NULL,
			end_block BIGINT UNSIGNED NOT NULL,
			blocks_succeeded INT NOT NULL,
			blocks_failed INT NOT NULL,
			transactions INT NOT NULL,
			elapsed_ms BIGINT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (id)
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
	return "mysql"
}

func (r *Repository) StoreCorpus(ctx context.Context, corpus domain.Corpus) error {
	ctx, span := otel.Tracer("txcorpus/mysql").Start(ctx, "mysql.store_corpus")
	defer span.End()
	span.SetAttributes(attribute.Int("transactions", len(corpus.Result.Transactions)))

	if err := r.storeCorpus(ctx, corpus); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Repository) storeCorpus(ctx context.Context, corpus domain.Corpus) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	target := strings.ToLower(corpus.Query.TargetAddress)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txs := corpus.Result.Transactions
	for start := 0; start < len(txs); start += insertChunk {
		end := min(start+insertChunk, len(txs))
		query, args := buildInsertTransactions(target, txs[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert transactions: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO corpus_runs (target, start_block, end_block, blocks_succeeded, blocks_failed, transactions, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		target,
		corpus.Query.StartBlock,
		corpus.Query.EndBlock,
		corpus.Result.BlocksSucceeded,
		corpus.Result.BlocksFailed,
		corpus.Result.TransactionsFound,
		corpus.Result.Elapsed.Milliseconds(),
		time.Now().UTC(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	return tx.Commit()
}

func buildInsertTransactions(target string, txs []domain.FilteredTransaction) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT IGNORE INTO corpus_transactions (target, hash, from_addr, to_addr, value, data, block_number, transaction_index, gas_price) VALUES `)
	args := make([]any, 0, len(txs)*9)
	for i, t := range txs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, target, t.Hash, t.From, t.To, t.Value, t.Data, t.BlockNumber, t.TransactionIndex, t.GasPrice)
	}
	return b.String(), args
}

func (r *Repository) Close() error {
	return r.db.Close()
}
