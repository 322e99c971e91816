package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// serialLockKey is the advisory lock that serializes top-level transactions.
const serialLockKey int64 = 0x637573746f6479

//go:embed schema.sql
var schemaSQL string

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger persists balances, counters and logs in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureSchema creates the ledger tables when they do not exist yet.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// Begin opens a top-level transaction holding the ledger's advisory lock until it ends.
func (l *PostgresLedger) Begin(ctx context.Context) (Tx, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, serialLockKey); err != nil {
		tx.Rollback(ctx) // nolint:errcheck
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// Balance returns the committed balance for the address, zero for unknown accounts.
func (l *PostgresLedger) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return balanceOf(ctx, l.db, addr)
}

// Counter returns the committed value of a named per-account counter.
func (l *PostgresLedger) Counter(ctx context.Context, addr common.Address, name string) (uint64, error) {
	return counterOf(ctx, l.db, addr, name)
}

// Logs lists committed logs of a contract for one topic in emission order.
func (l *PostgresLedger) Logs(ctx context.Context, contract common.Address, topic string) ([]Log, error) {
	rows, err := l.db.Query(ctx, `SELECT id, contract, topic, data, created_at
        FROM logs WHERE contract = $1 AND topic = $2 ORDER BY seq`, contract.Bytes(), topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var (
			lg       Log
			contract []byte
		)
		if err := rows.Scan(&lg.ID, &contract, &lg.Topic, &lg.Data, &lg.CreatedAt); err != nil {
			return nil, err
		}
		lg.Contract = common.BytesToAddress(contract)
		lg.CreatedAt = lg.CreatedAt.UTC()
		out = append(out, lg)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

// Begin opens a savepoint.
func (t *pgTx) Begin(ctx context.Context) (Tx, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil, ErrTxDone
		}
		return nil, err
	}
	return &pgTx{tx: sp}, nil
}

func (t *pgTx) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return balanceOf(ctx, t.tx, addr)
}

func (t *pgTx) Counter(ctx context.Context, addr common.Address, name string) (uint64, error) {
	return counterOf(ctx, t.tx, addr, name)
}

func (t *pgTx) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	var raw string
	err := t.tx.QueryRow(ctx, `SELECT balance::text FROM accounts WHERE address = $1 FOR UPDATE`, from.Bytes()).Scan(&raw)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	fromBalance := new(uint256.Int)
	if raw != "" {
		if fromBalance, err = uint256.FromDecimal(raw); err != nil {
			return fmt.Errorf("decode balance of %s: %w", from.Hex(), err)
		}
	}
	if fromBalance.Lt(amount) {
		return ErrInsufficientFunds
	}
	if from == to || amount.IsZero() {
		return nil
	}

	if _, err := t.tx.Exec(ctx, `UPDATE accounts SET balance = balance - $2::text::numeric WHERE address = $1`,
		from.Bytes(), amount.Dec()); err != nil {
		return err
	}
	return credit(ctx, t.tx, to, amount)
}

func (t *pgTx) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return credit(ctx, t.tx, to, amount)
}

func (t *pgTx) IncrementCounter(ctx context.Context, addr common.Address, name string) (uint64, error) {
	var next int64
	err := t.tx.QueryRow(ctx, `INSERT INTO counters (address, name, value) VALUES ($1, $2, 1)
        ON CONFLICT (address, name) DO UPDATE SET value = counters.value + 1
        RETURNING value`, addr.Bytes(), name).Scan(&next)
	if err != nil {
		return 0, err
	}
	return uint64(next), nil
}

func (t *pgTx) AppendLog(ctx context.Context, log Log) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO logs (id, contract, topic, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		log.ID, log.Contract.Bytes(), log.Topic, log.Data, log.CreatedAt.UTC())
	return err
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return ErrTxDone
		}
		return err
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func credit(ctx context.Context, tx pgx.Tx, to common.Address, amount *uint256.Int) error {
	var raw string
	err := tx.QueryRow(ctx, `INSERT INTO accounts (address, balance) VALUES ($1, $2::text::numeric)
        ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance
        RETURNING balance::text`, to.Bytes(), amount.Dec()).Scan(&raw)
	if err != nil {
		return err
	}
	if _, err := uint256.FromDecimal(raw); err != nil {
		return ErrOverflow
	}
	return nil
}

func balanceOf(ctx context.Context, q querier, addr common.Address) (*uint256.Int, error) {
	var raw string
	if err := q.QueryRow(ctx, `SELECT balance::text FROM accounts WHERE address = $1`, addr.Bytes()).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	bal, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode balance of %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

func counterOf(ctx context.Context, q querier, addr common.Address, name string) (uint64, error) {
	var v int64
	if err := q.QueryRow(ctx, `SELECT value FROM counters WHERE address = $1 AND name = $2`, addr.Bytes(), name).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(v), nil
}
