package wallet

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

//go:embed schema.sql
var schemaSQL string

var (
	// ErrWalletNotFound is returned for addresses that hold no wallet.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletExists is returned when a wallet address is already taken.
	ErrWalletExists = errors.New("wallet exists")
)

// Repository persists wallet metadata.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, addr common.Address) (Wallet, error)
	List(ctx context.Context) ([]Wallet, error)
	Delete(ctx context.Context, addr common.Address) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the wallets table when it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply wallet schema: %w", err)
	}
	return nil
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	_, err := r.db.Exec(ctx, `INSERT INTO wallets (address, owner, created_at) VALUES ($1, $2, $3)`,
		wallet.Address.Bytes(), wallet.Owner.Bytes(), wallet.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrWalletExists
	}
	return err
}

// Delete removes a wallet record. Missing records are not an error.
func (r *PostgresRepository) Delete(ctx context.Context, addr common.Address) error {
	_, err := r.db.Exec(ctx, `DELETE FROM wallets WHERE address = $1`, addr.Bytes())
	return err
}

// Get fetches wallet metadata by address.
func (r *PostgresRepository) Get(ctx context.Context, addr common.Address) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT address, owner, created_at FROM wallets WHERE address = $1`, addr.Bytes())
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrWalletNotFound
	}
	return w, err
}

// List returns every wallet in deployment order.
func (r *PostgresRepository) List(ctx context.Context) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT address, owner, created_at FROM wallets ORDER BY created_at, address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		address, owner []byte
		createdAt      time.Time
	)
	if err := row.Scan(&address, &owner, &createdAt); err != nil {
		return Wallet{}, err
	}
	return Wallet{
		Address:   common.BytesToAddress(address),
		Owner:     common.BytesToAddress(owner),
		CreatedAt: createdAt.UTC(),
	}, nil
}
