package journal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

const pgErrUniqueViolation = "23505"

// Postgres is a Journal backed by a PostgreSQL table.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Journal = (*Postgres)(nil)

// NewPostgres connects to dsn and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// migrate runs every embedded migration in file name order. Each file is
// idempotent.
func (p *Postgres) migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := migrations.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
	}
	return nil
}

// Ping checks the connection, for health probes.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Record(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO transactions (
			signature, slot, fee_payer, success, error, logs, compute_units, accounts, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	logs := e.Logs
	if logs == nil {
		logs = []string{}
	}
	_, err := p.pool.Exec(ctx, query,
		e.Signature.String(),
		int64(e.Slot),
		e.FeePayer.String(),
		e.Success,
		e.Error,
		logs,
		int64(e.ComputeUnits),
		pubkeyStrings(e.Accounts),
		e.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const selectColumns = `signature, slot, fee_payer, success, error, logs, compute_units, accounts, processed_at`

func (p *Postgres) Get(ctx context.Context, sig types.Signature) (*Entry, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE signature = $1`, sig.String())
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return e, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM transactions ORDER BY slot DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		sig, payer string
		slot, cu   int64
		accounts   []string
		e          Entry
	)
	if err := row.Scan(&sig, &slot, &payer, &e.Success, &e.Error, &e.Logs, &cu, &accounts, &e.ProcessedAt); err != nil {
		return nil, err
	}
	var err error
	if e.Signature, err = types.SignatureFromBase58(sig); err != nil {
		return nil, err
	}
	if e.FeePayer, err = types.PubkeyFromBase58(payer); err != nil {
		return nil, err
	}
	e.Slot = types.Slot(slot)
	e.ComputeUnits = uint64(cu)
	e.Accounts = make([]types.Pubkey, len(accounts))
	for i, a := range accounts {
		if e.Accounts[i], err = types.PubkeyFromBase58(a); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func pubkeyStrings(keys []types.Pubkey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
