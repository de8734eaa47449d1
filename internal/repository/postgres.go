// Package repository хранит журнал операций продажи и журнал событий.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrJournalCorrupt возвращается, если сохранённую запись журнала невозможно разобрать.
var ErrJournalCorrupt = errors.New("journal is corrupt")

// PostgresRepository хранит журнал в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт репозиторий и применяет миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil || i == len(r.delays) || !isRetryable(err) {
			return err
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// AppendCommand записывает команду и её события в одной транзакции и возвращает номер команды.
func (r *PostgresRepository) AppendCommand(ctx context.Context, cmd model.Command, events []model.Event) (int64, error) {
	args := cmd.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	var seq int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO commands (op, caller, args, executed_at) VALUES ($1, $2, $3::jsonb, $4) RETURNING seq`,
			cmd.Op, cmd.Caller.Hex(), string(args), cmd.At,
		).Scan(&seq)
		if err != nil {
			return fmt.Errorf("insert command: %w", err)
		}

		batch := &pgx.Batch{}
		for _, e := range events {
			batch.Queue(
				`INSERT INTO events (command_seq, kind, from_address, to_address, value, tokens, occurred_at)
				 VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7)`,
				seq, string(e.Kind), e.From.Hex(), e.To.Hex(), numeric(e.Value), numeric(e.Tokens), e.At,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert events: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// LoadCommands возвращает журнал в порядке выполнения.
func (r *PostgresRepository) LoadCommands(ctx context.Context) ([]model.Command, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT seq, op, caller, args::text, executed_at FROM commands ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("select commands: %w", err)
	}
	defer rows.Close()

	var res []model.Command
	for rows.Next() {
		var (
			cmd    model.Command
			caller string
			args   string
		)
		if err := rows.Scan(&cmd.Seq, &cmd.Op, &caller, &args, &cmd.At); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		if !common.IsHexAddress(caller) {
			return nil, fmt.Errorf("%w: command %d has caller %q", ErrJournalCorrupt, cmd.Seq, caller)
		}
		cmd.Caller = common.HexToAddress(caller)
		cmd.Args = json.RawMessage(args)
		res = append(res, cmd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetPurchases возвращает покупки, в которых адрес был покупателем или бенефициаром, новые первыми.
func (r *PostgresRepository) GetPurchases(ctx context.Context, addr common.Address) ([]model.Purchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT from_address, to_address, value::text, tokens::text, occurred_at
		 FROM events
		 WHERE kind = $1 AND (from_address = $2 OR to_address = $2)
		 ORDER BY id DESC`,
		string(model.EventTokenPurchase), addr.Hex(),
	)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	var res []model.Purchase
	for rows.Next() {
		var (
			from, to      string
			value, tokens string
			at            time.Time
		)
		if err := rows.Scan(&from, &to, &value, &tokens, &at); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}

		v, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("%w: purchase value %q", ErrJournalCorrupt, value)
		}
		tk, ok := new(big.Int).SetString(tokens, 10)
		if !ok {
			return nil, fmt.Errorf("%w: purchase tokens %q", ErrJournalCorrupt, tokens)
		}

		res = append(res, model.Purchase{
			Purchaser:   common.HexToAddress(from),
			Beneficiary: common.HexToAddress(to),
			Value:       v,
			Tokens:      tk,
			At:          at,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func numeric(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
