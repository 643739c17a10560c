package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

type Options struct {
	// TxTimeout bounds a whole transaction, commit included.
	TxTimeout time.Duration
	// LockTimeout bounds each wait for a row lock.
	LockTimeout time.Duration
}

// Store implements order.Store on PostgreSQL. Checkout and cancellation run
// in READ COMMITTED transactions; product and order rows are locked with
// SELECT ... FOR UPDATE before they are changed.
type Store struct {
	pool   *pgxpool.Pool
	reader *sqlx.DB
	opts   Options
}

func NewStore(pool *pgxpool.Pool, opts Options) *Store {
	return &Store{
		pool:   pool,
		reader: sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"),
		opts:   opts,
	}
}

// Close releases the read-side handle. The pool itself is owned by the caller.
func (s *Store) Close() error {
	return s.reader.Close()
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) (err error) {
	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}

	tx, beginErr := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if beginErr != nil {
		return classify(fmt.Errorf("postgres: failed to begin transaction: %w", beginErr))
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Msg("postgres: panic recovered inside transaction, rolling back")
			rollback(tx)
			panic(p)
		} else if err != nil {
			rollback(tx)
			err = classify(err)
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Msg("postgres: failed to commit transaction")
			err = classify(fmt.Errorf("postgres: failed to commit transaction: %w", commitErr))
		}
	}()

	if s.opts.LockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.opts.LockTimeout.Milliseconds())
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: failed to set lock timeout: %w", err)
		}
	}

	return fn(ctx, &pgTx{tx: tx})
}

// rollback runs on a fresh context: the transaction context may already be
// past its deadline.
func rollback(tx pgx.Tx) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.Error().Err(err).Msg("postgres: failed to rollback transaction")
	}
}

// classify maps driver failures onto the order error taxonomy. Domain errors
// pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}

	for _, domain := range []error{
		order.ErrInvalidRequest,
		order.ErrProductNotFound,
		order.ErrInsufficientStock,
		order.ErrOrderNotFound,
		order.ErrInvalidTransition,
		order.ErrEmptyCart,
		order.ErrTransactionAborted,
		order.ErrStoreUnavailable,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected,
			pgErr.Code == pgerrcode.LockNotAvailable,
			pgErr.Code == pgerrcode.QueryCanceled,
			pgErr.Code == pgerrcode.IdleInTransactionSessionTimeout:
			return fmt.Errorf("%w: %w", order.ErrTransactionAborted, err)
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return fmt.Errorf("%w: %w", order.ErrStoreUnavailable, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", order.ErrTransactionAborted, err)
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", order.ErrStoreUnavailable, err)
	}

	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Products() order.ProductStore { return &productStore{db: t.tx} }
func (t *pgTx) Orders() order.OrderStore     { return &orderStore{db: t.tx} }

// DB is the subset of pgx shared by pools, connections and transactions.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
