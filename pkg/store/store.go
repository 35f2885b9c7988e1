// Package store provides type-safe CRUD over the data model with
// read/write transaction separation: raw-pgx CRUD (explicit column lists,
// scan helpers, no ORM) built around an explicit ReadTx/WriteTx pair so
// that write transactions can buffer pub/sub messages until commit.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by single-row lookups that match no live row.
var ErrNotFound = errors.New("store: not found")

// ErrIPNotAvailable is returned by ClaimIP when the requested address is
// not a free pool entry for the given host.
var ErrIPNotAvailable = errors.New("store: ip address not available")

// Message is a pub/sub event buffered during a write transaction and
// flushed only after a successful commit.
type Message struct {
	Topic   string
	EventID string
	Payload []byte
}

// ReadTx is a snapshot-consistent read transaction: authorization
// visibility checks and list/get RPCs run on it. Its queries always apply
// the soft-deletion filter unless IncludeDeleted is set.
type ReadTx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// IncludeDeleted reports whether this tx was acquired in admin-class
	// mode, lifting the default `deleted_at IS NULL` filter for reads that
	// explicitly opt in. Individual queries still decide per-statement whether to
	// honor it.
	IncludeDeleted() bool
}

// WriteTx is a single serializable write transaction. All state mutation
// for one RPC handler flows through exactly one WriteTx; the messages it
// buffers via Publish are appended to a per-transaction slice and handed to
// the pub/sub client only by Pool.RunWrite after a successful commit.
type WriteTx interface {
	ReadTx
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	// Publish buffers a message for delivery after this transaction commits.
	// Calling it does not touch the network.
	Publish(msg Message)
	bufferedMessages() []Message
}

// Pool wraps a pgxpool.Pool and is the sole owner of the process's database
// connections.
type Pool struct {
	pg *pgxpool.Pool
}

// NewPool wraps an already-connected pgxpool.Pool.
func NewPool(pg *pgxpool.Pool) *Pool {
	return &Pool{pg: pg}
}

// Raw exposes the underlying pool for migration/health-check callers that
// are not performing request-scoped work.
func (p *Pool) Raw() *pgxpool.Pool {
	return p.pg
}

type readTx struct {
	tx             pgx.Tx
	includeDeleted bool
}

func (r *readTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return r.tx.Query(ctx, sql, args...)
}

func (r *readTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return r.tx.QueryRow(ctx, sql, args...)
}

func (r *readTx) IncludeDeleted() bool {
	return r.includeDeleted
}

type writeTx struct {
	readTx
	messages []Message
}

func (w *writeTx) Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error) {
	return w.tx.Exec(ctx, sql, args...)
}

func (w *writeTx) Publish(msg Message) {
	w.messages = append(w.messages, msg)
}

func (w *writeTx) bufferedMessages() []Message {
	return w.messages
}

// Publisher delivers messages buffered by a committed write transaction.
// pkg/pubsub.Bus implements this.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// RunRead opens a read-only transaction, runs fn, and always rolls back
// (a read transaction never has anything to commit).
func (p *Pool) RunRead(ctx context.Context, includeDeleted bool, fn func(ctx context.Context, tx ReadTx) error) error {
	pgxTx, err := p.pg.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("store: begin read tx: %w", err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck

	rtx := &readTx{tx: pgxTx, includeDeleted: includeDeleted}
	return fn(ctx, rtx)
}

// RunWrite opens a serializable write transaction, runs fn, commits on
// success, and on successful commit drains the message buffer to pub.
// Rollback (including on fn error or a canceled context) discards the
// buffer entirely — no partial pub/sub is possible.
func (p *Pool) RunWrite(ctx context.Context, pub Publisher, fn func(ctx context.Context, tx WriteTx) error) error {
	pgxTx, err := p.pg.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("store: begin write tx: %w", err)
	}

	wtx := &writeTx{readTx: readTx{tx: pgxTx}}
	if err := fn(ctx, wtx); err != nil {
		_ = pgxTx.Rollback(ctx)
		return err
	}

	if ctx.Err() != nil {
		_ = pgxTx.Rollback(ctx)
		return ctx.Err()
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit write tx: %w", err)
	}

	for _, msg := range wtx.bufferedMessages() {
		if pub == nil {
			continue
		}
		if err := pub.Publish(ctx, msg.Topic, msg.Payload); err != nil {
			// Delivery is best-effort and at-least-once from the transport's
			// side; a publish failure here does not roll back
			// already-committed state.
			continue
		}
	}
	return nil
}
