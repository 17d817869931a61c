package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles every repository bound to the same connection or transaction.
type Repositories struct {
	Tickets     TicketRepository
	Activities  TicketActivityRepository
	Attachments AttachmentRepository
	AI          AIProcessingRepository
	Merges      MergedTicketRepository
	Reports     ClosureReportRepository
	Users       UserRepository
	Departments DepartmentRepository
}

// New binds all repositories to db.
func New(db DBTX) Repositories {
	return Repositories{
		Tickets:     NewTicketRepository(db),
		Activities:  NewTicketActivityRepository(db),
		Attachments: NewAttachmentRepository(db),
		AI:          NewAIProcessingRepository(db),
		Merges:      NewMergedTicketRepository(db),
		Reports:     NewClosureReportRepository(db),
		Users:       NewUserRepository(db),
		Departments: NewDepartmentRepository(db),
	}
}

// Transactor runs fn with repositories bound to a single database transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type pgTransactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a pgx-backed Transactor.
func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

func (t *pgTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, New(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
