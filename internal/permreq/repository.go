package permreq

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatewise/internal/platform/db"
	"github.com/gatewise/gatewise/internal/shared"
)

// Repository defines persistence operations for permission requests.
type Repository interface {
	Insert(ctx context.Context, userID int64, requested shared.Permissions) (*Request, error)
	ListPending(ctx context.Context) ([]Detail, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Detail, error)
	ListByUser(ctx context.Context, userID int64) ([]HistoryEntry, error)
	// WithTx runs fn inside a single transaction. The approve path uses it
	// to change the request row and the user's permission triple as one
	// unit; neither write is visible without the other.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository exposes the writes that participate in a review transaction.
type TxRepository interface {
	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)
	// Transition applies a conditional state change: the row is updated
	// only while still pending, so exactly one concurrent reviewer wins.
	// pgx.ErrNoRows surfaces as shared.ErrInvalidTransition.
	Transition(ctx context.Context, id uuid.UUID, status Status, reviewerID int64) (*Request, error)
	// ReplacePermissions is the directory mutation scoped to the unit of
	// work: a full overwrite of the three-flag set.
	ReplacePermissions(ctx context.Context, userID int64, perms shared.Permissions) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, user_id, req_add, req_update, req_delete, status, reviewed_by, created_at, reviewed_at`

// Insert creates a pending request. A partial unique index on
// (user_id) WHERE status='pending' rejects a second open request.
func (r *PGRepository) Insert(ctx context.Context, userID int64, requested shared.Permissions) (*Request, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO permission_requests (id, user_id, req_add, req_update, req_delete, status)
VALUES ($1, $2, $3, $4, $5, 'pending')
RETURNING `+requestColumns,
		uuid.New(), userID, requested.CanAdd, requested.CanUpdate, requested.CanDelete)
	req, err := scanRequest(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("permreq: a pending request already exists: %w", shared.ErrValidation)
		}
		return nil, fmt.Errorf("permreq: insert: %w", wrapStoreErr(err))
	}
	return req, nil
}

// ListPending returns all pending requests joined with requester identity,
// oldest first so reviewers see the longest-waiting ones on top.
func (r *PGRepository) ListPending(ctx context.Context) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.user_id, r.req_add, r.req_update, r.req_delete, r.status, r.reviewed_by, r.created_at, r.reviewed_at, u.email, u.name
FROM permission_requests r
JOIN users u ON u.id = r.user_id
WHERE r.status = 'pending'
ORDER BY r.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("permreq: list pending: %w", wrapStoreErr(err))
	}
	defer rows.Close()
	var details []Detail
	for rows.Next() {
		detail, err := scanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("permreq: scan pending: %w", err)
		}
		details = append(details, *detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permreq: list pending: %w", wrapStoreErr(err))
	}
	return details, nil
}

// GetByID fetches one request joined with requester identity.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Detail, error) {
	row := r.pool.QueryRow(ctx, `SELECT r.id, r.user_id, r.req_add, r.req_update, r.req_delete, r.status, r.reviewed_by, r.created_at, r.reviewed_at, u.email, u.name
FROM permission_requests r
JOIN users u ON u.id = r.user_id
WHERE r.id = $1`, id)
	detail, err := scanDetail(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("permreq: request %s: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("permreq: get by id: %w", wrapStoreErr(err))
	}
	return detail, nil
}

// ListByUser returns all of a user's requests, newest first, joined with
// the reviewer's name where reviewed.
func (r *PGRepository) ListByUser(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.user_id, r.req_add, r.req_update, r.req_delete, r.status, r.reviewed_by, r.created_at, r.reviewed_at, a.name
FROM permission_requests r
LEFT JOIN users a ON a.id = r.reviewed_by
WHERE r.user_id = $1
ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("permreq: list by user: %w", wrapStoreErr(err))
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var status string
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Requested.CanAdd,
			&entry.Requested.CanUpdate,
			&entry.Requested.CanDelete,
			&status,
			&entry.ReviewedBy,
			&entry.CreatedAt,
			&entry.ReviewedAt,
			&entry.ReviewerName,
		); err != nil {
			return nil, fmt.Errorf("permreq: scan history: %w", err)
		}
		entry.Status = Status(status)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permreq: list by user: %w", wrapStoreErr(err))
	}
	return entries, nil
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM permission_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("permreq: request %s: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("permreq: get request: %w", wrapStoreErr(err))
	}
	return req, nil
}

func (t *pgTxRepository) Transition(ctx context.Context, id uuid.UUID, status Status, reviewerID int64) (*Request, error) {
	row := t.tx.QueryRow(ctx, `UPDATE permission_requests
SET status = $2, reviewed_by = $3, reviewed_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING `+requestColumns, id, string(status), reviewerID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The row exists but left pending between our read and this
			// write: a concurrent reviewer won.
			return nil, fmt.Errorf("permreq: request %s is no longer pending: %w", id, shared.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("permreq: transition: %w", wrapStoreErr(err))
	}
	return req, nil
}

func (t *pgTxRepository) ReplacePermissions(ctx context.Context, userID int64, perms shared.Permissions) error {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET can_add = $2, can_update = $3, can_delete = $4, updated_at = NOW()
WHERE id = $1`, userID, perms.CanAdd, perms.CanUpdate, perms.CanDelete)
	if err != nil {
		return fmt.Errorf("permreq: replace permissions: %w", wrapStoreErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permreq: user %d: %w", userID, shared.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var req Request
	var status string
	if err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.Requested.CanAdd,
		&req.Requested.CanUpdate,
		&req.Requested.CanDelete,
		&status,
		&req.ReviewedBy,
		&req.CreatedAt,
		&req.ReviewedAt,
	); err != nil {
		return nil, err
	}
	req.Status = Status(status)
	return &req, nil
}

func scanDetail(row rowScanner) (*Detail, error) {
	var detail Detail
	var status string
	if err := row.Scan(
		&detail.ID,
		&detail.UserID,
		&detail.Requested.CanAdd,
		&detail.Requested.CanUpdate,
		&detail.Requested.CanDelete,
		&status,
		&detail.ReviewedBy,
		&detail.CreatedAt,
		&detail.ReviewedAt,
		&detail.RequesterEmail,
		&detail.RequesterName,
	); err != nil {
		return nil, err
	}
	detail.Status = Status(status)
	return &detail, nil
}

func wrapStoreErr(err error) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
}

var _ Repository = (*PGRepository)(nil)
