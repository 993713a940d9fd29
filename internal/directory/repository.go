package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatewise/internal/shared"
)

// Repository defines persistence operations for the user directory.
// Consumers only read; the permission triple is written exclusively by
// the permission request service inside its review transaction.
type Repository interface {
	Create(ctx context.Context, email, name, passwordHash string, role shared.Role) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, name, password_hash, role, can_add, can_update, can_delete, is_active, created_at, updated_at`

// Create inserts a new account. Permissions start all-false.
func (r *PGRepository) Create(ctx context.Context, email, name, passwordHash string, role shared.Role) (*User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING `+userColumns, email, name, passwordHash, string(role))
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("directory: email already registered: %w", shared.ErrValidation)
		}
		return nil, fmt.Errorf("directory: create user: %w", wrapStoreErr(err))
	}
	return user, nil
}

// FindByID fetches a user by ID.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("directory: user %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("directory: find user: %w", wrapStoreErr(err))
	}
	return user, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("directory: email %s: %w", email, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("directory: find by email: %w", wrapStoreErr(err))
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var role string
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&role,
		&user.Permissions.CanAdd,
		&user.Permissions.CanUpdate,
		&user.Permissions.CanDelete,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = shared.Role(role)
	return &user, nil
}

func wrapStoreErr(err error) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
}

var _ Repository = (*PGRepository)(nil)
