package directory

import (
	"time"

	"github.com/gatewise/gatewise/internal/shared"
)

// User represents an account in the directory.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         shared.Role
	Permissions  shared.Permissions
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
