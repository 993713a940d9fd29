package permreq

import (
	"time"

	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/shared"
)

// Status enumerates the request lifecycle states.
type Status string

const (
	// StatusPending is the initial state of every request.
	StatusPending Status = "pending"
	// StatusApproved is terminal; the grant has been applied.
	StatusApproved Status = "approved"
	// StatusDenied is terminal; the directory is untouched.
	StatusDenied Status = "denied"
)

// Terminal reports whether no further transition is defined.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Request is a user-initiated, admin-reviewed proposal to change the
// user's permission flags. UserID is set once at creation; only the
// service transitions Status, and only out of pending.
type Request struct {
	ID         uuid.UUID
	UserID     int64
	Requested  shared.Permissions
	Status     Status
	ReviewedBy *int64
	CreatedAt  time.Time
	ReviewedAt *time.Time
}

// Detail joins a request with the requesting user's identity for the
// review views.
type Detail struct {
	Request
	RequesterEmail string
	RequesterName  string
}

// HistoryEntry joins a request with the reviewer's name, when reviewed.
type HistoryEntry struct {
	Request
	ReviewerName *string
}
