package permreq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/observability"
	"github.com/gatewise/gatewise/internal/shared"
)

// DecisionNotifier enqueues an out-of-band notification for the
// requesting user once a request leaves pending.
type DecisionNotifier interface {
	EnqueueDecision(ctx context.Context, requestID uuid.UUID, userID int64, status Status) error
}

// Service owns the pending → approved/denied state machine. It is the
// only writer of request status and of user permission triples.
type Service struct {
	repo     Repository
	audit    *shared.AuditLogger
	notifier DecisionNotifier
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewService constructs a Service. Audit logger, notifier, and metrics
// may be nil; the lifecycle itself never depends on them.
func NewService(repo Repository, audit *shared.AuditLogger, notifier DecisionNotifier, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier, metrics: metrics, logger: logger}
}

// Submit creates a pending request. Requesting nothing is meaningless
// and rejected; so is a second request while one is still pending.
func (s *Service) Submit(ctx context.Context, userID int64, requested shared.Permissions) (*Request, error) {
	if requested.Empty() {
		return nil, fmt.Errorf("permreq: at least one permission flag must be requested: %w", shared.ErrValidation)
	}
	req, err := s.repo.Insert(ctx, userID, requested)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, userID, "permission_request.submit", req.ID, map[string]any{
		"requested": requested,
	})
	return req, nil
}

// ListPending returns all pending requests with requester identity.
func (s *Service) ListPending(ctx context.Context) ([]Detail, error) {
	return s.repo.ListPending(ctx)
}

// GetByID fetches one request with requester identity.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Detail, error) {
	return s.repo.GetByID(ctx, id)
}

// Approve grants the admin-decided permission set and closes the
// request. The status transition and the directory overwrite commit as
// one transaction; a request already out of pending is rejected with
// ErrInvalidTransition and leaves the directory untouched.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, adminID int64, granted shared.Permissions) (*Request, error) {
	var updated *Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return fmt.Errorf("permreq: request %s is already %s: %w", id, current.Status, shared.ErrInvalidTransition)
		}
		updated, err = tx.Transition(ctx, id, StatusApproved, adminID)
		if err != nil {
			return err
		}
		// The admin decides the final grant; it may differ from what was
		// requested, and unspecified flags are false.
		return tx.ReplacePermissions(ctx, current.UserID, granted)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncDecision("approved")
	s.recordAudit(ctx, adminID, "permission_request.approve", id, map[string]any{
		"user_id": updated.UserID,
		"granted": granted,
	})
	s.notifyDecision(ctx, updated)
	return updated, nil
}

// Deny closes the request without touching the directory.
func (s *Service) Deny(ctx context.Context, id uuid.UUID, adminID int64) (*Request, error) {
	var updated *Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return fmt.Errorf("permreq: request %s is already %s: %w", id, current.Status, shared.ErrInvalidTransition)
		}
		updated, err = tx.Transition(ctx, id, StatusDenied, adminID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncDecision("denied")
	s.recordAudit(ctx, adminID, "permission_request.deny", id, map[string]any{
		"user_id": updated.UserID,
	})
	s.notifyDecision(ctx, updated)
	return updated, nil
}

// History returns all of a user's requests, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, requestID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "permission_request",
		EntityID: requestID.String(),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notifyDecision(ctx context.Context, req *Request) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EnqueueDecision(ctx, req.ID, req.UserID, req.Status); err != nil && s.logger != nil {
		// The decision is already committed; notification is best effort.
		s.logger.Warn("enqueue decision notification", slog.String("request_id", req.ID.String()), slog.Any("error", err))
	}
}
