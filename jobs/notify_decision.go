package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatewise/gatewise/internal/directory"
)

// NotifyDecisionJob delivers review-decision notifications to the
// requesting user by composing a transactional email.
type NotifyDecisionJob struct {
	users  directory.Repository
	client *Client
	logger *slog.Logger
}

// NewNotifyDecisionJob constructs the job.
func NewNotifyDecisionJob(users directory.Repository, client *Client, logger *slog.Logger) *NotifyDecisionJob {
	return &NotifyDecisionJob{users: users, client: client, logger: logger}
}

// Handle processes TaskTypeNotifyDecision tasks.
func (j *NotifyDecisionJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload NotifyDecisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	user, err := j.users.FindByID(ctx, payload.UserID)
	if err != nil {
		// The account may have been deactivated since the review; retry
		// is pointless once the user cannot be resolved.
		if j.logger != nil {
			j.logger.Warn("notify decision: resolve user", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
		}
		return asynq.SkipRetry
	}
	email := SendEmailPayload{
		To:      user.Email,
		Subject: fmt.Sprintf("Your permission request was %s", payload.Status),
		Body:    fmt.Sprintf("Request %s has been %s.", payload.RequestID, payload.Status),
	}
	if _, err := j.client.EnqueueSendEmail(ctx, email); err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("decision notification queued",
			slog.String("request_id", payload.RequestID),
			slog.String("status", payload.Status),
		)
	}
	return nil
}
