package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionChanged notifies a user after their grants change.
	TaskPermissionChanged = "permissions:notify"
	// TaskSessionsPurge removes expired session rows.
	TaskSessionsPurge = "sessions:purge"
)

// PermissionChangedPayload carries the details of a grant change.
type PermissionChangedPayload struct {
	UserID  int64  `json:"user_id"`
	Module  string `json:"module"`
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
}

// NewPermissionChangedTask constructs the notification task.
func NewPermissionChangedTask(payload PermissionChangedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionChanged, data), nil
}

// NewSessionsPurgeTask constructs the session purge task.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

// RecipientResolver maps a user ID to a notification address.
type RecipientResolver interface {
	EmailOf(ctx context.Context, userID int64) (string, error)
}

// SessionPurger removes expired session records.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// NewPermissionChangedHandler builds the handler for TaskPermissionChanged.
// mailer may be nil, in which case the notification is only logged.
func NewPermissionChangedHandler(logger *slog.Logger, resolver RecipientResolver, mailer *Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PermissionChangedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		email, err := resolver.EmailOf(ctx, payload.UserID)
		if err != nil {
			logger.Warn("resolve notification recipient", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
			return asynq.SkipRetry
		}

		verb := "liberado"
		if !payload.Allowed {
			verb = "revogado"
		}
		subject := "Televita: suas permissões de acesso mudaram"
		body := fmt.Sprintf("O acesso %s/%s foi %s na sua conta. Se você não reconhece esta alteração, fale com o suporte.",
			payload.Module, payload.Action, verb)

		if mailer == nil {
			logger.Info("permission change notification",
				slog.Int64("user_id", payload.UserID),
				slog.String("module", payload.Module),
				slog.String("action", payload.Action),
				slog.Bool("allowed", payload.Allowed))
			return nil
		}
		if err := mailer.Send(email, subject, body); err != nil {
			return fmt.Errorf("send permission notification: %w", err)
		}
		return nil
	}
}

// NewSessionsPurgeHandler builds the handler for TaskSessionsPurge.
func NewSessionsPurgeHandler(logger *slog.Logger, purger SessionPurger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := purger.DeleteExpiredSessions(ctx)
		if err != nil {
			return fmt.Errorf("purge expired sessions: %w", err)
		}
		if removed > 0 {
			logger.Info("purged expired sessions", slog.Int64("removed", removed))
		}
		return nil
	}
}
