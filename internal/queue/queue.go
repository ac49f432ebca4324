package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/services"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// TypeMessageNotification is the task that creates a notification for a chat message.
const TypeMessageNotification = "notification:chat_message"

// DefaultQueue is the asynq queue chat notifications go to.
const DefaultQueue = "notifications"

// ParseRedisURL turns a redis:// URL into asynq connection options.
func ParseRedisURL(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return opt, nil
}

// NewMessageNotificationTask encodes alert as a task. The task id is derived
// from the message id so a retried enqueue cannot create a second task.
func NewMessageNotificationTask(alert services.MessageAlert) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(DefaultQueue),
		asynq.MaxRetry(5),
		asynq.TaskID(fmt.Sprintf("chat-msg-%d", alert.MessageID)),
		asynq.Retention(time.Hour),
	}
	return asynq.NewTask(TypeMessageNotification, payload), opts, nil
}

// Enqueuer is the part of *asynq.Client the notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqNotifier hands appended messages to the background worker.
type AsynqNotifier struct {
	client Enqueuer
}

// NewAsynqNotifier creates an AsynqNotifier
func NewAsynqNotifier(client Enqueuer) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

func (n *AsynqNotifier) MessageAppended(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	task, opts, err := NewMessageNotificationTask(services.NewMessageAlert(conv, msg))
	if err != nil {
		log.Error().Err(err).Uint("message_id", msg.ID).Msg("failed to encode message notification task")
		return
	}
	info, err := n.client.EnqueueContext(ctx, task, opts...)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict):
		return
	case err != nil:
		log.Error().Err(err).Uint("conversation_id", conv.ID).Uint("message_id", msg.ID).Msg("failed to enqueue message notification")
	default:
		log.Debug().Str("task_id", info.ID).Uint("message_id", msg.ID).Msg("message notification enqueued")
	}
}

// HandleMessageNotification processes TypeMessageNotification tasks.
func HandleMessageNotification(alerts *services.MessageAlerts) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var alert services.MessageAlert
		if err := json.Unmarshal(t.Payload(), &alert); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", TypeMessageNotification, err, asynq.SkipRetry)
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		n, err := alerts.Notify(ctx, alert)
		if err != nil {
			if errors.Is(err, models.ErrParticipantNotFound) || errors.Is(err, models.ErrInvalidInput) {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		log.Debug().Str("notification_id", n.ID).Uint("message_id", alert.MessageID).Msg("message notification created")
		return nil
	}
}

var _ services.MessageNotifier = (*AsynqNotifier)(nil)
