package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/anonto42/bazaar/backend/internal/identity"
	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/anonto42/bazaar/backend/internal/repositories"
	"github.com/anonto42/bazaar/backend/internal/services"
	"github.com/anonto42/bazaar/backend/internal/testutil"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: DefaultQueue, Type: task.Type()}, nil
}

func TestNewMessageNotificationTask(t *testing.T) {
	alert := services.MessageAlert{ConversationID: 3, MessageID: 17, BuyerID: 1, VendorID: 2, SenderRole: models.RoleBuyer, SenderID: 1, Preview: "hi"}

	task, opts, err := NewMessageNotificationTask(alert)
	require.NoError(t, err)
	assert.Equal(t, TypeMessageNotification, task.Type())

	var decoded services.MessageAlert
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, alert, decoded)

	var taskID, queueName string
	for _, o := range opts {
		switch o.Type() {
		case asynq.TaskIDOpt:
			taskID = o.Value().(string)
		case asynq.QueueOpt:
			queueName = o.Value().(string)
		}
	}
	assert.Equal(t, "chat-msg-17", taskID)
	assert.Equal(t, DefaultQueue, queueName)
}

func TestAsynqNotifierEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	n := NewAsynqNotifier(enq)

	n.MessageAppended(context.Background(), &models.Conversation{ID: 1, BuyerID: 1, VendorID: 2}, &models.Message{ID: 5, ConversationID: 1, SenderRole: models.RoleVendor, SenderID: 2, Content: "shipped"})
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeMessageNotification, enq.tasks[0].Type())
}

func TestAsynqNotifierSwallowsErrors(t *testing.T) {
	for _, err := range []error{asynq.ErrTaskIDConflict, errors.New("redis down")} {
		n := NewAsynqNotifier(&fakeEnqueuer{err: err})
		assert.NotPanics(t, func() {
			n.MessageAppended(context.Background(), &models.Conversation{ID: 1}, &models.Message{ID: 1})
		})
	}
}

func newAlerts(t *testing.T) (*services.MessageAlerts, *services.NotificationService, *models.User, *models.Vendor) {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "alice")
	owner := testutil.CreateUser(t, db, "bob")
	shop := testutil.CreateVendor(t, db, owner.ID, "Bob's Bakery")
	notifications := services.NewNotificationService(repositories.NewPostgresNotificationRepository(db), 0)
	directory := identity.NewDirectory(repositories.NewPostgresUserRepository(db), nil)
	return services.NewMessageAlerts(notifications, directory), notifications, owner, shop
}

func TestHandleMessageNotification(t *testing.T) {
	alerts, notifications, owner, shop := newAlerts(t)
	handler := HandleMessageNotification(alerts)

	payload, err := json.Marshal(services.MessageAlert{ConversationID: 1, MessageID: 2, BuyerID: 1, VendorID: shop.ID, SenderRole: models.RoleBuyer, SenderID: 1, Preview: "hello"})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), asynq.NewTask(TypeMessageNotification, payload)))

	count, err := notifications.UnreadCount(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestHandleMessageNotificationSkipsRetryForPermanentFailures(t *testing.T) {
	alerts, _, _, _ := newAlerts(t)
	handler := HandleMessageNotification(alerts)

	err := handler(context.Background(), asynq.NewTask(TypeMessageNotification, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(services.MessageAlert{ConversationID: 1, MessageID: 2, BuyerID: 1, VendorID: 999, SenderRole: models.RoleBuyer, SenderID: 1})
	err = handler(context.Background(), asynq.NewTask(TypeMessageNotification, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestParseRedisURL(t *testing.T) {
	opt, err := ParseRedisURL("redis://localhost:6379/2")
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "localhost:6379", client.Addr)
	assert.Equal(t, 2, client.DB)

	_, err = ParseRedisURL("http://example.com")
	assert.Error(t, err)
}
