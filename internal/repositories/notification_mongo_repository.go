package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationsCollection is the MongoDB collection holding notifications.
const NotificationsCollection = "notifications"

// MongoNotificationRepository implements NotificationRepository for MongoDB
type MongoNotificationRepository struct {
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a new MongoNotificationRepository
func NewMongoNotificationRepository(db *mongo.Database) *MongoNotificationRepository {
	return &MongoNotificationRepository{collection: db.Collection(NotificationsCollection)}
}

// EnsureIndexes creates the indexes the read paths rely on.
func (r *MongoNotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return classify(err)
}

func (r *MongoNotificationRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, notification)
	return classify(err)
}

func (r *MongoNotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotificationNotFound
		}
		return nil, classify(err)
	}
	return &n, nil
}

func (r *MongoNotificationRepository) GetByRecipientID(ctx context.Context, userID uint, page, limit int) ([]models.Notification, int64, error) {
	filter := bson.M{"user_id": userID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	notifications, err := r.find(ctx, filter, opts)
	return notifications, total, err
}

func (r *MongoNotificationRepository) GetUnread(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	return r.find(ctx, bson.M{"user_id": userID, "is_read": false}, opts)
}

func (r *MongoNotificationRepository) GetGrouped(ctx context.Context, userID uint, now time.Time) (*models.GroupedNotifications, error) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	newestFirst := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	grouped := &models.GroupedNotifications{}
	var err error

	if grouped.Today, err = r.find(ctx, bson.M{"user_id": userID, "created_at": bson.M{"$gte": todayStart}}, newestFirst); err != nil {
		return nil, err
	}
	if grouped.Yesterday, err = r.find(ctx, bson.M{"user_id": userID, "created_at": bson.M{"$gte": yesterdayStart, "$lt": todayStart}}, newestFirst); err != nil {
		return nil, err
	}
	if grouped.ThisWeek, err = r.find(ctx, bson.M{"user_id": userID, "created_at": bson.M{"$gte": weekStart, "$lt": yesterdayStart}}, newestFirst); err != nil {
		return nil, err
	}
	olderOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(50)
	if grouped.Older, err = r.find(ctx, bson.M{"user_id": userID, "created_at": bson.M{"$lt": weekStart}}, olderOpts); err != nil {
		return nil, err
	}
	return grouped, nil
}

func (r *MongoNotificationRepository) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID, "is_read": false})
	return count, classify(err)
}

func (r *MongoNotificationRepository) MarkAsRead(ctx context.Context, id string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	_, err = r.GetByID(ctx, id)
	return err
}

func (r *MongoNotificationRepository) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, classify(err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoNotificationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Notification, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, classify(err)
	}
	return notifications, nil
}

var _ NotificationRepository = (*MongoNotificationRepository)(nil)
