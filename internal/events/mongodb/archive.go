package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type eventDocument struct {
	Id             bson.ObjectID `bson:"_id"`
	EventId        string        `bson:"eventId"`
	EventName      string        `bson:"eventName"`
	TenantId       string        `bson:"tenantId,omitempty"`
	ConversationId string        `bson:"conversationId,omitempty"`
	TargetRoom     string        `bson:"targetRoom"`
	CreatedAt      time.Time     `bson:"createdAt"`
	Payload        string        `bson:"payload"`
	DeliveredTo    []string      `bson:"deliveredTo"`
	FailedTo       []string      `bson:"failedTo"`
}

type Archive struct {
	collection       *mongo.Collection
	retentionSeconds int32
}

func NewArchive(client *mongo.Client, retention time.Duration) *Archive {
	database := client.Database("realtime")
	collection := database.Collection("events")

	return &Archive{
		collection:       collection,
		retentionSeconds: int32(retention / time.Second),
	}
}

func (a *Archive) Setup(ctx context.Context) error {
	ttlIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(a.retentionSeconds),
	}

	conversationIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "conversationId", Value: 1},
			{Key: "_id", Value: -1},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{ttlIndexModel, conversationIndexModel})

	return err
}

func (a *Archive) Save(ctx context.Context, record gateway.EventRecord) error {
	payloadJson, err := json.Marshal(record.Payload)
	if err != nil {
		return err
	}

	_, err = a.collection.InsertOne(ctx, eventDocument{
		Id:             bson.NewObjectID(),
		EventId:        record.EventId,
		EventName:      record.EventName,
		TenantId:       record.TenantId,
		ConversationId: record.ConversationId,
		TargetRoom:     record.TargetRoom,
		CreatedAt:      record.CreatedAt,
		Payload:        string(payloadJson),
		DeliveredTo:    record.DeliveredTo,
		FailedTo:       record.FailedTo,
	})

	return err
}

// List returns archived events for a conversation, newest first. When
// lastSeenId is set only events at or after it are returned, which is the
// reconnect catch-up path.
func (a *Archive) List(ctx context.Context, conversationId string, lastSeenId string) ([]gateway.EventRecord, error) {
	filter := bson.M{
		"conversationId": conversationId,
	}

	if lastSeenId != "" {
		lastSeenObjectId, err := bson.ObjectIDFromHex(lastSeenId)
		if err != nil {
			return nil, err
		}

		filter["_id"] = bson.M{"$gte": lastSeenObjectId}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(101)

	result, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var documents []eventDocument
	err = result.All(ctx, &documents)
	if err != nil {
		return nil, err
	}

	records := make([]gateway.EventRecord, len(documents))
	for i, document := range documents {
		var payload any
		err := json.Unmarshal([]byte(document.Payload), &payload)
		if err != nil {
			return nil, err
		}

		records[i] = gateway.EventRecord{
			EventId:        document.EventId,
			EventName:      document.EventName,
			TenantId:       document.TenantId,
			ConversationId: document.ConversationId,
			TargetRoom:     document.TargetRoom,
			CreatedAt:      document.CreatedAt,
			Payload:        payload,
			DeliveredTo:    document.DeliveredTo,
			FailedTo:       document.FailedTo,
		}
	}

	return records, nil
}
