package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/parleyhq/parley/types"
)

// MongoTranscriptStore persists transcripts as one document per message
// in a mongo collection. It is an alternative transcript backend for
// deployments that keep conversational history out of the relational
// store.
type MongoTranscriptStore struct {
	coll *mongo.Collection
}

type mongoMessage struct {
	ConversationID string `bson:"conversation_id"`
	Seq            int64  `bson:"seq"`
	Role           string `bson:"role"`
	Content        string `bson:"content"`
	Speaker        string `bson:"speaker,omitempty"`
	AgentID        string `bson:"agent_id,omitempty"`
	Timestamp      int64  `bson:"timestamp"`
}

func (d mongoMessage) toMessage() types.Message {
	return types.Message{
		Role:      types.Role(d.Role),
		Content:   d.Content,
		Speaker:   d.Speaker,
		AgentID:   d.AgentID,
		Timestamp: d.Timestamp,
	}
}

// NewMongoTranscriptStore wraps a collection and ensures the ordering
// index exists.
func NewMongoTranscriptStore(ctx context.Context, coll *mongo.Collection) (*MongoTranscriptStore, error) {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("ensure transcript index: %w", err)
	}
	return &MongoTranscriptStore{coll: coll}, nil
}

// AppendMessage appends one transcript entry. Seq comes from a counting
// query; mongo writes to one conversation are expected to be serialized
// by the single executor that owns the run.
func (m *MongoTranscriptStore) AppendMessage(ctx context.Context, conversationID string, msg types.Message) error {
	count, err := m.coll.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return fmt.Errorf("count transcript: %w", err)
	}
	doc := mongoMessage{
		ConversationID: conversationID,
		Seq:            count + 1,
		Role:           string(msg.Role),
		Content:        msg.Content,
		Speaker:        msg.Speaker,
		AgentID:        msg.AgentID,
		Timestamp:      msg.Timestamp,
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// LoadTranscript returns the full transcript in append order.
func (m *MongoTranscriptStore) LoadTranscript(ctx context.Context, conversationID string) ([]types.Message, error) {
	cur, err := m.coll.Find(ctx, bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer cur.Close(ctx)

	var msgs []types.Message
	for cur.Next(ctx) {
		var doc mongoMessage
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, doc.toMessage())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return msgs, nil
}
