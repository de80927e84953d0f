// Package resultstore keeps run outcomes in MongoDB, one document per
// device per run.
package resultstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/andrej220/confaudit/internal/lg"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

const connectTimeout = 10 * time.Second

type collection interface {
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// Document is the stored form of an Outcome. Re-publishing a run replaces
// its documents instead of duplicating them.
type Document struct {
	ID       string     `bson:"_id"`
	RunID    string     `bson:"runId"`
	Mode     dm.Mode    `bson:"mode"`
	Seq      int        `bson:"seq"`
	Failed   bool       `bson:"failed"`
	StoredAt time.Time  `bson:"storedAt"`
	Outcome  dm.Outcome `bson:"outcome"`
}

func DocumentID(runID string, seq int, host string) string {
	return fmt.Sprintf("%s/%05d/%s", runID, seq, host)
}

type MongoStore struct {
	Client     *mongo.Client
	Collection collection
	lg         lg.Logger
}

func New(uri, dbName, collName string, logger lg.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	//  ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := newStore(client.Database(dbName).Collection(collName), logger)
	s.Client = client
	return s, nil
}

func newStore(c collection, logger lg.Logger) *MongoStore {
	if logger == nil {
		logger = lg.Discard
	}
	return &MongoStore{Collection: c, lg: logger}
}

func (m *MongoStore) Name() string { return "mongo" }

// Publish upserts one document per outcome and stops at the first failure.
func (m *MongoStore) Publish(ctx context.Context, runID string, mode dm.Mode, outcomes []dm.Outcome) error {
	now := time.Now().UTC()
	for i, o := range outcomes {
		doc := Document{
			ID:       DocumentID(runID, i, o.Host),
			RunID:    runID,
			Mode:     mode,
			Seq:      i,
			Failed:   o.Failed(mode),
			StoredAt: now,
			Outcome:  o,
		}
		_, err := m.Collection.ReplaceOne(ctx,
			bson.M{"_id": doc.ID},
			doc,
			options.Replace().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("MongoDB ReplaceOne failed for %s: %w", o.Host, err)
		}
	}
	m.lg.Debug("outcomes stored", lg.String("run_id", runID), lg.Int("documents", len(outcomes)))
	return nil
}

func (m *MongoStore) Close() error {
	if m.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return m.Client.Disconnect(ctx)
}
