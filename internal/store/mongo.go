package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
)

// MongoConfig locates the auctions collection.
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// MongoStore keeps one document per auction, keyed by auction id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB, retrying the initial ping with
// exponential backoff until ConnectTimeout elapses.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = "auctions"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = cfg.ConnectTimeout
	ping := func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pctx, nil)
	}
	notify := func(err error, wait time.Duration) {
		log.Warnw("mongo ping failed, retrying", "err", err, "wait", wait)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(eb, ctx), notify); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Infow("mongo store connected", "database", cfg.Database, "collection", cfg.Collection)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "startTime", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Load returns the record for id.
func (s *MongoStore) Load(ctx context.Context, id string) (auction.Auction, error) {
	var a auction.Auction
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return auction.Auction{}, auction.ErrNotFound
	}
	if err != nil {
		return auction.Auction{}, fmt.Errorf("find auction %s: %w", id, err)
	}
	if a.Bids == nil {
		a.Bids = []auction.Bid{}
	}
	return a, nil
}

// Save replaces the record if the stored version is a.Version-1.
func (s *MongoStore) Save(ctx context.Context, a auction.Auction) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": a.ID, "version": a.Version - 1}, a)
	if err != nil {
		return fmt.Errorf("replace auction %s: %w", a.ID, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": a.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return auction.ErrNotFound
	}
	return fmt.Errorf("%w: saving %d", ErrVersionConflict, a.Version)
}

// ListActive returns scheduled and active records ordered by start time.
func (s *MongoStore) ListActive(ctx context.Context) ([]auction.Auction, error) {
	filter := bson.M{"status": bson.M{"$in": []auction.Status{auction.StatusScheduled, auction.StatusActive}}}
	opts := options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, filter, opts)
}

// List returns every record, newest first.
func (s *MongoStore) List(ctx context.Context) ([]auction.Auction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	return s.find(ctx, bson.M{}, opts)
}

// Create inserts a new record.
func (s *MongoStore) Create(ctx context.Context, a auction.Auction) error {
	if _, err := s.coll.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrExists, a.ID)
		}
		return fmt.Errorf("insert auction %s: %w", a.ID, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter any, opts *options.FindOptions) ([]auction.Auction, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find auctions: %w", err)
	}
	defer cursor.Close(ctx)

	out := []auction.Auction{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode auctions: %w", err)
	}
	for i := range out {
		if out[i].Bids == nil {
			out[i].Bids = []auction.Bid{}
		}
	}
	return out, nil
}
