package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoCollection = "cnw_nodelock_issuance"

// MongoOption configures a MongoRegistry.
type MongoOption func(*MongoRegistry)

// WithCollectionName sets the MongoDB collection name. Default: "cnw_nodelock_issuance".
func WithCollectionName(name string) MongoOption {
	return func(r *MongoRegistry) {
		r.collectionName = name
	}
}

// MongoRegistry implements Registry using MongoDB.
type MongoRegistry struct {
	collection     *mongo.Collection
	collectionName string
	client         *mongo.Client
}

// NewMongoRegistry creates a MongoDB-backed registry and its indexes. The
// caller keeps ownership of db.
func NewMongoRegistry(ctx context.Context, db *mongo.Database, opts ...MongoOption) (*MongoRegistry, error) {
	r := &MongoRegistry{
		collectionName: defaultMongoCollection,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !validIdentifier.MatchString(r.collectionName) {
		return nil, fmt.Errorf("invalid collection name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", r.collectionName)
	}
	r.collection = db.Collection(r.collectionName)

	if err := r.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return r, nil
}

func (r *MongoRegistry) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "license_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "fingerprint", Value: 1},
				{Key: "issued_at", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "valid_to", Value: 1}},
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *MongoRegistry) Register(ctx context.Context, rec Record) (*Record, error) {
	filter := bson.M{"license_id": rec.LicenseID}
	set := bson.M{
		"contact_id":   rec.ContactID,
		"fingerprint":  rec.Fingerprint,
		"issued_at":    rec.IssuedAt,
		"valid_from":   rec.ValidFrom,
		"valid_to":     rec.ValidTo,
		"holder":       rec.Holder,
		"organization": rec.Organization,
		"blob":         rec.Blob,
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"recorded_at": time.Now().UTC(),
		},
	}
	// ReturnDocument=After gives back the stored recorded_at for existing ids.
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var result Record
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result); err != nil {
		return nil, fmt.Errorf("register issuance: %w", err)
	}
	return &result, nil
}

func (r *MongoRegistry) Get(ctx context.Context, licenseID string) (*Record, error) {
	var rec Record
	err := r.collection.FindOne(ctx, bson.M{"license_id": licenseID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get issuance: %w", err)
	}
	return &rec, nil
}

func (r *MongoRegistry) ListByFingerprint(ctx context.Context, fingerprint string) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "issued_at", Value: 1}, {Key: "license_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"fingerprint": fingerprint}, opts)
	if err != nil {
		return nil, fmt.Errorf("list issuance: %w", err)
	}
	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode issuance: %w", err)
	}
	return records, nil
}

func (r *MongoRegistry) Count(ctx context.Context, fingerprint string) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"fingerprint": fingerprint})
	if err != nil {
		return 0, fmt.Errorf("count issuance: %w", err)
	}
	return int(count), nil
}

func (r *MongoRegistry) Delete(ctx context.Context, licenseID string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"license_id": licenseID}); err != nil {
		return fmt.Errorf("delete issuance: %w", err)
	}
	return nil
}

func (r *MongoRegistry) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"valid_to": bson.M{"$ne": nil, "$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("prune issuance: %w", err)
	}
	return int(result.DeletedCount), nil
}

// Close disconnects the client only when the registry opened it itself.
func (r *MongoRegistry) Close(ctx context.Context) error {
	if r.client != nil {
		return r.client.Disconnect(ctx)
	}
	return nil
}
