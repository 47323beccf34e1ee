package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	SubmissionsColName = "review_submissions"
	RatingsColName     = "business_ratings"
)

// EnsureIndexes creates the indexes the pipeline queries rely on.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context) error {
	col, err := mdb.GetCollection(ctx, SubmissionsColName)
	if err != nil {
		return err
	}

	indexes := []mongo.IndexModel{
		// token lookups during redemption; sparse because redeemed docs drop the field
		{
			Keys: bson.D{{Key: "verification.token", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetSparse(true).
				SetName("verification_token_unique"),
		},
		{
			Keys: bson.D{
				{Key: "business_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("business_created_at_idx"),
		},
		{
			Keys: bson.D{
				{Key: "source_ip", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("ip_created_at_idx"),
		},
		{
			Keys: bson.D{
				{Key: "business_id", Value: 1},
				{Key: "state", Value: 1},
			},
			Options: options.Index().SetName("business_state_idx"),
		},
		{
			Keys: bson.D{
				{Key: "state", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("state_created_at_idx"),
		},
	}

	if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("error creating indexes: %v", err)
	}
	return nil
}

func (mdb *MongodbRepo) CreateSubmission(ctx context.Context, s *Submission) error {
	col, err := mdb.GetCollection(ctx, SubmissionsColName)
	if err != nil {
		return err
	}
	if _, err := col.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: submission %s already exists", ErrConflict, s.ID)
		}
		return unavailable("insert submission", err)
	}
	return nil
}

func (mdb *MongodbRepo) findOne(ctx context.Context, filter bson.M) (*Submission, error) {
	col, err := mdb.GetCollection(ctx, SubmissionsColName)
	if err != nil {
		return nil, err
	}
	var s Submission
	if err := col.FindOne(ctx, filter).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, unavailable("find submission", err)
	}
	return &s, nil
}

func (mdb *MongodbRepo) FindSubmissionByID(ctx context.Context, id string) (*Submission, error) {
	return mdb.findOne(ctx, bson.M{"_id": id})
}

func (mdb *MongodbRepo) FindSubmissionByToken(ctx context.Context, token string) (*Submission, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return mdb.findOne(ctx, bson.M{"verification.token": token})
}

func (mdb *MongodbRepo) FindRecentByFingerprint(ctx context.Context, q FingerprintQuery) ([]*Submission, error) {
	col, err := mdb.GetCollection(ctx, SubmissionsColName)
	if err != nil {
		return nil, err
	}

	var or bson.A
	if q.Email != "" {
		or = append(or, bson.M{"reviewer_email": q.Email})
	}
	if q.IP != "" {
		or = append(or, bson.M{"source_ip": q.IP})
	}
	if q.DeviceKey != "" {
		or = append(or, bson.M{"device_key": q.DeviceKey})
	}
	if len(or) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"business_id": q.BusinessID,
		"created_at":  bson.M{"$gte": q.Since},
		"$or":         or,
	}
	if len(q.States) > 0 {
		filter["state"] = bson.M{"$in": q.States}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable("find recent submissions", err)
	}
	defer cursor.Close(ctx)

	var out []*Submission
	if err := cursor.All(ctx, &out); err != nil {
		return nil, unavailable("decode recent submissions", err)
	}
	return out, nil
}

func (mdb *MongodbRepo) CountByIP(ctx context.Context, ip string, since time.Time) (int64, error) {
	col, err := mdb.GetCollection(ctx, SubmissionsColName)
	if err != nil {
		return 0, err
	}
	n, err := col.CountDocuments(ctx, bson.M{
		"source_ip":  ip,
		"created_at": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, unavailable("count submissions by ip", err)
	}
	return n, nil
}

func (mdb *MongodbRepo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*Submission, error) {
	col, err := mdb.GetCollection(ctx, SubmissionsColName)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var s Submission
	if err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConflict
		}
		return nil, unavailable("update submission", err)
	}
	return &s, nil
}

func (mdb *MongodbRepo) UpdateState(ctx context.Context, id string, from []SubmissionState, to SubmissionState, now time.Time) (*Submission, error) {
	filter := bson.M{
		"_id":   id,
		"state": bson.M{"$in": from},
	}
	update := bson.M{
		"$set": bson.M{
			"state":      to,
			"updated_at": now,
		},
		"$unset": bson.M{
			"verification.token":      "",
			"verification.expires_at": "",
		},
	}
	return mdb.findOneAndUpdate(ctx, filter, update)
}

func (mdb *MongodbRepo) UpdateVerification(ctx context.Context, id string, token string, expiresAt time.Time, now time.Time) (*Submission, error) {
	filter := bson.M{
		"_id":                   id,
		"state":                 StatePending,
		"verification.verified": false,
		"spam.is_spam":          false,
	}
	update := bson.M{
		"$set": bson.M{
			"verification.token":      token,
			"verification.expires_at": expiresAt,
			"updated_at":              now,
		},
	}
	return mdb.findOneAndUpdate(ctx, filter, update)
}

// RedeemToken is a single conditional update so concurrent redemptions of the
// same token produce exactly one winner.
func (mdb *MongodbRepo) RedeemToken(ctx context.Context, token string, now time.Time) (*Submission, error) {
	if token == "" {
		return nil, ErrConflict
	}
	filter := bson.M{
		"verification.token":      token,
		"verification.verified":   false,
		"verification.expires_at": bson.M{"$gt": now},
		"state":                   StatePending,
		"spam.is_spam":            false,
	}
	update := bson.M{
		"$set": bson.M{
			"verification.verified":    true,
			"verification.verified_at": now,
			"state":                    StatePublished,
			"updated_at":               now,
		},
		"$unset": bson.M{
			"verification.token":      "",
			"verification.expires_at": "",
		},
	}
	return mdb.findOneAndUpdate(ctx, filter, update)
}

func (mdb *MongodbRepo) ReleaseFlagged(ctx context.Context, id string, token string, expiresAt time.Time, now time.Time) (*Submission, error) {
	filter := bson.M{
		"_id":   id,
		"state": StateFlagged,
	}
	update := bson.M{
		"$set": bson.M{
			"state":                   StatePending,
			"spam.is_spam":            false,
			"verification.token":      token,
			"verification.expires_at": expiresAt,
			"updated_at":              now,
		},
	}
	return mdb.findOneAndUpdate(ctx, filter, update)
}

func (mdb *MongodbRepo) ListByState(ctx context.Context, state SubmissionState, limit int) ([]*Submission, error) {
	col, err := mdb.GetCollection(ctx, SubmissionsColName)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := col.Find(ctx, bson.M{"state": state}, opts)
	if err != nil {
		return nil, unavailable("list submissions", err)
	}
	defer cursor.Close(ctx)

	var out []*Submission
	if err := cursor.All(ctx, &out); err != nil {
		return nil, unavailable("decode submissions", err)
	}
	return out, nil
}

func (mdb *MongodbRepo) SumPublishedRatings(ctx context.Context, businessID string) (RatingTotals, error) {
	col, err := mdb.GetCollection(ctx, SubmissionsColName)
	if err != nil {
		return RatingTotals{}, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"business_id": businessID,
			"state":       StatePublished,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"sum":   bson.M{"$sum": "$rating"},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return RatingTotals{}, unavailable("aggregate ratings", err)
	}
	defer cursor.Close(ctx)

	var rows []RatingTotals
	if err := cursor.All(ctx, &rows); err != nil {
		return RatingTotals{}, unavailable("decode rating totals", err)
	}
	if len(rows) == 0 {
		return RatingTotals{}, nil
	}
	return rows[0], nil
}
