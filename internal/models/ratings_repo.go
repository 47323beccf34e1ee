package models

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (mdb *MongodbRepo) GetSnapshot(ctx context.Context, businessID string) (*BusinessRatingSnapshot, error) {
	col, err := mdb.GetCollection(ctx, RatingsColName)
	if err != nil {
		return nil, err
	}

	var snap BusinessRatingSnapshot
	if err := col.FindOne(ctx, bson.M{"_id": businessID}).Decode(&snap); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, unavailable("find rating snapshot", err)
	}
	return &snap, nil
}

// UpsertSnapshot overwrites the whole snapshot; concurrent writers race and the last one wins.
func (mdb *MongodbRepo) UpsertSnapshot(ctx context.Context, snap *BusinessRatingSnapshot) error {
	col, err := mdb.GetCollection(ctx, RatingsColName)
	if err != nil {
		return err
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := col.ReplaceOne(ctx, bson.M{"_id": snap.BusinessID}, snap, opts); err != nil {
		return unavailable("upsert rating snapshot", err)
	}
	return nil
}
