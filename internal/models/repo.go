package models

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/supabase-community/supabase-go"
	"go.mongodb.org/mongo-driver/mongo"
)

var Validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional update matched no document.
	ErrConflict         = errors.New("conditional update did not match")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// FingerprintQuery selects submissions for one business created at or after Since
// whose email, source IP or device key match. Empty identity fields are ignored.
type FingerprintQuery struct {
	BusinessID string
	Email      string
	IP         string
	DeviceKey  string
	Since      time.Time
	States     []SubmissionState
}

type SubmissionStore interface {
	CreateSubmission(ctx context.Context, s *Submission) error
	FindSubmissionByID(ctx context.Context, id string) (*Submission, error)
	FindSubmissionByToken(ctx context.Context, token string) (*Submission, error)
	FindRecentByFingerprint(ctx context.Context, q FingerprintQuery) ([]*Submission, error)
	CountByIP(ctx context.Context, ip string, since time.Time) (int64, error)
	// UpdateState moves a submission to `to` only if its current state is one of `from`.
	UpdateState(ctx context.Context, id string, from []SubmissionState, to SubmissionState, now time.Time) (*Submission, error)
	// UpdateVerification replaces the token of a pending, unverified, non-spam submission.
	UpdateVerification(ctx context.Context, id string, token string, expiresAt time.Time, now time.Time) (*Submission, error)
	// RedeemToken atomically consumes a live token and publishes its submission.
	RedeemToken(ctx context.Context, token string, now time.Time) (*Submission, error)
	// ReleaseFlagged returns a flagged submission to pending with a fresh token.
	ReleaseFlagged(ctx context.Context, id string, token string, expiresAt time.Time, now time.Time) (*Submission, error)
	ListByState(ctx context.Context, state SubmissionState, limit int) ([]*Submission, error)
	SumPublishedRatings(ctx context.Context, businessID string) (RatingTotals, error)
}

type RatingSnapshotStore interface {
	// GetSnapshot returns nil without error when no snapshot exists yet.
	GetSnapshot(ctx context.Context, businessID string) (*BusinessRatingSnapshot, error)
	UpsertSnapshot(ctx context.Context, snap *BusinessRatingSnapshot) error
}

type BusinessDirectory interface {
	GetBusiness(ctx context.Context, id string) (*Business, error)
}

type SupabaseRepo struct {
	supabaseClient *supabase.Client
}

func SupabaseNewRepo(supabaseClient *supabase.Client) *SupabaseRepo {
	return &SupabaseRepo{
		supabaseClient: supabaseClient,
	}
}

type MongodbRepo struct {
	mongodbClient *mongo.Client
	dbName        string
}

func MongodbNewRepo(mongodbClient *mongo.Client, dbName string) *MongodbRepo {
	return &MongodbRepo{
		mongodbClient: mongodbClient,
		dbName:        dbName,
	}
}

func (mdb *MongodbRepo) GetCollection(ctx context.Context, colName string) (*mongo.Collection, error) {
	if mdb.mongodbClient == nil {
		return nil, fmt.Errorf("%w: mongodb client is not initialized", ErrStoreUnavailable)
	}
	return mdb.mongodbClient.Database(mdb.dbName).Collection(colName), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
