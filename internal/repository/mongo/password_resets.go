package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const resetsCollection = "password_reset_tokens"

type resetDoc struct {
	Token     string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	Used      bool      `bson:"used"`
}

// PasswordResetRepository keeps reset tokens in a TTL-indexed collection.
type PasswordResetRepository struct {
	coll  *mongo.Collection
	clock clock.Clock
}

var _ repository.PasswordResetRepository = (*PasswordResetRepository)(nil)

// NewPasswordResetRepository builds the repository; the server removes
// expired documents through the expires_at TTL index.
func NewPasswordResetRepository(ctx context.Context, db *mongo.Database, clk clock.Clock) (*PasswordResetRepository, error) {
	if clk == nil {
		clk = clock.Real()
	}
	coll := db.Collection(resetsCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, storeFailure("create reset indexes", err)
	}
	return &PasswordResetRepository{coll: coll, clock: clk}, nil
}

func (r *PasswordResetRepository) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	doc := resetDoc{Token: token.Token, UserID: token.UserID, ExpiresAt: token.ExpiresAt}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return storeFailure("insert reset token", err)
	}
	return nil
}

func (r *PasswordResetRepository) Consume(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	filter := bson.M{
		"_id":        token,
		"used":       false,
		"expires_at": bson.M{"$gt": r.clock.Now()},
	}
	var doc resetDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{"used": true}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NewNotFound("password reset token", nil)
		}
		return nil, storeFailure("consume reset token", err)
	}
	return &domain.PasswordResetToken{Token: doc.Token, UserID: doc.UserID, ExpiresAt: doc.ExpiresAt.UTC()}, nil
}
