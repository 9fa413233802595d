// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Email: the lowercase address a user logs in with

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/normalize"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var (
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrInsufficientCredits is returned by DebitCredits when the balance is below the cost.
	ErrInsufficientCredits = errors.New("insufficient credits")
	errBadTier             = errors.New(`tier must be "free"|"pro"`)
	errNegativeAmount      = errors.New("credit amount must not be negative")
)

// GetByID loads a user by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail loads a user by email (normalized before lookup).
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Username = normalize.Name(u.Username)
	u.Email = normalize.Email(u.Email)

	if u.Tier == "" {
		u.Tier = models.TierFree
	}
	if !models.IsValidTier(u.Tier) {
		return models.User{}, errBadTier
	}
	if u.Credits < 0 {
		return models.User{}, errNegativeAmount
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// DebitCredits subtracts cost from the user's balance if the balance covers it.
//
// The user document is written even when cost is 0 so that two reservations
// for the same user inside transactions always conflict.
// Returns ErrInsufficientCredits if the balance is too low or the user is gone.
func (s *Store) DebitCredits(ctx context.Context, id primitive.ObjectID, cost int64) error {
	if cost < 0 {
		return errNegativeAmount
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "credits": bson.M{"$gte": cost}},
		bson.M{
			"$inc": bson.M{"credits": -cost},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrInsufficientCredits
	}
	return nil
}

// AddCredits adds amount to the user's balance. Used for refunds and grants.
func (s *Store) AddCredits(ctx context.Context, id primitive.ObjectID, amount int64) error {
	if amount < 0 {
		return errNegativeAmount
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"credits": amount},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SetPasswordHash replaces the user's bcrypt hash.
func (s *Store) SetPasswordHash(ctx context.Context, id primitive.ObjectID, hash string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"password_hash": hash, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// TouchTree bumps the user's tree version. Folder and file moves, creates,
// trashes and restores call it inside their transaction so that concurrent
// tree writers for one user always write the same document and conflict,
// and the retried writer sees the winner's changes.
func (s *Store) TouchTree(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"tree_version": int64(1)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
