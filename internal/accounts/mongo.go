package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/echocoach/echo/internal/mongostore"
)

const usersCollection = "users"

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"password_hash"`
	Bio          string    `bson:"bio,omitempty"`
	Avatar       string    `bson:"avatar,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// MongoStore persists accounts in a MongoDB collection with a unique email index.
type MongoStore struct {
	conn *mongostore.Conn
	coll *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	conn, err := mongostore.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	coll := conn.Collection(usersCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("create users index: %w", err)
	}
	return &MongoStore{conn: conn, coll: coll}, nil
}

func (s *MongoStore) Create(ctx context.Context, user User) (User, error) {
	user = prepare(user, uuid.NewString, time.Now().UTC())
	if _, err := s.coll.InsertOne(ctx, toDoc(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *MongoStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, bson.M{"email": NormalizeEmail(email)})
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (User, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	patch.apply(&current)
	current.UpdatedAt = time.Now().UTC()

	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"name":       current.Name,
		"bio":        current.Bio,
		"avatar":     current.Avatar,
		"updated_at": current.UpdatedAt,
	}})
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return User{}, ErrNotFound
	}
	return current, nil
}

func (s *MongoStore) Mode() string { return "mongo" }

func (s *MongoStore) Close() error {
	return s.conn.Close(context.Background())
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return fromDoc(doc), nil
}

func toDoc(u User) userDoc {
	return userDoc{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Bio:          u.Bio,
		Avatar:       u.Avatar,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func fromDoc(d userDoc) User {
	return User{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		Bio:          d.Bio,
		Avatar:       d.Avatar,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}
