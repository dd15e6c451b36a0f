// Package mongostore opens the MongoDB database shared by the report and account stores.
package mongostore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultDatabase = "echo"
	connectTimeout  = 10 * time.Second
)

// IsMongoURL reports whether databaseURL names a MongoDB deployment.
func IsMongoURL(databaseURL string) bool {
	u := strings.ToLower(strings.TrimSpace(databaseURL))
	return strings.HasPrefix(u, "mongodb://") || strings.HasPrefix(u, "mongodb+srv://")
}

// DatabaseName takes the database from the URI path, falling back to DefaultDatabase.
func DatabaseName(uri string) string {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return DefaultDatabase
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return DefaultDatabase
	}
	return name
}

// Conn is a connected client bound to one database.
type Conn struct {
	client *mongo.Client
	db     *mongo.Database
}

func Connect(ctx context.Context, uri string) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Conn{client: client, db: client.Database(DatabaseName(uri))}, nil
}

func (c *Conn) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

func (c *Conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
