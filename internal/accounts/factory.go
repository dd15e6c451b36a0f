package accounts

import (
	"context"
	"strings"

	"github.com/echocoach/echo/internal/mongostore"
)

// NewStore picks a backend from databaseURL the same way the report store does.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.TrimSpace(databaseURL) == "":
		return NewInMemoryStore(), nil
	case mongostore.IsMongoURL(databaseURL):
		return NewMongoStore(ctx, databaseURL)
	default:
		return NewPostgresStore(ctx, databaseURL)
	}
}
