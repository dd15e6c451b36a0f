package reports

import (
	"context"
	"strings"

	"github.com/echocoach/echo/internal/mongostore"
)

// NewStore picks a backend from databaseURL: empty is in-memory, mongodb:// is MongoDB and
// anything else is handed to PostgreSQL.
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
