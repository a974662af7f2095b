package store

import (
	"context"
	"errors"

	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/render"
)

var (
	// ErrDuplicateID is returned when an issue id is already registered.
	ErrDuplicateID = errors.New("duplicate issue id")

	// ErrNotFound is returned when no issue has the requested id.
	ErrNotFound = errors.New("issue not found")
)

// Entry pairs a stored issue with its renderable handle.
type Entry struct {
	Issue  *models.Issue
	Handle render.Handle
}

// HandleFunc creates the renderable handle for an issue during bulk load.
type HandleFunc func(models.Issue) render.Handle

// Store is the feature registry: every issue known to the client, each
// paired with exactly one renderable handle.
type Store interface {
	// Add registers an issue with its handle. The id must be unique among
	// registered issues, else ErrDuplicateID.
	Add(ctx context.Context, issue *models.Issue, h render.Handle) error

	// Get returns the entry for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)

	// All returns a snapshot of entries in insertion order.
	All(ctx context.Context) ([]*Entry, error)

	// Count returns the number of registered issues.
	Count(ctx context.Context) (int, error)

	// BulkLoad registers a batch of raw features, creating a handle for
	// each via newHandle. Features with malformed geometry are skipped,
	// not fatal to the batch. Returns counts of loaded and skipped.
	BulkLoad(ctx context.Context, feats []models.Feature, newHandle HandleFunc) (loaded, skipped int, err error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
