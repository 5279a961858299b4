package links

import (
	"context"
	"log/slog"

	"github.com/sundayezeilo/linkservice/internal/idgen"
)

// Repository is the storage contract for Link records. Implementations are
// interchangeable and chosen at construction time.
//
// Every error is an *errx.Error:
//   - errx.NotFound: no record with the id (Get, Update)
//   - errx.Invalid: title missing on Create
//   - errx.Conflict: the minted id is already taken
//   - errx.Unavailable: the backing store failed
//   - errx.Internal: a stored record could not be decoded
//
// Delete of an absent id is not an error. List of an empty store returns an
// empty, non-nil slice.
type Repository interface {
	Get(ctx context.Context, id string) (Link, error)
	List(ctx context.Context) ([]Link, error)
	Create(ctx context.Context, title, url string) (Link, error)
	// Update replaces title and url wholesale; empty values are stored as empty.
	Update(ctx context.Context, id, title, url string) (Link, error)
	Delete(ctx context.Context, id string) error
}

// RepositoryConfig holds options shared by every backend.
type RepositoryConfig struct {
	IDGenerator idgen.Generator
	Logger      *slog.Logger
}

func (c *RepositoryConfig) withDefaults() RepositoryConfig {
	var out RepositoryConfig
	if c != nil {
		out = *c
	}
	// UUID v7 keeps key-ordered stores in creation order.
	if out.IDGenerator == nil {
		out.IDGenerator = idgen.NewV7(idgen.WithRetries(1))
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}
