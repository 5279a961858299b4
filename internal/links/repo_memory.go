package links

import (
	"context"
	"sync"

	"github.com/sundayezeilo/linkservice/internal/errx"
	"github.com/sundayezeilo/linkservice/internal/idgen"
)

// MemoryRepository keeps links in an ordered slice for the lifetime of the
// process. It is meant for tests and local development.
type MemoryRepository struct {
	mu    sync.RWMutex
	links []Link
	ids   idgen.Generator
}

// NewMemoryRepository returns a repository holding a copy of seed.
func NewMemoryRepository(seed []Link, config *RepositoryConfig) *MemoryRepository {
	cfg := config.withDefaults()

	links := make([]Link, len(seed))
	copy(links, seed)

	return &MemoryRepository{
		links: links,
		ids:   cfg.IDGenerator,
	}
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Link, error) {
	const op = "links.memory.Get"

	r.mu.RLock()
	defer r.mu.RUnlock()

	if link, ok := r.find(id); ok {
		return link, nil
	}
	return Link{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
}

// List returns links in insertion order.
func (r *MemoryRepository) List(_ context.Context) ([]Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Link, len(r.links))
	copy(out, r.links)
	return out, nil
}

func (r *MemoryRepository) Create(_ context.Context, title, url string) (Link, error) {
	const op = "links.memory.Create"

	if err := validateTitle(title); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	id, err := r.ids.Generate()
	if err != nil {
		return Link{}, errx.E(op, errx.Unavailable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.find(id); taken {
		return Link{}, errx.E(op, errx.Conflict, errDuplicateID(id))
	}

	link := Link{ID: id, Title: title, URL: url}
	r.links = append(r.links, link)
	return link, nil
}

func (r *MemoryRepository) Update(_ context.Context, id, title, url string) (Link, error) {
	const op = "links.memory.Update"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.find(id); !ok {
		return Link{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
	}

	updated := Link{ID: id, Title: title, URL: url}
	next := make([]Link, 0, len(r.links))
	for _, link := range r.links {
		if link.ID == id {
			link = updated
		}
		next = append(next, link)
	}
	r.links = next

	return updated, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]Link, 0, len(r.links))
	for _, link := range r.links {
		if link.ID != id {
			next = append(next, link)
		}
	}
	r.links = next
	return nil
}

// find must be called with r.mu held.
func (r *MemoryRepository) find(id string) (Link, bool) {
	for _, link := range r.links {
		if link.ID == id {
			return link, true
		}
	}
	return Link{}, false
}
