package links

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/sundayezeilo/linkservice/internal/errx"
	"github.com/sundayezeilo/linkservice/internal/idgen"
)

var boltBucketLinks = []byte("links") // key: id -> Link JSON

var (
	errBoltIDTaken = errors.New("id taken")
	errBoltMissing = errors.New("missing")
)

// BoltRepository persists links in a single bbolt file. Keys are link ids, so
// List returns links in id order, which is creation order for UUID v7 ids.
type BoltRepository struct {
	db     *bbolt.DB
	ids    idgen.Generator
	logger *slog.Logger
}

// OpenBoltRepository opens (or creates) the database at path.
func OpenBoltRepository(path string, config *RepositoryConfig) (*BoltRepository, error) {
	cfg := config.withDefaults()

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucketLinks)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltRepository{db: db, ids: cfg.IDGenerator, logger: cfg.Logger}, nil
}

// Close releases the database file.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func (r *BoltRepository) Get(ctx context.Context, id string) (Link, error) {
	const op = "links.bolt.Get"

	var raw []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		// Bytes returned by Get are only valid inside the transaction.
		if v := tx.Bucket(boltBucketLinks).Get([]byte(id)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Link{}, r.unavailable(ctx, op, id, err)
	}
	if raw == nil {
		return Link{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
	}
	return decodeBoltLink(op, raw)
}

func (r *BoltRepository) List(ctx context.Context) ([]Link, error) {
	const op = "links.bolt.List"

	links := make([]Link, 0)
	var decodeErr error
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucketLinks).ForEach(func(_, v []byte) error {
			var link Link
			if err := json.Unmarshal(v, &link); err != nil {
				decodeErr = err
				return err
			}
			links = append(links, link)
			return nil
		})
	})
	if decodeErr != nil {
		return nil, errx.E(op, errx.Internal, decodeErr)
	}
	if err != nil {
		return nil, r.unavailable(ctx, op, "", err)
	}
	return links, nil
}

func (r *BoltRepository) Create(ctx context.Context, title, url string) (Link, error) {
	const op = "links.bolt.Create"

	if err := validateTitle(title); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	id, err := r.ids.Generate()
	if err != nil {
		return Link{}, r.unavailable(ctx, op, "", err)
	}

	link := Link{ID: id, Title: title, URL: url}
	err = r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucketLinks)
		if b.Get([]byte(id)) != nil {
			return errBoltIDTaken
		}
		return putBoltLink(b, link)
	})
	switch {
	case errors.Is(err, errBoltIDTaken):
		return Link{}, errx.E(op, errx.Conflict, errDuplicateID(id))
	case err != nil:
		return Link{}, r.unavailable(ctx, op, id, err)
	}
	return link, nil
}

func (r *BoltRepository) Update(ctx context.Context, id, title, url string) (Link, error) {
	const op = "links.bolt.Update"

	link := Link{ID: id, Title: title, URL: url}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucketLinks)
		if b.Get([]byte(id)) == nil {
			return errBoltMissing
		}
		return putBoltLink(b, link)
	})
	switch {
	case errors.Is(err, errBoltMissing):
		return Link{}, errx.E(op, errx.NotFound, ErrLinkNotFound)
	case err != nil:
		return Link{}, r.unavailable(ctx, op, id, err)
	}
	return link, nil
}

func (r *BoltRepository) Delete(ctx context.Context, id string) error {
	const op = "links.bolt.Delete"

	// bbolt rejects empty keys on Delete; an empty id is never stored.
	if id == "" {
		return nil
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucketLinks).Delete([]byte(id))
	})
	if err != nil {
		return r.unavailable(ctx, op, id, err)
	}
	return nil
}

// unavailable logs a failed bbolt transaction and wraps it.
func (r *BoltRepository) unavailable(ctx context.Context, op, id string, err error) error {
	r.logger.ErrorContext(ctx, "bolt transaction failed",
		"op", op,
		"path", r.db.Path(),
		"id", id,
		"error", err.Error(),
	)
	return errx.E(op, errx.Unavailable, err)
}

func putBoltLink(b *bbolt.Bucket, link Link) error {
	raw, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return b.Put([]byte(link.ID), raw)
}

func decodeBoltLink(op string, raw []byte) (Link, error) {
	var link Link
	if err := json.Unmarshal(raw, &link); err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return link, nil
}
