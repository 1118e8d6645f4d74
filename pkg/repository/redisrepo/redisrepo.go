// Package redisrepo stores participants in a Redis hash keyed by ID.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/common/validation"
	"github.com/vnykmshr/goflux/pkg/repository"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
)

const (
	// DefaultKey is the hash holding participants.
	DefaultKey = "goflux:participants"

	// DefaultPageSize is the HSCAN COUNT hint used by FindAll.
	DefaultPageSize = 100
)

// Config configures a Store.
type Config struct {
	// Redis client used for every command.
	Redis redis.UniversalClient

	// Key is the hash holding the participants. Defaults to DefaultKey.
	Key string

	// PageSize bounds how many entries one HSCAN round trip asks for.
	PageSize int
}

// Store implements repository.Participants on Redis.
type Store struct {
	client   redis.UniversalClient
	key      string
	pageSize int64
}

// New creates a Store.
func New(cfg Config) (*Store, error) {
	if err := validation.ValidateNotNil("redisrepo", "Redis", cfg.Redis); err != nil {
		return nil, err
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if err := validation.ValidatePositive("redisrepo", "PageSize", cfg.PageSize); err != nil {
		return nil, err
	}
	return &Store{client: cfg.Redis, key: cfg.Key, pageSize: int64(cfg.PageSize)}, nil
}

func (s *Store) FindByID(id string) reactive.Single[repository.Participant] {
	return reactive.Deferred(func(ctx context.Context) (repository.Participant, bool, error) {
		raw, err := s.client.HGet(ctx, s.key, id).Result()
		if errors.Is(err, redis.Nil) {
			zerolog.Ctx(ctx).Debug().Str("id", id).Msg("participant not found")
			return repository.Participant{}, false, nil
		}
		if err != nil {
			return repository.Participant{}, false, gferrors.NewOperationError("redisrepo", "findById", err)
		}
		p, err := decode(raw)
		if err != nil {
			return repository.Participant{}, false, err
		}
		return p, true, nil
	})
}

// FindAll walks the hash with HSCAN, one page per exhausted buffer, so a
// slow consumer holds at most one page in memory.
func (s *Store) FindAll() reactive.Many[repository.Participant] {
	return reactive.FromCursor(func(context.Context) (reactive.Cursor[repository.Participant], error) {
		return &scanCursor{store: s}, nil
	})
}

func (s *Store) Save(p repository.Participant) reactive.Single[repository.Participant] {
	return reactive.Deferred(func(ctx context.Context) (repository.Participant, bool, error) {
		if err := repository.Validate(p); err != nil {
			return repository.Participant{}, false, err
		}
		data, err := json.Marshal(p)
		if err != nil {
			return repository.Participant{}, false, gferrors.NewOperationError("redisrepo", "save", err)
		}
		if err := s.client.HSet(ctx, s.key, p.ID, data).Err(); err != nil {
			return repository.Participant{}, false, gferrors.NewOperationError("redisrepo", "save", err).WithContext("id=" + p.ID)
		}
		return p, true, nil
	})
}

// Delete removes the participant with id. It is a plain blocking call; the
// reactive surface covers reads and writes of whole participants only.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.key, id).Err(); err != nil {
		return gferrors.NewOperationError("redisrepo", "delete", err)
	}
	return nil
}

// scanCursor pages through the hash with HSCAN. A field can be returned
// more than once while Redis rehashes, so emitted IDs are remembered.
type scanCursor struct {
	store  *Store
	cursor uint64
	page   []string
	done   bool
	seen   map[string]struct{}
}

func (c *scanCursor) Next(ctx context.Context) (repository.Participant, bool, error) {
	for {
		for len(c.page) < 2 {
			if c.done {
				return repository.Participant{}, false, nil
			}
			page, next, err := c.store.client.HScan(ctx, c.store.key, c.cursor, "", c.store.pageSize).Result()
			if err != nil {
				return repository.Participant{}, false, gferrors.NewOperationError("redisrepo", "findAll", err)
			}
			c.page, c.cursor, c.done = page, next, next == 0
		}

		id, raw := c.page[0], c.page[1]
		c.page = c.page[2:]
		if _, dup := c.seen[id]; dup {
			continue
		}
		if c.seen == nil {
			c.seen = make(map[string]struct{})
		}
		c.seen[id] = struct{}{}
		return c.emit(raw)
	}
}

func (c *scanCursor) emit(raw string) (repository.Participant, bool, error) {
	p, err := decode(raw)
	if err != nil {
		return repository.Participant{}, false, err
	}
	return p, true, nil
}

// Done reports that the scan finished and no fields are left on the page.
func (c *scanCursor) Done() bool { return c.done && len(c.page) < 2 }

func (c *scanCursor) Close() error {
	c.page = nil
	c.seen = nil
	return nil
}

func decode(raw string) (repository.Participant, error) {
	var p repository.Participant
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, gferrors.NewOperationError("redisrepo", "decode", err)
	}
	return p, nil
}

var _ repository.Participants = (*Store)(nil)
