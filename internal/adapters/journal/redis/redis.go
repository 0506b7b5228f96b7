// Package redis keeps the render journal in a capped Redis list and
// publishes every entry on a channel.
package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/ports"
)

type Store struct {
	rdb     *redis.Client
	key     string
	channel string
	keep    int
}

// Open connects using a redis:// URL.
func Open(ctx context.Context, url, key string, keep int) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "redis.Open", "invalid redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "redis.Open", "failed to ping Redis")
	}
	return New(rdb, key, keep), nil
}

func New(rdb *redis.Client, key string, keep int) *Store {
	return &Store{rdb: rdb, key: key, channel: key + ":events", keep: keep}
}

func (s *Store) Driver() string { return "redis" }

// Channel is where each appended entry is published as JSON.
func (s *Store) Channel() string { return s.channel }

func (s *Store) Append(ctx context.Context, e ports.JournalEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "redis.Append", "encode journal entry")
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, s.key, b)
	if s.keep > 0 {
		pipe.LTrim(ctx, s.key, 0, int64(s.keep-1))
	}
	pipe.Publish(ctx, s.channel, b)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "redis.Append", "write journal entry")
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]ports.JournalEntry, error) {
	raw, err := s.rdb.LRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "redis.Recent", "read journal")
	}

	out := make([]ports.JournalEntry, 0, len(raw))
	for _, r := range raw {
		var e ports.JournalEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Subscribe streams entries appended by any process sharing the key.
// The channel closes when ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan ports.JournalEntry {
	sub := s.rdb.Subscribe(ctx, s.channel)
	out := make(chan ports.JournalEntry)

	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var e ports.JournalEntry
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
