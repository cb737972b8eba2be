// Package redis keeps artifacts as plain string values, one key per artifact.
package redis

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itchan-dev/imagehost/internal/domain"
	"github.com/itchan-dev/imagehost/internal/errors"
	"github.com/itchan-dev/imagehost/internal/service"
)

const (
	defaultURL    = "redis://localhost:6379"
	defaultPrefix = "imagehost"
)

type Storage struct {
	client *redis.Client
	prefix string
}

var _ service.ArtifactStore = (*Storage)(nil)

// New parses url, connects and pings the server. Artifacts are stored
// without expiry.
func New(url, prefix string) (*Storage, error) {
	if url == "" {
		url = defaultURL
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Storage{client: client, prefix: prefix}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Storage) key(k domain.ArtifactKey) string {
	return s.prefix + ":" + k.Path()
}

// Put buffers content and writes it with a single SET, which redis applies
// atomically.
func (s *Storage) Put(ctx context.Context, key domain.ArtifactKey, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("%w: read artifact content: %w", errors.ErrStorage, err)
	}
	if err := s.client.Set(ctx, s.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", errors.ErrStorage, key.Path(), err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key domain.ArtifactKey) (io.ReadCloser, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, key.Path())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", errors.ErrStorage, key.Path(), err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Storage) Delete(ctx context.Context, key domain.ArtifactKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %w", errors.ErrStorage, key.Path(), err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}
	return nil
}
