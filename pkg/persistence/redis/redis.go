// Package redis provides a Redis backed document store and execution ownership lock.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/relay/pkg/persistence"
	"github.com/goccy/go-json"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "relay:"

// Persistence stores each entity as a JSON string and keeps sets and sorted
// sets as secondary indexes.
type Persistence struct {
	client *backend.Client
	prefix string
	logger *slog.Logger
}

type Option func(*Persistence)

// WithPrefix sets the key prefix for every key written.
func WithPrefix(prefix string) Option {
	return func(p *Persistence) {
		p.prefix = prefix
	}
}

// NewPersistence connects to the Redis server at url (redis://...).
func NewPersistence(ctx context.Context, logger *slog.Logger, url string, opts ...Option) (*Persistence, error) {
	options, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	p := NewFromClient(logger, backend.NewClient(options), opts...)

	if err := p.HealthCheck(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

// NewFromClient creates a persistence layer from an existing client.
func NewFromClient(logger *slog.Logger, client *backend.Client, opts ...Option) *Persistence {
	p := &Persistence{
		client: client,
		prefix: defaultPrefix,
		logger: logger.With("module", "redis"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Client exposes the underlying client so the lock can share the connection.
func (p *Persistence) Client() *backend.Client {
	return p.client
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) ScenarioRepository() persistence.ScenarioRepository {
	return &ScenarioRepository{p: p}
}

func (p *Persistence) NodeRepository() persistence.NodeRepository {
	return &NodeRepository{p: p}
}

func (p *Persistence) AppRepository() persistence.AppRepository {
	return &AppRepository{p: p}
}

func (p *Persistence) ConnectionRepository() persistence.ConnectionRepository {
	return &ConnectionRepository{p: p}
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return &ExecutionRepository{p: p}
}

func (p *Persistence) CheckpointRepository() persistence.CheckpointRepository {
	return &CheckpointRepository{p: p}
}

func (p *Persistence) key(parts ...string) string {
	k := p.prefix
	for i, part := range parts {
		if i > 0 {
			k += ":"
		}

		k += part
	}

	return k
}

func getDocument[T any](ctx context.Context, p *Persistence, key string, notFound error) (*T, error) {
	data, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, notFound
		}

		return nil, err
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return &doc, nil
}

// getDocuments loads every key in order, silently dropping keys that vanished
// between reading the index and reading the documents.
func getDocuments[T any](ctx context.Context, p *Persistence, keys []string) ([]*T, error) {
	docs := make([]*T, 0, len(keys))
	if len(keys) == 0 {
		return docs, nil
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, value := range values {
		s, ok := value.(string)
		if !ok {
			p.logger.WarnContext(ctx, "Indexed document missing", "key", keys[i])

			continue
		}

		var doc T
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", keys[i], err)
		}

		docs = append(docs, &doc)
	}

	return docs, nil
}
