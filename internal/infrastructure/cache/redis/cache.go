package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talentsift/talentsift/internal/core/domain"
)

const defaultTTL = 24 * time.Hour

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Cache keeps pipeline outcomes hot for status polling. Entries expire, the
// relational store stays the source of truth.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func candidateKey(id string) string {
	return "pipeline:result:" + id
}

func runKey(id string) string {
	return "pipeline:run:" + id
}

func (c *Cache) SetCandidate(ctx context.Context, cand *domain.Candidate) error {
	return c.set(ctx, candidateKey(cand.ID), cand)
}

func (c *Cache) GetCandidate(ctx context.Context, id string) (*domain.Candidate, error) {
	var cand domain.Candidate
	if err := c.get(ctx, candidateKey(id), &cand); err != nil {
		return nil, err
	}
	return &cand, nil
}

func (c *Cache) SetRun(ctx context.Context, run *domain.PipelineRun) error {
	return c.set(ctx, runKey(run.ID), run)
}

func (c *Cache) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	if err := c.get(ctx, runKey(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Cache) set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "cache set", err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string, out any) error {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.WrapError(domain.ErrNotFound, "cache get", err)
	}
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "cache get", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return nil
}
