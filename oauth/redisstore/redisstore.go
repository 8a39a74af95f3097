// Package redisstore provides redis-backed implementations of the oauth
// store interfaces for deployments where multiple gateway instances must
// share clients, codes and tokens. Records are stored as JSON under a
// configurable key prefix; redis TTLs mirror record lifetimes so server
// side expiry needs no sweeping.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/mcp-gateway-go/oauth"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the redis store.
type Config struct {
	// Client is the redis client instance. Required.
	Client *redis.Client

	// KeyPrefix is the prefix for all redis keys. Default: "mcpgw:oauth:".
	KeyPrefix string

	// CodeTTL should match the service's authorization-code TTL. Default 10m.
	CodeTTL time.Duration

	// AccessTokenTTL should match the service's access-token TTL. Default 1h.
	// Refresh tokens are stored without TTL.
	AccessTokenTTL time.Duration
}

// Store implements oauth.ClientStore, oauth.CodeStore and oauth.TokenStore.
type Store struct {
	client         *redis.Client
	keyPrefix      string
	codeTTL        time.Duration
	accessTokenTTL time.Duration
}

var (
	_ oauth.ClientStore = (*Store)(nil)
	_ oauth.CodeStore   = (*Store)(nil)
	_ oauth.TokenStore  = (*Store)(nil)
)

// New creates a redis-backed store.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mcpgw:oauth:"
	}
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = oauth.DefaultCodeTTL
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = oauth.DefaultAccessTokenTTL
	}
	return &Store{
		client:         cfg.Client,
		keyPrefix:      cfg.KeyPrefix,
		codeTTL:        cfg.CodeTTL,
		accessTokenTTL: cfg.AccessTokenTTL,
	}, nil
}

func (s *Store) key(kind, id string) string {
	return s.keyPrefix + kind + ":" + id
}

func (s *Store) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return oauth.ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *Store) PutClient(ctx context.Context, c *oauth.Client) error {
	// Clients have no TTL; registration records live for the process's
	// deployment lifetime.
	return s.putJSON(ctx, s.key("client", c.ID), c, 0)
}

func (s *Store) GetClient(ctx context.Context, id string) (*oauth.Client, error) {
	var c oauth.Client
	if err := s.getJSON(ctx, s.key("client", id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) PutCode(ctx context.Context, c *oauth.AuthorizationCode) error {
	return s.putJSON(ctx, s.key("code", c.Code), c, s.codeTTL)
}

// ConsumeCode uses GETDEL so that exactly one concurrent caller succeeds.
func (s *Store) ConsumeCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	b, err := s.client.GetDel(ctx, s.key("code", code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oauth.ErrNotFound
		}
		return nil, fmt.Errorf("getdel code: %w", err)
	}
	var c oauth.AuthorizationCode
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal code: %w", err)
	}
	return &c, nil
}

func (s *Store) PutAccessToken(ctx context.Context, t *oauth.AccessToken) error {
	return s.putJSON(ctx, s.key("at", t.Token), t, s.accessTokenTTL)
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*oauth.AccessToken, error) {
	var t oauth.AccessToken
	if err := s.getJSON(ctx, s.key("at", token), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key("at", token)).Err(); err != nil {
		return fmt.Errorf("del access token: %w", err)
	}
	return nil
}

func (s *Store) PutRefreshToken(ctx context.Context, t *oauth.RefreshToken) error {
	return s.putJSON(ctx, s.key("rt", t.Token), t, 0)
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*oauth.RefreshToken, error) {
	var t oauth.RefreshToken
	if err := s.getJSON(ctx, s.key("rt", token), &t); err != nil {
		return nil, err
	}
	return &t, nil
}
