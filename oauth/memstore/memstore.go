// Package memstore provides the in-memory implementation of the oauth
// store interfaces. Each entity map is guarded by a single RWMutex; every
// mutation is one atomic map operation under the write lock, which is the
// concurrency contract the service relies on (notably ConsumeCode).
//
// A background sweep removes expired codes and access tokens so that
// records abandoned by clients do not accumulate between lazy-expiry
// lookups.
package memstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/mcp-gateway-go/oauth"
)

const defaultSweepInterval = 5 * time.Minute

// Store implements oauth.ClientStore, oauth.CodeStore and oauth.TokenStore.
type Store struct {
	mu            sync.RWMutex
	clients       map[string]*oauth.Client
	codes         map[string]*oauth.AuthorizationCode
	accessTokens  map[string]*oauth.AccessToken
	refreshTokens map[string]*oauth.RefreshToken

	log           *slog.Logger
	now           func() time.Time
	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

var (
	_ oauth.ClientStore = (*Store)(nil)
	_ oauth.CodeStore   = (*Store)(nil)
	_ oauth.TokenStore  = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the sweep logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithClock overrides the time source used by the sweeper.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSweepInterval overrides the background cleanup cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// New creates a Store and starts its background sweep. Call Stop to release
// the sweeper.
func New(opts ...Option) *Store {
	s := &Store{
		clients:       make(map[string]*oauth.Client),
		codes:         make(map[string]*oauth.AuthorizationCode),
		accessTokens:  make(map[string]*oauth.AccessToken),
		refreshTokens: make(map[string]*oauth.RefreshToken),
		log:           slog.Default(),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop()
	return s
}

// Stop terminates the background sweep.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopSweep) })
}

func (s *Store) PutClient(ctx context.Context, c *oauth.Client) error {
	cc := *c
	s.mu.Lock()
	s.clients[cc.ID] = &cc
	s.mu.Unlock()
	return nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*oauth.Client, error) {
	s.mu.RLock()
	c, ok := s.clients[id]
	s.mu.RUnlock()
	if !ok {
		return nil, oauth.ErrNotFound
	}
	cc := *c
	return &cc, nil
}

func (s *Store) PutCode(ctx context.Context, c *oauth.AuthorizationCode) error {
	cc := *c
	s.mu.Lock()
	s.codes[cc.Code] = &cc
	s.mu.Unlock()
	return nil
}

// ConsumeCode is the atomic get-and-delete backing single-use codes: only
// one concurrent caller observes the record.
func (s *Store) ConsumeCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	delete(s.codes, code)
	cc := *c
	return &cc, nil
}

func (s *Store) PutAccessToken(ctx context.Context, t *oauth.AccessToken) error {
	tt := *t
	s.mu.Lock()
	s.accessTokens[tt.Token] = &tt
	s.mu.Unlock()
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*oauth.AccessToken, error) {
	s.mu.RLock()
	t, ok := s.accessTokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, oauth.ErrNotFound
	}
	tt := *t
	return &tt, nil
}

func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.accessTokens, token)
	s.mu.Unlock()
	return nil
}

func (s *Store) PutRefreshToken(ctx context.Context, t *oauth.RefreshToken) error {
	tt := *t
	s.mu.Lock()
	s.refreshTokens[tt.Token] = &tt
	s.mu.Unlock()
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*oauth.RefreshToken, error) {
	s.mu.RLock()
	t, ok := s.refreshTokens[token]
	s.mu.RUnlock()
	if !ok {
		return nil, oauth.ErrNotFound
	}
	tt := *t
	return &tt, nil
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now()
	cleaned := 0

	s.mu.Lock()
	for code, c := range s.codes {
		if c.Expired(now) {
			delete(s.codes, code)
			cleaned++
		}
	}
	for tok, t := range s.accessTokens {
		if !t.Active(now) {
			delete(s.accessTokens, tok)
			cleaned++
		}
	}
	s.mu.Unlock()

	if cleaned > 0 {
		s.log.Debug("oauth.store.sweep", slog.Int("removed", cleaned))
	}
}
