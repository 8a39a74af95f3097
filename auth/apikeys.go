package auth

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// KindAPIKey marks principals admitted via a static API key.
const KindAPIKey = "api_key"

// APIKeyAuthenticator admits requests carrying one of a fixed set of API
// keys. Keys can be supplied inline and/or loaded from a file; when a file
// is watched, edits to it take effect without a restart.
type APIKeyAuthenticator struct {
	log *slog.Logger

	mu   sync.RWMutex
	keys []string
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)

// APIKeyOption customizes an APIKeyAuthenticator.
type APIKeyOption func(*APIKeyAuthenticator)

// WithAPIKeyLogger sets the logger used for reload events.
func WithAPIKeyLogger(log *slog.Logger) APIKeyOption {
	return func(a *APIKeyAuthenticator) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAPIKeyAuthenticator constructs an authenticator over the given keys.
// Empty keys are dropped.
func NewAPIKeyAuthenticator(keys []string, opts ...APIKeyOption) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{
		log: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(a)
	}
	a.setKeys(keys)
	return a
}

func (a *APIKeyAuthenticator) setKeys(keys []string) {
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			clean = append(clean, k)
		}
	}
	a.mu.Lock()
	a.keys = clean
	a.mu.Unlock()
}

func (a *APIKeyAuthenticator) CheckAuthentication(ctx context.Context, tok string) (Principal, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	a.mu.RLock()
	keys := a.keys
	a.mu.RUnlock()
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(k)) == 1 {
			return NewPrincipal(keyFingerprint(k), KindAPIKey), nil
		}
	}
	return nil, fmt.Errorf("%w: unknown api key", ErrUnauthorized)
}

// keyFingerprint derives a loggable identifier from a key without exposing
// the key itself.
func keyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key-" + hex.EncodeToString(sum[:4])
}

// LoadFile replaces the key set with the contents of path. The file holds
// one key per line; blank lines and lines starting with '#' are ignored.
func (a *APIKeyAuthenticator) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening api key file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var keys []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading api key file: %w", err)
	}
	a.setKeys(keys)
	a.log.Info("auth.apikeys.loaded", slog.String("path", path), slog.Int("count", len(keys)))
	return nil
}

// WatchFile loads path and reloads it whenever it changes, until ctx is
// canceled. A reload that fails leaves the previous key set in place.
func (a *APIKeyAuthenticator) WatchFile(ctx context.Context, path string) error {
	if err := a.LoadFile(path); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting api key watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching api key file: %w", err)
	}

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) == 0 {
					continue
				}
				if err := a.LoadFile(path); err != nil {
					a.log.Warn("auth.apikeys.reload_failed", slog.String("err", err.Error()))
				}
				// Some editors replace the file; re-arm the watch.
				_ = w.Add(path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				a.log.Warn("auth.apikeys.watch_error", slog.String("err", err.Error()))
			}
		}
	}()
	return nil
}
