// Command mcp-gateway runs the gateway: the streamable HTTP MCP endpoint
// with its embedded OAuth authorization server and bearer gate.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/mcp-gateway-go/auth"
	"github.com/ggoodman/mcp-gateway-go/internal/jwtauth"
	"github.com/ggoodman/mcp-gateway-go/internal/logctx"
	"github.com/ggoodman/mcp-gateway-go/mcp"
	"github.com/ggoodman/mcp-gateway-go/oauth"
	"github.com/ggoodman/mcp-gateway-go/oauth/memstore"
	"github.com/ggoodman/mcp-gateway-go/oauth/redisstore"
	"github.com/ggoodman/mcp-gateway-go/registry"
	"github.com/ggoodman/mcp-gateway-go/sessions"
	"github.com/ggoodman/mcp-gateway-go/streaminghttp"
)

// Config is populated from the environment via envdecode.
type Config struct {
	// ListenAddr is the bind address. ENV: MCP_LISTEN_ADDR
	ListenAddr string `env:"MCP_LISTEN_ADDR,default=:8080"`
	// BaseURL is the externally visible URL of this process, without the
	// /mcp path. ENV: MCP_BASE_URL
	BaseURL string `env:"MCP_BASE_URL,default=http://localhost:8080"`
	// AuthRequired gates the MCP endpoint behind bearer credentials.
	// ENV: MCP_AUTH_REQUIRED
	AuthRequired bool `env:"MCP_AUTH_REQUIRED,default=true"`
	// APIKeys is a comma-separated list of static keys. ENV: MCP_API_KEYS
	APIKeys string `env:"MCP_API_KEYS"`
	// APIKeysFile points at a watched file of keys, one per line.
	// ENV: MCP_API_KEYS_FILE
	APIKeysFile string `env:"MCP_API_KEYS_FILE"`
	// AllowedOrigins is a comma-separated allow-list for browser callers.
	// ENV: MCP_ALLOWED_ORIGINS
	AllowedOrigins string `env:"MCP_ALLOWED_ORIGINS"`
	// PublicReadOnly admits unauthenticated read-only calls.
	// ENV: MCP_PUBLIC_READ_ONLY
	PublicReadOnly bool `env:"MCP_PUBLIC_READ_ONLY,default=false"`
	// RedisAddr enables Redis-backed OAuth storage like "localhost:6379".
	// Empty means in-memory. ENV: MCP_REDIS_ADDR
	RedisAddr string `env:"MCP_REDIS_ADDR"`
	// UpstreamIssuer enables validation of JWT access tokens minted by an
	// external authorization server. ENV: MCP_UPSTREAM_ISSUER
	UpstreamIssuer string `env:"MCP_UPSTREAM_ISSUER"`
	// UpstreamAudience is the audience expected in upstream tokens.
	// Defaults to the MCP endpoint URL. ENV: MCP_UPSTREAM_AUDIENCE
	UpstreamAudience string `env:"MCP_UPSTREAM_AUDIENCE"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decoding config: %w", err)
	}

	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(os.Stdout, nil)})
	endpoint := strings.TrimSuffix(cfg.BaseURL, "/") + "/mcp"

	// OAuth storage: Redis when configured, otherwise in-memory.
	var (
		clients oauth.ClientStore
		codes   oauth.CodeStore
		tokens  oauth.TokenStore
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer func() { _ = client.Close() }()
		store, err := redisstore.New(redisstore.Config{Client: client})
		if err != nil {
			return fmt.Errorf("building redis store: %w", err)
		}
		clients, codes, tokens = store, store, store
		log.Info("oauth.store.redis", slog.String("addr", cfg.RedisAddr))
	} else {
		store := memstore.New(memstore.WithLogger(log))
		defer store.Stop()
		clients, codes, tokens = store, store, store
		log.Info("oauth.store.memory")
	}

	svc := oauth.NewService(clients, codes, tokens, oauth.WithLogger(log))
	oauthHandler, err := oauth.NewHandler(svc, cfg.BaseURL, oauth.WithHandlerLogger(log))
	if err != nil {
		return fmt.Errorf("building oauth handler: %w", err)
	}

	// Bearer gate: own tokens first, then static keys, then upstream JWTs.
	var links []auth.Authenticator
	links = append(links, auth.NewTokenAuthenticator(svc))
	if cfg.APIKeys != "" || cfg.APIKeysFile != "" {
		keys := auth.NewAPIKeyAuthenticator(splitList(cfg.APIKeys), auth.WithAPIKeyLogger(log))
		if cfg.APIKeysFile != "" {
			if err := keys.WatchFile(ctx, cfg.APIKeysFile); err != nil {
				return fmt.Errorf("watching api key file: %w", err)
			}
		}
		links = append(links, keys)
	}
	if cfg.UpstreamIssuer != "" {
		jwtCfg := jwtauth.DefaultConfig()
		jwtCfg.Issuer = cfg.UpstreamIssuer
		aud := cfg.UpstreamAudience
		if aud == "" {
			aud = endpoint
		}
		jwtCfg.ExpectedAudiences = []string{aud}
		upstream, err := jwtauth.NewFromDiscovery(ctx, jwtCfg)
		if err != nil {
			return fmt.Errorf("upstream issuer discovery: %w", err)
		}
		links = append(links, auth.NewJWTAuthenticator(upstream))
		log.Info("auth.upstream.enabled", slog.String("issuer", cfg.UpstreamIssuer))
	}

	mgr := sessions.NewManager(sessions.WithLogger(log))

	reg := registry.NewStaticRegistry()
	reg.AddTool(registry.Tool("echo", "Echoes the provided text back to the caller.", func(ctx context.Context, args struct {
		Text string `json:"text" jsonschema:"required,description=Text to echo back"`
	}) (*mcp.CallToolResult, error) {
		return registry.TextResult(args.Text), nil
	}))

	opts := []streaminghttp.Option{
		streaminghttp.WithLogger(log),
		streaminghttp.WithServerInfo("mcp-gateway", "1.0.0"),
		streaminghttp.WithOAuthHandler(oauthHandler),
	}
	if cfg.AuthRequired {
		opts = append(opts, streaminghttp.WithAuthenticator(auth.NewChain(links...)))
	}
	if cfg.PublicReadOnly {
		opts = append(opts, streaminghttp.WithPublicReadOnly())
	}
	if origins := splitList(cfg.AllowedOrigins); len(origins) > 0 {
		opts = append(opts, streaminghttp.WithAllowedOrigins(origins))
	}

	handler, err := streaminghttp.New(ctx, endpoint, mgr, reg, opts...)
	if err != nil {
		return fmt.Errorf("building handler: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http.listen", slog.String("addr", cfg.ListenAddr), slog.String("endpoint", endpoint))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("http.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
