package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flaskion/flaskion-client/internal/config"
	"github.com/flaskion/flaskion-client/pkg/api"
	"github.com/flaskion/flaskion-client/pkg/auth"
	"github.com/flaskion/flaskion-client/pkg/blob"
	"github.com/flaskion/flaskion-client/pkg/cache"
	"github.com/flaskion/flaskion-client/pkg/client"
	"github.com/flaskion/flaskion-client/pkg/logging"
	"github.com/flaskion/flaskion-client/pkg/metrics"
	"github.com/flaskion/flaskion-client/pkg/pagination"
)

// app holds everything a command needs. It is built once per invocation
// in the root command's PersistentPreRunE.
type app struct {
	v       *viper.Viper
	cfgFile string
	output  string

	cfg        *config.Config
	logger     zerolog.Logger
	redis      *redis.Client
	tokens     auth.TokenStore
	guard      *auth.Guard
	redirected chan struct{}
	client     *client.Client
	service    *api.Service
	blobs      *blob.Manager

	stopMetrics context.CancelFunc
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	stderr := cmd.ErrOrStderr()
	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Logging.Level),
		Pretty:  logging.PrettyFor(cfg.Logging.Format, stderr),
		NoColor: !cfg.Logging.Color,
		Output:  stderr,
	})
	a.logger = logging.NewLogger("cli")

	ctx := cmd.Context()
	if cfg.UsesRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	switch cfg.Auth.Store {
	case config.StoreMemory:
		a.tokens = auth.NewMemoryStore()
	case config.StoreRedis:
		a.tokens = auth.NewRedisStore(a.redis, cfg.Auth.RedisKey, cfg.Auth.TokenTTL)
	default:
		a.tokens = auth.NewFileStore(cfg.Auth.File)
	}

	clientCfg := client.DefaultConfig(cfg.API.BaseURL, a.tokens)
	clientCfg.UserAgent = "flaskion-cli/" + version
	clientCfg.Timeout = cfg.API.Timeout
	clientCfg.RetryMax = cfg.API.RetryMax
	a.client, err = client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	a.redirected = make(chan struct{}, 1)
	a.guard = auth.NewGuard(cfg.Auth.RedirectDelay, a.redirectToSignIn(ctx, stderr))
	a.service = api.NewService(a.client, a.tokens, a.guard)

	opts := []blob.Option{blob.WithOrigin(cfg.Blob.Origin)}
	if cfg.Blob.Cache {
		scope, err := a.cacheScope(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, blob.WithCache(cache.NewManager(a.redis, cfg.Blob.StaleGrace), scope))
	}
	a.blobs = blob.NewManager(a.client, opts...)

	if cfg.Metrics.Addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr); err != nil {
				a.logger.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint failed")
			}
		}()
	}

	return nil
}

// cacheScope separates cached images per session token.
func (a *app) cacheScope(ctx context.Context) (string, error) {
	token, ok, err := a.tokens.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if !ok {
		return "anonymous", nil
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8]), nil
}

// redirectToSignIn forgets the rejected token and points the user at signin.
func (a *app) redirectToSignIn(ctx context.Context, w io.Writer) func() {
	return func() {
		if err := a.tokens.Clear(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to clear rejected token")
		}
		fmt.Fprintln(w, "Session expired. Run 'flaskion signin' to sign in again.")
		select {
		case a.redirected <- struct{}{}:
		default:
		}
	}
}

// replyError turns a non-success reply into an error with the user-facing
// message.
func (a *app) replyError(resp *client.Response) error {
	return a.outcomeError(client.Describe(resp, nil))
}

func (a *app) loadError(err *pagination.LoadError) error {
	return a.outcomeError(err.Outcome)
}

// outcomeError waits for the pending sign-in redirect on 401.
func (a *app) outcomeError(out client.Outcome) error {
	if out.OK() {
		return nil
	}
	if out.RedirectToSignIn && a.guard.Pending() {
		select {
		case <-a.redirected:
		case <-time.After(a.cfg.Auth.RedirectDelay + time.Second):
		}
	}
	return errors.New(out.Message)
}

func (a *app) close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.guard != nil {
		a.guard.Stop()
	}
	if a.blobs != nil {
		a.blobs.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
