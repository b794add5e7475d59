package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/gphotos-client/pkg/checkpoint"
	"github.com/Sternrassler/gphotos-client/pkg/client"
	"github.com/Sternrassler/gphotos-client/pkg/logging"
	"github.com/Sternrassler/gphotos-client/pkg/metrics"
	"github.com/Sternrassler/gphotos-client/pkg/ratelimit"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the state shared by all subcommands.
type app struct {
	v       *viper.Viper
	out     io.Writer
	cfgFile string
	logger  zerolog.Logger
}

// settings is the resolved configuration of one invocation.
type settings struct {
	AccessToken   string
	BaseURL       string
	MinInterval   time.Duration
	RedisURL      string
	MetricsAddr   string
	CheckpointTTL time.Duration
	UploadBPS     int
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "gphotos",
		Short: "Walk a Google Photos library through the Library API",
		Long: `gphotos pages through media items and albums of a Google Photos library,
pacing every request and printing one JSON record per line.

The OAuth access token is read from GPHOTOS_ACCESS_TOKEN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.BoolP("verbose", "v", false, "verbose output (sets log level to debug)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.Bool("pretty", false, "human-readable log output")
	pf.Duration("min-interval", ratelimit.DefaultMinInterval, "minimum time between the starts of two API requests")
	pf.String("base-url", client.DefaultBaseURL, "Photos Library API root")
	pf.String("redis-url", "", "Redis URL for resume checkpoints (e.g. redis://localhost:6379/0)")
	pf.Duration("checkpoint-ttl", 7*24*time.Hour, "how long a resume checkpoint is kept")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address while running")

	for _, name := range []string{"verbose", "log-level", "pretty", "min-interval", "base-url", "redis-url", "checkpoint-ttl", "metrics-addr"} {
		_ = a.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), pf.Lookup(name))
	}

	root.AddCommand(a.searchCmd(), a.listCmd(), a.albumsCmd(), a.uploadCmd())
	return root
}

// initConfig reads .env, the config file and GPHOTOS_* variables, then
// installs the global logger.
func (a *app) initConfig(stderr io.Writer) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	a.v.SetEnvPrefix("GPHOTOS")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.cfgFile, err)
		}
	}

	if _, err := logging.Setup(logging.Options{
		Verbose: a.v.GetBool("verbose"),
		Level:   a.v.GetString("log_level"),
		Pretty:  a.v.GetBool("pretty"),
		Output:  stderr,
	}); err != nil {
		return err
	}
	a.logger = logging.For(logging.ComponentCLI)
	return nil
}

func (a *app) settings() (settings, error) {
	s := settings{
		AccessToken:   a.v.GetString("access_token"),
		BaseURL:       a.v.GetString("base_url"),
		MinInterval:   a.v.GetDuration("min_interval"),
		RedisURL:      a.v.GetString("redis_url"),
		MetricsAddr:   a.v.GetString("metrics_addr"),
		CheckpointTTL: a.v.GetDuration("checkpoint_ttl"),
		UploadBPS:     a.v.GetInt("upload_bytes_per_second"),
	}

	if s.AccessToken == "" {
		return s, errors.New("GPHOTOS_ACCESS_TOKEN is required")
	}
	if s.MinInterval < 0 {
		return s, fmt.Errorf("min-interval must be >= 0 (got %v)", s.MinInterval)
	}
	if s.CheckpointTTL < 0 {
		return s, fmt.Errorf("checkpoint-ttl must be >= 0 (got %v)", s.CheckpointTTL)
	}
	return s, nil
}

// bearerTransport attaches a fixed OAuth access token to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}

func (a *app) newClient(s settings) (*client.Client, error) {
	cfg := client.DefaultConfig(&http.Client{
		Transport: &bearerTransport{token: s.AccessToken, base: http.DefaultTransport},
	})
	cfg.BaseURL = s.BaseURL
	cfg.UploadURL = strings.TrimRight(s.BaseURL, "/") + "/uploads"
	cfg.MinInterval = s.MinInterval
	cfg.UploadBytesPerSecond = s.UploadBPS

	c, err := client.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create photos client: %w", err)
	}
	return c, nil
}

// newStore connects the checkpoint store, or returns nil when no Redis URL
// is configured.
func (a *app) newStore(ctx context.Context, s settings) (*checkpoint.Store, func(), error) {
	if s.RedisURL == "" {
		return nil, func() {}, nil
	}

	opts, err := redis.ParseURL(s.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}

	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	return checkpoint.NewStore(redisClient), func() { redisClient.Close() }, nil
}

// runContext returns a context cancelled on SIGINT/SIGTERM and starts the
// metrics endpoint when configured.
func (a *app) runContext(parent context.Context, s settings) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	if s.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, s.MetricsAddr); err != nil {
				a.logger.Warn().Err(err).Msg("Metrics endpoint stopped")
			}
		}()
	}

	return ctx, cancel
}
