package internal

import (
	"dm-lab/errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	Host     string `env:"HOST,default=localhost"`
	HTTPPort int    `env:"HTTP_PORT,default=8080"`
	GRPCPort int    `env:"GRPC_PORT,default=9090"`
	// CORSOriginList is a comma separated list, "*" allows every origin.
	CORSOriginList string `env:"CORS_ORIGINS,default=*"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	ModerationTimeout      time.Duration `env:"MODERATION_TIMEOUT,default=2s"`
	MaxContentLength       int           `env:"MAX_CONTENT_LENGTH,default=5000"`
	DefaultPageSize        int           `env:"DEFAULT_PAGE_SIZE,default=50"`
	NotificationBufferSize int           `env:"NOTIFICATION_BUFFER_SIZE,default=256"`
	RestartInterval        time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval         time.Duration `env:"METRIC_INTERVAL,default=5s"`
	// DebugStats exposes /debug/stats to authenticated callers.
	DebugStats bool `env:"DEBUG_STATS,default=false"`
}

// LoadConfig reads the .env files that exist, then the environment.
// Variables already set in the environment win over the files.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	switch {
	case strings.TrimSpace(c.JWTSecret) == "":
		return errors.Validation("JWT_SECRET must not be blank")
	case c.ModerationTimeout <= 0:
		return errors.Validation("MODERATION_TIMEOUT must be positive")
	case c.RestartInterval <= 0:
		return errors.Validation("RESTART_INTERVAL must be positive")
	case c.MetricInterval <= 0:
		return errors.Validation("METRIC_INTERVAL must be positive")
	case c.NotificationBufferSize <= 0:
		return errors.Validation("NOTIFICATION_BUFFER_SIZE must be positive")
	case c.HTTPPort == c.GRPCPort:
		return errors.Validation("HTTP_PORT and GRPC_PORT must differ")
	}
	return nil
}

func (c Config) HTTPAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }

func (c Config) GRPCAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }

func (c Config) CORSOrigins() []string {
	origins := lo.Map(strings.Split(c.CORSOriginList, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(origins)
}
