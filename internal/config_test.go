package internal

import (
	"dm-lab/errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("BLUGE_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	setRequired(t)

	config, err := LoadConfig()
	req.NoError(err)
	req.Equal(5000, config.MaxContentLength)
	req.Equal(50, config.DefaultPageSize)
	req.Equal(2*time.Second, config.ModerationTimeout)
	req.Equal("localhost:8080", config.HTTPAddress())
	req.Equal("localhost:9090", config.GRPCAddress())
	req.Equal([]string{"*"}, config.CORSOrigins())
	req.False(config.DebugStats)
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("BLUGE_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "  ")

	_, err := LoadConfig()
	req.ErrorIs(err, errors.ErrValidation)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	req := require.New(t)
	setRequired(t)
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	file := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(file, []byte("MODERATION_TIMEOUT=500ms\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("MODERATION_TIMEOUT") })

	config, err := LoadConfig(file, filepath.Join(t.TempDir(), "missing.env"))
	req.NoError(err)
	req.Equal(500*time.Millisecond, config.ModerationTimeout)
	req.Equal([]string{"https://a.example", "https://b.example"}, config.CORSOrigins())
}

func TestLoadConfig_RejectsNonPositiveDurations(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero metric interval", "METRIC_INTERVAL", "0s"},
		{"negative metric interval", "METRIC_INTERVAL", "-1s"},
		{"zero restart interval", "RESTART_INTERVAL", "0s"},
		{"zero moderation timeout", "MODERATION_TIMEOUT", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			req.ErrorIs(err, errors.ErrValidation)
			req.Contains(err.Error(), tt.key)
		})
	}
}
