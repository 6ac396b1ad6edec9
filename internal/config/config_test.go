package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid defaults",
			cfg: Config{
				Logging: LoggingConfig{Level: "info", Format: "json", BufferSize: 100},
			},
			wantErr: false,
		},
		{
			name: "invalid level",
			cfg: Config{
				Logging: LoggingConfig{Level: "verbose", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			cfg: Config{
				Logging: LoggingConfig{Level: "info", Format: "xml"},
			},
			wantErr: true,
		},
		{
			name: "negative buffer size",
			cfg: Config{
				Logging: LoggingConfig{Level: "info", Format: "json", BufferSize: -1},
			},
			wantErr: true,
		},
		{
			name: "negative pool size",
			cfg: Config{
				Logging:  LoggingConfig{Level: "info", Format: "json"},
				EventBus: EventBusConfig{PoolSize: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FLOWGRAPH_LOG_LEVEL", "")
	t.Setenv("FLOWGRAPH_LOG_FORMAT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 500, cfg.Logging.BufferSize)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("FLOWGRAPH_LOG_LEVEL", "debug")
	t.Setenv("FLOWGRAPH_EVENTBUS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.EventBus.DB)
}
