package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		ListenHost: "198.51.100.7",
		PortMode:   "ephemeral",
		APIAddr:    "127.0.0.1:61091",
	}
}

func TestConfigValidate(t *testing.T) {
	for _, testcase := range []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "ephemeral mode",
			mutate: func(*Config) {},
		},
		{
			name: "single mode",
			mutate: func(c *Config) {
				c.PortMode = "single"
				c.SinglePort = 8125
			},
		},
		{
			name: "range mode",
			mutate: func(c *Config) {
				c.PortMode = "range"
				c.PortRangeBegin = 31000
				c.PortRangeEnd = 31010
			},
		},
		{
			name:    "missing listen host",
			mutate:  func(c *Config) { c.ListenHost = "" },
			wantErr: "ListenHost required",
		},
		{
			name:    "missing api addr",
			mutate:  func(c *Config) { c.APIAddr = "" },
			wantErr: "APIAddr required",
		},
		{
			name:    "single mode without port",
			mutate:  func(c *Config) { c.PortMode = "single" },
			wantErr: "SinglePort required",
		},
		{
			name: "inverted range",
			mutate: func(c *Config) {
				c.PortMode = "range"
				c.PortRangeBegin = 31010
				c.PortRangeEnd = 31000
			},
			wantErr: "invalid port range",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.PortMode = "tcp" },
			wantErr: `unknown port mode "tcp"`,
		},
	} {
		t.Run(testcase.name, func(t *testing.T) {
			cfg := validConfig()
			testcase.mutate(&cfg)

			err := cfg.validate()
			if testcase.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), testcase.wantErr)
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	a, err := New(validConfig())
	require.NoError(t, err)
	assert.NotNil(t, a)
}
