package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"unknown embedder", func(c *Config) { c.Embeddings.Provider = "word2vec" }, "unknown embeddings provider"},
		{"openai without key", func(c *Config) { c.Embeddings.Provider = "openai" }, "api_key is required"},
		{"zero batch", func(c *Config) { c.Index.BatchSize = 0 }, "batch size must be positive"},
		{"top k bounds", func(c *Config) { c.Index.MaxTopK = 5 }, "invalid top_k bounds"},
		{"relative allowed root", func(c *Config) { c.Index.AllowedRoots = []string{"src"} }, "allowed root must be absolute"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"secrets engine", func(c *Config) { c.Secrets.Engine = "trufflehog" }, "unknown secrets engine"},
		{"events prefix", func(c *Config) { c.Events.URL = "nats://localhost:4222"; c.Events.SubjectPrefix = "" }, "subject_prefix required"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-live")

	assert.Equal(t, "sk-live-123", s.Value())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, "1m30s", d.Duration().String())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
