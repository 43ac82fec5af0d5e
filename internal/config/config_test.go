package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirClappington/guildq/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", c.AppEnv)
	assert.Equal(t, ":8080", c.APIAddr)
	assert.Equal(t, 60*time.Second, c.LockTime)
	assert.Equal(t, 5*time.Second, c.WaitTimeout)
	assert.Equal(t, 24*time.Hour, c.FlowTTL)
	assert.Equal(t, 1, c.QueuePriorities)
	assert.False(t, c.DeleteTerminalFlows)
	assert.Equal(t, 60*time.Second, c.LockTimeFor(domain.Preparation))
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, c Config)
	}{
		{
			name:    "missing_redis_addr",
			env:     map[string]string{},
			wantErr: "REDIS_ADDR",
		},
		{
			name: "queue_lock_times",
			env: map[string]string{
				"REDIS_ADDR":       "localhost:6379",
				"LOCK_TIME":        "30s",
				"QUEUE_LOCK_TIMES": "access-check=2m,manage-reward=90s",
			},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, 2*time.Minute, c.LockTimeFor(domain.AccessCheck))
				assert.Equal(t, 90*time.Second, c.LockTimeFor(domain.ManageReward))
				assert.Equal(t, 30*time.Second, c.LockTimeFor(domain.Preparation))
			},
		},
		{
			name: "unknown_lock_queue",
			env: map[string]string{
				"REDIS_ADDR":       "localhost:6379",
				"QUEUE_LOCK_TIMES": "rewards=1m",
			},
			wantErr: "unknown queue",
		},
		{
			name: "bad_lock_duration",
			env: map[string]string{
				"REDIS_ADDR":       "localhost:6379",
				"QUEUE_LOCK_TIMES": "preparation=soon",
			},
			wantErr: "bad duration",
		},
		{
			name: "stage_endpoints",
			env: map[string]string{
				"REDIS_ADDR":      "localhost:6379",
				"STAGE_ENDPOINTS": "preparation=http://stages:9000/preparation",
			},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "http://stages:9000/preparation", c.StageEndpoints["preparation"])
			},
		},
		{
			name: "non_blocking_wait",
			env: map[string]string{
				"REDIS_ADDR":   "localhost:6379",
				"WAIT_TIMEOUT": "0s",
			},
			check: func(t *testing.T, c Config) {
				assert.Zero(t, c.WaitTimeout)
			},
		},
		{
			name: "sub_second_wait",
			env: map[string]string{
				"REDIS_ADDR":   "localhost:6379",
				"WAIT_TIMEOUT": "500ms",
			},
			wantErr: "WAIT_TIMEOUT",
		},
		{
			name: "fractional_wait",
			env: map[string]string{
				"REDIS_ADDR":   "localhost:6379",
				"WAIT_TIMEOUT": "1500ms",
			},
			wantErr: "WAIT_TIMEOUT",
		},
		{
			name: "bad_priorities",
			env: map[string]string{
				"REDIS_ADDR":       "localhost:6379",
				"QUEUE_PRIORITIES": "0",
			},
			wantErr: "QUEUE_PRIORITIES",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_ADDR", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			c, err := Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}
