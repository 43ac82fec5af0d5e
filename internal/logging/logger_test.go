package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		appEnv  string
		level   string
		wantErr bool
	}{
		{name: "production_info", appEnv: "production", level: "info"},
		{name: "development_debug", appEnv: "development", level: "DEBUG"},
		{name: "bad_level", appEnv: "production", level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.appEnv, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestFromZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := With(FromZap(zap.New(core)), "worker", "w1")

	l.Debug("d", "k", 1)
	l.Verbose("v")
	l.Info("i")
	l.Warn("w")
	l.Error("e", "flowId", "f1")

	entries := logs.All()
	require.Len(t, entries, 5)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, true, entries[1].ContextMap()["verbose"])
	assert.Equal(t, zapcore.ErrorLevel, entries[4].Level)
	assert.Equal(t, "f1", entries[4].ContextMap()["flowId"])
	for _, e := range entries {
		assert.Equal(t, "w1", e.ContextMap()["worker"])
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := Nop()
	assert.Equal(t, l, OrNop(l))
}
