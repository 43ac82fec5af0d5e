package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirClappington/guildq/internal/domain"
)

func TestQueueNames(t *testing.T) {
	endpoints := map[string]string{
		"preparation":  "http://stages/preparation",
		"access-check": "http://stages/access-check",
	}

	tests := []struct {
		name      string
		requested []string
		endpoints map[string]string
		want      []domain.QueueName
		wantErr   bool
	}{
		{name: "defaults_to_configured", endpoints: endpoints, want: []domain.QueueName{domain.Preparation, domain.AccessCheck}},
		{name: "explicit", requested: []string{"access-check"}, endpoints: endpoints, want: []domain.QueueName{domain.AccessCheck}},
		{name: "unknown", requested: []string{"billing"}, endpoints: endpoints, wantErr: true},
		{name: "missing_endpoint", requested: []string{"manage-reward"}, endpoints: endpoints, wantErr: true},
		{name: "nothing_configured", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := queueNames(tt.requested, tt.endpoints)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
