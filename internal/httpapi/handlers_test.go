package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	r "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/flow"
	"github.com/SirClappington/guildq/internal/queue"
	"github.com/SirClappington/guildq/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *miniredis.Miniredis, *queue.Registry) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := storage.New(r.NewClient(&r.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	queues, err := queue.NewRegistry(store, 1)
	require.NoError(t, err)
	flows := flow.NewStore(store, time.Hour)
	api := New(flows, flow.NewService(flows, queues, nil), store, nil)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv, mr, queues
}

func TestCreateAndGetFlow(t *testing.T) {
	srv, _, queues := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/flows", "application/json", strings.NewReader(
		`{"userId": 1, "roleIds": [2, 3], "guildId": 4, "priority": 1, "recheckAccess": true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createFlowResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.FlowID)

	prep, err := queues.Get(domain.Preparation)
	require.NoError(t, err)
	n, err := prep.Len(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	get, err := http.Get(srv.URL + "/v1/flows/" + string(created.FlowID))
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var rec domain.AccessFlowData
	require.NoError(t, json.NewDecoder(get.Body).Decode(&rec))
	assert.Equal(t, domain.Waiting, rec.Status)
	assert.Equal(t, []int{2, 3}, rec.RoleIDs)
	assert.True(t, rec.RecheckAccess)
}

func TestCreateFlowBadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{`},
		{name: "invalid", body: `{"userId": 1, "roleIds": [], "guildId": 4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/flows", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetDeleteFlow(t *testing.T) {
	srv, mr, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/flows/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mr.HSet("flow:f1", "status", `"waiting"`)
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/flows/f1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, mr.Exists("flow:f1"))
}

func TestHealth(t *testing.T) {
	srv, mr, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mr.Close()
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
