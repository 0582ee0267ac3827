package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/behave/internal/core/bt/asset"
	"github.com/zeusync/behave/internal/core/bt/nodes"
	"github.com/zeusync/behave/internal/core/npc"
	"github.com/zeusync/behave/internal/core/observability/metrics"
)

const patrolTree = `
name: patrol
root: main
nodes:
  main:
    type: selector
    children: [flee, walk]
  flee:
    type: condition
    params: {expr: "hp < 30"}
  walk:
    type: wait
    params: {duration: 1h}
`

func fixture(t *testing.T) (*httptest.Server, *npc.Manager, *npc.Agent) {
	t.Helper()
	reg := asset.NewRegistry()
	require.NoError(t, nodes.RegisterBuiltins(reg, nodes.Library{}))
	cfg, err := asset.LoadYAML(strings.NewReader(patrolTree))
	require.NoError(t, err)
	tree, err := asset.Compile(cfg, reg)
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(promReg)
	require.NoError(t, err)
	m := npc.NewManager(npc.DefaultManagerConfig(), nil, npc.WithAgentObserver(collector))
	t.Cleanup(m.Close)
	_, err = m.AddTree(tree)
	require.NoError(t, err)
	a, err := m.Spawn("guard", "patrol", map[string]any{"hp": 100})
	require.NoError(t, err)
	require.NoError(t, m.Update(context.Background(), time.Millisecond))

	ts := httptest.NewServer(New(m, promReg, nil).Router())
	t.Cleanup(ts.Close)
	return ts, m, a
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAgentsEndpoint(t *testing.T) {
	ts, _, a := fixture(t)

	var infos []npc.AgentInfo
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/agents", &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "guard", infos[0].Name)
	assert.Equal(t, []string{"main", "walk"}, infos[0].Path)

	var info npc.AgentInfo
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/agents/"+a.ID().String(), &info))
	assert.Equal(t, a.ID().String(), info.ID)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/agents/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/agents/00000000-0000-0000-0000-000000000000", nil))
}

func TestPreemptEndpoint(t *testing.T) {
	ts, _, a := fixture(t)
	post := func(node string) int {
		resp, err := http.Post(ts.URL+"/agents/"+a.ID().String()+"/preempt/"+node, "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusAccepted, post("flee"))
	assert.Equal(t, http.StatusNotFound, post("missing"))
	assert.Equal(t, http.StatusConflict, post("main"))
}

func TestTreesEndpoint(t *testing.T) {
	ts, _, _ := fixture(t)

	var names []string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/trees", &names))
	assert.Equal(t, []string{"patrol"}, names)

	var tree struct {
		Name     string           `json:"name"`
		MaxDepth int              `json:"max_depth"`
		Nodes    []asset.NodeInfo `json:"nodes"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/trees/patrol", &tree))
	assert.Equal(t, 2, tree.MaxDepth)
	assert.Len(t, tree.Nodes, 3)

	resp, err := http.Get(ts.URL + "/trees/patrol?format=text")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/trees/none", nil))
}

func TestMetricsAndStats(t *testing.T) {
	ts, _, _ := fixture(t)

	var stats npc.Stats
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/stats", &stats))
	assert.Equal(t, 1, stats.Agents)
	assert.Equal(t, uint64(1), stats.Ticks)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `bt_node_activations_total{result="ok"} 2`)
	assert.Contains(t, body.String(), `bt_sweeps_total{status="Running"} 1`)
}

func TestStartStop(t *testing.T) {
	m := npc.NewManager(npc.DefaultManagerConfig(), nil)
	s := New(m, prometheus.NewRegistry(), nil)
	assert.ErrorIs(t, s.Stop(context.Background()), ErrServerNotRunning)
	require.NoError(t, s.Start("127.0.0.1:0"))
	assert.ErrorIs(t, s.Start("127.0.0.1:0"), ErrServerAlreadyRunning)
	require.NoError(t, s.Stop(context.Background()))
}
