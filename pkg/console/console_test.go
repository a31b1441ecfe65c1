package console

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lomehong/ldg/pkg/events"
	"github.com/lomehong/ldg/pkg/report"
)

// newTestConsole 构建一个用于测试的控制台，按需填充数据来源
func newTestConsole(t *testing.T, config Config, sources Sources) *Console {
	t.Helper()

	c, err := NewConsole(nil, config, sources)
	require.NoError(t, err)
	require.NoError(t, c.Init())
	return c
}

func doRequest(c *Console, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)
	return w
}

// TestConfigValidate 测试控制台配置校验
func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Port = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Host = ""
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ShutdownTimeout = 0
	assert.Error(t, bad.Validate())
}

// TestPing 测试连通性探测
func TestPing(t *testing.T) {
	c := newTestConsole(t, DefaultConfig(), Sources{})

	w := doRequest(c, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pong", body["message"])
}

// TestRequestIDMiddleware 测试请求ID生成与透传
func TestRequestIDMiddleware(t *testing.T) {
	c := newTestConsole(t, DefaultConfig(), Sources{})

	w := doRequest(c, http.MethodGet, "/api/ping", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = doRequest(c, http.MethodGet, "/api/ping", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

// TestAuthMiddleware 测试令牌鉴权
func TestAuthMiddleware(t *testing.T) {
	config := DefaultConfig()
	config.AuthToken = "secret-token"
	c := newTestConsole(t, config, Sources{})

	w := doRequest(c, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(c, http.MethodGet, "/api/ping", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(c, http.MethodGet, "/api/ping", map[string]string{"Authorization": "Bearer secret-token"})
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestGetRuns 测试运行记录列举与读取
func TestGetRuns(t *testing.T) {
	store := report.NewStore(nil, t.TempDir())
	_, err := store.Save(&report.Manifest{
		RunID:     "run-1",
		Kind:      "validate",
		StartedAt: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		Succeeded: true,
	})
	require.NoError(t, err)

	c := newTestConsole(t, DefaultConfig(), Sources{Runs: store})

	w := doRequest(c, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Runs  []report.Manifest `json:"runs"`
		Total int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Total)
	assert.Equal(t, "run-1", listing.Runs[0].RunID)

	w = doRequest(c, http.MethodGet, "/api/runs/run-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(c, http.MethodGet, "/api/runs/no-such-run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestGetEvents 测试事件列举与过滤
func TestGetEvents(t *testing.T) {
	em := events.NewEventManager(nil)
	require.NoError(t, em.Publish(events.TypeProvisionStep, "provisioner", "detect", nil))
	require.NoError(t, em.Publish(events.TypeRunFinished, "validator", "done", nil))

	c := newTestConsole(t, DefaultConfig(), Sources{Events: em})

	w := doRequest(c, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Events []events.Event `json:"events"`
		Total  int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, 2, listing.Total)
	assert.Len(t, listing.Events, 2)

	w = doRequest(c, http.MethodGet, "/api/events?type="+events.TypeRunFinished, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Len(t, listing.Events, 1)
	assert.Equal(t, events.TypeRunFinished, listing.Events[0].Type)
}

// TestNoRoute 测试未注册路径返回404
func TestNoRoute(t *testing.T) {
	c := newTestConsole(t, DefaultConfig(), Sources{})

	w := doRequest(c, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestStatusWithoutSources 测试数据来源缺失时状态接口仍可用
func TestStatusWithoutSources(t *testing.T) {
	c := newTestConsole(t, DefaultConfig(), Sources{})

	w := doRequest(c, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(c, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
