// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netlabio/netlabd/internal/appliance"
	"github.com/netlabio/netlabd/internal/config"
	"github.com/netlabio/netlabd/internal/controller"
	"github.com/netlabio/netlabd/internal/notification"
)

func newTestHandler(t *testing.T, mutate func(*config.AppConfig)) http.Handler {
	t.Helper()
	cfg := config.AppConfig{
		ListenAddr:            ":0",
		Version:               "test",
		NotificationQueueSize: 16,
		PingInterval:          0,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ctl, err := controller.New(controller.Options{
		ProjectsDir:   t.TempDir(),
		Version:       cfg.Version,
		Notifications: notification.NewManager(cfg.NotificationQueueSize),
	})
	require.NoError(t, err)
	registry := appliance.NewRegistry("", "", nil)
	return New(cfg, ctl, registry).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func createProject(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v2/projects", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[map[string]any](t, rec)
	return res["project_id"].(string)
}

func createNode(t *testing.T, h http.Handler, projectID, name string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v2/projects/"+projectID+"/nodes", map[string]any{
		"name":      name,
		"node_type": "vpcs",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[map[string]any](t, rec)
	return res["node_id"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, "test", res["version"])
}

func TestBearerAuth(t *testing.T) {
	h := newTestHandler(t, func(cfg *config.AppConfig) { cfg.APIToken = "sekrit" })

	req := httptest.NewRequest(http.MethodGet, "/v2/version", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v2/version", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v2/version", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays reachable without credentials.
	rec = doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	h := newTestHandler(t, nil)
	id := createProject(t, h, "lab1")

	rec := doJSON(t, h, http.MethodGet, "/v2/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "lab1", list[0]["name"])
	assert.Equal(t, "opened", list[0]["status"])

	rec = doJSON(t, h, http.MethodPost, "/v2/projects/"+id+"/close", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Mutations on a closed project are forbidden.
	rec = doJSON(t, h, http.MethodPost, "/v2/projects/"+id+"/nodes", map[string]any{
		"name": "R1", "node_type": "vpcs",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	errRes := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(http.StatusForbidden), errRes["status"])
	assert.NotEmpty(t, errRes["message"])

	rec = doJSON(t, h, http.MethodPost, "/v2/projects/"+id+"/open", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/v2/projects/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v2/projects/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectCreateRejectsBadJSON(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v2/projects", bytes.NewBufferString("{ nope"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkPutOverHTTP(t *testing.T) {
	h := newTestHandler(t, nil)
	projectID := createProject(t, h, "lab1")
	n1 := createNode(t, h, projectID, "R1")
	n2 := createNode(t, h, projectID, "R2")

	linkID := uuid.NewString()
	rec := doJSON(t, h, http.MethodPut, "/v2/projects/"+projectID+"/links/"+linkID, map[string]any{
		"nodes": []map[string]any{
			{"node_id": n1, "adapter_number": 0, "port_number": 0},
			{"node_id": n2, "adapter_number": 0, "port_number": 0},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decodeBody[map[string]any](t, rec)
	assert.Equal(t, linkID, res["link_id"])
	assert.Equal(t, "ethernet", res["link_type"])
	assert.False(t, res["capturing"].(bool))
	assert.Nil(t, res["capture_file_name"])
	assert.Nil(t, res["capture_file_path"])

	nodes := res["nodes"].([]any)
	require.Len(t, nodes, 2)
	label := nodes[0].(map[string]any)["label"].(map[string]any)
	assert.Equal(t, "0/0", label["text"])

	// Replaying the same PUT answers 201 again with the stored resource.
	rec = doJSON(t, h, http.MethodPut, "/v2/projects/"+projectID+"/links/"+linkID, map[string]any{
		"nodes": []map[string]any{
			{"node_id": n1, "adapter_number": 0, "port_number": 0},
			{"node_id": n2, "adapter_number": 0, "port_number": 0},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/v2/projects/"+projectID+"/links/"+linkID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLinkPutErrorStatuses(t *testing.T) {
	h := newTestHandler(t, nil)
	projectID := createProject(t, h, "lab1")
	n1 := createNode(t, h, projectID, "R1")
	n2 := createNode(t, h, projectID, "R2")
	n3 := createNode(t, h, projectID, "R3")

	// One endpoint only.
	rec := doJSON(t, h, http.MethodPut, "/v2/projects/"+projectID+"/links/"+uuid.NewString(), map[string]any{
		"nodes": []map[string]any{{"node_id": n1}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Busy port.
	body := map[string]any{
		"nodes": []map[string]any{
			{"node_id": n1, "adapter_number": 0, "port_number": 0},
			{"node_id": n2, "adapter_number": 0, "port_number": 0},
		},
	}
	rec = doJSON(t, h, http.MethodPost, "/v2/projects/"+projectID+"/links", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, h, http.MethodPut, "/v2/projects/"+projectID+"/links/"+uuid.NewString(), map[string]any{
		"nodes": []map[string]any{
			{"node_id": n1, "adapter_number": 0, "port_number": 0},
			{"node_id": n3, "adapter_number": 0, "port_number": 0},
		},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Unknown filter.
	rec = doJSON(t, h, http.MethodPut, "/v2/projects/"+projectID+"/links/"+uuid.NewString(), map[string]any{
		"nodes": []map[string]any{
			{"node_id": n2, "adapter_number": 0, "port_number": 1},
			{"node_id": n3, "adapter_number": 0, "port_number": 1},
		},
		"filters": map[string]any{"teleport": []any{1}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown link.
	rec = doJSON(t, h, http.MethodGet, "/v2/projects/"+projectID+"/links/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectDuplicateRequiresName(t *testing.T) {
	h := newTestHandler(t, nil)
	id := createProject(t, h, "lab1")

	rec := doJSON(t, h, http.MethodPost, "/v2/projects/"+id+"/duplicate", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v2/projects/"+id+"/duplicate", map[string]any{"name": "lab1-copy"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "lab1-copy", res["name"])
	assert.NotEqual(t, id, res["project_id"])
}

func TestProjectExport(t *testing.T) {
	h := newTestHandler(t, nil)
	id := createProject(t, h, "lab1")

	rec := doJSON(t, h, http.MethodGet, "/v2/projects/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gns3project", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "lab1.gns3project")
	assert.NotZero(t, rec.Body.Len())

	closeRec := doJSON(t, h, http.MethodPost, "/v2/projects/"+id+"/close", nil)
	require.Equal(t, http.StatusNoContent, closeRec.Code)
	rec = doJSON(t, h, http.MethodGet, "/v2/projects/"+id+"/export", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNodeLifecycleOverHTTP(t *testing.T) {
	h := newTestHandler(t, nil)
	projectID := createProject(t, h, "lab1")
	nodeID := createNode(t, h, projectID, "R1")

	rec := doJSON(t, h, http.MethodPost, "/v2/projects/"+projectID+"/nodes/"+nodeID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "started", res["status"])

	rec = doJSON(t, h, http.MethodPost, "/v2/projects/"+projectID+"/nodes/"+nodeID+"/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v2/projects/"+projectID+"/nodes/"+nodeID+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v2/projects/"+projectID+"/nodes/"+nodeID+"/ports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ports := decodeBody[[]map[string]any](t, rec)
	assert.NotEmpty(t, ports)

	rec = doJSON(t, h, http.MethodDelete, "/v2/projects/"+projectID+"/nodes/"+nodeID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/v2/projects/"+projectID+"/nodes/"+nodeID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequestIDEcho(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestApplianceProvisionNumbersNodes(t *testing.T) {
	dir := t.TempDir()
	applianceID := "3b6c1517-0c6a-4d38-9a9f-1cfb6b0f1f10"
	descriptor := `{
		"appliance_id": "` + applianceID + `",
		"name": "FreeNAS",
		"category": "guest",
		"qemu": {"adapters": 1, "adapter_type": "e1000"},
		"versions": [{"name": "11.3"}]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "freenas.gns3a"), []byte(descriptor), 0o600))

	cfg := config.AppConfig{
		ListenAddr:            ":0",
		Version:               "test",
		NotificationQueueSize: 16,
	}
	ctl, err := controller.New(controller.Options{
		ProjectsDir:   t.TempDir(),
		Version:       cfg.Version,
		Notifications: notification.NewManager(cfg.NotificationQueueSize),
	})
	require.NoError(t, err)
	registry := appliance.NewRegistry(dir, t.TempDir(), nil)
	require.NoError(t, registry.Load())
	h := New(cfg, ctl, registry).Handler()

	projectID := createProject(t, h, "lab1")
	path := "/v2/projects/" + projectID + "/appliances/" + applianceID

	rec := doJSON(t, h, http.MethodPost, path, map[string]any{"x": 10, "y": 20})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "FreeNAS-1", first["name"])
	assert.Equal(t, float64(10), first["x"])

	rec = doJSON(t, h, http.MethodPost, path, map[string]any{"x": 30, "y": 20})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "FreeNAS-2", second["name"])
}

func TestApplianceListEmpty(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/v2/appliances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[[]map[string]any](t, rec)
	assert.Empty(t, res)
}
