package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"spaplan/internal/catalog"
	"spaplan/internal/domain"
	"spaplan/internal/store"
)

const anchorParam = "anchor=2026-08-31T08%3A50%3A00Z"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "api.db")+"?cache=shared&mode=rwc")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.EnsureSchema(db))

	cat := catalog.Default()
	registry := store.NewRegistry(db, cat)
	ts := httptest.NewServer(NewServer(registry, cat, Config{}))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("content-type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createBoard(t *testing.T, ts *httptest.Server) string {
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards", map[string]string{"name": "test board"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	info := decode[store.BoardInfo](t, resp)
	return info.ID
}

func addTask(t *testing.T, ts *httptest.Server, boardID, customer, service, worker string) string {
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/tasks",
		map[string]string{"customer": customer, "service_id": service, "worker_id": worker})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[map[string]string](t, resp)["task_id"]
}

func getLayout(t *testing.T, ts *httptest.Server, boardID string) []domain.Interval {
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/boards/"+boardID+"/layout?"+anchorParam, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[[]domain.Interval](t, resp)
}

func TestHealthAndCatalog(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/catalog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cat := decode[map[string]json.RawMessage](t, resp)
	var workers []domain.Worker
	require.NoError(t, json.Unmarshal(cat["workers"], &workers))
	assert.Len(t, workers, 4)
	var services []domain.Service
	require.NoError(t, json.Unmarshal(cat["services"], &services))
	assert.Len(t, services, 6)
}

func TestAddTaskAndLayout(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)

	taskID := addTask(t, ts, boardID, "Ali", "svc_thai", "w1")
	assert.Equal(t, "t1", taskID)
	addTask(t, ts, boardID, "Budi", "svc_deep", "w1")

	intervals := getLayout(t, ts, boardID)
	require.Len(t, intervals, 2)
	wantStart := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	assert.True(t, intervals[0].Start.Equal(wantStart), "anchor 08:50 rounds up to 09:00")
	assert.True(t, intervals[1].Start.Equal(intervals[0].Finish))
	assert.Equal(t, 120, intervals[1].DurationMin)
}

func TestAddTaskRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/tasks",
		map[string]string{"customer": "", "service_id": "svc_thai", "worker_id": "w1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/boards/brd_missing/tasks",
		map[string]string{"customer": "Ali", "service_id": "svc_thai", "worker_id": "w1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMoveTaskByIndex(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)
	taskID := addTask(t, ts, boardID, "Ali", "svc_thai", "w1")
	addTask(t, ts, boardID, "Maya", "svc_deep", "w1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/tasks/"+taskID+"/move",
		map[string]any{"worker_id": "w2", "index": 0})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	intervals := getLayout(t, ts, boardID)
	require.Len(t, intervals, 2)
	byWorker := map[string]string{}
	for _, iv := range intervals {
		byWorker[iv.WorkerID] = iv.TaskID
	}
	assert.Equal(t, taskID, byWorker["w2"])
}

func TestMoveTaskRejections(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)
	taskID := addTask(t, ts, boardID, "Ali", "svc_thai", "w1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/tasks/"+taskID+"/move",
		map[string]any{"index": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "destination required")

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/tasks/t42/move",
		map[string]any{"worker_id": "w2", "index": 0})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTimelineDropMovesTask(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)
	taskID := addTask(t, ts, boardID, "Ali", "svc_thai", "w1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/drop?"+anchorParam,
		map[string]string{"task_id": taskID, "worker_name": "Budi", "timestamp": "2026-08-31T09:00:00Z"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	intervals := getLayout(t, ts, boardID)
	require.Len(t, intervals, 1)
	assert.Equal(t, "w2", intervals[0].WorkerID)
}

func TestTimelineDropIsSilentNoOpOnJunk(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)
	taskID := addTask(t, ts, boardID, "Ali", "svc_thai", "w1")

	junk := []map[string]string{
		{"worker_name": "Budi", "timestamp": "2026-08-31T09:00:00Z"},
		{"task_id": taskID, "worker_name": "Nobody", "timestamp": "2026-08-31T09:00:00Z"},
		{"task_id": taskID, "worker_name": "Budi", "timestamp": "around nine"},
		{},
	}
	for _, payload := range junk {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/drop?"+anchorParam, payload)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	intervals := getLayout(t, ts, boardID)
	require.Len(t, intervals, 1)
	assert.Equal(t, "w1", intervals[0].WorkerID, "junk drops leave the board unchanged")
}

func TestListDropReorders(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)
	t1 := addTask(t, ts, boardID, "Ali", "svc_thai", "w1")
	addTask(t, ts, boardID, "Maya", "svc_thai", "w1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/drop/list",
		map[string]any{"task_id": t1, "source_list_id": "worker-w1", "destination_list_id": "worker-w1", "new_index": 9})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	intervals := getLayout(t, ts, boardID)
	require.Len(t, intervals, 2)
	assert.Equal(t, t1, intervals[1].TaskID, "clamped to the end of the queue")
}

func TestCommandEndpoint(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/commands",
		map[string]string{"action": "add", "customer": "Ali", "service_id": "svc_reflex", "worker_id": "w3"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "t1", decode[map[string]string](t, resp)["task_id"])

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/commands",
		map[string]string{"action": "delete", "task_id": "t1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, getLayout(t, ts, boardID))
}

func TestEditAndRemoveTask(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)
	taskID := addTask(t, ts, boardID, "Ali", "svc_thai", "w1")

	resp := doJSON(t, http.MethodPatch, ts.URL+"/api/boards/"+boardID+"/tasks/"+taskID,
		map[string]string{"customer": "Alicia", "service_id": "svc_hot"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	intervals := getLayout(t, ts, boardID)
	require.Len(t, intervals, 1)
	assert.Equal(t, "Alicia", intervals[0].Customer)
	assert.Equal(t, 90, intervals[0].DurationMin)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/boards/"+boardID+"/tasks/"+taskID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, getLayout(t, ts, boardID))
}

func TestBoardResetAndDelete(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)
	addTask(t, ts, boardID, "Ali", "svc_thai", "w1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/boards/"+boardID+"/reset", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, getLayout(t, ts, boardID))

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/boards/"+boardID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/boards/"+boardID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLayoutBadParams(t *testing.T) {
	ts := newTestServer(t)
	boardID := createBoard(t, ts)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/boards/"+boardID+"/layout?anchor=next-tuesday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/boards/%s/layout?%s&slot=0", ts.URL, boardID, anchorParam), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
