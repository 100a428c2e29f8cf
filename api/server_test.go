package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/colorfulnotion/fraudproof/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]types.Task
	order []uuid.UUID
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[uuid.UUID]types.Task)}
}

func (f *fakeTasks) Submit(desc types.TaskDescription) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := types.Task{ID: uuid.New(), QueryID: desc.QueryID, Timestamp: desc.Timestamp, Status: types.TaskPending}
	f.tasks[t.ID] = t
	f.order = append(f.order, t.ID)
	return t.ID, nil
}

func (f *fakeTasks) Get(id uuid.UUID) (types.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

func (f *fakeTasks) List() []types.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Task, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.tasks[id])
	}
	return out
}

func getTask(t *testing.T, base, id string) types.Task {
	resp, err := http.Get(base + "/tasks/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var task types.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	return task
}

func TestTaskEndpoints(t *testing.T) {
	tasks := newFakeTasks()
	srv := httptest.NewServer(NewServer(tasks, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tasks", "application/json",
		strings.NewReader(`{"queryId":"q-00","timestamp":1700000000}`))
	require.NoError(t, err)
	var submitted SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()
	require.NotEqual(t, uuid.Nil, submitted.TaskID)

	task := getTask(t, srv.URL, submitted.TaskID.String())
	require.Equal(t, "q-00", task.QueryID)
	require.Equal(t, uint64(1_700_000_000), task.Timestamp)
	require.Equal(t, types.TaskPending, task.Status)

	unknown := uuid.New()
	task = getTask(t, srv.URL, unknown.String())
	require.Equal(t, types.NotFoundTask(unknown), task)

	task = getTask(t, srv.URL, "not-a-uuid")
	require.Equal(t, types.TaskNotFound, task.Status)

	resp, err = http.Get(srv.URL + "/tasks")
	require.NoError(t, err)
	var list []types.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	require.Equal(t, submitted.TaskID, list[0].ID)
}

func TestSubmitRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(NewServer(newFakeTasks(), nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tasks", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaskJSONShape(t *testing.T) {
	tasks := newFakeTasks()
	id, _ := tasks.Submit(types.TaskDescription{QueryID: "q", Timestamp: 7})
	srv := httptest.NewServer(NewServer(tasks, nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/tasks/" + id.String())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"`+id.String()+`","queryId":"q","timestamp":7,"status":"Pending"}`, string(body))
}

func TestCORSAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "fraudproof_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	srv := httptest.NewServer(NewServer(newFakeTasks(), nil, reg).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/tasks", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "fraudproof_test_total 1")
}

func TestTaskStream(t *testing.T) {
	hub := NewHub(context.Background())
	srv := httptest.NewServer(NewServer(newFakeTasks(), hub, nil).Handler())
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/tasks/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	task := types.Task{ID: uuid.New(), QueryID: "q", Status: types.TaskRunning, Comment: "Got siblings"}
	// Registration is asynchronous; publish until the subscriber sees it.
	got := make(chan TaskEvent, 1)
	go func() {
		var ev TaskEvent
		if err := conn.ReadJSON(&ev); err == nil {
			got <- ev
		}
	}()
	require.Eventually(t, func() bool {
		hub.Publish(task, types.TaskPending)
		select {
		case ev := <-got:
			require.Equal(t, task, ev.Task)
			require.Equal(t, types.TaskPending, ev.PreviousStatus)
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, time.Millisecond)
}

func TestServerStartShutdown(t *testing.T) {
	s := NewServer(newFakeTasks(), NewHub(context.Background()), nil)
	require.NoError(t, s.Start("127.0.0.1:0"))
	resp, err := http.Get("http://" + s.Addr() + "/tasks")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
