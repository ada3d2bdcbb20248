package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echohq/echo-agent/internal/storage"
	"github.com/echohq/echo-agent/internal/types"
)

type fakeStore struct {
	storage.Store

	mu        sync.Mutex
	comments  map[string]*types.Comment
	monitors  map[string]*types.MonitoredPost
	tasks     []*types.AgentTask
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		comments: make(map[string]*types.Comment),
		monitors: make(map[string]*types.MonitoredPost),
	}
}

func (f *fakeStore) GetComment(ctx context.Context, id string) (*types.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[id], nil
}

func (f *fakeStore) GetActiveMonitor(ctx context.Context, postID string) (*types.MonitoredPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.monitors[postID], nil
}

func (f *fakeStore) CreateTask(ctx context.Context, task *types.AgentTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	task.ID = "task-1"
	f.tasks = append(f.tasks, task)
	return nil
}

func TestDispatchCreatesTaskForMonitoredPost(t *testing.T) {
	var triggered struct {
		mu     sync.Mutex
		taskID string
	}
	runner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		triggered.mu.Lock()
		triggered.taskID = body["task_id"]
		triggered.mu.Unlock()
	}))
	defer runner.Close()

	store := newFakeStore()
	store.comments["c-1"] = &types.Comment{ID: "c-1", PostID: "p-1"}
	store.monitors["p-1"] = &types.MonitoredPost{ID: "m-1", PostID: "p-1", IsActive: true}

	d := New(store, runner.URL, nil)
	d.Dispatch(context.Background(), "c-1", 0.9)

	require.Len(t, store.tasks, 1)
	task := store.tasks[0]
	assert.Equal(t, "m-1", task.MonitoredPostID)
	assert.Equal(t, types.TaskTypeAnalyze, task.TaskType)
	assert.Equal(t, types.TaskPending, task.Status)

	var result types.TaskResult
	require.NoError(t, json.Unmarshal(task.Result, &result))
	assert.Equal(t, "c-1", result.CommentID)
	assert.Equal(t, 0.9, result.Priority)

	triggered.mu.Lock()
	assert.Equal(t, "task-1", triggered.taskID)
	triggered.mu.Unlock()
}

func TestDispatchSkipsUnmonitoredPost(t *testing.T) {
	store := newFakeStore()
	store.comments["c-1"] = &types.Comment{ID: "c-1", PostID: "p-1"}

	d := New(store, "", nil)
	d.Dispatch(context.Background(), "c-1", 0.9)

	assert.Empty(t, store.tasks)
}

func TestDispatchSkipsUnknownComment(t *testing.T) {
	store := newFakeStore()

	d := New(store, "", nil)
	d.Dispatch(context.Background(), "missing", 0.9)

	assert.Empty(t, store.tasks)
}

func TestDispatchSurvivesUnreachableRunner(t *testing.T) {
	store := newFakeStore()
	store.comments["c-1"] = &types.Comment{ID: "c-1", PostID: "p-1"}
	store.monitors["p-1"] = &types.MonitoredPost{ID: "m-1", PostID: "p-1", IsActive: true}

	// Nothing listens on this port; the trigger must fail silently.
	d := New(store, "http://127.0.0.1:1/run", nil)
	d.Dispatch(context.Background(), "c-1", 0.8)

	require.Len(t, store.tasks, 1)
}

func TestDispatchSurvivesTaskCreationFailure(t *testing.T) {
	store := newFakeStore()
	store.comments["c-1"] = &types.Comment{ID: "c-1", PostID: "p-1"}
	store.monitors["p-1"] = &types.MonitoredPost{ID: "m-1", PostID: "p-1", IsActive: true}
	store.createErr = errors.New("db down")

	d := New(store, "", nil)
	d.Dispatch(context.Background(), "c-1", 0.8)

	assert.Empty(t, store.tasks)
}
