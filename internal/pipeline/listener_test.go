package pipeline

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fernlabs/gateview/internal/approval"
)

func newTestListener(t *testing.T) (*Listener, *approval.Store) {
	t.Helper()
	store := approval.NewStore(zap.NewNop())
	l, err := NewListener(store, zap.NewNop(), nil)
	require.NoError(t, err)
	return l, store
}

func post(l *Listener, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	l.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewListener_Validation(t *testing.T) {
	_, err := NewListener(nil, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store cannot be nil")

	_, err = NewListener(approval.NewStore(nil), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
}

func TestListener_Health(t *testing.T) {
	l, _ := newTestListener(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	l.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListener_CheckpointEvent(t *testing.T) {
	l, store := newTestListener(t)

	rec := post(l, "/api/v1/events/checkpoint", `{
		"checkpoint_id": "after_planning",
		"name": "Plan review",
		"phase": "planning",
		"task_id": "task_42",
		"paused_at": "2026-03-14T09:30:00Z",
		"requires_approval": true,
		"warnings": [{"message": "large diff", "severity": "low"}]
	}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	st := store.Snapshot()
	require.NotNil(t, st.Checkpoint)
	assert.Equal(t, "after_planning", st.Checkpoint.CheckpointID)
	assert.Equal(t, approval.PhasePlanning, st.Checkpoint.Phase)
	assert.True(t, st.Checkpoint.RequiresApproval)
	require.Len(t, st.Checkpoint.Warnings, 1)
	assert.Equal(t, "large diff", st.Checkpoint.Warnings[0].Message)
}

func TestListener_CheckpointEventReplacesReviewState(t *testing.T) {
	l, store := newTestListener(t)
	store.SetCheckpoint(&approval.CheckpointInfo{CheckpointID: "after_planning"})
	store.AddFeedback(approval.CheckpointFeedback{ID: "fb-1", CheckpointID: "after_planning"})
	store.SetError("old failure")

	rec := post(l, "/api/v1/events/checkpoint", `{"checkpoint_id": "after_coding"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	st := store.Snapshot()
	assert.Equal(t, "after_coding", st.Checkpoint.CheckpointID)
	assert.Empty(t, st.History)
	assert.Empty(t, st.Err)
}

func TestListener_CheckpointEventRejectsMalformedBody(t *testing.T) {
	l, store := newTestListener(t)

	rec := post(l, "/api/v1/events/checkpoint", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, store.Snapshot().Checkpoint, "malformed event must not touch the store")
}

func TestListener_CheckpointEventRequiresID(t *testing.T) {
	l, store := newTestListener(t)

	rec := post(l, "/api/v1/events/checkpoint", `{"name": "missing id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, store.Snapshot().Checkpoint)
}

func TestListener_ResumeEventClearsStore(t *testing.T) {
	l, store := newTestListener(t)
	store.SetCheckpoint(&approval.CheckpointInfo{CheckpointID: "after_planning"})
	store.SetProcessing(true)
	store.AddFeedback(approval.CheckpointFeedback{ID: "fb-1"})
	store.SetError("x")

	rec := post(l, "/api/v1/events/resume", `{"task_id": "task_42"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	st := store.Snapshot()
	assert.Nil(t, st.Checkpoint)
	assert.False(t, st.Processing)
	assert.Empty(t, st.History)
	assert.Empty(t, st.Err)
}

func TestListener_ResumeEventIsIdempotent(t *testing.T) {
	l, _ := newTestListener(t)

	rec := post(l, "/api/v1/events/resume", `{}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
