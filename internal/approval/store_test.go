package approval

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func planningCheckpoint() *CheckpointInfo {
	return &CheckpointInfo{
		CheckpointID: "after_planning",
		Name:         "Plan review",
		Description:  "The plan is ready for review",
		Summary:      "3 components, 2 migrations",
		Phase:        PhasePlanning,
		TaskID:       "task_42",
		PausedAt:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Artifacts: []Artifact{
			{Name: "plan.md", Path: "docs/plan.md", Kind: "file"},
		},
		Decisions: []Decision{
			{Title: "Use background worker", Rationale: "long-running export"},
		},
		Warnings: []Warning{
			{Message: "schema change is not backwards compatible", Severity: "high"},
		},
		RequiresApproval: true,
	}
}

func codingCheckpoint() *CheckpointInfo {
	return &CheckpointInfo{
		CheckpointID: "after_coding",
		Name:         "Code review",
		Phase:        PhaseCoding,
		TaskID:       "task_42",
		PausedAt:     time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC),
	}
}

func feedback(id, text string) CheckpointFeedback {
	return CheckpointFeedback{
		ID:           id,
		CheckpointID: "after_planning",
		Feedback:     text,
		CreatedAt:    time.Date(2026, 3, 14, 9, 45, 0, 0, time.UTC),
	}
}

func TestStore_InitialState(t *testing.T) {
	s := NewStore(zap.NewNop())

	st := s.Snapshot()
	assert.Nil(t, st.Checkpoint)
	assert.False(t, st.Processing)
	assert.Empty(t, st.History)
	assert.Empty(t, st.Err)
}

func TestStore_SetCheckpointResetsHistoryAndError(t *testing.T) {
	s := NewStore(nil)

	s.SetCheckpoint(planningCheckpoint())
	s.AddFeedback(feedback("fb-1", "add error handling"))
	s.SetError("backend rejected submission")

	s.SetCheckpoint(codingCheckpoint())

	st := s.Snapshot()
	require.NotNil(t, st.Checkpoint)
	assert.Equal(t, "after_coding", st.Checkpoint.CheckpointID)
	assert.Empty(t, st.History)
	assert.Empty(t, st.Err)
}

func TestStore_SetCheckpointNilClearsIdentityOnly(t *testing.T) {
	s := NewStore(nil)
	s.SetCheckpoint(planningCheckpoint())
	s.SetProcessing(true)

	s.SetCheckpoint(nil)

	st := s.Snapshot()
	assert.Nil(t, st.Checkpoint)
	assert.True(t, st.Processing, "nil checkpoint must not reset the processing flag")
	assert.Empty(t, st.History)
}

func TestStore_SetCheckpointKeepsProcessing(t *testing.T) {
	s := NewStore(nil)
	s.SetProcessing(true)
	s.SetError("x")

	s.SetCheckpoint(planningCheckpoint())

	st := s.Snapshot()
	assert.True(t, st.Processing)
	assert.Empty(t, st.Err)
}

func TestStore_AddFeedbackPreservesOrder(t *testing.T) {
	s := NewStore(nil)
	s.SetCheckpoint(planningCheckpoint())

	f1 := feedback("fb-1", "add error handling")
	f2 := feedback("fb-2", "rename the worker")
	s.AddFeedback(f1)
	s.AddFeedback(f2)

	st := s.Snapshot()
	require.Len(t, st.History, 2)
	assert.Equal(t, "fb-1", st.History[0].ID)
	assert.Equal(t, "fb-2", st.History[1].ID)
}

func TestStore_AddFeedbackDoesNotDeduplicate(t *testing.T) {
	s := NewStore(nil)
	f := feedback("fb-1", "same twice")

	s.AddFeedback(f)
	s.AddFeedback(f)

	assert.Len(t, s.Snapshot().History, 2)
}

func TestStore_SetFeedbackHistoryReplacesWholesale(t *testing.T) {
	s := NewStore(nil)
	s.SetFeedbackHistory([]CheckpointFeedback{
		feedback("fb-1", "a"),
		feedback("fb-2", "b"),
	})
	require.Len(t, s.Snapshot().History, 2)

	s.SetFeedbackHistory(nil)
	assert.Empty(t, s.Snapshot().History)
}

func TestStore_SetErrorTouchesOnlyError(t *testing.T) {
	s := NewStore(nil)
	cp := planningCheckpoint()
	s.SetCheckpoint(cp)
	s.AddFeedback(feedback("fb-1", "a"))
	before := s.Snapshot()

	s.SetError("network timeout")

	after := s.Snapshot()
	assert.Equal(t, "network timeout", after.Err)
	assert.True(t, after.Checkpoint.Equal(before.Checkpoint))
	require.Len(t, after.History, 1)
	assert.True(t, after.History[0].Equal(before.History[0]))

	s.SetError("")
	assert.Empty(t, s.Snapshot().Err)
}

func TestStore_ClearResetsEverything(t *testing.T) {
	s := NewStore(nil)
	s.SetCheckpoint(planningCheckpoint())
	s.SetProcessing(true)
	s.AddFeedback(feedback("fb-1", "a"))
	s.SetError("boom")

	s.Clear()

	st := s.Snapshot()
	assert.Nil(t, st.Checkpoint)
	assert.False(t, st.Processing)
	assert.Empty(t, st.History)
	assert.Empty(t, st.Err)
}

func TestStore_SnapshotIsDefensiveCopy(t *testing.T) {
	s := NewStore(nil)
	s.SetCheckpoint(planningCheckpoint())
	s.AddFeedback(feedback("fb-1", "a"))

	st := s.Snapshot()
	st.Checkpoint.Name = "mutated"
	st.Checkpoint.Artifacts[0].Name = "mutated"
	st.History[0].Feedback = "mutated"

	fresh := s.Snapshot()
	assert.Equal(t, "Plan review", fresh.Checkpoint.Name)
	assert.Equal(t, "plan.md", fresh.Checkpoint.Artifacts[0].Name)
	assert.Equal(t, "a", fresh.History[0].Feedback)
}

func TestStore_SetCheckpointClonesInput(t *testing.T) {
	s := NewStore(nil)
	cp := planningCheckpoint()
	s.SetCheckpoint(cp)

	cp.Name = "mutated after set"
	cp.Warnings[0].Message = "mutated"

	st := s.Snapshot()
	assert.Equal(t, "Plan review", st.Checkpoint.Name)
	assert.Equal(t, "schema change is not backwards compatible", st.Checkpoint.Warnings[0].Message)
}

func TestStore_SubscribeNotifiesOnChange(t *testing.T) {
	s := NewStore(nil)

	var got []State
	cancel := s.Subscribe(func(st State) {
		got = append(got, st)
	})
	defer cancel()

	s.SetCheckpoint(planningCheckpoint())
	require.Len(t, got, 1)
	assert.Equal(t, "after_planning", got[0].Checkpoint.CheckpointID)

	s.SetProcessing(true)
	require.Len(t, got, 2)
	assert.True(t, got[1].Processing)
}

func TestStore_SubscribeSkipsNoOpWrites(t *testing.T) {
	s := NewStore(nil)
	s.SetProcessing(false) // already false

	calls := 0
	cancel := s.Subscribe(func(State) { calls++ })
	defer cancel()

	s.SetProcessing(false)
	s.SetError("")
	s.SetFeedbackHistory(nil)
	assert.Zero(t, calls)

	// Replacing a checkpoint with an equal value is still a no-op.
	s.SetCheckpoint(planningCheckpoint())
	assert.Equal(t, 1, calls)
	s.SetCheckpoint(planningCheckpoint())
	assert.Equal(t, 1, calls)
}

func TestStore_SubscribeCancelStopsDelivery(t *testing.T) {
	s := NewStore(nil)

	calls := 0
	cancel := s.Subscribe(func(State) { calls++ })

	s.SetProcessing(true)
	assert.Equal(t, 1, calls)

	cancel()
	cancel() // second cancel is a no-op

	s.SetProcessing(false)
	assert.Equal(t, 1, calls)
}

func TestStore_SubscriberMayReadStore(t *testing.T) {
	s := NewStore(nil)

	var seen bool
	cancel := s.Subscribe(func(State) {
		// Reading from inside a notification must not deadlock.
		_ = s.Snapshot()
		seen = true
	})
	defer cancel()

	s.SetProcessing(true)
	assert.True(t, seen)
}

func TestStore_SubscriberNeverSeesOlderStateAfterNewer(t *testing.T) {
	s := NewStore(nil)

	var mu sync.Mutex
	var seen []State
	cancel := s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	defer cancel()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddFeedback(feedback(fmt.Sprintf("fb-%d", i), "concurrent note"))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, len(seen[i].History), len(seen[i-1].History),
			"each delivered snapshot must be newer than the previous one")
	}
	assert.True(t, seen[len(seen)-1].Equal(s.Snapshot()),
		"the final delivered snapshot matches the final state")
}

// Scenario: a checkpoint arrives, feedback is recorded, then the pipeline
// reaches the next checkpoint. Nothing from the first review survives.
func TestStore_CheckpointTransitionDropsReviewState(t *testing.T) {
	s := NewStore(nil)

	s.SetCheckpoint(planningCheckpoint())
	s.AddFeedback(feedback("fb-1", "add error handling"))

	s.SetCheckpoint(codingCheckpoint())

	st := s.Snapshot()
	assert.Empty(t, st.History)
	assert.Empty(t, st.Err)
	assert.Equal(t, "after_coding", st.Checkpoint.CheckpointID)
}

func TestStateEqual(t *testing.T) {
	a := State{Checkpoint: planningCheckpoint(), History: []CheckpointFeedback{feedback("fb-1", "a")}}
	b := State{Checkpoint: planningCheckpoint(), History: []CheckpointFeedback{feedback("fb-1", "a")}}
	assert.True(t, a.Equal(b))

	b.History[0].Feedback = "b"
	assert.False(t, a.Equal(b))

	assert.True(t, State{}.Equal(State{History: nil}))
	assert.False(t, State{}.Equal(State{Err: "x"}))
	assert.False(t, State{}.Equal(State{Checkpoint: codingCheckpoint()}))
}
