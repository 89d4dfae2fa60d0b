package approval

import (
	"time"
)

// Phase tags the pipeline stage a checkpoint belongs to. The store treats it
// as opaque; the UI uses it for badge rendering only.
type Phase string

const (
	// PhasePlanning is the plan stage before any code is produced.
	PhasePlanning Phase = "planning"
	// PhaseCoding is the implementation stage.
	PhaseCoding Phase = "coding"
	// PhaseReview is the self-review stage after implementation.
	PhaseReview Phase = "review"
)

// Artifact references an output produced before the pipeline paused.
type Artifact struct {
	// Name is the display name of the artifact.
	Name string `json:"name"`

	// Path locates the artifact in the task workspace.
	Path string `json:"path"`

	// Kind classifies the artifact (file, diff, report).
	Kind string `json:"kind,omitempty"`
}

// Decision is a structured record of a choice the pipeline made, surfaced to
// the reviewer. Opaque to the store.
type Decision struct {
	Title     string `json:"title"`
	Rationale string `json:"rationale,omitempty"`
}

// Warning is a structured caution surfaced to the reviewer. Opaque to the store.
type Warning struct {
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// CheckpointInfo is an immutable snapshot describing one pause point.
type CheckpointInfo struct {
	// CheckpointID is the stable identifier of the checkpoint kind, a named
	// gate in the pipeline's phase sequence (e.g. "after_planning").
	CheckpointID string `json:"checkpoint_id"`

	// Name is a human-readable name for the checkpoint.
	Name string `json:"name"`

	// Description describes what the pipeline was doing when it paused.
	Description string `json:"description"`

	// Summary is a condensed summary of the work so far.
	Summary string `json:"summary"`

	// Phase is the pipeline phase this checkpoint belongs to.
	Phase Phase `json:"phase"`

	// TaskID identifies the owning task run.
	TaskID string `json:"task_id"`

	// PausedAt is when the pipeline suspended.
	PausedAt time.Time `json:"paused_at"`

	// Artifacts are references to produced outputs, display only.
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// Decisions made by the pipeline up to this pause point.
	Decisions []Decision `json:"decisions,omitempty"`

	// Warnings raised by the pipeline up to this pause point.
	Warnings []Warning `json:"warnings,omitempty"`

	// RequiresApproval indicates resuming needs explicit reviewer sign-off.
	// The store does not enforce this; the UI and pipeline read it.
	RequiresApproval bool `json:"requires_approval"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (c *CheckpointInfo) Clone() *CheckpointInfo {
	if c == nil {
		return nil
	}
	out := *c
	if c.Artifacts != nil {
		out.Artifacts = append([]Artifact(nil), c.Artifacts...)
	}
	if c.Decisions != nil {
		out.Decisions = append([]Decision(nil), c.Decisions...)
	}
	if c.Warnings != nil {
		out.Warnings = append([]Warning(nil), c.Warnings...)
	}
	return &out
}

// Equal reports value equality, treating nil and empty slices alike.
func (c *CheckpointInfo) Equal(o *CheckpointInfo) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.CheckpointID != o.CheckpointID ||
		c.Name != o.Name ||
		c.Description != o.Description ||
		c.Summary != o.Summary ||
		c.Phase != o.Phase ||
		c.TaskID != o.TaskID ||
		!c.PausedAt.Equal(o.PausedAt) ||
		c.RequiresApproval != o.RequiresApproval {
		return false
	}
	if len(c.Artifacts) != len(o.Artifacts) ||
		len(c.Decisions) != len(o.Decisions) ||
		len(c.Warnings) != len(o.Warnings) {
		return false
	}
	for i := range c.Artifacts {
		if c.Artifacts[i] != o.Artifacts[i] {
			return false
		}
	}
	for i := range c.Decisions {
		if c.Decisions[i] != o.Decisions[i] {
			return false
		}
	}
	for i := range c.Warnings {
		if c.Warnings[i] != o.Warnings[i] {
			return false
		}
	}
	return true
}

// Attachment references a file attached to a feedback submission.
type Attachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// CheckpointFeedback is one reviewer submission against a checkpoint.
type CheckpointFeedback struct {
	// ID is caller-supplied; the store neither generates nor deduplicates it.
	ID string `json:"id"`

	// CheckpointID names the checkpoint this was written against. The store
	// does not cross-validate it against the current checkpoint.
	CheckpointID string `json:"checkpoint_id"`

	// Feedback is the reviewer's free text.
	Feedback string `json:"feedback"`

	// Attachments are optional file references.
	Attachments []Attachment `json:"attachments,omitempty"`

	// CreatedAt is when the feedback was created.
	CreatedAt time.Time `json:"created_at"`
}

// Equal reports value equality, treating nil and empty attachments alike.
func (f CheckpointFeedback) Equal(o CheckpointFeedback) bool {
	if f.ID != o.ID ||
		f.CheckpointID != o.CheckpointID ||
		f.Feedback != o.Feedback ||
		!f.CreatedAt.Equal(o.CreatedAt) {
		return false
	}
	if len(f.Attachments) != len(o.Attachments) {
		return false
	}
	for i := range f.Attachments {
		if f.Attachments[i] != o.Attachments[i] {
			return false
		}
	}
	return true
}

func cloneFeedback(f CheckpointFeedback) CheckpointFeedback {
	if f.Attachments != nil {
		f.Attachments = append([]Attachment(nil), f.Attachments...)
	}
	return f
}

func cloneHistory(history []CheckpointFeedback) []CheckpointFeedback {
	if history == nil {
		return nil
	}
	out := make([]CheckpointFeedback, len(history))
	for i, f := range history {
		out[i] = cloneFeedback(f)
	}
	return out
}
