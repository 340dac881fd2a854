package types

import "context"

// Task status values. Transitions stamp StartTime / CompletedDate,
// see the reconciler and store.
const (
	StatusTodo  = "todo"
	StatusDoing = "doing"
	StatusDone  = "done"
)

// Task priority values.
const (
	PriorityNormal   = "normal"
	PriorityUrgent   = "urgent"
	PriorityCritical = "critical"
)

// Subtask is one entry of a task checklist. Order is positionally
// significant: subtask operations address entries by index.
type Subtask struct {
	Title  string `json:"title"`
	Status string `json:"status"` // todo | done
}

// Task is the user-visible unit of work.
type Task struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Date          string    `json:"date"`               // YYYY-MM-DDTHH:mm, required
	Deadline      string    `json:"deadline,omitempty"` // same format, optional
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	Note          string    `json:"note,omitempty"`
	Subtasks      []Subtask `json:"subtasks,omitempty"`
	StartTime     string    `json:"startTime,omitempty"`
	CompletedDate string    `json:"completedDate,omitempty"`
}

// Clone returns a deep copy. Proposals hold snapshots, never live
// references, so later store mutations cannot alter a pending
// confirmation.
func (t Task) Clone() Task {
	c := t
	if t.Subtasks != nil {
		c.Subtasks = make([]Subtask, len(t.Subtasks))
		copy(c.Subtasks, t.Subtasks)
	}
	return c
}

// Chat message kinds. Exactly one loading entry exists between a user
// message and its resolution; it is always replaced in place.
const (
	MsgText               = "text"
	MsgLoading            = "loading"
	MsgError              = "error"
	MsgTaskCard           = "task_card"
	MsgMultiTaskCard      = "multi_task_card"
	MsgUpdateConfirm      = "update_confirm"
	MsgMultiUpdateConfirm = "multi_update_confirm"
	MsgDeleteConfirm      = "delete_confirm"
	MsgQueryResult        = "query_result"
	MsgSubtaskConfirm     = "subtask_confirm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UpdateProposal pairs a task snapshot with the normalized field
// updates proposed for it. Action distinguishes mixed-intent delete
// rows from plain updates.
type UpdateProposal struct {
	Task    Task              `json:"task"`
	Updates map[string]string `json:"updates,omitempty"`
	Action  string            `json:"action,omitempty"` // update | delete
}

// SubtaskChange is a single directive against a task's subtask list.
type SubtaskChange struct {
	Action   string `json:"action"` // add | delete | update
	Index    int    `json:"index"`
	OldTitle string `json:"old_title,omitempty"`
	NewTitle string `json:"new_title,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ChatMessage is one transcript entry. Kind selects which payload
// fields are meaningful; everything a proposal references is a deep
// copy taken at reconciliation time.
type ChatMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Kind    string `json:"kind"`
	Content string `json:"content,omitempty"`

	// error entries carry the original input so a retry can re-run
	// the pipeline without a positional index.
	OriginalInput string `json:"original_input,omitempty"`
	Intent        string `json:"intent,omitempty"`

	Task             *Task            `json:"task,omitempty"`            // task_card, subtask_confirm
	Tasks            []Task           `json:"tasks,omitempty"`           // multi_task_card, delete_confirm, query_result
	Updates          []UpdateProposal `json:"updates,omitempty"`         // update_confirm, multi_update_confirm
	SubtaskChanges   []SubtaskChange  `json:"subtask_changes,omitempty"` // subtask_confirm
	Summary          string           `json:"summary,omitempty"`         // query_result
	Confirmed        bool             `json:"confirmed,omitempty"`
	ConfirmedIndexes map[int]bool     `json:"confirmed_indexes,omitempty"` // multi_task_card
}

// ModelMessage is one turn handed to the language-model gateway.
type ModelMessage struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// TaskSource is the read side of the external task store. The
// assistant only reads snapshots and emits proposals; it never calls
// mutation entry points.
type TaskSource interface {
	Snapshot(ctx context.Context) ([]Task, error)
}
