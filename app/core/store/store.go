package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"planpro/app/pkg/types"
)

var ErrTaskNotFound = errors.New("task not found")

// Store persists tasks and recurring schedules in sqlite. It is the
// Snapshot source for the assistant and the apply target for confirmed
// proposals.
type Store struct {
	conn *sql.DB
	path string
}

func (s *Store) Close() error {
	return s.conn.Close()
}

const taskColumns = `id, title, date, deadline, status, priority, note, start_time, completed_date, subtasks`

// updateColumns maps proposal update keys to table columns. Anything
// outside this map is silently ignored.
var updateColumns = map[string]string{
	"title":         "title",
	"date":          "date",
	"deadline":      "deadline",
	"status":        "status",
	"priority":      "priority",
	"note":          "note",
	"startTime":     "start_time",
	"completedDate": "completed_date",
}

// execer lets inserts run on the pool or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) Add(ctx context.Context, task types.Task) error {
	return insertTask(ctx, s.conn, task)
}

func insertTask(ctx context.Context, ex execer, task types.Task) error {
	if strings.TrimSpace(task.ID) == "" {
		return fmt.Errorf("task id is required")
	}
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	subtasks, err := marshalSubtasks(task.Subtasks)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	query := `INSERT INTO tasks (` + taskColumns + `, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = ex.ExecContext(ctx, query,
		task.ID, task.Title, task.Date, task.Deadline, task.Status, task.Priority,
		task.Note, task.StartTime, task.CompletedDate, subtasks, now, now)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	task, err := scanTask(s.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return types.Task{}, ErrTaskNotFound
	}
	return task, err
}

// Snapshot returns every task ordered by scheduled time. It implements
// the assistant's task source.
func (s *Store) Snapshot(ctx context.Context) ([]types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY date ASC, created_at ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ApplyUpdates writes a confirmed update proposal's field map to one
// task and returns the updated row.
func (s *Store) ApplyUpdates(ctx context.Context, id string, updates map[string]string) (types.Task, error) {
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	// Deterministic column order keeps queries stable for tests.
	keys := make([]string, 0, len(updates))
	for k := range updates {
		if _, ok := updateColumns[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return s.Get(ctx, id)
	}

	sets := make([]string, 0, len(keys)+1)
	args := make([]interface{}, 0, len(keys)+2)
	for _, k := range keys {
		sets = append(sets, updateColumns[k]+" = ?")
		args = append(args, updates[k])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().Unix(), id)

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return types.Task{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.Task{}, ErrTaskNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the given tasks and reports how many rows went away.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	deleted := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// ApplySubtaskChanges rewrites one task's subtask list per a confirmed
// subtask proposal. Deletes run in descending index order so earlier
// removals do not shift later targets.
func (s *Store) ApplySubtaskChanges(ctx context.Context, id string, changes []types.SubtaskChange) (types.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return types.Task{}, err
	}

	subtasks := append([]types.Subtask(nil), task.Subtasks...)

	var deletes []int
	for _, ch := range changes {
		switch ch.Action {
		case "add":
			st := types.Subtask{Title: ch.NewTitle, Status: types.StatusTodo}
			if ch.Status != "" {
				st.Status = ch.Status
			}
			subtasks = append(subtasks, st)
		case "update":
			if ch.Index < 0 || ch.Index >= len(subtasks) {
				continue
			}
			if ch.NewTitle != "" {
				subtasks[ch.Index].Title = ch.NewTitle
			}
			if ch.Status != "" {
				subtasks[ch.Index].Status = ch.Status
			}
		case "delete":
			deletes = append(deletes, ch.Index)
		}
	}

	sort.Sort(sort.Reverse(sort.IntSlice(deletes)))
	for _, idx := range deletes {
		if idx < 0 || idx >= len(subtasks) {
			continue
		}
		subtasks = append(subtasks[:idx], subtasks[idx+1:]...)
	}

	raw, err := marshalSubtasks(subtasks)
	if err != nil {
		return types.Task{}, err
	}
	_, err = s.conn.ExecContext(ctx,
		`UPDATE tasks SET subtasks = ?, updated_at = ? WHERE id = ?`,
		raw, time.Now().Unix(), id)
	if err != nil {
		return types.Task{}, err
	}
	return s.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (types.Task, error) {
	var (
		t        types.Task
		subtasks string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Date, &t.Deadline, &t.Status, &t.Priority,
		&t.Note, &t.StartTime, &t.CompletedDate, &subtasks)
	if err != nil {
		return types.Task{}, err
	}
	if subtasks != "" {
		if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
			return types.Task{}, fmt.Errorf("task %s has invalid subtasks json: %w", t.ID, err)
		}
	}
	return t, nil
}

func marshalSubtasks(subtasks []types.Subtask) (string, error) {
	if len(subtasks) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(subtasks)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
