package store

import (
	"context"
	"encoding/json"
	"fmt"

	"planpro/app/pkg/types"
)

// Snapshot file layout for export/import. Field names stay stable so
// exports survive schema changes.
type exportDoc struct {
	Tasks          []types.Task `json:"tasks"`
	ScheduledTasks []Scheduled  `json:"scheduledTasks"`
}

// Export serializes the whole store as indented JSON.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	tasks, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	scheduled, err := s.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}
	doc := exportDoc{Tasks: tasks, ScheduledTasks: scheduled}
	if doc.Tasks == nil {
		doc.Tasks = []types.Task{}
	}
	if doc.ScheduledTasks == nil {
		doc.ScheduledTasks = []Scheduled{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import replaces the store contents with a previously exported
// snapshot. It refuses documents with no tasks section rather than
// silently wiping the database.
func (s *Store) Import(ctx context.Context, raw []byte) (int, error) {
	var doc exportDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("invalid import document: %w", err)
	}
	if doc.Tasks == nil {
		return 0, fmt.Errorf("import document has no tasks section")
	}

	// One transaction for the wipe and the inserts, so a bad row
	// rolls back to the pre-import state instead of an emptied store.
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_tasks`); err != nil {
		return 0, err
	}

	imported := 0
	for _, task := range doc.Tasks {
		if task.ID == "" || task.Title == "" {
			continue
		}
		if task.Status == "" {
			task.Status = types.StatusTodo
		}
		if task.Priority == "" {
			task.Priority = types.PriorityNormal
		}
		if err := insertTask(ctx, tx, task); err != nil {
			return 0, err
		}
		imported++
	}
	for _, sch := range doc.ScheduledTasks {
		if sch.Title == "" || len(sch.RepeatDays) == 0 {
			continue
		}
		if _, err := insertScheduled(ctx, tx, sch); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}
