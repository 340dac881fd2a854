package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"planpro/app/pkg/logger"
	"planpro/app/pkg/types"
)

// Scheduled is a recurring task template. RepeatDays holds weekday
// numbers 1..7 with Monday as 1, matching the weekly windows the
// assistant anchors on.
type Scheduled struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	RepeatDays    []int           `json:"repeatDays"`
	Priority      string          `json:"priority"`
	Note          string          `json:"note,omitempty"`
	Subtasks      []types.Subtask `json:"subtasks,omitempty"`
	Enabled       bool            `json:"enabled"`
	LastGenerated string          `json:"lastGenerated,omitempty"` // YYYY-MM-DD
}

const scheduledColumns = `id, title, repeat_days, priority, note, subtasks, enabled, last_generated`

func (s *Store) AddScheduled(ctx context.Context, sch Scheduled) (Scheduled, error) {
	return insertScheduled(ctx, s.conn, sch)
}

func insertScheduled(ctx context.Context, ex execer, sch Scheduled) (Scheduled, error) {
	if strings.TrimSpace(sch.Title) == "" {
		return Scheduled{}, fmt.Errorf("scheduled task title is required")
	}
	if len(sch.RepeatDays) == 0 {
		return Scheduled{}, fmt.Errorf("scheduled task needs at least one repeat day")
	}
	for _, d := range sch.RepeatDays {
		if d < 1 || d > 7 {
			return Scheduled{}, fmt.Errorf("repeat day %d out of range 1..7", d)
		}
	}
	if sch.ID == "" {
		sch.ID = uuid.NewString()
	}
	if sch.Priority == "" {
		sch.Priority = types.PriorityNormal
	}

	days, err := json.Marshal(sch.RepeatDays)
	if err != nil {
		return Scheduled{}, err
	}
	subtasks, err := marshalSubtasks(sch.Subtasks)
	if err != nil {
		return Scheduled{}, err
	}
	query := `INSERT INTO scheduled_tasks (` + scheduledColumns + `, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = ex.ExecContext(ctx, query,
		sch.ID, sch.Title, string(days), sch.Priority, sch.Note, subtasks,
		boolToInt(sch.Enabled), sch.LastGenerated, time.Now().Unix())
	if err != nil {
		return Scheduled{}, err
	}
	return sch, nil
}

func (s *Store) ListScheduled(ctx context.Context) ([]Scheduled, error) {
	query := `SELECT ` + scheduledColumns + ` FROM scheduled_tasks ORDER BY created_at ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Scheduled
	for rows.Next() {
		sch, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sch)
	}
	return items, rows.Err()
}

func (s *Store) SetScheduledEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE scheduled_tasks SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *Store) DeleteScheduled(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// GenerateDue materializes task rows for every enabled schedule from
// the day after its last generation up to today. Days already covered
// are never regenerated, so repeated calls on the same day are no-ops.
func (s *Store) GenerateDue(ctx context.Context, now time.Time) (int, error) {
	schedules, err := s.ListScheduled(ctx)
	if err != nil {
		return 0, err
	}

	today := now.Format("2006-01-02")
	todayDay, _ := time.ParseInLocation("2006-01-02", today, now.Location())

	added := 0
	for _, sch := range schedules {
		if !sch.Enabled {
			continue
		}

		check := todayDay
		if sch.LastGenerated != "" {
			last, err := time.ParseInLocation("2006-01-02", sch.LastGenerated, now.Location())
			if err == nil {
				check = last.AddDate(0, 0, 1)
			}
		}

		for !check.After(todayDay) {
			if containsDay(sch.RepeatDays, mondayWeekday(check)) {
				task := types.Task{
					ID:       fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
					Title:    sch.Title,
					Date:     check.Format("2006-01-02") + "T09:00",
					Status:   types.StatusTodo,
					Priority: sch.Priority,
					Note:     sch.Note,
					Subtasks: append([]types.Subtask(nil), sch.Subtasks...),
				}
				if err := s.Add(ctx, task); err != nil {
					return added, err
				}
				added++
			}
			check = check.AddDate(0, 0, 1)
		}

		if sch.LastGenerated != today {
			if _, err := s.conn.ExecContext(ctx,
				`UPDATE scheduled_tasks SET last_generated = ? WHERE id = ?`, today, sch.ID); err != nil {
				return added, err
			}
		}
	}

	if added > 0 {
		logger.Info("generated %d tasks from schedules", added)
	}
	return added, nil
}

// mondayWeekday maps a date to 1..7 with Monday as 1.
func mondayWeekday(day time.Time) int {
	return (int(day.Weekday())+6)%7 + 1
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func scanScheduled(rows *sql.Rows) (Scheduled, error) {
	var (
		sch      Scheduled
		days     string
		subtasks string
		enabled  int
	)
	err := rows.Scan(&sch.ID, &sch.Title, &days, &sch.Priority, &sch.Note, &subtasks, &enabled, &sch.LastGenerated)
	if err != nil {
		return Scheduled{}, err
	}
	if err := json.Unmarshal([]byte(days), &sch.RepeatDays); err != nil {
		return Scheduled{}, fmt.Errorf("schedule %s has invalid repeat_days: %w", sch.ID, err)
	}
	if subtasks != "" {
		if err := json.Unmarshal([]byte(subtasks), &sch.Subtasks); err != nil {
			return Scheduled{}, fmt.Errorf("schedule %s has invalid subtasks: %w", sch.ID, err)
		}
	}
	sch.Enabled = enabled != 0
	return sch, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
