package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"planpro/app/pkg/types"
)

// Reconciliation failure texts. Model unreliability is expected: a
// bad reply becomes a readable chat message, never an error.
const (
	msgParseFailed   = "解析失败，请重试或换一种说法。"
	msgNotUnderstood = "无法理解您的输入，请描述得更具体一些。"
	msgNoMatch       = "未找到匹配的任务。"
)

// Reconcile turns raw model text into a confirmable proposal message.
// It validates and normalizes per intent, deep-copies every referenced
// task snapshot and never applies a mutation itself.
func Reconcile(intent Intent, raw string, tasks []types.Task, dates DateInfo) types.ChatMessage {
	payload, err := extractJSONObject(stripFences(raw))
	if err != nil || !gjson.Valid(payload) {
		return textMessage(msgParseFailed)
	}
	doc := gjson.Parse(payload)

	switch intent {
	case IntentCreate:
		return reconcileCreate(doc, dates)
	case IntentDelete:
		return reconcileDelete(doc, tasks)
	case IntentUpdate:
		return reconcileUpdate(doc, tasks, dates, false)
	case IntentMixed:
		return reconcileUpdate(doc, tasks, dates, true)
	case IntentQuery:
		return reconcileQuery(doc, tasks)
	case IntentSubtask:
		return reconcileSubtask(doc, tasks)
	}
	return textMessage(msgNotUnderstood)
}

// stripFences removes ```json and plain ``` markers the model was
// told not to emit but often does anyway.
func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// extractJSONObject returns the first balanced top-level {...} span,
// counting brace depth and skipping string literals so prose around
// the payload cannot shift the boundaries.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", fmt.Errorf("no json object found")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced json object")
}

func textMessage(content string) types.ChatMessage {
	return types.ChatMessage{
		ID:      uuid.NewString(),
		Role:    types.RoleAssistant,
		Kind:    types.MsgText,
		Content: content,
	}
}

func proposalMessage(kind string) types.ChatMessage {
	return types.ChatMessage{
		ID:   uuid.NewString(),
		Role: types.RoleAssistant,
		Kind: kind,
	}
}

// NewTaskID builds a time-based id with a random suffix so bulk
// creation within one millisecond cannot collide.
func NewTaskID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// matchTask resolves a model-returned id against the live list. A
// candidate matches on equality or as a trailing suffix of a live id,
// defensive against models that truncate long numeric ids.
func matchTask(tasks []types.Task, candidate string) (types.Task, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return types.Task{}, false
	}
	for _, t := range tasks {
		if t.ID == candidate {
			return t, true
		}
	}
	for _, t := range tasks {
		if strings.HasSuffix(t.ID, candidate) {
			return t, true
		}
	}
	return types.Task{}, false
}

var priorityAliases = map[string]string{
	"normal":   types.PriorityNormal,
	"普通":       types.PriorityNormal,
	"正常":       types.PriorityNormal,
	"urgent":   types.PriorityUrgent,
	"紧急":       types.PriorityUrgent,
	"critical": types.PriorityCritical,
	"非常紧急":     types.PriorityCritical,
	"特急":       types.PriorityCritical,
}

var statusAliases = map[string]string{
	"todo":        types.StatusTodo,
	"待办":          types.StatusTodo,
	"未开始":         types.StatusTodo,
	"doing":       types.StatusDoing,
	"in_progress": types.StatusDoing,
	"进行中":         types.StatusDoing,
	"done":        types.StatusDone,
	"完成":          types.StatusDone,
	"已完成":         types.StatusDone,
}

func normalizePriority(value string) (string, bool) {
	v, ok := priorityAliases[strings.ToLower(strings.TrimSpace(value))]
	return v, ok
}

func normalizeStatus(value string) (string, bool) {
	v, ok := statusAliases[strings.ToLower(strings.TrimSpace(value))]
	return v, ok
}

func reconcileCreate(doc gjson.Result, dates DateInfo) types.ChatMessage {
	var items []gjson.Result
	if arr := doc.Get("tasks"); arr.IsArray() {
		items = arr.Array()
	} else if doc.IsObject() {
		items = []gjson.Result{doc}
	}

	proposed := make([]types.Task, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		proposed = append(proposed, buildProposedTask(item, dates))
	}
	if len(proposed) == 0 {
		return textMessage(msgNotUnderstood)
	}

	if len(proposed) == 1 {
		msg := proposalMessage(types.MsgTaskCard)
		task := proposed[0]
		msg.Task = &task
		return msg
	}
	msg := proposalMessage(types.MsgMultiTaskCard)
	msg.Tasks = proposed
	msg.ConfirmedIndexes = map[int]bool{}
	return msg
}

func buildProposedTask(item gjson.Result, dates DateInfo) types.Task {
	title := strings.TrimSpace(item.Get("title").String())
	if title == "" {
		title = "未命名任务"
	}
	date := strings.TrimSpace(item.Get("date").String())
	if date == "" {
		date = dates.Today + "T09:00"
	}
	priority, ok := normalizePriority(item.Get("priority").String())
	if !ok {
		priority = types.PriorityNormal
	}

	// The model may return subtasks as bare strings or as objects;
	// both normalize to {title, status: todo}.
	var subtasks []types.Subtask
	for _, st := range item.Get("subtasks").Array() {
		title := st.String()
		if st.IsObject() {
			title = st.Get("title").String()
		}
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		subtasks = append(subtasks, types.Subtask{Title: title, Status: types.StatusTodo})
	}

	return types.Task{
		ID:       NewTaskID(dates.Now),
		Title:    title,
		Date:     date,
		Deadline: strings.TrimSpace(item.Get("deadline").String()),
		Status:   types.StatusTodo,
		Priority: priority,
		Note:     strings.TrimSpace(item.Get("note").String()),
		Subtasks: subtasks,
	}
}

func reconcileDelete(doc gjson.Result, tasks []types.Task) types.ChatMessage {
	seen := map[string]bool{}
	var matched []types.Task
	for _, id := range doc.Get("delete_task_ids").Array() {
		t, ok := matchTask(tasks, id.String())
		if !ok || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		matched = append(matched, t.Clone())
	}
	if len(matched) == 0 {
		return textMessage(msgNoMatch)
	}
	msg := proposalMessage(types.MsgDeleteConfirm)
	msg.Tasks = matched
	return msg
}

// reconcileUpdate handles both plain update and mixed replies. The
// two paths share one normalization policy: invalid priority/status
// values are dropped, never coerced.
func reconcileUpdate(doc gjson.Result, tasks []types.Task, dates DateInfo, mixed bool) types.ChatMessage {
	var proposals []types.UpdateProposal
	for _, op := range doc.Get("operations").Array() {
		target, ok := matchTask(tasks, op.Get("task_id").String())
		if !ok {
			continue
		}
		action := strings.ToLower(strings.TrimSpace(op.Get("action").String()))
		if mixed && action == "delete" {
			proposals = append(proposals, types.UpdateProposal{
				Task:   target.Clone(),
				Action: "delete",
			})
			continue
		}
		updates := normalizeUpdates(op.Get("updates"), target, dates)
		if len(updates) == 0 {
			continue
		}
		proposals = append(proposals, types.UpdateProposal{
			Task:    target.Clone(),
			Updates: updates,
			Action:  "update",
		})
	}
	if len(proposals) == 0 {
		return textMessage(msgNoMatch)
	}

	if len(proposals) == 1 && !mixed {
		msg := proposalMessage(types.MsgUpdateConfirm)
		msg.Updates = proposals
		return msg
	}
	msg := proposalMessage(types.MsgMultiUpdateConfirm)
	msg.Updates = proposals
	return msg
}

func normalizeUpdates(updates gjson.Result, target types.Task, dates DateInfo) map[string]string {
	out := map[string]string{}
	if !updates.IsObject() {
		return out
	}
	for key, value := range updates.Map() {
		v := strings.TrimSpace(value.String())
		switch key {
		case "title":
			if v != "" {
				out["title"] = v
			}
		case "date":
			// date is required on a task, so an empty value cannot
			// clear it; deadline and note stay clearable below.
			if v != "" {
				out["date"] = v
			}
		case "deadline", "note":
			out[key] = v
		case "priority":
			if p, ok := normalizePriority(v); ok {
				out["priority"] = p
			}
		case "status":
			s, ok := normalizeStatus(v)
			if !ok {
				continue
			}
			out["status"] = s
			now := dates.Now.Format(minuteLayout)
			switch s {
			case types.StatusDone:
				out["completedDate"] = now
			case types.StatusDoing:
				// Idempotent: repeated "in progress" must not clobber
				// an existing start time.
				if target.StartTime == "" {
					out["startTime"] = now
				}
			}
		}
	}
	return out
}

func reconcileQuery(doc gjson.Result, tasks []types.Task) types.ChatMessage {
	seen := map[string]bool{}
	var matched []types.Task
	for _, id := range doc.Get("matched_task_ids").Array() {
		t, ok := matchTask(tasks, id.String())
		if !ok || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		matched = append(matched, t.Clone())
	}
	summary := strings.TrimSpace(doc.Get("summary").String())
	if len(matched) == 0 && summary == "" {
		return textMessage(msgNoMatch)
	}
	msg := proposalMessage(types.MsgQueryResult)
	msg.Tasks = matched
	msg.Summary = summary
	msg.Content = strings.TrimSpace(doc.Get("filter_description").String())
	return msg
}

func reconcileSubtask(doc gjson.Result, tasks []types.Task) types.ChatMessage {
	fallback := strings.TrimSpace(doc.Get("message").String())
	if fallback == "" {
		fallback = msgNoMatch
	}

	target, ok := matchTask(tasks, doc.Get("task_id").String())
	if !ok {
		return textMessage(fallback)
	}

	var changes []types.SubtaskChange
	for _, ch := range doc.Get("subtask_changes").Array() {
		action := strings.ToLower(strings.TrimSpace(ch.Get("action").String()))
		index := int(ch.Get("index").Int())
		switch action {
		case "add":
			title := strings.TrimSpace(ch.Get("new_title").String())
			if title == "" {
				continue
			}
			changes = append(changes, types.SubtaskChange{Action: "add", NewTitle: title})
		case "delete":
			if index < 0 || index >= len(target.Subtasks) {
				continue
			}
			changes = append(changes, types.SubtaskChange{
				Action:   "delete",
				Index:    index,
				OldTitle: target.Subtasks[index].Title,
			})
		case "update":
			if index < 0 || index >= len(target.Subtasks) {
				continue
			}
			// Subtasks only know todo and done; doing aliases are
			// dropped along with anything unrecognized.
			status := strings.TrimSpace(ch.Get("status").String())
			if status != "" {
				if s, ok := normalizeStatus(status); ok && s != types.StatusDoing {
					status = s
				} else {
					status = ""
				}
			}
			change := types.SubtaskChange{
				Action:   "update",
				Index:    index,
				OldTitle: target.Subtasks[index].Title,
				NewTitle: strings.TrimSpace(ch.Get("new_title").String()),
				Status:   status,
			}
			if change.NewTitle == "" && change.Status == "" {
				continue
			}
			changes = append(changes, change)
		}
	}
	if len(changes) == 0 {
		return textMessage(fallback)
	}

	snapshot := target.Clone()
	msg := proposalMessage(types.MsgSubtaskConfirm)
	msg.Task = &snapshot
	msg.SubtaskChanges = changes
	msg.Content = strings.TrimSpace(doc.Get("message").String())
	return msg
}
