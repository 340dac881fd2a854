package assistant

import (
	"fmt"
	"strings"

	"planpro/app/pkg/types"
)

var statusLabels = map[string]string{
	types.StatusTodo:  "待办",
	types.StatusDoing: "进行中",
	types.StatusDone:  "已完成",
}

var priorityLabels = map[string]string{
	types.PriorityNormal:   "普通",
	types.PriorityUrgent:   "紧急",
	types.PriorityCritical: "非常紧急",
}

// formatTaskLine renders one task as a single prompt line the model
// can address by id.
func formatTaskLine(t types.Task, dates DateInfo) string {
	day, clock := splitDateTime(t.Date)

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(t.ID)
	b.WriteString("] ")
	b.WriteString(t.Title)
	b.WriteString(" | ")
	b.WriteString(dates.DayLabel(day))
	if clock != "" {
		b.WriteString(" ")
		b.WriteString(clock)
	}
	b.WriteString(" | ")
	b.WriteString(labelOr(statusLabels, t.Status))
	b.WriteString(" | ")
	b.WriteString(labelOr(priorityLabels, t.Priority))
	if t.Deadline != "" {
		b.WriteString(" | 截止: ")
		b.WriteString(strings.Replace(t.Deadline, "T", " ", 1))
	}
	if t.Note != "" {
		b.WriteString(" | 备注: ")
		b.WriteString(t.Note)
	}
	if len(t.Subtasks) > 0 {
		done := 0
		for _, st := range t.Subtasks {
			if st.Status == types.StatusDone {
				done++
			}
		}
		b.WriteString(fmt.Sprintf(" | 子任务: %d/%d", done, len(t.Subtasks)))
	}
	return b.String()
}

func labelOr(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok {
		return v
	}
	return key
}

func splitDateTime(value string) (day string, clock string) {
	day, clock, _ = strings.Cut(value, "T")
	return day, clock
}

func renderTaskList(tasks []types.Task, dates DateInfo) string {
	if len(tasks) == 0 {
		return "（无任务）"
	}
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, formatTaskLine(t, dates))
	}
	return strings.Join(lines, "\n")
}

func promptHeader(dates DateInfo) string {
	var b strings.Builder
	b.WriteString("你是一个任务管理助手。当前时间：")
	b.WriteString(dates.Now.Format("2006-01-02 15:04"))
	b.WriteString("。\n")
	b.WriteString(fmt.Sprintf("日期参考：今天=%s，明天=%s，后天=%s，昨天=%s，前天=%s。\n", dates.Today, dates.Tomorrow, dates.DayAfterTomorrow, dates.Yesterday, dates.DayBeforeYesterday))
	b.WriteString(fmt.Sprintf("本周=%s~%s，下周=%s~%s，本月=%s~%s。\n", dates.ThisWeek.Start, dates.ThisWeek.End, dates.NextWeek.Start, dates.NextWeek.End, dates.ThisMonth.Start, dates.ThisMonth.End))
	return b.String()
}

const strictJSONRules = `【要求】
1. 严格只返回纯 JSON 格式字符串，不要包含 markdown 标记或其他任何文字。
2. 不要包含任何解释性文字。
`

// BuildPrompt assembles the system prompt for the classified intent.
// create/delete/update/mixed/subtask see the full task list (the
// model addresses tasks by id, and create uses it to avoid
// duplicates); query sees only the time-scoped subset.
func BuildPrompt(intent Intent, tasks []types.Task, scope TimeScope, dates DateInfo) string {
	switch intent {
	case IntentCreate:
		return buildCreatePrompt(tasks, dates)
	case IntentDelete:
		return buildDeletePrompt(tasks, dates)
	case IntentUpdate:
		return buildUpdatePrompt(tasks, dates)
	case IntentMixed:
		return buildMixedPrompt(tasks, dates)
	case IntentQuery:
		return buildQueryPrompt(filterByScope(tasks, scope), scope, dates)
	case IntentSubtask:
		return buildSubtaskPrompt(tasks, dates)
	}
	return buildCreatePrompt(tasks, dates)
}

func filterByScope(tasks []types.Task, scope TimeScope) []types.Task {
	out := make([]types.Task, 0, len(tasks))
	for _, t := range tasks {
		day, _ := splitDateTime(t.Date)
		if scope.Contains(day) {
			out = append(out, t)
		}
	}
	return out
}

func buildCreatePrompt(tasks []types.Task, dates DateInfo) string {
	var b strings.Builder
	b.WriteString(promptHeader(dates))
	b.WriteString("请根据用户的自然语言输入生成一个或多个任务对象。\n")
	b.WriteString(strictJSONRules)
	b.WriteString(`3. 单个任务直接返回对象，多个任务返回 {"tasks": [...]}。
4. 每个任务对象包含以下字段：
   - "title": 任务标题 (String)
   - "date": 计划日期时间, 格式 "YYYY-MM-DDTHH:mm" (String)
   - "deadline": 截止时间, 同上格式, 没有则为空字符串 (String)
   - "priority": 优先级, 只能是 "normal"、"urgent" 或 "critical" (String)
   - "note": 备注信息 (String)
   - "subtasks": 子任务标题数组, 没有则为空数组 (Array)
`)
	b.WriteString("\n已有任务（避免重复创建）：\n")
	b.WriteString(renderTaskList(tasks, dates))
	return b.String()
}

func buildDeletePrompt(tasks []types.Task, dates DateInfo) string {
	var b strings.Builder
	b.WriteString(promptHeader(dates))
	b.WriteString("用户想删除某些任务。请从下面的任务列表中找出用户想删除的任务。\n")
	b.WriteString(strictJSONRules)
	b.WriteString(`3. 返回格式：{"delete_task_ids": ["id1", "id2"]}，id 必须来自任务列表。
`)
	b.WriteString("\n任务列表：\n")
	b.WriteString(renderTaskList(tasks, dates))
	return b.String()
}

func buildUpdatePrompt(tasks []types.Task, dates DateInfo) string {
	var b strings.Builder
	b.WriteString(promptHeader(dates))
	b.WriteString("用户想修改某些任务。请从任务列表中找出目标任务并给出要修改的字段。\n")
	b.WriteString(strictJSONRules)
	b.WriteString(`3. 返回格式：{"operations": [{"task_id": "...", "updates": {...}}]}。
4. updates 中只包含需要修改的字段：title / date / deadline / priority / status / note。
5. priority 只能是 "normal"、"urgent"、"critical"；status 只能是 "todo"、"doing"、"done"。
`)
	b.WriteString("\n任务列表：\n")
	b.WriteString(renderTaskList(tasks, dates))
	return b.String()
}

func buildMixedPrompt(tasks []types.Task, dates DateInfo) string {
	var b strings.Builder
	b.WriteString(promptHeader(dates))
	b.WriteString("用户的请求同时包含删除和修改。请把每个操作拆开列出。\n")
	b.WriteString(strictJSONRules)
	b.WriteString(`3. 返回格式：{"operations": [{"task_id": "...", "action": "update", "updates": {...}}, {"task_id": "...", "action": "delete"}]}。
4. action 只能是 "update" 或 "delete"；delete 操作不需要 updates。
5. updates 字段规则与修改任务相同。
`)
	b.WriteString("\n任务列表：\n")
	b.WriteString(renderTaskList(tasks, dates))
	return b.String()
}

func buildQueryPrompt(tasks []types.Task, scope TimeScope, dates DateInfo) string {
	var b strings.Builder
	b.WriteString(promptHeader(dates))
	b.WriteString("用户想查询任务。请从任务列表中找出符合条件的任务并简要总结。\n")
	b.WriteString(strictJSONRules)
	b.WriteString(`3. 返回格式：{"matched_task_ids": [...], "summary": "...", "filter_description": "..."}。
`)
	if scope.Matched {
		b.WriteString(fmt.Sprintf("\n查询时间范围：%s ~ %s\n", scope.Start, scope.End))
	}
	b.WriteString("\n任务列表：\n")
	b.WriteString(renderTaskList(tasks, dates))
	return b.String()
}

func buildSubtaskPrompt(tasks []types.Task, dates DateInfo) string {
	var b strings.Builder
	b.WriteString(promptHeader(dates))
	b.WriteString("用户想编辑某个任务的子任务。请找出目标任务并列出子任务变更。\n")
	b.WriteString(strictJSONRules)
	b.WriteString(`3. 返回格式：{"task_id": "...", "operation": "add|delete|update", "subtask_changes": [{"action": "add|delete|update", "index": 0, "old_title": "...", "new_title": "...", "status": "todo|done"}], "message": "..."}。
4. index 从 0 开始，对应任务当前的子任务顺序；add 操作的 index 忽略。
5. 找不到目标任务时返回空的 task_id，并在 message 里说明原因。
`)
	b.WriteString("\n任务列表（含子任务）：\n")
	for _, t := range tasks {
		b.WriteString(formatTaskLine(t, dates))
		b.WriteString("\n")
		for i, st := range t.Subtasks {
			b.WriteString(fmt.Sprintf("    %d. %s [%s]\n", i, st.Title, labelOr(statusLabels, st.Status)))
		}
	}
	if len(tasks) == 0 {
		b.WriteString("（无任务）\n")
	}
	return b.String()
}
