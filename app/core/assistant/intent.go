package assistant

import "strings"

// Intent is the classified operation category for a user message.
type Intent string

const (
	IntentCreate  Intent = "create"
	IntentUpdate  Intent = "update"
	IntentDelete  Intent = "delete"
	IntentQuery   Intent = "query"
	IntentMixed   Intent = "mixed"
	IntentSubtask Intent = "subtask"
)

// SubtaskOp is the sub-operation for subtask-related requests.
type SubtaskOp string

const (
	SubtaskAdd     SubtaskOp = "add"
	SubtaskDelete  SubtaskOp = "delete"
	SubtaskUpdate  SubtaskOp = "update"
	SubtaskGeneric SubtaskOp = "generic"
)

var deleteKeywords = []string{
	"删除", "删掉", "删了", "移除", "去掉", "清除", "取消掉",
	"delete", "remove",
}

var deleteNegations = []string{
	"不做", "不用做", "暂时不",
}

var updateKeywords = []string{
	"修改", "更改", "改为", "改成", "调整", "推迟", "延期", "提前",
	"改到", "标记", "换成", "update", "change", "reschedule",
}

// Completion phrasing means "mark done", which is an update even when
// it co-occurs with colloquial drop-it wording.
var completionKeywords = []string{
	"完成", "做完", "搞定", "干完", "done", "finish", "finished",
}

var queryKeywords = []string{
	"查询", "查看", "看看", "看一下", "有哪些", "有什么", "多少个",
	"几个", "列出", "统计", "show", "list", "query",
}

var pastKeywords = []string{
	"昨天", "前天", "上周", "上个星期", "上月", "上个月", "过去",
	"之前", "以前", "已完成", "历史",
}

var subtaskKeywords = []string{
	"子任务", "子项", "步骤", "清单项", "小任务", "subtask",
}

// Classify scores the text against the keyword sets and picks the
// operation category. A scoring approach tolerates multi-intent
// phrasing while keeping the decision deterministic.
func Classify(text string) Intent {
	if _, ok := ClassifySubtask(text); ok {
		return IntentSubtask
	}

	deleteScore := keywordScore(text, deleteKeywords)
	for _, kw := range deleteNegations {
		if strings.Contains(text, kw) {
			deleteScore++
		}
	}

	updateScore := keywordScore(text, updateKeywords)
	if containsAny(text, completionKeywords) {
		updateScore += 3
	}

	queryScore := keywordScore(text, queryKeywords)

	// Both a delete and an update signal means an ambiguous compound
	// request; route it to the mixed path.
	if deleteScore > 0 && updateScore > 0 {
		return IntentMixed
	}
	if deleteScore > updateScore && deleteScore > queryScore {
		return IntentDelete
	}
	if updateScore > deleteScore && updateScore > queryScore {
		return IntentUpdate
	}
	if queryScore > deleteScore && queryScore > updateScore {
		return IntentQuery
	}
	if deleteScore > 0 {
		return IntentDelete
	}
	if updateScore > 0 {
		return IntentUpdate
	}
	if queryScore > 0 {
		return IntentQuery
	}
	return IntentCreate
}

// ClassifySubtask reports whether the text is a subtask edit and, if
// so, which sub-operation. Subtask edits never route through the main
// update/delete/mixed paths.
func ClassifySubtask(text string) (SubtaskOp, bool) {
	if !containsAny(text, subtaskKeywords) {
		return "", false
	}
	switch {
	case containsAny(text, []string{"添加", "增加", "加个", "加一个", "新增", "add"}):
		return SubtaskAdd, true
	case containsAny(text, deleteKeywords):
		return SubtaskDelete, true
	case containsAny(text, updateKeywords) || containsAny(text, completionKeywords):
		return SubtaskUpdate, true
	}
	return SubtaskGeneric, true
}

func keywordScore(text string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			score += 2
		}
	}
	return score
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// TimeScope is the resolved window used to filter which tasks are
// relevant to a request. An empty End leaves the window open-ended.
type TimeScope struct {
	Start       string
	End         string
	IncludePast bool
	Matched     bool
}

type scopeRule struct {
	keywords []string
	resolve  func(DateInfo) (string, string)
	past     bool
}

var scopeRules = []scopeRule{
	{keywords: []string{"前天"}, resolve: func(d DateInfo) (string, string) { return d.DayBeforeYesterday, d.DayBeforeYesterday }, past: true},
	{keywords: []string{"昨天"}, resolve: func(d DateInfo) (string, string) { return d.Yesterday, d.Yesterday }, past: true},
	{keywords: []string{"后天"}, resolve: func(d DateInfo) (string, string) { return d.DayAfterTomorrow, d.DayAfterTomorrow }},
	{keywords: []string{"明天"}, resolve: func(d DateInfo) (string, string) { return d.Tomorrow, d.Tomorrow }},
	{keywords: []string{"今天", "今日"}, resolve: func(d DateInfo) (string, string) { return d.Today, d.Today }},
	{keywords: []string{"上周", "上个星期", "上星期"}, resolve: func(d DateInfo) (string, string) { return d.LastWeek.Start, d.LastWeek.End }, past: true},
	{keywords: []string{"下周", "下个星期", "下星期"}, resolve: func(d DateInfo) (string, string) { return d.NextWeek.Start, d.NextWeek.End }},
	{keywords: []string{"本周", "这周", "这个星期", "这星期"}, resolve: func(d DateInfo) (string, string) { return d.ThisWeek.Start, d.ThisWeek.End }},
	{keywords: []string{"上月", "上个月"}, resolve: func(d DateInfo) (string, string) { return d.LastMonth.Start, d.LastMonth.End }, past: true},
	{keywords: []string{"下月", "下个月"}, resolve: func(d DateInfo) (string, string) { return d.NextMonth.Start, d.NextMonth.End }},
	{keywords: []string{"本月", "这个月"}, resolve: func(d DateInfo) (string, string) { return d.ThisMonth.Start, d.ThisMonth.End }},
}

// ResolveTimeScope matches explicit relative day/week/month phrases
// against the date snapshot. Absent any match the scope defaults to
// from-today-forward: past tasks stay out unless explicitly asked
// for, which prevents "删除会议" from mass-matching history.
func ResolveTimeScope(text string, dates DateInfo) TimeScope {
	for _, rule := range scopeRules {
		if !containsAny(text, rule.keywords) {
			continue
		}
		start, end := rule.resolve(dates)
		return TimeScope{
			Start:       start,
			End:         end,
			IncludePast: rule.past || containsAny(text, pastKeywords),
			Matched:     true,
		}
	}

	includePast := containsAny(text, pastKeywords) ||
		(containsAny(text, []string{"所有", "全部", "每个", "all"}) &&
			containsAny(text, []string{"已完成", "完成的", "做过", "历史"}))
	return TimeScope{
		Start:       dates.Today,
		IncludePast: includePast,
	}
}

// Contains reports whether a task day (YYYY-MM-DD) falls inside the
// scope window.
func (s TimeScope) Contains(day string) bool {
	if s.Matched {
		if day < s.Start {
			return false
		}
		if s.End != "" && day > s.End {
			return false
		}
		return true
	}
	if s.IncludePast {
		return true
	}
	return day >= s.Start
}
