package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"planpro/app/core/assistant"
	"planpro/app/core/store"
	"planpro/app/pkg/types"

	config "planpro/app/configs"
)

// Session is the interactive terminal frontend. It owns the apply
// step: the assistant only proposes, and nothing touches the store
// until the user answers the confirmation prompt here.
type Session struct {
	conv    *assistant.Conversation
	store   *store.Store
	manager *config.Manager
	gateway Prober

	in  *bufio.Scanner
	out io.Writer

	// last error entry id, the /retry target
	lastErrorID string
}

// Prober is the slice of the provider client the session calls
// directly, beyond what the conversation already wraps.
type Prober interface {
	TestConnection(ctx context.Context, cfg config.AIConfig) error
}

func NewSession(conv *assistant.Conversation, st *store.Store, manager *config.Manager, gateway Prober, in io.Reader, out io.Writer) *Session {
	return &Session{
		conv:    conv,
		store:   st,
		manager: manager,
		gateway: gateway,
		in:      bufio.NewScanner(in),
		out:     out,
	}
}

// Run reads lines until exit or EOF. Slash commands dispatch locally;
// everything else goes through the assistant pipeline.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, ">> PlanPro 任务助手已启动，输入 /help 查看命令，/exit 退出。")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(s.out, "> ")
		if !s.in.Scan() {
			return s.in.Err()
		}
		text := strings.TrimSpace(s.in.Text())
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "/") {
			done, err := s.executeSlash(ctx, text)
			if err != nil {
				fmt.Fprintf(s.out, "命令执行失败: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		s.handleMessage(ctx, text)
	}
}

func (s *Session) handleMessage(ctx context.Context, text string) {
	result, err := s.conv.Send(ctx, text)
	if err != nil {
		s.printSendError(err)
		return
	}
	s.presentResult(ctx, result)
}

func (s *Session) printSendError(err error) {
	switch {
	case err == assistant.ErrBusy:
		fmt.Fprintln(s.out, "上一条请求还在处理中，请稍候。")
	case err == assistant.ErrEmptyInput:
		// prompt loop already skips blank lines
	default:
		fmt.Fprintf(s.out, "无法发送: %v\n请检查 /config 中的 AI 设置。\n", err)
	}
}

// presentResult renders an assistant entry and, for proposal kinds,
// runs the confirm-then-apply exchange.
func (s *Session) presentResult(ctx context.Context, msg types.ChatMessage) {
	switch msg.Kind {
	case types.MsgText:
		fmt.Fprintf(s.out, "[助手] %s\n", msg.Content)
	case types.MsgError:
		s.lastErrorID = msg.ID
		fmt.Fprintf(s.out, "[助手] %s\n输入 /retry 重试。\n", msg.Content)
	case types.MsgQueryResult:
		s.renderQueryResult(msg)
	case types.MsgTaskCard:
		s.confirmTaskCard(ctx, msg)
	case types.MsgMultiTaskCard:
		s.confirmMultiTaskCard(ctx, msg)
	case types.MsgUpdateConfirm, types.MsgMultiUpdateConfirm:
		s.confirmUpdates(ctx, msg)
	case types.MsgDeleteConfirm:
		s.confirmDelete(ctx, msg)
	case types.MsgSubtaskConfirm:
		s.confirmSubtasks(ctx, msg)
	default:
		fmt.Fprintf(s.out, "[助手] %s\n", msg.Content)
	}
}

// ask prints a yes/no prompt and reads one answer line.
func (s *Session) ask(prompt string) bool {
	fmt.Fprintf(s.out, "%s (y/n) ", prompt)
	if !s.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(s.in.Text()))
	return answer == "y" || answer == "yes" || answer == "是"
}

func (s *Session) confirmTaskCard(ctx context.Context, msg types.ChatMessage) {
	fmt.Fprintln(s.out, "[助手] 将创建任务：")
	s.renderTask(*msg.Task, "  ")
	if !s.ask("确认创建？") {
		fmt.Fprintln(s.out, "已取消。")
		return
	}
	if err := s.store.Add(ctx, *msg.Task); err != nil {
		fmt.Fprintf(s.out, "创建失败: %v\n", err)
		return
	}
	s.conv.Confirm(msg.ID)
	fmt.Fprintf(s.out, "已创建「%s」。\n", msg.Task.Title)
}

func (s *Session) confirmMultiTaskCard(ctx context.Context, msg types.ChatMessage) {
	fmt.Fprintf(s.out, "[助手] 将创建 %d 个任务：\n", len(msg.Tasks))
	created := 0
	for i, task := range msg.Tasks {
		s.renderTask(task, "  ")
		if !s.ask(fmt.Sprintf("确认创建第 %d 个？", i+1)) {
			continue
		}
		if err := s.store.Add(ctx, task); err != nil {
			fmt.Fprintf(s.out, "创建失败: %v\n", err)
			continue
		}
		s.conv.ConfirmIndex(msg.ID, i)
		created++
	}
	fmt.Fprintf(s.out, "共创建 %d 个任务。\n", created)
}

func (s *Session) confirmUpdates(ctx context.Context, msg types.ChatMessage) {
	fmt.Fprintln(s.out, "[助手] 将执行以下变更：")
	for _, up := range msg.Updates {
		if up.Action == "delete" {
			fmt.Fprintf(s.out, "  删除「%s」\n", up.Task.Title)
			continue
		}
		fmt.Fprintf(s.out, "  修改「%s」：%s\n", up.Task.Title, formatUpdates(up.Updates))
	}
	if !s.ask("确认执行？") {
		fmt.Fprintln(s.out, "已取消。")
		return
	}

	var deleteIDs []string
	for _, up := range msg.Updates {
		if up.Action == "delete" {
			deleteIDs = append(deleteIDs, up.Task.ID)
			continue
		}
		if _, err := s.store.ApplyUpdates(ctx, up.Task.ID, up.Updates); err != nil {
			fmt.Fprintf(s.out, "修改「%s」失败: %v\n", up.Task.Title, err)
		}
	}
	if len(deleteIDs) > 0 {
		if _, err := s.store.Delete(ctx, deleteIDs); err != nil {
			fmt.Fprintf(s.out, "删除失败: %v\n", err)
		}
	}
	s.conv.Confirm(msg.ID)
	fmt.Fprintln(s.out, "已执行。")
}

func (s *Session) confirmDelete(ctx context.Context, msg types.ChatMessage) {
	fmt.Fprintf(s.out, "[助手] 将删除 %d 个任务：\n", len(msg.Tasks))
	ids := make([]string, 0, len(msg.Tasks))
	for _, task := range msg.Tasks {
		fmt.Fprintf(s.out, "  「%s」\n", task.Title)
		ids = append(ids, task.ID)
	}
	if !s.ask("确认删除？") {
		fmt.Fprintln(s.out, "已取消。")
		return
	}
	n, err := s.store.Delete(ctx, ids)
	if err != nil {
		fmt.Fprintf(s.out, "删除失败: %v\n", err)
		return
	}
	s.conv.Confirm(msg.ID)
	fmt.Fprintf(s.out, "已删除 %d 个任务。\n", n)
}

func (s *Session) confirmSubtasks(ctx context.Context, msg types.ChatMessage) {
	fmt.Fprintf(s.out, "[助手] 将调整「%s」的子任务：\n", msg.Task.Title)
	for _, ch := range msg.SubtaskChanges {
		switch ch.Action {
		case "add":
			fmt.Fprintf(s.out, "  添加「%s」\n", ch.NewTitle)
		case "delete":
			fmt.Fprintf(s.out, "  删除「%s」\n", ch.OldTitle)
		case "update":
			if ch.NewTitle != "" && ch.NewTitle != ch.OldTitle {
				fmt.Fprintf(s.out, "  「%s」改为「%s」\n", ch.OldTitle, ch.NewTitle)
			}
			if ch.Status != "" {
				fmt.Fprintf(s.out, "  「%s」状态改为 %s\n", ch.OldTitle, ch.Status)
			}
		}
	}
	if !s.ask("确认执行？") {
		fmt.Fprintln(s.out, "已取消。")
		return
	}
	if _, err := s.store.ApplySubtaskChanges(ctx, msg.Task.ID, msg.SubtaskChanges); err != nil {
		fmt.Fprintf(s.out, "执行失败: %v\n", err)
		return
	}
	s.conv.Confirm(msg.ID)
	fmt.Fprintln(s.out, "已执行。")
}

func (s *Session) renderQueryResult(msg types.ChatMessage) {
	if msg.Summary != "" {
		fmt.Fprintf(s.out, "[助手] %s\n", msg.Summary)
	}
	for _, task := range msg.Tasks {
		s.renderTask(task, "  ")
	}
}

func (s *Session) renderTask(task types.Task, indent string) {
	line := fmt.Sprintf("%s%s | %s | %s | %s", indent, task.Title,
		strings.Replace(task.Date, "T", " ", 1), statusLabel(task.Status), priorityLabel(task.Priority))
	if task.Note != "" {
		line += " | " + task.Note
	}
	fmt.Fprintln(s.out, line)
	for _, st := range task.Subtasks {
		marker := " "
		if st.Status == types.StatusDone {
			marker = "x"
		}
		fmt.Fprintf(s.out, "%s  [%s] %s\n", indent, marker, st.Title)
	}
}

func formatUpdates(updates map[string]string) string {
	labels := map[string]string{
		"title":         "标题",
		"date":          "时间",
		"deadline":      "截止",
		"status":        "状态",
		"priority":      "优先级",
		"note":          "备注",
		"startTime":     "开始时间",
		"completedDate": "完成时间",
	}
	parts := make([]string, 0, len(updates))
	for _, key := range []string{"title", "date", "deadline", "status", "priority", "note", "startTime", "completedDate"} {
		v, ok := updates[key]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s→%s", labels[key], v))
	}
	return strings.Join(parts, ", ")
}

func statusLabel(status string) string {
	switch status {
	case types.StatusTodo:
		return "待办"
	case types.StatusDoing:
		return "进行中"
	case types.StatusDone:
		return "已完成"
	}
	return status
}

func priorityLabel(priority string) string {
	switch priority {
	case types.PriorityNormal:
		return "普通"
	case types.PriorityUrgent:
		return "紧急"
	case types.PriorityCritical:
		return "非常紧急"
	}
	return priority
}
