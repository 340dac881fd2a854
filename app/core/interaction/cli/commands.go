package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"planpro/app/core/store"
	"planpro/app/pkg/logger"
	"planpro/app/pkg/types"
)

// executeSlash dispatches a /command line. The bool reports whether
// the session should exit.
func (s *Session) executeSlash(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "help":
		fmt.Fprint(s.out, helpText())
	case "exit", "quit":
		fmt.Fprintln(s.out, "再见。")
		return true, nil
	case "tasks":
		filter := "today"
		if len(parts) > 1 {
			filter = strings.ToLower(parts[1])
		}
		return false, s.listTasks(ctx, filter)
	case "config":
		return false, s.configCommand(ctx, parts[1:])
	case "chat":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /chat <message>")
		}
		s.chatCommand(ctx, strings.Join(parts[1:], " "))
	case "retry":
		s.retryCommand(ctx)
	case "clear":
		s.conv.Clear()
		s.lastErrorID = ""
		fmt.Fprintln(s.out, "对话已清空。")
	case "schedule":
		return false, s.scheduleCommand(ctx, parts[1:])
	case "export":
		path := "planpro-export.json"
		if len(parts) > 1 {
			path = parts[1]
		}
		return false, s.exportCommand(ctx, path)
	case "import":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /import <file>")
		}
		return false, s.importCommand(ctx, parts[1])
	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
	return false, nil
}

func helpText() string {
	var b strings.Builder
	b.WriteString("命令:\n")
	b.WriteString("  /help\n")
	b.WriteString("  /tasks [today|all|done]\n")
	b.WriteString("  /config\n")
	b.WriteString("  /config get [key]\n")
	b.WriteString("  /config set <key> <value>\n")
	b.WriteString("  /config test\n")
	b.WriteString("  /chat <message>\n")
	b.WriteString("  /retry\n")
	b.WriteString("  /clear\n")
	b.WriteString("  /schedule list\n")
	b.WriteString("  /schedule add <title> <days:1-7,csv>\n")
	b.WriteString("  /schedule on|off|del <id>\n")
	b.WriteString("  /export [file]\n")
	b.WriteString("  /import <file>\n")
	b.WriteString("  /exit\n")
	return b.String()
}

func (s *Session) listTasks(ctx context.Context, filter string) error {
	tasks, err := s.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	today := time.Now().Format("2006-01-02")

	shown := 0
	for _, task := range tasks {
		day, _, _ := strings.Cut(task.Date, "T")
		switch filter {
		case "all":
		case "done":
			if task.Status != types.StatusDone {
				continue
			}
		case "today", "":
			if day != today || task.Status == types.StatusDone {
				continue
			}
		default:
			return fmt.Errorf("unknown filter: %s", filter)
		}
		s.renderTask(task, "  ")
		shown++
	}
	if shown == 0 {
		fmt.Fprintln(s.out, "（无任务）")
	}
	return nil
}

func (s *Session) configCommand(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "get" {
		cfg := s.manager.Get()
		key := ""
		if len(args) > 1 {
			key = args[1]
		}
		switch key {
		case "", "ai":
			fmt.Fprintf(s.out, "provider: %s\nmodel: %s\napi_key: %s\ntemperature: %.1f\nmax_tokens: %d\n",
				cfg.AI.Provider, cfg.AI.Model, maskKey(cfg.AI.APIKey), cfg.AI.Temperature, cfg.AI.MaxTokens)
		case "store":
			fmt.Fprintf(s.out, "data_dir: %s\n", cfg.Store.DataDir)
		case "assistant":
			fmt.Fprintf(s.out, "request_timeout_sec: %d\nuser_id: %s\n",
				cfg.Assistant.RequestTimeoutSec, cfg.Assistant.UserID)
		default:
			return fmt.Errorf("unknown config section: %s", key)
		}
		return nil
	}

	switch args[0] {
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: /config set <key> <value>")
		}
		key := args[1]
		value := strings.Join(args[2:], " ")
		if _, err := s.manager.SetKey(key, value); err != nil {
			return err
		}
		logger.Info("config updated: %s", key)
		fmt.Fprintf(s.out, "已设置 %s。\n", key)
		return nil
	case "test":
		cfg := s.manager.Get()
		fmt.Fprintln(s.out, "正在测试连接...")
		if err := s.gateway.TestConnection(ctx, cfg.AI); err != nil {
			fmt.Fprintf(s.out, "连接失败: %v\n", err)
			return nil
		}
		fmt.Fprintln(s.out, "连接成功。")
		return nil
	}
	return fmt.Errorf("usage: /config [get [key] | set <key> <value> | test]")
}

func (s *Session) chatCommand(ctx context.Context, text string) {
	fmt.Fprint(s.out, "[助手] ")
	result, err := s.conv.Chat(ctx, text, func(delta, full string) {
		fmt.Fprint(s.out, delta)
	})
	fmt.Fprintln(s.out)
	if err != nil {
		s.printSendError(err)
		return
	}
	if result.Kind == types.MsgError {
		s.lastErrorID = result.ID
		fmt.Fprintf(s.out, "%s\n输入 /retry 重试。\n", result.Content)
	}
}

func (s *Session) retryCommand(ctx context.Context) {
	if s.lastErrorID == "" {
		fmt.Fprintln(s.out, "没有可重试的请求。")
		return
	}
	result, err := s.conv.Retry(ctx, s.lastErrorID)
	if err != nil {
		fmt.Fprintf(s.out, "重试失败: %v\n", err)
		return
	}
	if result.Kind != types.MsgError {
		s.lastErrorID = ""
	}
	s.presentResult(ctx, result)
}

func (s *Session) scheduleCommand(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		items, err := s.store.ListScheduled(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(s.out, "（无定时任务）")
			return nil
		}
		for _, sch := range items {
			state := "启用"
			if !sch.Enabled {
				state = "停用"
			}
			fmt.Fprintf(s.out, "  [%s] %s | 周%v | %s\n", sch.ID, sch.Title, sch.RepeatDays, state)
		}
		return nil
	}

	switch args[0] {
	case "add":
		if len(args) < 3 {
			return fmt.Errorf("usage: /schedule add <title> <days:1-7,csv>")
		}
		days, err := parseRepeatDays(args[len(args)-1])
		if err != nil {
			return err
		}
		title := strings.Join(args[1:len(args)-1], " ")
		sch, err := s.store.AddScheduled(ctx, store.Scheduled{
			Title:      title,
			RepeatDays: days,
			Enabled:    true,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "已添加定时任务「%s」(%s)。\n", sch.Title, sch.ID)
		return nil
	case "on", "off":
		if len(args) < 2 {
			return fmt.Errorf("usage: /schedule %s <id>", args[0])
		}
		if err := s.store.SetScheduledEnabled(ctx, args[1], args[0] == "on"); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "已更新。")
		return nil
	case "del":
		if len(args) < 2 {
			return fmt.Errorf("usage: /schedule del <id>")
		}
		if err := s.store.DeleteScheduled(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "已删除。")
		return nil
	}
	return fmt.Errorf("usage: /schedule [list | add | on | off | del]")
}

// maskKey hides the middle of a credential for display. Short keys
// are masked entirely.
func maskKey(key string) string {
	if key == "" {
		return "(未设置)"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func parseRepeatDays(raw string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 1 || d > 7 {
			return nil, fmt.Errorf("invalid repeat day %q, expected 1-7", part)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one repeat day is required")
	}
	return days, nil
}

func (s *Session) exportCommand(ctx context.Context, path string) error {
	raw, err := s.store.Export(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return err
	}
	logger.Info("exported store to %s", path)
	fmt.Fprintf(s.out, "已导出到 %s。\n", path)
	return nil
}

func (s *Session) importCommand(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !s.ask("导入会覆盖当前所有任务，确认继续？") {
		fmt.Fprintln(s.out, "已取消。")
		return nil
	}
	n, err := s.store.Import(ctx, raw)
	if err != nil {
		return err
	}
	logger.Info("imported %d tasks from %s", n, path)
	fmt.Fprintf(s.out, "已导入 %d 个任务。\n", n)
	return nil
}
