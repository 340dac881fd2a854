package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"planpro/app/core/assistant"
	"planpro/app/core/store"
	"planpro/app/pkg/types"

	config "planpro/app/configs"
)

type stubGateway struct {
	reply string
}

func (g *stubGateway) CheckConfig(cfg config.AIConfig) error { return nil }

func (g *stubGateway) Invoke(ctx context.Context, cfg config.AIConfig, userMessage, systemPrompt string) (string, error) {
	return g.reply, nil
}

func (g *stubGateway) InvokeStream(ctx context.Context, cfg config.AIConfig, messages []types.ModelMessage, onChunk func(delta, full string)) (string, error) {
	if onChunk != nil {
		onChunk(g.reply, g.reply)
	}
	return g.reply, nil
}

func (g *stubGateway) TestConnection(ctx context.Context, cfg config.AIConfig) error { return nil }

func newTestSession(t *testing.T, gateway *stubGateway, script string) (*Session, *store.Store, *strings.Builder) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	manager, err := config.NewManager(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("config.NewManager failed: %v", err)
	}

	conv := assistant.NewConversation(gateway, st,
		func() config.AIConfig { return manager.Get().AI },
		manager.Get().Assistant)

	out := &strings.Builder{}
	return NewSession(conv, st, manager, gateway, strings.NewReader(script), out), st, out
}

func TestCreateFlowConfirmed(t *testing.T) {
	g := &stubGateway{reply: `{"title": "开会", "date": "2026-08-27T15:00"}`}
	session, st, out := newTestSession(t, g, "明天下午三点开会\ny\n/exit\n")

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	tasks, err := st.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "开会" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if !strings.Contains(out.String(), "已创建「开会」") {
		t.Fatalf("output missing confirmation:\n%s", out.String())
	}
}

func TestCreateFlowDeclined(t *testing.T) {
	g := &stubGateway{reply: `{"title": "开会"}`}
	session, st, out := newTestSession(t, g, "明天开会\nn\n/exit\n")

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	tasks, _ := st.Snapshot(context.Background())
	if len(tasks) != 0 {
		t.Fatalf("declined proposal must not reach the store: %+v", tasks)
	}
	if !strings.Contains(out.String(), "已取消") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestDeleteFlow(t *testing.T) {
	g := &stubGateway{reply: `{"delete_task_ids": ["seed-1"]}`}
	session, st, out := newTestSession(t, g, "删掉开会\ny\n/exit\n")

	seed := types.Task{ID: "seed-1", Title: "开会", Date: "2026-08-27T15:00", Status: types.StatusTodo, Priority: types.PriorityNormal}
	if err := st.Add(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	tasks, _ := st.Snapshot(context.Background())
	if len(tasks) != 0 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if !strings.Contains(out.String(), "已删除 1 个任务") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestTasksCommandFilters(t *testing.T) {
	session, st, out := newTestSession(t, &stubGateway{}, "/tasks done\n/exit\n")

	ctx := context.Background()
	for _, task := range []types.Task{
		{ID: "a", Title: "待办的", Date: "2026-08-27T09:00", Status: types.StatusTodo, Priority: types.PriorityNormal},
		{ID: "b", Title: "做完的", Date: "2026-08-26T09:00", Status: types.StatusDone, Priority: types.PriorityNormal},
	} {
		if err := st.Add(ctx, task); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	if err := session.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "做完的") || strings.Contains(got, "待办的") {
		t.Fatalf("output:\n%s", got)
	}
}

func TestScheduleCommands(t *testing.T) {
	script := "/schedule add 晨跑 1,3,5\n/schedule list\n/exit\n"
	session, st, out := newTestSession(t, &stubGateway{}, script)

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	items, err := st.ListScheduled(context.Background())
	if err != nil {
		t.Fatalf("ListScheduled failed: %v", err)
	}
	if len(items) != 1 || items[0].Title != "晨跑" || len(items[0].RepeatDays) != 3 {
		t.Fatalf("items = %+v", items)
	}
	if !strings.Contains(out.String(), "晨跑") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestConfigSetCommand(t *testing.T) {
	session, _, out := newTestSession(t, &stubGateway{}, "/config set ai.model llama-3.1-8b-instant\n/config\n/exit\n")

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if session.manager.Get().AI.Model != "llama-3.1-8b-instant" {
		t.Fatalf("model = %q", session.manager.Get().AI.Model)
	}
	if !strings.Contains(out.String(), "llama-3.1-8b-instant") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestConfigGetMasksAPIKey(t *testing.T) {
	session, _, out := newTestSession(t, &stubGateway{}, "/config set ai.api_key sk-1234567890abcdef\n/config get\n/exit\n")

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.Contains(out.String(), "sk-1234567890abcdef") {
		t.Fatalf("raw key leaked into output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "sk-1***********cdef") {
		t.Fatalf("masked key missing from output:\n%s", out.String())
	}
}

func TestMaskKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "(未设置)"},
		{"short", "*****"},
		{"12345678", "********"},
		{"sk-1234567890abcdef", "sk-1***********cdef"},
	}
	for _, tc := range cases {
		if got := maskKey(tc.in); got != tc.want {
			t.Errorf("maskKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseRepeatDays(t *testing.T) {
	days, err := parseRepeatDays("1,3,7")
	if err != nil {
		t.Fatalf("parseRepeatDays failed: %v", err)
	}
	if len(days) != 3 || days[2] != 7 {
		t.Fatalf("days = %v", days)
	}
	for _, bad := range []string{"", "0", "8", "abc", "1,,x"} {
		if _, err := parseRepeatDays(bad); err == nil {
			t.Errorf("parseRepeatDays(%q) should fail", bad)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	session, _, out := newTestSession(t, &stubGateway{}, "/bogus\n/exit\n")
	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("output:\n%s", out.String())
	}
}
