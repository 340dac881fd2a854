package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	config "planpro/app/configs"
	"planpro/app/pkg/types"
)

type stubGateway struct {
	checkErr error
	invoke   func(userMessage, systemPrompt string) (string, error)
	stream   func(messages []types.ModelMessage, onChunk func(delta, full string)) (string, error)
	calls    int
}

func (g *stubGateway) CheckConfig(cfg config.AIConfig) error {
	return g.checkErr
}

func (g *stubGateway) Invoke(ctx context.Context, cfg config.AIConfig, userMessage, systemPrompt string) (string, error) {
	g.calls++
	if g.invoke == nil {
		return "", fmt.Errorf("unexpected Invoke")
	}
	return g.invoke(userMessage, systemPrompt)
}

func (g *stubGateway) InvokeStream(ctx context.Context, cfg config.AIConfig, messages []types.ModelMessage, onChunk func(delta, full string)) (string, error) {
	g.calls++
	if g.stream == nil {
		return "", fmt.Errorf("unexpected InvokeStream")
	}
	return g.stream(messages, onChunk)
}

type taskSourceFunc func(ctx context.Context) ([]types.Task, error)

func (f taskSourceFunc) Snapshot(ctx context.Context) ([]types.Task, error) {
	return f(ctx)
}

func staticTasks(tasks []types.Task) types.TaskSource {
	return taskSourceFunc(func(context.Context) ([]types.Task, error) {
		return tasks, nil
	})
}

func newTestConversation(gateway Gateway, tasks []types.Task) *Conversation {
	c := NewConversation(gateway, staticTasks(tasks),
		func() config.AIConfig { return config.AIConfig{Provider: "groq", APIKey: "k"} },
		config.AssistantConfig{RequestTimeoutSec: 5})
	c.now = func() time.Time {
		return time.Date(2026, 8, 26, 15, 30, 0, 0, time.Local)
	}
	return c
}

func TestSendEmptyInput(t *testing.T) {
	c := newTestConversation(&stubGateway{}, nil)
	if _, err := c.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err = %v", err)
	}
	if len(c.History()) != 0 {
		t.Fatal("transcript must stay empty")
	}
}

func TestSendConfigErrorLeavesTranscriptUntouched(t *testing.T) {
	c := newTestConversation(&stubGateway{checkErr: errors.New("no key")}, nil)
	if _, err := c.Send(context.Background(), "明天开会"); err == nil {
		t.Fatal("expected config error")
	}
	if len(c.History()) != 0 {
		t.Fatal("config failures must not touch the transcript")
	}
}

func TestSendCreateFlow(t *testing.T) {
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		if !strings.Contains(system, "任务管理助手") {
			t.Errorf("system prompt missing header: %q", system)
		}
		return `{"title": "开会", "date": "2026-08-27T15:00"}`, nil
	}}
	c := newTestConversation(g, nil)

	result, err := c.Send(context.Background(), "明天下午三点开会")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if result.Kind != types.MsgTaskCard || result.Task.Title != "开会" {
		t.Fatalf("result = %+v", result)
	}

	history := c.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d", len(history))
	}
	if history[0].Role != types.RoleUser || history[0].Content != "明天下午三点开会" {
		t.Fatalf("user entry = %+v", history[0])
	}
	// The proposal resolves into the loading slot, keeping its id.
	if history[1].Kind != types.MsgTaskCard || history[1].ID != result.ID {
		t.Fatalf("assistant entry = %+v", history[1])
	}
	for _, m := range history {
		if m.Kind == types.MsgLoading {
			t.Fatal("no loading entry may survive resolution")
		}
	}
}

func TestSendResultAddressableByReturnedID(t *testing.T) {
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		return `{"title": "开会", "date": "2026-08-27T15:00"}`, nil
	}}
	c := newTestConversation(g, nil)

	result, err := c.Send(context.Background(), "明天下午三点开会")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	history := c.History()
	if len(history) != 2 || history[1].ID != result.ID {
		t.Fatalf("returned id %q not in transcript: %+v", result.ID, history)
	}
	if !c.Confirm(result.ID) {
		t.Fatal("Confirm by the returned id must succeed")
	}
	got, ok := c.Message(result.ID)
	if !ok || !got.Confirmed {
		t.Fatalf("entry after confirm = %+v (found=%v)", got, ok)
	}
}

func TestSendGatewayErrorBecomesTranscriptEntry(t *testing.T) {
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		return "", errors.New("connection refused")
	}}
	c := newTestConversation(g, nil)

	result, err := c.Send(context.Background(), "明天开会")
	if err != nil {
		t.Fatalf("gateway failures must resolve, not error: %v", err)
	}
	if result.Kind != types.MsgError {
		t.Fatalf("kind = %s", result.Kind)
	}
	if !strings.HasPrefix(result.Content, "出错了: ") {
		t.Fatalf("content = %q", result.Content)
	}
	if result.OriginalInput != "明天开会" {
		t.Fatalf("original input = %q", result.OriginalInput)
	}
}

func TestRetryReplacesErrorEntryInPlace(t *testing.T) {
	fail := true
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		if fail {
			return "", errors.New("timeout")
		}
		return `{"title": "开会", "date": "2026-08-27T15:00"}`, nil
	}}
	c := newTestConversation(g, nil)

	result, err := c.Send(context.Background(), "明天开会")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if result.Kind != types.MsgError {
		t.Fatalf("kind = %s", result.Kind)
	}

	fail = false
	retried, err := c.Retry(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Kind != types.MsgTaskCard || retried.ID != result.ID {
		t.Fatalf("retried = %+v", retried)
	}

	history := c.History()
	if len(history) != 2 {
		t.Fatalf("retry must replace in place, history = %d entries", len(history))
	}
	if history[1].ID != result.ID || history[1].Kind != types.MsgTaskCard {
		t.Fatalf("entry = %+v", history[1])
	}
}

func TestRetryFailedChatRerunsChatPath(t *testing.T) {
	fail := true
	var lastMessages []types.ModelMessage
	g := &stubGateway{stream: func(messages []types.ModelMessage, onChunk func(delta, full string)) (string, error) {
		lastMessages = messages
		if fail {
			return "", errors.New("connection reset")
		}
		full := "好的，我在。"
		onChunk(full, full)
		return full, nil
	}}
	c := newTestConversation(g, nil)

	result, err := c.Chat(context.Background(), "随便聊聊", nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if result.Kind != types.MsgError {
		t.Fatalf("kind = %s", result.Kind)
	}

	fail = false
	// The invoke stub is nil, so a retry misrouted into the intent
	// pipeline would resolve to another error entry.
	retried, err := c.Retry(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Kind != types.MsgText || retried.Content != "好的，我在。" {
		t.Fatalf("retried = %+v", retried)
	}
	if retried.ID != result.ID {
		t.Fatalf("retried id %q != error entry id %q", retried.ID, result.ID)
	}
	turns := 0
	for _, m := range lastMessages {
		if m.Role == types.RoleUser && m.Content == "随便聊聊" {
			turns++
		}
	}
	if turns != 1 {
		t.Fatalf("retry sent the user turn %d times, want 1", turns)
	}
}

func TestRetryUnknownEntry(t *testing.T) {
	c := newTestConversation(&stubGateway{}, nil)
	if _, err := c.Retry(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown entry")
	}
}

func TestSendEmptyListShortCircuit(t *testing.T) {
	g := &stubGateway{}
	c := newTestConversation(g, nil)

	result, err := c.Send(context.Background(), "删除明天的会议")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if result.Kind != types.MsgText || !strings.Contains(result.Content, "还没有任务") {
		t.Fatalf("result = %+v", result)
	}
	if g.calls != 0 {
		t.Fatalf("gateway called %d times, want 0", g.calls)
	}
}

func TestSendRejectsConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		startedOnce.Do(func() { close(started) })
		<-release
		return `{"title": "慢任务"}`, nil
	}}
	c := newTestConversation(g, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "明天开会")
		done <- err
	}()

	<-started
	if _, err := c.Send(context.Background(), "再来一个"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second send: err = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	// After resolution the conversation accepts requests again.
	if _, err := c.Send(context.Background(), "现在可以了"); err != nil {
		t.Fatalf("send after resolution failed: %v", err)
	}
}

func TestConfirmIdempotent(t *testing.T) {
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		return `{"title": "开会"}`, nil
	}}
	c := newTestConversation(g, nil)

	result, err := c.Send(context.Background(), "明天开会")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if !c.Confirm(result.ID) {
		t.Fatal("first confirm must succeed")
	}
	if !c.Confirm(result.ID) {
		t.Fatal("confirming again is a no-op, not a failure")
	}
	msg, ok := c.Message(result.ID)
	if !ok || !msg.Confirmed {
		t.Fatalf("entry = %+v", msg)
	}

	history := c.History()
	if c.Confirm(history[0].ID) {
		t.Fatal("plain text entries are not confirmable")
	}
}

func TestConfirmIndex(t *testing.T) {
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		return `{"tasks": [{"title": "买菜"}, {"title": "做饭"}]}`, nil
	}}
	c := newTestConversation(g, nil)

	result, err := c.Send(context.Background(), "明天买菜做饭")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if result.Kind != types.MsgMultiTaskCard {
		t.Fatalf("kind = %s", result.Kind)
	}

	if !c.ConfirmIndex(result.ID, 1) {
		t.Fatal("in-range index must confirm")
	}
	if c.ConfirmIndex(result.ID, 5) || c.ConfirmIndex(result.ID, -1) {
		t.Fatal("out-of-range index must be rejected")
	}
	msg, _ := c.Message(result.ID)
	if !msg.ConfirmedIndexes[1] || msg.ConfirmedIndexes[0] {
		t.Fatalf("confirmed indexes = %+v", msg.ConfirmedIndexes)
	}
}

func TestChatStreamsIntoTranscriptSlot(t *testing.T) {
	g := &stubGateway{stream: func(messages []types.ModelMessage, onChunk func(delta, full string)) (string, error) {
		if messages[0].Role != "system" {
			t.Errorf("first message must be the system prompt")
		}
		if messages[len(messages)-1].Content != "你好" {
			t.Errorf("last message = %+v", messages[len(messages)-1])
		}
		onChunk("你", "你")
		onChunk("好呀", "你好呀")
		return "你好呀", nil
	}}
	c := newTestConversation(g, nil)

	var deltas []string
	result, err := c.Chat(context.Background(), "你好", func(delta, full string) {
		deltas = append(deltas, delta)
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if result.Kind != types.MsgText || result.Content != "你好呀" {
		t.Fatalf("result = %+v", result)
	}
	if len(deltas) != 2 || deltas[0] != "你" {
		t.Fatalf("deltas = %v", deltas)
	}

	history := c.History()
	if len(history) != 2 || history[1].Content != "你好呀" {
		t.Fatalf("history = %+v", history)
	}
}

func TestChatHistoryExcludesProposals(t *testing.T) {
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		return `{"title": "开会"}`, nil
	}}
	c := newTestConversation(g, nil)
	if _, err := c.Send(context.Background(), "明天开会"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	g.stream = func(messages []types.ModelMessage, onChunk func(delta, full string)) (string, error) {
		// system + prior user turn + new user turn; the task card
		// proposal is not renderable chat history.
		if len(messages) != 3 {
			t.Errorf("messages = %+v", messages)
		}
		return "好的", nil
	}
	if _, err := c.Chat(context.Background(), "谢谢", nil); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	g := &stubGateway{invoke: func(user, system string) (string, error) {
		return `{"title": "开会"}`, nil
	}}
	c := newTestConversation(g, nil)

	result, err := c.Send(context.Background(), "明天开会")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !c.Remove(result.ID) {
		t.Fatal("remove existing entry")
	}
	if c.Remove(result.ID) {
		t.Fatal("second remove must report false")
	}
	c.Clear()
	if len(c.History()) != 0 {
		t.Fatal("transcript not cleared")
	}
}
