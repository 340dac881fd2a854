package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	config "planpro/app/configs"
	"planpro/app/pkg/types"
)

var (
	ErrEmptyInput = errors.New("assistant: empty input")
	ErrBusy       = errors.New("assistant: a request is already in flight")
)

// chatOrigin marks error entries produced by the free-chat path so
// Retry can tell them apart from intent-pipeline failures.
const chatOrigin = "chat"

// Gateway is the language-model boundary: opaque text in, raw text
// out. CheckConfig must fail without any network call when the
// provider configuration is unusable, so the caller can surface a
// settings prompt instead of a transcript error.
type Gateway interface {
	CheckConfig(cfg config.AIConfig) error
	Invoke(ctx context.Context, cfg config.AIConfig, userMessage string, systemPrompt string) (string, error)
	InvokeStream(ctx context.Context, cfg config.AIConfig, messages []types.ModelMessage, onChunk func(delta string, full string)) (string, error)
}

// Conversation owns the chat transcript and sequences one request at
// a time through classify → prompt → gateway → reconcile. It flips
// confirmation flags on transcript entries but holds no authority to
// mutate tasks.
type Conversation struct {
	mu         sync.Mutex
	transcript []types.ChatMessage
	busy       bool

	gateway   Gateway
	taskSrc   types.TaskSource
	configFn  func() config.AIConfig
	now       func() time.Time
	assistCfg config.AssistantConfig
}

func NewConversation(gateway Gateway, taskSrc types.TaskSource, configFn func() config.AIConfig, assistCfg config.AssistantConfig) *Conversation {
	return &Conversation{
		gateway:   gateway,
		taskSrc:   taskSrc,
		configFn:  configFn,
		assistCfg: assistCfg,
		now:       time.Now,
	}
}

// Send runs one user message through the pipeline. Configuration
// errors return before the transcript changes; every pipeline failure
// after that resolves into a transcript entry, never an error.
func (c *Conversation) Send(ctx context.Context, text string) (types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ChatMessage{}, ErrEmptyInput
	}
	cfg := c.configFn()
	if err := c.gateway.CheckConfig(cfg); err != nil {
		return types.ChatMessage{}, err
	}

	slotID, err := c.begin(text)
	if err != nil {
		return types.ChatMessage{}, err
	}

	result := c.runPipeline(ctx, cfg, text)
	return c.resolve(slotID, result), nil
}

// Retry re-runs the pipeline for a failed entry using the original
// input stored on it. The entry is addressed by id, not position, so
// transcript edits cannot shift the retry target.
func (c *Conversation) Retry(ctx context.Context, entryID string) (types.ChatMessage, error) {
	cfg := c.configFn()
	if err := c.gateway.CheckConfig(cfg); err != nil {
		return types.ChatMessage{}, err
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return types.ChatMessage{}, ErrBusy
	}
	var original, origin string
	found := false
	for i := range c.transcript {
		if c.transcript[i].ID == entryID && c.transcript[i].Kind == types.MsgError {
			original = c.transcript[i].OriginalInput
			origin = c.transcript[i].Intent
			found = true
			c.transcript[i] = types.ChatMessage{
				ID:   entryID,
				Role: types.RoleAssistant,
				Kind: types.MsgLoading,
			}
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return types.ChatMessage{}, fmt.Errorf("assistant: no retryable entry %s", entryID)
	}
	c.busy = true
	c.mu.Unlock()

	// Failed free-chat turns re-run the chat path, not the intent
	// pipeline. The original user turn is already in the transcript.
	var result types.ChatMessage
	if origin == chatOrigin {
		result = c.streamChat(ctx, cfg, entryID, original, c.chatHistory(), nil)
	} else {
		result = c.runPipeline(ctx, cfg, original)
	}
	return c.resolve(entryID, result), nil
}

// Chat is the free-form streaming path. Chunks accumulate into the
// same transcript slot in order; onChunk mirrors the accumulation for
// the caller.
func (c *Conversation) Chat(ctx context.Context, text string, onChunk func(delta string, full string)) (types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ChatMessage{}, ErrEmptyInput
	}
	cfg := c.configFn()
	if err := c.gateway.CheckConfig(cfg); err != nil {
		return types.ChatMessage{}, err
	}

	messages := c.chatMessages(text)
	slotID, err := c.begin(text)
	if err != nil {
		return types.ChatMessage{}, err
	}

	result := c.streamChat(ctx, cfg, slotID, text, messages, onChunk)
	return c.resolve(slotID, result), nil
}

// streamChat runs one gateway streaming call, mirroring chunks into
// the transcript slot as they arrive. Failures become an error entry
// tagged with the chat origin so Retry re-runs the same path.
func (c *Conversation) streamChat(ctx context.Context, cfg config.AIConfig, slotID, original string, messages []types.ModelMessage, onChunk func(delta string, full string)) types.ChatMessage {
	full, err := c.gateway.InvokeStream(ctx, cfg, messages, func(delta string, full string) {
		c.mu.Lock()
		for i := range c.transcript {
			if c.transcript[i].ID == slotID {
				c.transcript[i].Content = full
				break
			}
		}
		c.mu.Unlock()
		if onChunk != nil {
			onChunk(delta, full)
		}
	})
	if err != nil {
		return c.errorMessage(original, chatOrigin, err)
	}
	return types.ChatMessage{
		ID:      uuid.NewString(),
		Role:    types.RoleAssistant,
		Kind:    types.MsgText,
		Content: full,
	}
}

// begin appends the user entry plus the single loading placeholder
// and marks the conversation busy. A second send while one request is
// in flight is rejected rather than queued.
func (c *Conversation) begin(text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return "", ErrBusy
	}
	c.busy = true

	userMsg := types.ChatMessage{
		ID:      uuid.NewString(),
		Role:    types.RoleUser,
		Kind:    types.MsgText,
		Content: text,
	}
	loading := types.ChatMessage{
		ID:   uuid.NewString(),
		Role: types.RoleAssistant,
		Kind: types.MsgLoading,
	}
	c.transcript = append(c.transcript, userMsg, loading)
	return loading.ID, nil
}

// resolve replaces the loading slot in place and clears the busy
// flag. The stored message keeps the slot id so callers can address
// the transcript entry with the message they got back.
func (c *Conversation) resolve(slotID string, result types.ChatMessage) types.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	result.ID = slotID
	for i := range c.transcript {
		if c.transcript[i].ID == slotID {
			c.transcript[i] = result
			break
		}
	}
	c.busy = false
	return result
}

func (c *Conversation) runPipeline(ctx context.Context, cfg config.AIConfig, text string) types.ChatMessage {
	now := c.now()
	dates := ResolveDates(now)
	intent := Classify(text)
	scope := ResolveTimeScope(text, dates)

	tasks, err := c.taskSrc.Snapshot(ctx)
	if err != nil {
		return c.errorMessage(text, string(intent), err)
	}

	// Operations that presuppose existing tasks short-circuit before
	// any model call when the list is empty.
	if intent != IntentCreate && len(tasks) == 0 {
		return textMessage("当前还没有任务，无法执行该操作。")
	}

	if c.assistCfg.RequestTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.assistCfg.RequestTimeoutSec)*time.Second)
		defer cancel()
	}

	prompt := BuildPrompt(intent, tasks, scope, dates)
	raw, err := c.gateway.Invoke(ctx, cfg, text, prompt)
	if err != nil {
		return c.errorMessage(text, string(intent), err)
	}
	return Reconcile(intent, raw, tasks, dates)
}

func (c *Conversation) errorMessage(original string, intent string, err error) types.ChatMessage {
	return types.ChatMessage{
		ID:            uuid.NewString(),
		Role:          types.RoleAssistant,
		Kind:          types.MsgError,
		Content:       fmt.Sprintf("出错了: %v", err),
		OriginalInput: original,
		Intent:        intent,
	}
}

// chatHistory renders the free-chat history, text turns only.
func (c *Conversation) chatHistory() []types.ModelMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := []types.ModelMessage{
		{Role: "system", Content: "你是一个友好的任务管理助手，用简洁的中文回答。"},
	}
	for _, m := range c.transcript {
		if m.Kind != types.MsgText || m.Content == "" {
			continue
		}
		messages = append(messages, types.ModelMessage{Role: m.Role, Content: m.Content})
	}
	return messages
}

// chatMessages is the history plus the new user turn for the
// streaming gateway call.
func (c *Conversation) chatMessages(text string) []types.ModelMessage {
	return append(c.chatHistory(), types.ModelMessage{Role: types.RoleUser, Content: text})
}

// History returns a copy of the transcript.
func (c *Conversation) History() []types.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ChatMessage, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Message returns the transcript entry with the given id.
func (c *Conversation) Message(id string) (types.ChatMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.transcript {
		if m.ID == id {
			return m, true
		}
	}
	return types.ChatMessage{}, false
}

// Confirm marks a proposal entry confirmed. The flag is read by the
// interaction layer, which then calls the task store; confirming the
// same entry twice stays a single flag flip.
func (c *Conversation) Confirm(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.transcript {
		if c.transcript[i].ID != id {
			continue
		}
		switch c.transcript[i].Kind {
		case types.MsgTaskCard, types.MsgUpdateConfirm, types.MsgMultiUpdateConfirm,
			types.MsgDeleteConfirm, types.MsgSubtaskConfirm:
			c.transcript[i].Confirmed = true
			return true
		}
		return false
	}
	return false
}

// ConfirmIndex records one confirmed task inside a multi_task_card.
func (c *Conversation) ConfirmIndex(id string, index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.transcript {
		if c.transcript[i].ID != id || c.transcript[i].Kind != types.MsgMultiTaskCard {
			continue
		}
		if index < 0 || index >= len(c.transcript[i].Tasks) {
			return false
		}
		if c.transcript[i].ConfirmedIndexes == nil {
			c.transcript[i].ConfirmedIndexes = map[int]bool{}
		}
		c.transcript[i].ConfirmedIndexes[index] = true
		return true
	}
	return false
}

// Remove deletes a transcript entry by id.
func (c *Conversation) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.transcript {
		if c.transcript[i].ID == id {
			c.transcript = append(c.transcript[:i], c.transcript[i+1:]...)
			return true
		}
	}
	return false
}

// Clear resets the transcript.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = nil
	c.busy = false
}
