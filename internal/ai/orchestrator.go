// Package ai implements the AI Streaming Orchestrator (spec §4.5):
// context assembly, a registration table rejecting a second
// concurrent generation for the same (querier, conversation) pair,
// a streamed request to the external provider, relay of chunks as
// events, a final commit, and cancellation.
//
// Grounded on original_source/api/src/chat/ai.rs for the domain
// behaviour (system prompt, sampling parameters, consecutive-role
// merging, final-commit insert) - the teacher has no AI component, so
// the goroutine/cancellation structure follows the teacher's general
// concurrency idiom instead (one goroutine per unit of concurrent
// work, cleaned up on completion).
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"relaychat/internal/eventbus"
	"relaychat/internal/models"
	"relaychat/internal/observability"
	"relaychat/internal/store"
)

const systemPrompt = "You are a helpful assistant embedded in a chat application. " +
	"Answer clearly and concisely, and ask a clarifying question when the user's request is ambiguous."

type Orchestrator struct {
	store      *store.Store
	bus        *eventbus.Bus
	httpClient *http.Client
	apiKey     string
	apiURL     string
	budgetChars int

	mu    sync.Mutex
	byKey map[string]*generation // "querierID:conversationID" -> generation
}

type generation struct {
	key            string
	querierID      int64
	conversationID int64
	cancel         context.CancelFunc
}

func New(s *store.Store, bus *eventbus.Bus, apiKey, apiURL string, budgetChars int) *Orchestrator {
	if budgetChars <= 0 {
		budgetChars = 5000
	}
	return &Orchestrator{
		store:       s,
		bus:         bus,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		apiKey:      apiKey,
		apiURL:      apiURL,
		budgetChars: budgetChars,
		byKey:       make(map[string]*generation),
	}
}

func genKey(querierID, conversationID int64) string {
	return fmt.Sprintf("%d:%d", querierID, conversationID)
}

// Start registers and launches a generation. A second call for the
// same (querierID, conversationID) pair while one is already running
// is rejected silently (spec §4.5's dup-rejection rule) rather than
// queued: the generation already running continues and the new
// trigger is dropped.
func (o *Orchestrator) Start(ctx context.Context, querierID, conversationID, modelID int64) {
	key := genKey(querierID, conversationID)

	o.mu.Lock()
	if _, exists := o.byKey[key]; exists {
		o.mu.Unlock()
		return
	}
	genCtx, cancel := context.WithCancel(context.Background())
	g := &generation{key: key, querierID: querierID, conversationID: conversationID, cancel: cancel}
	o.byKey[key] = g
	o.mu.Unlock()

	observability.IncAIGenerationStarted()
	go o.run(genCtx, g, modelID)
}

// Cancel stops the caller's in-flight generation in conversationID, if
// any (spec §4.4's CancelGeneration command is keyed by conversation,
// not by a separate generation id a client would have to track).
func (o *Orchestrator) Cancel(userID, conversationID int64) {
	o.mu.Lock()
	g, ok := o.byKey[genKey(userID, conversationID)]
	o.mu.Unlock()
	if !ok {
		return
	}
	g.cancel()
}

func (o *Orchestrator) finish(g *generation) {
	o.mu.Lock()
	delete(o.byKey, g.key)
	o.mu.Unlock()
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string     `json:"model"`
	Messages    []chatTurn `json:"messages"`
	Temperature float64    `json:"temperature"`
	MaxTokens   int        `json:"max_tokens"`
	TopP        float64    `json:"top_p"`
	Stream      bool       `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (o *Orchestrator) run(ctx context.Context, g *generation, modelID int64) {
	outcome := "error"
	defer func() {
		o.finish(g)
		observability.ObserveAIGenerationFinished(outcome)
	}()

	model, err := o.store.GetAIModel(ctx, modelID)
	if err != nil {
		slog.Error("ai generation: load model", "error", err)
		return
	}

	history, err := o.store.ListMessagesForContext(ctx, g.conversationID, o.budgetChars, 0)
	if err != nil {
		slog.Error("ai generation: assemble context", "error", err)
		return
	}

	req := chatRequest{
		Model:       model.Name,
		Messages:    []chatTurn{{Role: "system", Content: systemPrompt}},
		Temperature: 0.5,
		MaxTokens:   1024,
		TopP:        0.7,
		Stream:      true,
	}
	req.Messages = append(req.Messages, mergeConsecutiveTurns(history)...)

	body, err := json.Marshal(req)
	if err != nil {
		slog.Error("ai generation: marshal request", "error", err)
		return
	}

	resp, err := o.postWithRetry(ctx, body)
	if err != nil {
		slog.Error("ai generation: request failed", "error", err)
		o.fail(g, "request to AI provider failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("ai generation: non-2xx response", "status", resp.StatusCode)
		o.fail(g, fmt.Sprintf("AI provider returned status %d", resp.StatusCode))
		return
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			outcome = "canceled"
			o.bus.Publish(eventbus.Event{
				Type:               "CanceledGeneration",
				CanceledGeneration: &eventbus.CanceledGeneration{ConversationID: g.conversationID, QuerierID: g.querierID},
			})
			return
		default:
		}

		line := scanner.Text()
		line = strings.TrimPrefix(line, "data: ")
		line = strings.TrimSpace(line)
		if line == "" || line == "[DONE]" {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			o.fail(g, "AI provider sent a malformed stream")
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		o.bus.Publish(eventbus.Event{
			Type: "StreamData",
			StreamData: &eventbus.StreamData{
				ConversationID: g.conversationID,
				QuerierID:      g.querierID,
				Message:        delta,
			},
		})
	}
	if err := scanner.Err(); err != nil {
		slog.Error("ai generation: stream read failed", "error", err)
		o.fail(g, "connection to AI provider was interrupted")
		return
	}

	msg, err := o.store.CreateMessage(ctx, g.conversationID, nil, &modelID, full.String(), nil, nil)
	if err != nil {
		slog.Error("ai generation: commit message", "error", err)
		o.fail(g, "failed to save the generated message")
		return
	}
	outcome = "completed"
	o.bus.Publish(eventbus.Event{Type: "Message", Message: &msg})
	o.bus.Publish(eventbus.Event{
		Type: "StreamData",
		StreamData: &eventbus.StreamData{
			ConversationID: g.conversationID,
			QuerierID:      g.querierID,
			Done:           true,
		},
	})
}

// fail implements spec §4.5's failure semantics: a non-2xx response,
// a malformed stream, or a socket error surfaces as an Error event to
// the querier and terminates the generation with a CanceledGeneration,
// rather than falling through to a commit as if nothing went wrong.
func (o *Orchestrator) fail(g *generation, message string) {
	outcome := "error"
	_ = outcome
	o.bus.Publish(eventbus.Event{
		Type:  "Error",
		Error: &eventbus.ErrorEvent{Kind: "internal", Message: message},
	}, eventbus.Target{UserID: g.querierID})
	o.bus.Publish(eventbus.Event{
		Type:               "CanceledGeneration",
		CanceledGeneration: &eventbus.CanceledGeneration{ConversationID: g.conversationID, QuerierID: g.querierID},
	})
}

// mergeConsecutiveTurns concatenates consecutive same-role messages
// into one turn, which the external provider requires - matches
// original_source/api/src/chat/ai.rs's cur_role/cur_content walk.
func mergeConsecutiveTurns(history []models.Message) []chatTurn {
	var turns []chatTurn
	var curRole, curContent string

	flush := func() {
		if curContent != "" {
			turns = append(turns, chatTurn{Role: curRole, Content: curContent})
		}
	}

	for _, m := range history {
		role := "assistant"
		if m.SenderID != nil {
			role = "user"
		}
		if role != curRole && curContent != "" {
			flush()
			curContent = ""
		}
		curRole = role
		curContent += m.Body
	}
	flush()
	return turns
}

func (o *Orchestrator) postWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	backoff := 250 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)

		resp, err := o.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 4*time.Second {
			backoff = 4 * time.Second
		}
	}
	return nil, lastErr
}
