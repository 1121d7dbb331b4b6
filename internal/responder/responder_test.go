package responder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/dialogd/internal/arbitration"
	"github.com/fyrsmithlabs/dialogd/internal/config"
	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/detector"
	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/loop"
	"github.com/fyrsmithlabs/dialogd/internal/memory"
	"github.com/fyrsmithlabs/dialogd/internal/secrets"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeChat serves canned chat completions and records requests.
type fakeChat struct {
	mu       sync.Mutex
	requests []chatRequest
	auth     []string
	reply    string
	status   int
}

func (f *fakeChat) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req chatRequest
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	status, reply := f.status, f.reply
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream down","type":"server_error"}}`)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": reply},
		}},
	})
}

func newResponder(t *testing.T, srv *httptest.Server) *OpenAI {
	t.Helper()
	r, err := NewOpenAI(config.ResponderConfig{
		Enabled: true,
		BaseURL: srv.URL + "/v1/",
		Model:   "test-model",
		APIKey:  config.Secret("sk-test-key"),
		Timeout: config.Duration(5 * time.Second),
	}, WithMaxRetries(0), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return r
}

func TestOpenAIGenerate(t *testing.T) {
	fake := &fakeChat{reply: "  It sounds like the job still matters to you.  "}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	plan := conversation.TurnPlan{
		TurnID:    "t1",
		SessionID: "s1",
		Directive: arbitration.Directive{Tier: detector.P2, Kind: arbitration.KindEngageLoop},
		LoopOutcome: loop.Outcome{
			Action:     loop.ActionReflect,
			Reflection: &loop.ReflectionHint{Target: "why i keep going back to that job", Focus: []string{"job"}, Cycle: 1},
		},
		Memory: memory.Empty(),
		Tone:   conversation.ToneModulation{Pace: conversation.PaceSteady},
	}

	out, err := newResponder(t, srv).Generate(context.Background(), plan, "why do I keep going back?")
	require.NoError(t, err)
	assert.Equal(t, "It sounds like the job still matters to you.", out)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Reflect back what you heard")
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "why do I keep going back?", req.Messages[1].Content)
	assert.Equal(t, "Bearer sk-test-key", fake.auth[0])
}

// maskScrubber redacts a fixed token.
type maskScrubber string

func (m maskScrubber) Scrub(text string) secrets.Result {
	if !strings.Contains(text, string(m)) {
		return secrets.Result{Text: text}
	}
	return secrets.Result{
		Text:     strings.ReplaceAll(text, string(m), "[REDACTED:test]"),
		Findings: []secrets.Finding{{RuleID: "test"}},
	}
}

func TestOpenAIGenerateScrubs(t *testing.T) {
	fake := &fakeChat{reply: "ok"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	r, err := NewOpenAI(config.ResponderConfig{
		BaseURL: srv.URL + "/v1/",
		APIKey:  config.Secret("sk-test-key"),
	}, WithMaxRetries(0), WithScrubber(maskScrubber("hunter2")), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	plan := conversation.TurnPlan{
		Directive: arbitration.Directive{Tier: detector.P3, Kind: arbitration.KindPassThrough},
		Memory: memory.Context{
			EpisodicEntries: []memory.Entry{{ID: "e1", Content: "said the password is hunter2"}},
		},
	}

	_, err = r.Generate(context.Background(), plan, "my password is hunter2")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 1)
	for _, m := range fake.requests[0].Messages {
		assert.NotContains(t, m.Content, "hunter2", m.Role)
	}
	assert.Equal(t, "my password is [REDACTED:test]", fake.requests[0].Messages[1].Content)
}

func TestOpenAIErrors(t *testing.T) {
	t.Run("upstream failure", func(t *testing.T) {
		srv := httptest.NewServer(&fakeChat{status: http.StatusInternalServerError})
		defer srv.Close()
		_, err := newResponder(t, srv).Generate(context.Background(), conversation.TurnPlan{}, "hi")
		assert.Error(t, err)
	})

	t.Run("empty reply", func(t *testing.T) {
		srv := httptest.NewServer(&fakeChat{reply: "   "})
		defer srv.Close()
		_, err := newResponder(t, srv).Generate(context.Background(), conversation.TurnPlan{}, "hi")
		assert.ErrorIs(t, err, ErrEmptyReply)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAI(config.ResponderConfig{Model: "m"})
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestPromptBypassListsResourcesOnly(t *testing.T) {
	plan := conversation.TurnPlan{
		Directive: arbitration.Directive{
			Tier: detector.P0,
			Kind: arbitration.KindBypass,
			Payload: arbitration.Payload{Resources: []arbitration.Resource{
				{Name: "988 Suicide & Crisis Lifeline", Contact: "988", URL: "https://988lifeline.org"},
			}},
		},
		Memory: memory.Context{ProfileFacts: []memory.Entry{{Content: "likes hiking"}}},
	}

	p := Prompt(plan)
	assert.Contains(t, p, "988 Suicide & Crisis Lifeline | 988 | https://988lifeline.org")
	assert.Contains(t, p, "Do not explore")
	assert.NotContains(t, p, "likes hiking")
	assert.NotContains(t, p, "Pace:")
}

func TestPromptCarriesToneAndMemory(t *testing.T) {
	plan := conversation.TurnPlan{
		Directive: arbitration.Directive{
			Tier:    detector.P1,
			Kind:    arbitration.KindModulateTone,
			Payload: arbitration.Payload{Boundary: detector.BoundarySlow, SafetyCheckIn: true},
		},
		Tone: conversation.ToneModulation{
			Element:   element.Water,
			Archetype: element.Archetype(element.Water),
			Pace:      conversation.PaceSlow,
			Pause:     true,
		},
		Memory: memory.Context{
			SessionSummaries: []memory.Entry{{Content: "talked about moving"}},
			ProfileFacts:     []memory.Entry{{Content: "prefers short replies"}},
		},
	}

	p := Prompt(plan)
	for _, want := range []string{
		"slow down",
		"check in",
		"Leave space",
		"Pace: slow.",
		"Tone: water",
		"- talked about moving",
		"- prefers short replies",
	} {
		assert.Contains(t, p, want)
	}
	assert.Less(t, strings.Index(p, "talked about moving"), strings.Index(p, "prefers short replies"), "session memory comes first")
}

func TestPromptCapsMemory(t *testing.T) {
	var entries []memory.Entry
	for range 10 {
		entries = append(entries, memory.Entry{Content: "fact"})
	}
	p := Prompt(conversation.TurnPlan{Memory: memory.Context{EpisodicEntries: entries}})
	assert.Equal(t, maxMemoryLines, strings.Count(p, "- fact"))
}

func TestFunc(t *testing.T) {
	var r Responder = Func(func(_ context.Context, plan conversation.TurnPlan, input string) (string, error) {
		return plan.TurnID + ":" + input, nil
	})
	out, err := r.Generate(context.Background(), conversation.TurnPlan{TurnID: "t"}, "hi")
	require.NoError(t, err)
	assert.Equal(t, "t:hi", out)
}
