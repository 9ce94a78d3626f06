package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeClient is a Client for tests. Respond decides each answer; every call
// is recorded.
type FakeClient struct {
	Respond func(messages []Message, opts Options) (string, error)

	mu    sync.Mutex
	calls []FakeCall
}

type FakeCall struct {
	Messages []Message
	Opts     Options
}

func (f *FakeClient) Chat(_ context.Context, messages []Message, opts Options) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Messages: append([]Message(nil), messages...), Opts: opts})
	f.mu.Unlock()
	if f.Respond == nil {
		return "", fmt.Errorf("%w: fake has no responder", ErrExternalService)
	}
	return f.Respond(messages, opts)
}

func (f *FakeClient) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// Route returns a responder that picks the answer whose key occurs in the
// system prompt. Unmatched prompts fail.
func Route(answers map[string]string) func([]Message, Options) (string, error) {
	return func(messages []Message, _ Options) (string, error) {
		var system string
		for _, m := range messages {
			if m.Role == RoleSystem {
				system = m.Content
				break
			}
		}
		for key, answer := range answers {
			if strings.Contains(system, key) {
				return answer, nil
			}
		}
		return "", fmt.Errorf("%w: no fake answer for prompt", ErrExternalService)
	}
}

var _ Client = (*FakeClient)(nil)
