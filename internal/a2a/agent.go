package a2a

import (
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/chat-gateway/internal/backend"
	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
)

// AgentConfig holds the configuration for the backend-driven A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Backend answers each user turn. It is the same client the HTTP
	// gateway uses.
	Backend backend.Client
}

// New returns an agent.Agent whose Run sends the caller's text to the backend
// once and emits the answer as a single final event.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2a agent: Name must not be empty")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("a2a agent: Backend must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

// runFunc returns the Run closure that drives one agent invocation.
func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			query := extractQuery(ctx.UserContent())
			if query == "" {
				yield(finalEvent(ctx, cfg.Name, "(empty input)"), nil)
				return
			}

			answer, err := cfg.Backend.Generate(ctx, query)
			if err != nil {
				yield(nil, &apierrors.BackendError{Err: err})
				return
			}
			yield(finalEvent(ctx, cfg.Name, answer), nil)
		}
	}
}

// finalEvent builds the non-partial event that closes the invocation.
func finalEvent(ctx agent.InvocationContext, author, text string) *session.Event {
	ev := session.NewEvent(ctx.InvocationID())
	ev.Author = author
	ev.Branch = ctx.Branch()
	ev.LLMResponse = model.LLMResponse{
		Content: textContent(text),
		Partial: false,
	}
	return ev
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// textContent is a small helper that wraps a string into a *genai.Content.
func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
