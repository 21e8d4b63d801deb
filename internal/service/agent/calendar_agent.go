// Package agent runs the tool-calling calendar agent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"assistanthub/internal/config"
	"assistanthub/internal/service/calendar"
)

const systemPromptTemplate = `You are a calendar assistant with access to the user's calendar.
Today's date is %s and the user's timezone is %s.
Use %s to create events and %s to look up upcoming events. Use %s only for outside facts such as addresses or holidays.
Resolve relative dates like "tomorrow" against today's date and pass start times in RFC3339 with the user's timezone offset.
After acting, reply with a short confirmation that names the event title, date and time.`

// CalendarAgent is a react agent over the calendar tools. The chat model and
// graph are built on first use.
type CalendarAgent struct {
	newModel func(ctx context.Context) (model.ToolCallingChatModel, error)
	tools    []tool.BaseTool
	resolver *calendar.Resolver
	now      func() time.Time

	mu    sync.Mutex
	agent *react.Agent
}

// NewCalendarAgent returns ErrUnavailable when the configured provider has no API key.
func NewCalendarAgent(cfg *config.Config, resolver *calendar.Resolver) (*CalendarAgent, error) {
	name, provCfg, ok := cfg.AgentProviderConfig()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnavailable)
	}
	newModel := func(ctx context.Context) (model.ToolCallingChatModel, error) {
		return NewChatModel(ctx, name, provCfg)
	}
	return newCalendarAgent(newModel, InitToolsChain(cfg.Search, time.Now), resolver, time.Now), nil
}

func newCalendarAgent(newModel func(ctx context.Context) (model.ToolCallingChatModel, error), tools []tool.BaseTool, resolver *calendar.Resolver, now func() time.Time) *CalendarAgent {
	return &CalendarAgent{newModel: newModel, tools: tools, resolver: resolver, now: now}
}

// init builds the agent on first success; failures are retried on the next call.
func (a *CalendarAgent) init(ctx context.Context) (*react.Agent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.agent != nil {
		return a.agent, nil
	}
	chatModel, err := a.newModel(ctx)
	if err != nil {
		return nil, err
	}
	ag, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: a.tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init react agent: %w", err)
	}
	a.agent = ag
	return ag, nil
}

// Run answers one calendar query for email, acting on that user's calendar.
func (a *CalendarAgent) Run(ctx context.Context, query, email string) (string, error) {
	if a == nil {
		return "", ErrUnavailable
	}
	ag, err := a.init(ctx)
	if err != nil {
		return "", err
	}
	if a.resolver != nil {
		ctx = calendar.WithBackend(ctx, a.resolver.For(ctx, email))
	}
	ctx = WithToolUser(ctx, email)

	msg, err := ag.Generate(ctx, []*schema.Message{
		schema.SystemMessage(a.systemPrompt()),
		schema.UserMessage(query),
	})
	if err != nil {
		return "", fmt.Errorf("calendar agent: %w", err)
	}
	if msg == nil || msg.Content == "" {
		return "", errors.New("calendar agent returned no content")
	}
	return msg.Content, nil
}

func (a *CalendarAgent) systemPrompt() string {
	now := a.now()
	return fmt.Sprintf(systemPromptTemplate,
		now.Format("2006-01-02"), ianaZone(now.Location()),
		CreateEventToolName, ListEventsToolName, WebSearchToolName)
}

// ianaZone names loc the way calendar APIs expect.
func ianaZone(loc *time.Location) string {
	name := loc.String()
	if name != "Local" && name != "" {
		return name
	}
	if tz := os.Getenv("TZ"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	return "UTC"
}
