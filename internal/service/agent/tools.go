package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"assistanthub/internal/config"
	"assistanthub/internal/models"
	"assistanthub/internal/service/calendar"
)

const (
	CreateEventToolName = "googlecalendar_create_event"
	ListEventsToolName  = "googlecalendar_list_events"
	WebSearchToolName   = "web_search"
)

// InitToolsChain returns the calendar tools plus web search when a search
// provider could be built.
func InitToolsChain(searchCfg config.SearchConfig, now func() time.Time) []tool.BaseTool {
	tools := []tool.BaseTool{
		newCreateEventTool(now),
		newListEventsTool(now),
	}
	if ws := InitWebSearch(searchCfg); ws != nil {
		tools = append(tools, ws)
	}
	return tools
}

type createEventParams struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Start           string   `json:"start,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Participants    []string `json:"participants,omitempty"`
}

type calendarTool struct {
	now func() time.Time
}

func newCreateEventTool(now func() time.Time) tool.InvokableTool {
	t := &calendarTool{now: now}
	info := &schema.ToolInfo{
		Name: CreateEventToolName,
		Desc: "Create an event in the user's calendar. Start defaults to tomorrow 10:00 and duration to 60 minutes.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"title": {
				Desc:     "Event title, e.g. \"Meeting with John\"",
				Type:     schema.String,
				Required: true,
			},
			"description": {
				Desc: "Optional event description",
				Type: schema.String,
			},
			"start": {
				Desc: "Start time in RFC3339, e.g. 2024-05-02T14:00:00-07:00",
				Type: schema.String,
			},
			"duration_minutes": {
				Desc: "Duration in minutes",
				Type: schema.Integer,
			},
			"participants": {
				Desc:     "Participant email addresses",
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
		}),
	}
	return utils.NewTool(info, t.create)
}

func (t *calendarTool) create(ctx context.Context, params *createEventParams) (string, error) {
	if params == nil || strings.TrimSpace(params.Title) == "" {
		return "", errors.New("title is required")
	}
	backend, ok := calendar.BackendFromContext(ctx)
	if !ok {
		return "", errors.New("no calendar backend for this request")
	}
	start, err := parseEventStart(params.Start, t.now().Location())
	if err != nil {
		return "", err
	}
	ev, err := backend.CreateEvent(ctx, calendar.EventInput{
		Email:        ToolUserFromContext(ctx),
		Title:        params.Title,
		Description:  params.Description,
		Start:        start,
		Duration:     time.Duration(params.DurationMinutes) * time.Minute,
		Participants: params.Participants,
	})
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	return encodeEvents(ev)
}

type listEventsParams struct {
	Days  int `json:"days,omitempty"`
	Limit int `json:"limit,omitempty"`
}

func newListEventsTool(now func() time.Time) tool.InvokableTool {
	t := &calendarTool{now: now}
	info := &schema.ToolInfo{
		Name: ListEventsToolName,
		Desc: "List the user's upcoming calendar events starting now.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"days": {
				Desc: "How many days ahead to look, default 7",
				Type: schema.Integer,
			},
			"limit": {
				Desc: "Maximum number of events, default 10",
				Type: schema.Integer,
			},
		}),
	}
	return utils.NewTool(info, t.list)
}

func (t *calendarTool) list(ctx context.Context, params *listEventsParams) (string, error) {
	backend, ok := calendar.BackendFromContext(ctx)
	if !ok {
		return "", errors.New("no calendar backend for this request")
	}
	days, limit := 7, 10
	if params != nil {
		if params.Days > 0 {
			days = min(params.Days, ListEventsMaxDays)
		}
		if params.Limit > 0 {
			limit = params.Limit
		}
	}
	from := t.now()
	until := from.AddDate(0, 0, days)
	events, err := backend.ListEvents(ctx, ToolUserFromContext(ctx), from, limit)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}
	kept := events[:0]
	for _, ev := range events {
		if ev.Start.Before(until) {
			kept = append(kept, ev)
		}
	}
	if len(kept) == 0 {
		return fmt.Sprintf("No events in the next %d days.", days), nil
	}
	return encodeEvents(kept...)
}

func encodeEvents(events ...*models.CalendarEvent) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(events) == 1 {
		data, err = json.Marshal(events[0])
	} else {
		data, err = json.Marshal(events)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InitWebSearch wraps google and duckduckgo behind one rate-limited tool.
func InitWebSearch(searchCfg config.SearchConfig) tool.InvokableTool {
	googleTool := InitGooglesearch(searchCfg)
	duckTool := InitDDGsearch()
	if googleTool == nil && duckTool == nil {
		log.Printf("web search tool disabled: no search providers available")
		return nil
	}
	return newWebSearchTool(googleTool, duckTool)
}

func newWebSearchTool(google, duck tool.InvokableTool) tool.InvokableTool {
	ws := &webSearchTool{
		google:     google,
		duck:       duck,
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
		limiter:    newToolRateLimiter(WebSearchRateLimit, WebSearchRateWindow),
	}
	info := &schema.ToolInfo{
		Name: WebSearchToolName,
		Desc: "Search the web, e.g. for venue details or public holidays; " +
			"automatically fallbacks to another provider if needed;" +
			"can fetch a URL directly.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	limiter    *toolRateLimiter
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	key := ToolUserFromContext(ctx)
	if key == "" {
		key = "anonymous"
	}
	if !w.limiter.Allow(key) {
		return "", errors.New("web search rate limit exceeded, please retry in a minute")
	}

	if looksLikeURL(query) {
		if content, err := fetchURL(ctx, w.httpClient, query); err == nil {
			return content, nil
		} else {
			log.Printf("web url loader failed: %v", err)
		}
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil {
		if result, err := w.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("google search failed: %v", err)
		}
	}

	if w.duck != nil {
		if result, err := w.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("duckduckgo search failed: %v", err)
		}
	}

	return "", errors.New("no search provider succeeded")
}

// InitDDGsearch Init DDG Search
func InitDDGsearch() tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(context.Background(), &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		log.Printf("duckduckgo search tool disabled: %v", err)
		return nil
	}
	return duckTool
}

// InitGooglesearch Init Google Search
func InitGooglesearch(searchCfg config.SearchConfig) tool.InvokableTool {
	if searchCfg.GoogleAPIKey == "" || searchCfg.GoogleSearchEngineID == "" {
		log.Printf("google search tool disabled: missing google_api_key or google_search_engine_id")
		return nil
	}
	googleTool, err := googlesearch.NewTool(context.Background(), &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         searchCfg.GoogleAPIKey,
		SearchEngineID: searchCfg.GoogleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Printf("google search tool disabled: %v", err)
		return nil
	}
	return googleTool
}
