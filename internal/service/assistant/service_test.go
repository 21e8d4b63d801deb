package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"assistanthub/internal/config"
	"assistanthub/internal/models"
	"assistanthub/internal/service/huggingface"
	"assistanthub/internal/storage"
)

var fixedNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	gen        *huggingface.Generation
	failures   []string
	calls      int
	lastModel  string
	lastPrompt string
	lastLabels []string
}

func (f *fakeGenerator) Generate(ctx context.Context, model, prompt string, strategies ...huggingface.Strategy) (*huggingface.Generation, []string) {
	f.calls++
	f.lastModel = model
	f.lastPrompt = prompt
	f.lastLabels = f.lastLabels[:0]
	for _, s := range strategies {
		f.lastLabels = append(f.lastLabels, s.Label)
	}
	return f.gen, f.failures
}

type fakeRetriever struct {
	text string
	err  error
}

func (f fakeRetriever) Context(ctx context.Context, assistant, query string) (string, error) {
	return f.text, f.err
}

type fakeAgent struct {
	out   string
	err   error
	email string
}

func (f *fakeAgent) Run(ctx context.Context, query, email string) (string, error) {
	f.email = email
	return f.out, f.err
}

func okGeneration(text string) *huggingface.Generation {
	raw := json.RawMessage(`[{"generated_text":"` + text + `"}]`)
	return &huggingface.Generation{Strategy: "text-generation", Raw: raw, Text: text}
}

func newTestService(t *testing.T, db *sql.DB, gen *fakeGenerator, opts ...Option) *Service {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	svc, err := NewService(db, config.Default(), gen, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

const ytContext = "Title: Go Talk\nWatched At: 2024-01-01\nVideo Link: https://youtu.be/a"

func TestAskHistoryUsesContextAndModel(t *testing.T) {
	gen := &fakeGenerator{gen: okGeneration("You watched Go Talk.")}
	svc := newTestService(t, nil, gen, WithRetriever(fakeRetriever{text: ytContext}))

	resp, err := svc.Ask(context.Background(), "youtube", &models.QueryRequest{Query: "golang"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Response != "You watched Go Talk." || resp.Context != ytContext || len(resp.RawResponse) == 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	wantPrompt := "### Question: golang\n\n### Context:\n" + ytContext + "\n\n### Answer:"
	if gen.lastPrompt != wantPrompt {
		t.Fatalf("unexpected prompt %q", gen.lastPrompt)
	}
	if gen.lastModel != "Vishal3041/falcon_finetuned_llm" || strings.Join(gen.lastLabels, ",") != "text-generation,text2text-generation,no-task" {
		t.Fatalf("unexpected model call %s %v", gen.lastModel, gen.lastLabels)
	}
}

func TestAskHistoryFallbacks(t *testing.T) {
	failures := []string{"text-generation error: a", "text2text-generation error: b", "no-task error: c"}

	gen := &fakeGenerator{failures: failures}
	svc := newTestService(t, nil, gen, WithRetriever(fakeRetriever{text: ytContext}))
	resp, _ := svc.Ask(context.Background(), "youtube", &models.QueryRequest{Query: "golang"})
	if !strings.Contains(resp.Response, "🎬 **Go Talk**") {
		t.Fatalf("expected context listing, got %q", resp.Response)
	}
	if resp.Errors != strings.Join(failures, "; ") {
		t.Fatalf("unexpected errors %q", resp.Errors)
	}

	svc = newTestService(t, nil, gen, WithRetriever(fakeRetriever{err: errors.New("pinecone down")}))
	resp, _ = svc.Ask(context.Background(), "chrome", &models.QueryRequest{Query: "docs"})
	if !strings.HasPrefix(resp.Response, "I'm having trouble accessing your Chrome browsing history") {
		t.Fatalf("expected unavailable text, got %q", resp.Response)
	}

	gen = &fakeGenerator{gen: okGeneration("")}
	svc = newTestService(t, nil, gen)
	resp, _ = svc.Ask(context.Background(), "youtube", &models.QueryRequest{Query: "rust"})
	if resp.Response != `I couldn't find any information about "rust" in your YouTube history.` {
		t.Fatalf("empty generation should use formatter, got %q", resp.Response)
	}
}

func TestAskLinkedIn(t *testing.T) {
	gen := &fakeGenerator{gen: okGeneration("Jane Doe is a developer you connected with")}
	svc := newTestService(t, nil, gen)
	resp, _ := svc.Ask(context.Background(), "linkedin", &models.QueryRequest{Query: "developers"})
	if !strings.Contains(resp.Response, "👤 **Jane Doe**") {
		t.Fatalf("expected formatted reply, got %q", resp.Response)
	}
	if strings.Join(gen.lastLabels, ",") != "text-generation" || gen.lastPrompt != "### Question: developers\n\n### Answer:" {
		t.Fatalf("unexpected call %v %q", gen.lastLabels, gen.lastPrompt)
	}

	gen = &fakeGenerator{failures: []string{"text-generation error: 503"}}
	svc = newTestService(t, nil, gen)
	resp, _ = svc.Ask(context.Background(), "linkedin", &models.QueryRequest{Query: "developers"})
	if !strings.Contains(resp.Response, "John Smith") || resp.Errors != "text-generation error: 503" {
		t.Fatalf("expected sample connections, got %+v", resp)
	}
}

func TestAskCalendarPrefersAgent(t *testing.T) {
	gen := &fakeGenerator{}
	agent := &fakeAgent{out: "Your meeting is scheduled"}
	svc := newTestService(t, nil, gen, WithCalendarAgent(agent))

	resp, _ := svc.Ask(context.Background(), "calendar", &models.QueryRequest{Query: "book a meeting", Email: "me@example.com"})
	if !strings.Contains(resp.Response, "📅 meeting") || !strings.Contains(resp.Response, "**scheduled**") {
		t.Fatalf("agent reply should be formatted, got %q", resp.Response)
	}
	if gen.calls != 0 || agent.email != "me@example.com" {
		t.Fatalf("unexpected calls gen=%d email=%q", gen.calls, agent.email)
	}
}

func TestAskCalendarFallsBack(t *testing.T) {
	gen := &fakeGenerator{failures: []string{"text-generation error: down"}}
	agent := &fakeAgent{err: errors.New("no key")}
	svc := newTestService(t, nil, gen, WithCalendarAgent(agent))

	resp, _ := svc.Ask(context.Background(), "calendar", &models.QueryRequest{Query: "schedule lunch with Ana"})
	if !strings.Contains(resp.Response, "New Event Created: Meeting with Ana") {
		t.Fatalf("expected templated event, got %q", resp.Response)
	}
	if resp.Errors != "agent error: no key; text-generation error: down" {
		t.Fatalf("unexpected errors %q", resp.Errors)
	}
	if gen.lastModel != "HarshGahlaut/openELM-calender" {
		t.Fatalf("unexpected model %q", gen.lastModel)
	}
}

func TestSimulationModeSkipsUpstream(t *testing.T) {
	gen := &fakeGenerator{gen: okGeneration("should not be used")}
	agent := &fakeAgent{out: "nope"}
	svc := newTestService(t, nil, gen, WithCalendarAgent(agent), WithRetriever(fakeRetriever{text: ytContext}))
	ctx := context.Background()

	resp, _ := svc.Ask(ctx, "calendar", &models.QueryRequest{Query: "what is my availability", SimulationMode: true})
	if !strings.Contains(resp.Response, "Here's your availability for Monday, March 4") {
		t.Fatalf("unexpected simulated calendar %q", resp.Response)
	}
	resp, _ = svc.Ask(ctx, "youtube", &models.QueryRequest{Query: "go", SimulationMode: true})
	if !strings.Contains(resp.Response, "couldn't find any information") {
		t.Fatalf("unexpected simulated history %q", resp.Response)
	}
	if gen.calls != 0 || agent.email != "" {
		t.Fatalf("simulation must not call upstream")
	}

	svc.cfg.BasicConfig.SimulationMode = true
	resp, _ = svc.Ask(ctx, "linkedin", &models.QueryRequest{Query: "go"})
	if !strings.Contains(resp.Response, "Sarah Johnson") || gen.calls != 0 {
		t.Fatalf("config simulation should apply, got %q", resp.Response)
	}
}

func TestAskValidation(t *testing.T) {
	svc := newTestService(t, nil, &fakeGenerator{})
	if _, err := svc.Ask(context.Background(), "twitter", &models.QueryRequest{Query: "x"}); !errors.Is(err, ErrUnknownAssistant) {
		t.Fatalf("expected ErrUnknownAssistant, got %v", err)
	}
	if _, err := svc.Ask(context.Background(), "youtube", &models.QueryRequest{Query: "   "}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestAskRejectsInvalidSession(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(t, openTestDB(t), gen)
	for _, id := range []string{"   ", strings.Repeat("s", maxSessionIDLength+1)} {
		_, err := svc.Ask(context.Background(), "calendar", &models.QueryRequest{Query: "list events", SessionID: id})
		if !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("session %q: expected ErrInvalidSession, got %v", id, err)
		}
	}
	if gen.calls != 0 {
		t.Fatalf("invalid session must be rejected before generation, got %d calls", gen.calls)
	}
}

func TestExchangeHistoryRecorded(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := newTestService(t, db, &fakeGenerator{}, WithCalendarAgent(&fakeAgent{out: "Done"}))
	ctx := context.Background()

	if _, err := svc.Ask(ctx, "calendar", &models.QueryRequest{Query: "list events", SessionID: "s1"}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := svc.Ask(ctx, "calendar", &models.QueryRequest{Query: "no session"}); err != nil {
		t.Fatalf("ask: %v", err)
	}

	msgs, err := svc.History(ctx, "calendar", "s1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != models.RoleUser || msgs[0].Content != "list events" || msgs[1].Role != models.RoleAssistant || msgs[1].Content != "Done" {
		t.Fatalf("unexpected history %+v", msgs)
	}
	if other, _ := svc.History(ctx, "youtube", "s1"); len(other) != 0 {
		t.Fatalf("history must be scoped by assistant")
	}
	if _, err := svc.History(ctx, "calendar", ""); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	n, err := svc.ClearHistory(ctx, "calendar", "s1")
	if err != nil || n != 2 {
		t.Fatalf("clear: %d %v", n, err)
	}
}

func TestPurgeHistory(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := newTestService(t, db, &fakeGenerator{})
	ctx := context.Background()
	if err := svc.recordExchange(ctx, "youtube", "old", "q", "a"); err != nil {
		t.Fatalf("record: %v", err)
	}
	svc.now = func() time.Time { return fixedNow.Add(48 * time.Hour) }
	if err := svc.recordExchange(ctx, "youtube", "new", "q", "a"); err != nil {
		t.Fatalf("record: %v", err)
	}
	n, err := svc.purgeHistory(ctx, 24*time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("purge: %d %v", n, err)
	}
	if msgs, _ := svc.History(ctx, "youtube", "new"); len(msgs) != 2 {
		t.Fatalf("recent exchange should survive, got %d", len(msgs))
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}
