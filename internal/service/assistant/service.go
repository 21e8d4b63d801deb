// Package assistant answers queries for the four dashboard assistants.
package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"assistanthub/internal/config"
	"assistanthub/internal/models"
	"assistanthub/internal/service/fallback"
	"assistanthub/internal/service/huggingface"
)

var (
	ErrUnknownAssistant = errors.New("unknown assistant")
	ErrEmptyQuery       = errors.New("query is required")
)

// Generator runs hosted inference with ordered fallback strategies.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, strategies ...huggingface.Strategy) (*huggingface.Generation, []string)
}

// ContextRetriever builds the retrieval block for the history assistants.
type ContextRetriever interface {
	Context(ctx context.Context, assistant, query string) (string, error)
}

// CalendarAgent acts on the user's calendar with tools.
type CalendarAgent interface {
	Run(ctx context.Context, query, email string) (string, error)
}

// Service routes a query to its assistant flow and records the exchange.
type Service struct {
	db        *sql.DB
	cfg       *config.Config
	hf        Generator
	retriever ContextRetriever
	agent     CalendarAgent
	now       func() time.Time
}

type Option func(*Service)

func WithRetriever(r ContextRetriever) Option {
	return func(s *Service) { s.retriever = r }
}

func WithCalendarAgent(a CalendarAgent) Option {
	return func(s *Service) { s.agent = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a new assistant service.
func NewService(db *sql.DB, cfg *config.Config, hf Generator, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if hf == nil {
		return nil, errors.New("inference client is required")
	}
	s := &Service{db: db, cfg: cfg, hf: hf, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Known reports whether kind names one of the assistants.
func Known(kind string) bool {
	switch kind {
	case config.AssistantYouTube, config.AssistantChrome, config.AssistantLinkedIn, config.AssistantCalendar:
		return true
	}
	return false
}

// Ask answers one query. Upstream failures never surface as errors; they
// degrade to canned text and are listed in the response's Errors field.
func (s *Service) Ask(ctx context.Context, kind string, req *models.QueryRequest) (*models.QueryResponse, error) {
	if !Known(kind) {
		return nil, fmt.Errorf("%s: %w", kind, ErrUnknownAssistant)
	}
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.SessionID != "" {
		if err := validSession(kind, req.SessionID); err != nil {
			return nil, err
		}
	}
	query := strings.TrimSpace(req.Query)
	log.Printf("%s query received: %q", kind, query)

	var resp *models.QueryResponse
	if req.SimulationMode || s.cfg.BasicConfig.SimulationMode {
		resp = s.simulate(kind, query)
	} else {
		switch kind {
		case config.AssistantYouTube, config.AssistantChrome:
			resp = s.askHistory(ctx, kind, query)
		case config.AssistantLinkedIn:
			resp = s.askLinkedIn(ctx, query)
		case config.AssistantCalendar:
			resp = s.askCalendar(ctx, query, req.Email)
		}
	}

	if req.SessionID != "" {
		if err := s.recordExchange(ctx, kind, req.SessionID, query, resp.Response); err != nil {
			log.Printf("record %s exchange: %v", kind, err)
		}
	}
	return resp, nil
}

func (s *Service) simulate(kind, query string) *models.QueryResponse {
	switch kind {
	case config.AssistantCalendar:
		return &models.QueryResponse{Response: fallback.Calendar(query, s.now())}
	case config.AssistantLinkedIn:
		return &models.QueryResponse{Response: fallback.LinkedIn(query)}
	default:
		return &models.QueryResponse{Response: fallback.History(kind, query, "")}
	}
}

func (s *Service) askHistory(ctx context.Context, kind, query string) *models.QueryResponse {
	contextText := ""
	if s.retriever != nil {
		c, err := s.retriever.Context(ctx, kind, query)
		if err != nil {
			log.Printf("%s retrieval failed: %v", kind, err)
		} else {
			contextText = c
		}
	}

	prompt := fmt.Sprintf("### Question: %s\n\n### Context:\n%s\n\n### Answer:", query, contextText)
	gen, failures := s.hf.Generate(ctx, s.cfg.ModelFor(kind), prompt,
		huggingface.TextGeneration, huggingface.Text2Text, huggingface.Pipeline)
	if gen == nil {
		log.Printf("%s: %v, using fallback", kind, huggingface.FailureError(failures))
		resp := &models.QueryResponse{Errors: strings.Join(failures, "; ")}
		if contextText != "" {
			resp.Response = fallback.History(kind, query, contextText)
		} else {
			resp.Response = fallback.Unavailable(kind)
		}
		return resp
	}

	text := gen.Text
	if text == "" {
		text = fallback.History(kind, query, contextText)
	}
	return &models.QueryResponse{Response: text, RawResponse: gen.Raw, Context: contextText}
}

func (s *Service) askLinkedIn(ctx context.Context, query string) *models.QueryResponse {
	prompt := fmt.Sprintf("### Question: %s\n\n### Answer:", query)
	gen, failures := s.hf.Generate(ctx, s.cfg.ModelFor(config.AssistantLinkedIn), prompt, huggingface.TextGeneration)
	if gen == nil {
		log.Printf("linkedin: %v, using fallback", huggingface.FailureError(failures))
		return &models.QueryResponse{
			Response: fallback.LinkedIn(query),
			Errors:   strings.Join(failures, "; "),
		}
	}
	return &models.QueryResponse{
		Response:    fallback.FormatLinkedIn(gen.Text, query),
		RawResponse: gen.Raw,
	}
}

func (s *Service) askCalendar(ctx context.Context, query, email string) *models.QueryResponse {
	var failures []string
	if s.agent != nil {
		out, err := s.agent.Run(ctx, query, email)
		if err == nil {
			return &models.QueryResponse{Response: fallback.FormatCalendar(out)}
		}
		log.Printf("calendar agent failed: %v", err)
		failures = append(failures, "agent error: "+err.Error())
	}

	prompt := fmt.Sprintf("### Question: %s\n\n### Answer:", query)
	gen, genFailures := s.hf.Generate(ctx, s.cfg.ModelFor(config.AssistantCalendar), prompt, huggingface.TextGeneration)
	failures = append(failures, genFailures...)
	if gen == nil {
		log.Printf("calendar: %v, using fallback", huggingface.FailureError(failures))
		return &models.QueryResponse{
			Response: fallback.Calendar(query, s.now()),
			Errors:   strings.Join(failures, "; "),
		}
	}

	text := gen.Text
	if text == "" {
		text = fallback.Calendar(query, s.now())
	}
	return &models.QueryResponse{Response: fallback.FormatCalendar(text), RawResponse: gen.Raw}
}
