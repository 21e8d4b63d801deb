package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"assistanthub/internal/auth"
	"assistanthub/internal/config"
	"assistanthub/internal/models"
	"assistanthub/internal/service/assistant"
	"assistanthub/internal/service/calendar"
	"assistanthub/internal/service/huggingface"
	"assistanthub/internal/setup"
)

// InferenceInfo exposes model metadata from the inference provider.
type InferenceInfo interface {
	ModelInfo(ctx context.Context, model string) (json.RawMessage, error)
	PipelineInfo(ctx context.Context, model string) (json.RawMessage, error)
}

// ModelsChecker reports the availability of upstream models.
type ModelsChecker interface {
	CheckModels(ctx context.Context) map[string]setup.ModelStatus
}

// Handler wires HTTP routes to the assistant, calendar and auth services.
type Handler struct {
	cfg       *config.Config
	assistant *assistant.Service
	auth      *auth.Service
	calendars *calendar.Resolver
	inference InferenceInfo
	checker   ModelsChecker
	lookupEnv func(string) (string, bool)
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg *config.Config, service *assistant.Service, authService *auth.Service, calendars *calendar.Resolver, inference InferenceInfo, checker ModelsChecker) *Handler {
	return &Handler{
		cfg:       cfg,
		assistant: service,
		auth:      authService,
		calendars: calendars,
		inference: inference,
		checker:   checker,
		lookupEnv: os.LookupEnv,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/check-setup", h.checkSetup)
	api.GET("/check-models", h.checkModels)
	api.GET("/check-model-info", h.checkModelInfo)

	assistants := api.Group("/assistants")
	if h.cfg.BasicConfig.EnforceSetup {
		assistants.Use(setup.RequireSetup(h.lookupEnv, h.requiredEnv()))
	}
	assistants.POST("/:name", h.ask)
	assistants.GET("/:name/history", h.history)
	assistants.DELETE("/:name/history", h.clearHistory)

	api.POST("/calendar/create", h.createEvent)
	api.GET("/calendar/events", h.listEvents)

	api.GET("/auth/google-calendar", h.googleCalendarAuth)
	api.GET("/auth/google-calendar/fallback", h.googleCalendarFallback)
}

// Recovery turns panics into the same body as any other unexpected failure.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Printf("panic serving %s: %v", c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to process your request",
			"details": fmt.Sprint(recovered),
		})
	})
}

func (h *Handler) requiredEnv() []string {
	if len(h.cfg.Setup.RequiredEnv) > 0 {
		return h.cfg.Setup.RequiredEnv
	}
	return config.DefaultRequiredEnv
}

func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(h.cfg.BasicConfig.RequestTimeout) * time.Second
	if timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

// Assistant interface
func (h *Handler) ask(c *gin.Context) {
	name := c.Param("name")
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	resp, err := h.assistant.Ask(ctx, name, &req)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrUnknownAssistant):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, assistant.ErrEmptyQuery), errors.Is(err, assistant.ErrInvalidSession):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("error processing %s query: %v", name, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process your request", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) history(c *gin.Context) {
	name := c.Param("name")
	messages, err := h.assistant.History(c.Request.Context(), name, c.Query("session_id"))
	if err != nil {
		h.historyError(c, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) clearHistory(c *gin.Context) {
	name := c.Param("name")
	deleted, err := h.assistant.ClearHistory(c.Request.Context(), name, c.Query("session_id"))
	if err != nil {
		h.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) historyError(c *gin.Context, err error) {
	if errors.Is(err, assistant.ErrUnknownAssistant) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, assistant.ErrInvalidSession) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Printf("history error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
}

// Setup interface
func (h *Handler) checkSetup(c *gin.Context) {
	c.JSON(http.StatusOK, setup.Check(h.lookupEnv, h.requiredEnv()))
}

func (h *Handler) checkModels(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()
	c.JSON(http.StatusOK, h.checker.CheckModels(ctx))
}

func (h *Handler) checkModelInfo(c *gin.Context) {
	modelPath := strings.TrimSpace(c.Query("model"))
	if modelPath == "" {
		modelPath = h.cfg.ModelFor(config.AssistantYouTube)
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	info, err := h.inference.ModelInfo(ctx, modelPath)
	if err != nil {
		var se *huggingface.StatusError
		if errors.As(err, &se) {
			c.JSON(se.StatusCode, gin.H{"error": "Failed to get model info", "details": setup.ErrorDetail(se.Body)})
			return
		}
		log.Printf("error checking model info: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check model info", "details": err.Error()})
		return
	}

	var pipelineInfo json.RawMessage
	if p, err := h.inference.PipelineInfo(ctx, modelPath); err != nil {
		log.Printf("error getting pipeline info: %v", err)
	} else {
		pipelineInfo = p
	}
	c.JSON(http.StatusOK, gin.H{
		"modelInfo":    info,
		"pipelineInfo": pipelineInfo,
		"modelPath":    modelPath,
	})
}

// Calendar interface
type createEventRequest struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Start           string   `json:"start"`
	DurationMinutes int      `json:"duration_minutes"`
	Participants    []string `json:"participants"`
	Email           string   `json:"email"`
}

func (h *Handler) createEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var start time.Time
	if req.Start != "" {
		parsed, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be an RFC3339 timestamp"})
			return
		}
		start = parsed
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ev, err := h.calendars.For(ctx, req.Email).CreateEvent(ctx, calendar.EventInput{
		Email:        req.Email,
		Title:        req.Title,
		Description:  req.Description,
		Start:        start,
		Duration:     time.Duration(req.DurationMinutes) * time.Minute,
		Participants: req.Participants,
	})
	if err != nil {
		if errors.Is(err, calendar.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("error creating calendar event: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create calendar event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully created event: " + ev.Title,
		"event":   ev,
	})
}

func (h *Handler) listEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	ctx, cancel := h.requestContext(c)
	defer cancel()

	email := c.Query("email")
	events, err := h.calendars.For(ctx, email).ListEvents(ctx, email, time.Now(), limit)
	if err != nil {
		log.Printf("error listing calendar events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list calendar events"})
		return
	}
	if events == nil {
		events = []*models.CalendarEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// OAuth interface
func (h *Handler) googleCalendarAuth(c *gin.Context) {
	origin := requestOrigin(c)
	appURL := h.cfg.BasicConfig.AppURL
	if appURL == "" {
		appURL = origin
	}

	if code := c.Query("code"); code != "" {
		if !h.auth.CanExchange() {
			c.Redirect(http.StatusFound, auth.CalendarRedirect(appURL, "simulation", ""))
			return
		}
		email, err := h.auth.Complete(c.Request.Context(), c.Query("state"), code)
		if err != nil {
			log.Printf("oauth callback failed: %v", err)
			c.Redirect(http.StatusFound, auth.CalendarRedirect(appURL, "error", err.Error()))
			return
		}
		log.Printf("google calendar connected for %q", email)
		c.Redirect(http.StatusFound, auth.CalendarRedirect(appURL, "success", ""))
		return
	}
	if oauthErr := c.Query("error"); oauthErr != "" {
		c.Redirect(http.StatusFound, auth.CalendarRedirect(appURL, "error", oauthErr))
		return
	}

	consentURL, err := h.auth.Start(c.Request.Context(), c.Query("email"), origin)
	if err != nil {
		message := err.Error()
		if errors.Is(err, auth.ErrMissingClientID) {
			message = "Missing_client_id"
		}
		c.Redirect(http.StatusFound, auth.CalendarRedirect(appURL, "error", message))
		return
	}
	c.Redirect(http.StatusFound, consentURL)
}

func (h *Handler) googleCalendarFallback(c *gin.Context) {
	appURL := h.cfg.BasicConfig.AppURL
	if appURL == "" {
		appURL = requestOrigin(c)
	}
	c.Redirect(http.StatusFound, auth.CalendarRedirect(appURL, "simulation", ""))
}

func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
